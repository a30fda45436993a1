// Package postgres implements users.Store on PostgreSQL via pgx.
//
// Expected table (managed outside this service):
//
//	CREATE TABLE users (
//	    id                 BIGSERIAL PRIMARY KEY,
//	    name               TEXT NOT NULL,
//	    email              TEXT NOT NULL UNIQUE,
//	    password_hash      TEXT NOT NULL,
//	    score              BIGINT NOT NULL DEFAULT 0,
//	    rank               INT NOT NULL DEFAULT 0,
//	    two_factor_secret  TEXT NOT NULL DEFAULT '',
//	    two_factor_enabled BOOLEAN NOT NULL DEFAULT FALSE,
//	    created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jrsteele09/mindcraft-auth/users"
	"github.com/pkg/errors"
)

const uniqueViolation = "23505"

const selectUser = `SELECT id, name, email, password_hash, score, rank,
       two_factor_secret, two_factor_enabled, created_at
FROM users`

type Store struct {
	db *pgxpool.Pool
}

var _ users.Store = (*Store)(nil)

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Connect opens a pool for dsn and pings it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parsing database dsn")
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = time.Hour

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "opening database pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "pinging database")
	}
	return pool, nil
}

func scanUser(row pgx.Row) (*users.User, error) {
	var u users.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Score, &u.Rank,
		&u.TwoFactorSecret, &u.TwoFactorEnabled, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, users.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) FindByID(ctx context.Context, id int64) (*users.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, selectUser+` WHERE id = $1`, id))
	return u, wrap(err, "postgres.FindByID")
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*users.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, selectUser+` WHERE email = LOWER($1)`, strings.TrimSpace(email)))
	return u, wrap(err, "postgres.FindByEmail")
}

func (s *Store) Create(ctx context.Context, user *users.User) error {
	q := `
INSERT INTO users (name, email, password_hash, score, rank)
VALUES ($1, LOWER($2), $3, $4, $5)
RETURNING id, email, created_at`
	err := s.db.QueryRow(ctx, q, user.Name, strings.TrimSpace(user.Email), user.PasswordHash, user.Score, user.Rank).
		Scan(&user.ID, &user.Email, &user.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return users.ErrDuplicateEmail
	}
	return errors.Wrap(err, "postgres.Create")
}

func (s *Store) UpdateTwoFactor(ctx context.Context, id int64, secret string, enabled bool) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE users SET two_factor_secret = $2, two_factor_enabled = $3 WHERE id = $1`,
		id, secret, enabled && secret != "")
	if err != nil {
		return errors.Wrap(err, "postgres.UpdateTwoFactor")
	}
	if tag.RowsAffected() == 0 {
		return users.ErrNotFound
	}
	return nil
}

func wrap(err error, op string) error {
	if err == nil || errors.Is(err, users.ErrNotFound) {
		return err
	}
	return errors.Wrap(err, op)
}

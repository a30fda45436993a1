// Package boltstore implements sessions.Store on an embedded bbolt file, for single-node
// deployments that run without Redis.
package boltstore

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/jrsteele09/mindcraft-auth/sessions"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

var bucketName = []byte("sessions")

// refreshEntry is stored under refresh-token:<id>.
type refreshEntry struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Store keeps the session record and its refresh-token index in one bucket. Every mutation
// runs inside a single bbolt write transaction, which serialises writers.
type Store struct {
	db      *bbolt.DB
	nowFunc func() time.Time
}

var _ sessions.Store = (*Store)(nil)

type Option func(*Store)

func WithNowFunc(now func() time.Time) Option {
	return func(s *Store) {
		s.nowFunc = now
	}
}

// New returns a Store backed by db, creating the bucket if needed.
func New(db *bbolt.DB, options ...Option) (*Store, error) {
	s := &Store{db: db, nowFunc: time.Now}
	for _, opt := range options {
		opt(s)
	}
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating sessions bucket")
	}
	return s, nil
}

// Open opens (or creates) the bbolt file at path.
func Open(path string, timeout time.Duration, options ...Option) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, errors.Wrapf(err, "opening bbolt db %s", path)
	}
	s, err := New(db, options...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateOrReplace(ctx context.Context, sessionID, refreshToken string, profile sessions.Profile, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := s.nowFunc()
	rec := sessions.Record{
		SessionID:    sessionID,
		RefreshToken: refreshToken,
		Profile:      profile,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
	return errors.Wrap(s.db.Update(func(tx *bbolt.Tx) error {
		return putRecord(tx.Bucket(bucketName), &rec)
	}), "boltstore.CreateOrReplace")
}

func (s *Store) GetProfile(ctx context.Context, sessionID string) (*sessions.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var profile sessions.Profile
	err := s.db.View(func(tx *bbolt.Tx) error {
		rec, err := s.liveRecord(tx.Bucket(bucketName), sessionID)
		if err != nil {
			return err
		}
		profile = rec.Profile
		return nil
	})
	if err != nil {
		return nil, wrap(err, "boltstore.GetProfile")
	}
	return &profile, nil
}

func (s *Store) GetRefreshToken(ctx context.Context, sessionID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var token string
	err := s.db.View(func(tx *bbolt.Tx) error {
		rec, err := s.liveRecord(tx.Bucket(bucketName), sessionID)
		if err != nil {
			return err
		}
		token = rec.RefreshToken
		return nil
	})
	if err != nil {
		return "", wrap(err, "boltstore.GetRefreshToken")
	}
	return token, nil
}

func (s *Store) RotateRefreshToken(ctx context.Context, sessionID, expected, next string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		rec, err := s.liveRecord(b, sessionID)
		if err != nil {
			return err
		}
		if rec.RefreshToken != expected {
			return sessions.ErrTokenMismatch
		}
		rec.RefreshToken = next
		rec.ExpiresAt = s.nowFunc().Add(ttl)
		return putRecord(b, rec)
	})
	return wrap(err, "boltstore.RotateRefreshToken")
}

func (s *Store) UpdateProfile(ctx context.Context, sessionID string, profile sessions.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		rec, err := s.liveRecord(b, sessionID)
		if err != nil {
			return err
		}
		rec.Profile = profile
		return putRecord(b, rec)
	})
	return wrap(err, "boltstore.UpdateProfile")
}

func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	found := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		_, err := s.liveRecord(b, sessionID)
		switch {
		case err == nil:
			found = true
		case !errors.Is(err, sessions.ErrNotFound):
			return err
		}
		// expired or half-written leftovers go too, without waiting for PurgeExpired
		return deleteRecord(b, sessionID)
	})
	if err == nil && !found {
		return sessions.ErrNotFound
	}
	return wrap(err, "boltstore.Delete")
}

// PurgeExpired removes every expired session and returns how many were dropped.
// bbolt has no TTLs, so the server runs this periodically.
func (s *Store) PurgeExpired(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := s.nowFunc()
	purged := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		var expired []string
		prefix := []byte(sessions.SessionKey(""))
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rec sessions.Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if !now.Before(rec.ExpiresAt) {
				expired = append(expired, rec.SessionID)
			}
		}
		for _, id := range expired {
			if err := deleteRecord(b, id); err != nil {
				return err
			}
		}
		purged = len(expired)
		return nil
	})
	return purged, errors.Wrap(err, "boltstore.PurgeExpired")
}

// Keys lists every key in the bucket, including expired ones not yet purged.
func (s *Store) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

// liveRecord loads the session and its refresh-token entry. A half-present or expired
// pair reads as not found.
func (s *Store) liveRecord(b *bbolt.Bucket, sessionID string) (*sessions.Record, error) {
	data := b.Get([]byte(sessions.SessionKey(sessionID)))
	tokenData := b.Get([]byte(sessions.RefreshTokenKey(sessionID)))
	if data == nil || tokenData == nil {
		return nil, sessions.ErrNotFound
	}

	var rec sessions.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	var entry refreshEntry
	if err := json.Unmarshal(tokenData, &entry); err != nil {
		return nil, err
	}
	if !s.nowFunc().Before(entry.ExpiresAt) {
		return nil, sessions.ErrNotFound
	}
	rec.RefreshToken = entry.Token
	return &rec, nil
}

func putRecord(b *bbolt.Bucket, rec *sessions.Record) error {
	entry, err := json.Marshal(refreshEntry{Token: rec.RefreshToken, ExpiresAt: rec.ExpiresAt})
	if err != nil {
		return err
	}
	// the token lives only in the index entry
	stored := *rec
	stored.RefreshToken = ""
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	if err := b.Put([]byte(sessions.SessionKey(rec.SessionID)), data); err != nil {
		return err
	}
	return b.Put([]byte(sessions.RefreshTokenKey(rec.SessionID)), entry)
}

func deleteRecord(b *bbolt.Bucket, sessionID string) error {
	if err := b.Delete([]byte(sessions.SessionKey(sessionID))); err != nil {
		return err
	}
	return b.Delete([]byte(sessions.RefreshTokenKey(sessionID)))
}

// wrap keeps the store's sentinel errors unwrapped so callers can compare them directly.
func wrap(err error, op string) error {
	if err == nil || errors.Is(err, sessions.ErrNotFound) || errors.Is(err, sessions.ErrTokenMismatch) {
		return err
	}
	return errors.Wrap(err, op)
}

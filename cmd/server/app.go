package main

import (
	"context"
	"net/http"
	"time"

	"github.com/jrsteele09/mindcraft-auth/auth"
	"github.com/jrsteele09/mindcraft-auth/internal/config"
	"github.com/jrsteele09/mindcraft-auth/server"
	"github.com/jrsteele09/mindcraft-auth/sessions"
	"github.com/jrsteele09/mindcraft-auth/sessions/boltstore"
	"github.com/jrsteele09/mindcraft-auth/sessions/redisstore"
	fakesessionrepo "github.com/jrsteele09/mindcraft-auth/sessions/repofakes"
	"github.com/jrsteele09/mindcraft-auth/tasks"
	"github.com/jrsteele09/mindcraft-auth/tasks/natsqueue"
	"github.com/jrsteele09/mindcraft-auth/token"
	"github.com/jrsteele09/mindcraft-auth/twofactor"
	"github.com/jrsteele09/mindcraft-auth/users"
	"github.com/jrsteele09/mindcraft-auth/users/postgres"
	fakeuserrepo "github.com/jrsteele09/mindcraft-auth/users/repofake"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const boltPurgeInterval = 5 * time.Minute

// app owns every long lived connection behind the HTTP handler.
type app struct {
	handler http.Handler
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, c config.Config, logger zerolog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()
	health := map[string]server.HealthCheck{}

	store, err := a.sessionStore(ctx, c, logger, health)
	if err != nil {
		return nil, err
	}
	userStore, err := a.userStore(ctx, c, logger, health)
	if err != nil {
		return nil, err
	}

	hasher, err := users.NewPasswordHasher(c.GetPasswordHasher())
	if err != nil {
		return nil, err
	}

	signer, err := token.NewHMACSigner(c.GetTokenSecret())
	if err != nil {
		return nil, err
	}
	codec := token.NewCodec(signer,
		token.WithIssuer(c.GetTokenIssuer()),
		token.WithAudience(c.GetTokenAudience()),
	)
	verifier := twofactor.NewVerifier(
		twofactor.WithIssuer(c.GetTOTPIssuer()),
		twofactor.WithSkew(c.GetTOTPSkew()),
	)

	manager, err := auth.NewSessionManager(store, codec,
		auth.WithAccessTokenTTL(c.GetAccessTokenTTL()),
		auth.WithRefreshTokenTTL(c.GetRefreshTokenTTL()),
		auth.WithStoreTimeout(c.GetStoreTimeout()),
		auth.WithTwoFactor(verifier, userStore),
		auth.WithLogger(logger.With().Str("component", "sessions").Logger()),
	)
	if err != nil {
		return nil, err
	}

	deps := server.Dependencies{
		Sessions: manager,
		Users:    userStore,
		Hasher:   hasher,
		Health:   health,
	}
	submitter, err := a.taskSubmitter(c, logger, health)
	if err != nil {
		return nil, err
	}
	if submitter != nil {
		deps.Tasks = submitter
	}

	srv, err := server.New(c, deps, server.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	a.handler = srv
	return a, nil
}

func (a *app) sessionStore(ctx context.Context, c config.Config, logger zerolog.Logger, health map[string]server.HealthCheck) (sessions.Store, error) {
	switch backend := c.GetSessionBackend(); backend {
	case config.SessionBackendRedis:
		client, err := redisstore.Connect(ctx, redisstore.Config{
			Addr:     c.GetRedisAddr(),
			Password: c.GetRedisPassword(),
			DB:       c.GetRedisDB(),
			PoolSize: c.GetRedisPoolSize(),
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		health["sessions"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		logger.Info().Str("addr", c.GetRedisAddr()).Msg("session store: redis")
		return redisstore.New(client), nil

	case config.SessionBackendBolt:
		store, err := boltstore.Open(c.GetBoltPath(), c.GetStoreTimeout())
		if err != nil {
			return nil, err
		}
		purgeCtx, cancel := context.WithCancel(context.Background())
		go purgeExpired(purgeCtx, store, logger)
		a.closers = append(a.closers, func() {
			cancel()
			_ = store.Close()
		})
		logger.Info().Str("path", c.GetBoltPath()).Msg("session store: bolt")
		return store, nil

	case config.SessionBackendMemory:
		logger.Warn().Msg("session store: in-memory, sessions are lost on restart")
		return fakesessionrepo.NewFakeSessionRepo(), nil

	default:
		return nil, errors.Errorf("unknown session backend %q", backend)
	}
}

func purgeExpired(ctx context.Context, store *boltstore.Store, logger zerolog.Logger) {
	ticker := time.NewTicker(boltPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PurgeExpired(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("purging expired sessions")
				continue
			}
			if n > 0 {
				logger.Debug().Int("purged", n).Msg("expired sessions removed")
			}
		}
	}
}

func (a *app) userStore(ctx context.Context, c config.Config, logger zerolog.Logger, health map[string]server.HealthCheck) (users.Store, error) {
	dsn := c.GetDatabaseDSN()
	if dsn == "" {
		logger.Warn().Msg("user store: in-memory, DATABASE_DSN not set")
		return fakeuserrepo.NewFakeUserRepo(), nil
	}
	pool, err := postgres.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pool.Close)
	health["database"] = pool.Ping
	logger.Info().Msg("user store: postgres")
	return postgres.New(pool), nil
}

func (a *app) taskSubmitter(c config.Config, logger zerolog.Logger, health map[string]server.HealthCheck) (*tasks.Dispatcher, error) {
	url := c.GetNatsURL()
	if url == "" {
		logger.Info().Msg("task queue disabled, NATS_URL not set")
		return nil, nil
	}
	nc, err := natsqueue.Connect(url, c.GetAppName())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, nc.Close)
	health["tasks"] = func(context.Context) error {
		if !nc.IsConnected() {
			return errors.New("nats disconnected")
		}
		return nil
	}

	registry := tasks.NewRegistry(c.GetTaskMaxPending(), c.GetTaskTimeout())
	queue, err := natsqueue.New(nc, registry, c.GetTaskSubject(), c.GetTaskResultSubject(),
		natsqueue.WithLogger(logger.With().Str("component", "tasks").Logger()))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = queue.Close() })
	logger.Info().Str("url", url).Str("subject", c.GetTaskSubject()).Msg("task queue: nats")

	return tasks.NewDispatcher(queue, registry, tasks.WithLogger(logger)), nil
}

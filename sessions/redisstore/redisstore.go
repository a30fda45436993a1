// Package redisstore implements sessions.Store on Redis.
//
// Each session uses two keys: a hash at session:<id> holding the profile snapshot and a
// string at refresh-token:<id> holding the single live refresh token. Both carry the refresh
// token lifetime as TTL. Multi-key operations run in MULTI/EXEC or in a Lua script, so the
// store targets a single Redis node (or a failover group), not a sharded cluster.
package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jrsteele09/mindcraft-auth/sessions"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	fieldUserID    = "user_id"
	fieldProfile   = "profile"
	fieldCreatedAt = "created_at"
)

// rotateScript swaps the refresh token only if the caller presents the current one.
// Returns -1 when the session is gone, 0 on mismatch, 1 on success.
var rotateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
local current = redis.call('GET', KEYS[2])
if not current then
	return -1
end
if current ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// updateProfileScript rewrites the snapshot of an existing session without touching its TTL.
var updateProfileScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'profile', ARGV[1], 'user_id', ARGV[2])
return 1
`)

type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// Connect opens a pooled client and checks it with a bounded PING.
func Connect(ctx context.Context, c Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
		PoolSize: c.PoolSize,
	})

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "redis ping %s", c.Addr)
	}
	return client, nil
}

type Store struct {
	client  redis.UniversalClient
	nowFunc func() time.Time
}

var _ sessions.Store = (*Store)(nil)

func New(client redis.UniversalClient) *Store {
	return &Store{
		client:  client,
		nowFunc: time.Now,
	}
}

func (s *Store) CreateOrReplace(ctx context.Context, sessionID, refreshToken string, profile sessions.Profile, ttl time.Duration) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return errors.Wrap(err, "redisstore.CreateOrReplace marshal profile")
	}

	sessionKey := sessions.SessionKey(sessionID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey)
		pipe.HSet(ctx, sessionKey,
			fieldUserID, profile.UserID,
			fieldProfile, data,
			fieldCreatedAt, s.nowFunc().UTC().Format(time.RFC3339),
		)
		pipe.PExpire(ctx, sessionKey, ttl)
		pipe.Set(ctx, sessions.RefreshTokenKey(sessionID), refreshToken, ttl)
		return nil
	})
	return errors.Wrap(err, "redisstore.CreateOrReplace")
}

func (s *Store) GetProfile(ctx context.Context, sessionID string) (*sessions.Profile, error) {
	data, err := s.client.HGet(ctx, sessions.SessionKey(sessionID), fieldProfile).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sessions.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "redisstore.GetProfile")
	}

	var profile sessions.Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, errors.Wrap(err, "redisstore.GetProfile unmarshal")
	}
	return &profile, nil
}

func (s *Store) GetRefreshToken(ctx context.Context, sessionID string) (string, error) {
	refreshToken, err := s.client.Get(ctx, sessions.RefreshTokenKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", sessions.ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "redisstore.GetRefreshToken")
	}
	return refreshToken, nil
}

func (s *Store) RotateRefreshToken(ctx context.Context, sessionID, expected, next string, ttl time.Duration) error {
	keys := []string{sessions.SessionKey(sessionID), sessions.RefreshTokenKey(sessionID)}
	result, err := rotateScript.Run(ctx, s.client, keys, expected, next, ttl.Milliseconds()).Int()
	if err != nil {
		return errors.Wrap(err, "redisstore.RotateRefreshToken")
	}

	switch result {
	case 1:
		return nil
	case 0:
		return sessions.ErrTokenMismatch
	default:
		return sessions.ErrNotFound
	}
}

func (s *Store) UpdateProfile(ctx context.Context, sessionID string, profile sessions.Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return errors.Wrap(err, "redisstore.UpdateProfile marshal profile")
	}

	updated, err := updateProfileScript.Run(ctx, s.client, []string{sessions.SessionKey(sessionID)}, data, profile.UserID).Int()
	if err != nil {
		return errors.Wrap(err, "redisstore.UpdateProfile")
	}
	if updated == 0 {
		return sessions.ErrNotFound
	}
	return nil
}

// Delete drops both keys in one DEL, which Redis applies atomically.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	removed, err := s.client.Del(ctx, sessions.SessionKey(sessionID), sessions.RefreshTokenKey(sessionID)).Result()
	if err != nil {
		return errors.Wrap(err, "redisstore.Delete")
	}
	if removed == 0 {
		return sessions.ErrNotFound
	}
	return nil
}

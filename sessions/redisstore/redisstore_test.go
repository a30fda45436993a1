package redisstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/mindcraft-auth/sessions"
	"github.com/jrsteele09/mindcraft-auth/sessions/redisstore"
	"github.com/jrsteele09/mindcraft-auth/sessions/storetest"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisstore.New(client), mr
}

func TestRedisStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) sessions.Store {
		s, _ := newTestStore(t)
		return s
	})
}

func TestRedisStore_KeyLayoutAndTTL(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	ttl := 30 * 24 * time.Hour

	require.NoError(t, s.CreateOrReplace(ctx, "1:a", "rt-1", sessions.Profile{UserID: 1, Name: "Ada"}, ttl))

	require.True(t, mr.Exists("session:1:a"))
	require.True(t, mr.Exists("refresh-token:1:a"))
	require.Equal(t, "1", mr.HGet("session:1:a", "user_id"))
	require.Equal(t, ttl, mr.TTL("session:1:a"))
	require.Equal(t, ttl, mr.TTL("refresh-token:1:a"))

	rt, err := mr.Get("refresh-token:1:a")
	require.NoError(t, err)
	require.Equal(t, "rt-1", rt)

	mr.FastForward(ttl + time.Second)
	_, err = s.GetRefreshToken(ctx, "1:a")
	require.ErrorIs(t, err, sessions.ErrNotFound)
	_, err = s.GetProfile(ctx, "1:a")
	require.ErrorIs(t, err, sessions.ErrNotFound)
}

func TestRedisStore_RotateRenewsTTL(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateOrReplace(ctx, "1:a", "rt-1", sessions.Profile{UserID: 1}, time.Hour))
	mr.FastForward(30 * time.Minute)

	require.NoError(t, s.RotateRefreshToken(ctx, "1:a", "rt-1", "rt-2", 2*time.Hour))
	require.Equal(t, 2*time.Hour, mr.TTL("session:1:a"))
	require.Equal(t, 2*time.Hour, mr.TTL("refresh-token:1:a"))
}

func TestRedisStore_RotateWithoutSessionHash(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("refresh-token:1:orphan", "rt-1"))
	require.ErrorIs(t, s.RotateRefreshToken(ctx, "1:orphan", "rt-1", "rt-2", time.Hour), sessions.ErrNotFound)
}

func TestRedisStore_DeleteLeavesNoKeys(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateOrReplace(ctx, "1:a", "rt-1", sessions.Profile{UserID: 1}, time.Hour))
	require.NoError(t, s.Delete(ctx, "1:a"))
	require.Empty(t, mr.Keys())
}

func TestRedisStore_UnavailableIsNotNotFound(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()

	_, err := s.GetRefreshToken(context.Background(), "1:a")
	require.Error(t, err)
	require.NotErrorIs(t, err, sessions.ErrNotFound)
}

// Package storetest holds the behaviour every sessions.Store backend must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/mindcraft-auth/sessions"
	"github.com/stretchr/testify/require"
)

const ttl = 30 * 24 * time.Hour

// Run exercises store contract. newStore must return an empty store on each call.
func Run(t *testing.T, newStore func(t *testing.T) sessions.Store) {
	t.Helper()
	ctx := context.Background()

	profile := sessions.Profile{UserID: 1, Name: "Ada", Email: "ada@example.com", Score: 420, Rank: 3}

	t.Run("create and read back", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateOrReplace(ctx, "1:a", "rt-1", profile, ttl))

		got, err := s.GetProfile(ctx, "1:a")
		require.NoError(t, err)
		require.Equal(t, profile, *got)

		rt, err := s.GetRefreshToken(ctx, "1:a")
		require.NoError(t, err)
		require.Equal(t, "rt-1", rt)
	})

	t.Run("missing session", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetProfile(ctx, "nope")
		require.ErrorIs(t, err, sessions.ErrNotFound)
		_, err = s.GetRefreshToken(ctx, "nope")
		require.ErrorIs(t, err, sessions.ErrNotFound)
		require.ErrorIs(t, s.RotateRefreshToken(ctx, "nope", "a", "b", ttl), sessions.ErrNotFound)
		require.ErrorIs(t, s.UpdateProfile(ctx, "nope", profile), sessions.ErrNotFound)
		require.ErrorIs(t, s.Delete(ctx, "nope"), sessions.ErrNotFound)
	})

	t.Run("create replaces", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateOrReplace(ctx, "1:a", "rt-1", profile, ttl))
		changed := profile
		changed.Score = 9000
		require.NoError(t, s.CreateOrReplace(ctx, "1:a", "rt-2", changed, ttl))

		rt, err := s.GetRefreshToken(ctx, "1:a")
		require.NoError(t, err)
		require.Equal(t, "rt-2", rt)
		got, err := s.GetProfile(ctx, "1:a")
		require.NoError(t, err)
		require.Equal(t, int64(9000), got.Score)
	})

	t.Run("rotate is compare and swap", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateOrReplace(ctx, "1:a", "rt-1", profile, ttl))

		require.ErrorIs(t, s.RotateRefreshToken(ctx, "1:a", "forged", "rt-x", ttl), sessions.ErrTokenMismatch)
		rt, err := s.GetRefreshToken(ctx, "1:a")
		require.NoError(t, err)
		require.Equal(t, "rt-1", rt)

		require.NoError(t, s.RotateRefreshToken(ctx, "1:a", "rt-1", "rt-2", ttl))
		rt, err = s.GetRefreshToken(ctx, "1:a")
		require.NoError(t, err)
		require.Equal(t, "rt-2", rt)

		require.ErrorIs(t, s.RotateRefreshToken(ctx, "1:a", "rt-1", "rt-3", ttl), sessions.ErrTokenMismatch)

		got, err := s.GetProfile(ctx, "1:a")
		require.NoError(t, err)
		require.Equal(t, profile, *got)
	})

	t.Run("concurrent rotate has one winner", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateOrReplace(ctx, "1:a", "rt-1", profile, ttl))

		const racers = 8
		results := make([]error, racers)
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				results[i] = s.RotateRefreshToken(ctx, "1:a", "rt-1", fmt.Sprintf("rt-next-%d", i), ttl)
			}(i)
		}
		close(start)
		wg.Wait()

		winners := 0
		for _, err := range results {
			if err == nil {
				winners++
				continue
			}
			require.ErrorIs(t, err, sessions.ErrTokenMismatch)
		}
		require.Equal(t, 1, winners)
	})

	t.Run("update profile keeps token", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateOrReplace(ctx, "1:a", "rt-1", profile, ttl))
		changed := profile
		changed.TwoFactorEnabled = true
		require.NoError(t, s.UpdateProfile(ctx, "1:a", changed))

		got, err := s.GetProfile(ctx, "1:a")
		require.NoError(t, err)
		require.True(t, got.TwoFactorEnabled)
		rt, err := s.GetRefreshToken(ctx, "1:a")
		require.NoError(t, err)
		require.Equal(t, "rt-1", rt)
	})

	t.Run("delete removes session and index", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateOrReplace(ctx, "1:a", "rt-1", profile, ttl))
		require.NoError(t, s.CreateOrReplace(ctx, "1:b", "rt-b", profile, ttl))

		require.NoError(t, s.Delete(ctx, "1:a"))
		_, err := s.GetProfile(ctx, "1:a")
		require.ErrorIs(t, err, sessions.ErrNotFound)
		_, err = s.GetRefreshToken(ctx, "1:a")
		require.ErrorIs(t, err, sessions.ErrNotFound)
		require.ErrorIs(t, s.Delete(ctx, "1:a"), sessions.ErrNotFound)

		_, err = s.GetProfile(ctx, "1:b")
		require.NoError(t, err)
	})
}

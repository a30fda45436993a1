package fakesessionrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jrsteele09/mindcraft-auth/sessions"
)

var _ sessions.Store = (*FakeSessionRepo)(nil)

// FakeSessionRepo is an in-process sessions.Store. Expiry is enforced lazily on access.
type FakeSessionRepo struct {
	records map[string]*sessions.Record
	lock    sync.Mutex
	nowFunc func() time.Time
}

type Option func(*FakeSessionRepo)

func WithNowFunc(now func() time.Time) Option {
	return func(r *FakeSessionRepo) {
		r.nowFunc = now
	}
}

func NewFakeSessionRepo(options ...Option) *FakeSessionRepo {
	r := &FakeSessionRepo{
		records: make(map[string]*sessions.Record),
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (sr *FakeSessionRepo) CreateOrReplace(ctx context.Context, sessionID, refreshToken string, profile sessions.Profile, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sr.lock.Lock()
	defer sr.lock.Unlock()

	now := sr.nowFunc()
	sr.records[sessionID] = &sessions.Record{
		SessionID:    sessionID,
		RefreshToken: refreshToken,
		Profile:      profile,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
	return nil
}

func (sr *FakeSessionRepo) GetProfile(ctx context.Context, sessionID string) (*sessions.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sr.lock.Lock()
	defer sr.lock.Unlock()

	rec, ok := sr.live(sessionID)
	if !ok {
		return nil, sessions.ErrNotFound
	}
	profile := rec.Profile
	return &profile, nil
}

func (sr *FakeSessionRepo) GetRefreshToken(ctx context.Context, sessionID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sr.lock.Lock()
	defer sr.lock.Unlock()

	rec, ok := sr.live(sessionID)
	if !ok {
		return "", sessions.ErrNotFound
	}
	return rec.RefreshToken, nil
}

func (sr *FakeSessionRepo) RotateRefreshToken(ctx context.Context, sessionID, expected, next string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sr.lock.Lock()
	defer sr.lock.Unlock()

	rec, ok := sr.live(sessionID)
	if !ok {
		return sessions.ErrNotFound
	}
	if rec.RefreshToken != expected {
		return sessions.ErrTokenMismatch
	}
	rec.RefreshToken = next
	rec.ExpiresAt = sr.nowFunc().Add(ttl)
	return nil
}

func (sr *FakeSessionRepo) UpdateProfile(ctx context.Context, sessionID string, profile sessions.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sr.lock.Lock()
	defer sr.lock.Unlock()

	rec, ok := sr.live(sessionID)
	if !ok {
		return sessions.ErrNotFound
	}
	rec.Profile = profile
	return nil
}

func (sr *FakeSessionRepo) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sr.lock.Lock()
	defer sr.lock.Unlock()

	if _, ok := sr.live(sessionID); !ok {
		return sessions.ErrNotFound
	}
	delete(sr.records, sessionID)
	return nil
}

// Keys lists the live keys using the same layout as the Redis backend.
func (sr *FakeSessionRepo) Keys() []string {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	keys := make([]string, 0, len(sr.records)*2)
	for id := range sr.records {
		if _, ok := sr.live(id); ok {
			keys = append(keys, sessions.SessionKey(id), sessions.RefreshTokenKey(id))
		}
	}
	sort.Strings(keys)
	return keys
}

// live must be called with the lock held.
func (sr *FakeSessionRepo) live(sessionID string) (*sessions.Record, bool) {
	rec, ok := sr.records[sessionID]
	if !ok {
		return nil, false
	}
	// dead from ExpiresAt on, like a Redis TTL
	if !sr.nowFunc().Before(rec.ExpiresAt) {
		delete(sr.records, sessionID)
		return nil, false
	}
	return rec, true
}

package service

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/fato-hub/comportamento-hub/internal/domain/shared"
	"github.com/fato-hub/comportamento-hub/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError})
}

type fakeOperatorStore struct {
	operators map[string][2]string // username -> {id, hash}
	lookups   int
}

func (s *fakeOperatorStore) GetByUsername(_ context.Context, username string) (string, string, error) {
	s.lookups++
	rec, ok := s.operators[username]
	if !ok {
		return "", "", shared.ErrNotFound
	}
	return rec[0], rec[1], nil
}

// fakeAuthCache stores JSON round-tripped values like the real cache layer.
type fakeAuthCache struct {
	entries map[string][]byte
	sets    int
}

func newFakeAuthCache() *fakeAuthCache {
	return &fakeAuthCache{entries: make(map[string][]byte)}
}

func (c *fakeAuthCache) Get(_ context.Context, key string, dest any) error {
	data, ok := c.entries[key]
	if !ok {
		return shared.ErrNotFound
	}
	return json.Unmarshal(data, dest)
}

func (c *fakeAuthCache) Set(_ context.Context, key string, value any, _ time.Duration, _ bool) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = data
	c.sets++
	return nil
}

func (c *fakeAuthCache) Remove(_ context.Context, key string) error {
	delete(c.entries, key)
	return nil
}

func newAuthFixture(t *testing.T, username, password string) (*AuthService, *fakeOperatorStore, *fakeAuthCache) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	store := &fakeOperatorStore{operators: map[string][2]string{
		username: {"op-1", string(hash)},
	}}
	c := newFakeAuthCache()
	return NewAuthService(store, c, testLogger()), store, c
}

func TestAuthenticateVerifiesPassword(t *testing.T) {
	svc, _, _ := newAuthFixture(t, "inspetor", "segredo123")

	op, err := svc.Authenticate(context.Background(), "inspetor", "segredo123")
	require.NoError(t, err)
	assert.Equal(t, "op-1", op.ID)
	assert.Equal(t, "inspetor", op.Username)
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	svc, _, c := newAuthFixture(t, "inspetor", "segredo123")

	_, err := svc.Authenticate(context.Background(), "inspetor", "errado")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	// Unknown usernames get the same error so callers cannot probe.
	_, err = svc.Authenticate(context.Background(), "fantasma", "segredo123")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Authenticate(context.Background(), "", "")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	// Failures never populate the cache.
	assert.Zero(t, c.sets)
}

func TestAuthenticateCachesVerifiedResult(t *testing.T) {
	svc, _, c := newAuthFixture(t, "inspetor", "segredo123")

	_, err := svc.Authenticate(context.Background(), "inspetor", "segredo123")
	require.NoError(t, err)
	assert.Equal(t, 1, c.sets)

	// Second login hits the cached tag; no new cache write happens.
	op, err := svc.Authenticate(context.Background(), "inspetor", "segredo123")
	require.NoError(t, err)
	assert.Equal(t, "op-1", op.ID)
	assert.Equal(t, 1, c.sets)

	// The wrong password never matches the cached tag.
	_, err = svc.Authenticate(context.Background(), "inspetor", "errado")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestInvalidateDropsCachedAuth(t *testing.T) {
	svc, _, c := newAuthFixture(t, "inspetor", "segredo123")

	_, err := svc.Authenticate(context.Background(), "inspetor", "segredo123")
	require.NoError(t, err)
	require.NoError(t, svc.Invalidate(context.Background(), "inspetor"))

	// Next login re-verifies and re-populates.
	_, err = svc.Authenticate(context.Background(), "inspetor", "segredo123")
	require.NoError(t, err)
	assert.Equal(t, 2, c.sets)
}

package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/fato-hub/comportamento-hub/internal/domain/shared"
	"github.com/fato-hub/comportamento-hub/internal/infrastructure/cache"
	"github.com/fato-hub/comportamento-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTH SERVICE
// Operator authentication against bcrypt password hashes. Verified results
// are cached for an hour so the expensive bcrypt comparison runs once per
// session, not once per request. Only positive results are cached; a failed
// login always re-runs the comparison.
// ══════════════════════════════════════════════════════════════════════════════

// Operator is one authenticated back-office user.
type Operator struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// OperatorStore looks up operator credentials.
type OperatorStore interface {
	// GetByUsername returns the operator id and password hash.
	// Returns shared.ErrNotFound for unknown usernames.
	GetByUsername(ctx context.Context, username string) (id, passwordHash string, err error)
}

// authEntry is the cached shape of a successful authentication. Tag is
// sha256(storedHash || password) of the verified pair: enough to re-verify a
// repeat login without bcrypt, useless for recovering the password.
type authEntry struct {
	Operator Operator `json:"operator"`
	Tag      string   `json:"tag"`
}

// AuthCache is the slice of the cache layer the auth service uses.
type AuthCache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration, persist bool) error
	Remove(ctx context.Context, key string) error
}

// AuthService authenticates operators.
type AuthService struct {
	store OperatorStore
	cache AuthCache
	log   *logger.Logger
}

// NewAuthService creates the service.
func NewAuthService(store OperatorStore, c AuthCache, log *logger.Logger) *AuthService {
	return &AuthService{
		store: store,
		cache: c,
		log:   log.With(logger.Component("auth")),
	}
}

// Authenticate verifies a username/password pair. Unknown usernames and bad
// passwords both return shared.ErrInvalidCredentials so callers cannot probe
// for valid usernames.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*Operator, error) {
	if username == "" || password == "" {
		return nil, shared.ErrInvalidCredentials
	}

	id, hash, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}

	key := cache.AuthKey(username)
	tag := verificationTag(hash, password)

	// A cache hit whose tag matches this exact hash/password pair skips the
	// bcrypt comparison entirely. A password change rotates the stored hash,
	// so stale entries can never verify.
	var cached authEntry
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		if subtle.ConstantTimeCompare([]byte(cached.Tag), []byte(tag)) == 1 {
			return &cached.Operator, nil
		}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}

	op := Operator{ID: id, Username: username}
	entry := authEntry{Operator: op, Tag: tag}
	if err := s.cache.Set(ctx, key, entry, cache.TTLAuthResult, true); err != nil {
		s.log.Warn("auth cache write failed", logger.CacheKey(key), logger.Err(err))
	}

	s.log.Info("operator authenticated", logger.String("username", username))
	return &op, nil
}

// Invalidate drops the cached authentication for one operator, forcing the
// next login through the full comparison. Called on password change.
func (s *AuthService) Invalidate(ctx context.Context, username string) error {
	return s.cache.Remove(ctx, cache.AuthKey(username))
}

// HashPassword produces the bcrypt hash for a new operator password.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// verificationTag fingerprints a verified hash/password pair.
func verificationTag(hash, password string) string {
	sum := sha256.Sum256([]byte(hash + "\x00" + password))
	return hex.EncodeToString(sum[:])
}

package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/foyerhq/foyer/internal/config"
	"github.com/foyerhq/foyer/internal/model"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("session expired")
	ErrNameRequired       = errors.New("name is required")
	ErrNameTooLong        = errors.New("name exceeds maximum length")
)

// apiKeyPrefix marks every key this service mints. The prefix makes leaked
// keys easy to recognize in logs and secret scanners.
const apiKeyPrefix = "fyr_"

// AuthService owns the admin credential, admin sessions, and API keys.
type AuthService struct {
	store *config.Store
}

func NewAuthService(store *config.Store) *AuthService {
	return &AuthService{store: store}
}

// SeedAdminPassword installs a configured admin password when the store has
// none yet. An already-stored credential wins over configuration, so restarts
// cannot silently change a bootstrapped password.
func (s *AuthService) SeedAdminPassword(ctx context.Context, password string) error {
	if password == "" {
		return nil
	}
	stored, err := s.store.GetAdminPasswordHash(ctx)
	if err != nil {
		return err
	}
	if stored != "" {
		return nil
	}
	return s.store.SetAdminPasswordHash(ctx, config.HashSecret(password))
}

// Login validates the admin password and mints a session. The first
// successful login fixes the password permanently when none was configured:
// whatever the caller supplied becomes the credential every later login is
// checked against. Expired sessions are swept here rather than on a timer.
func (s *AuthService) Login(ctx context.Context, password string) (*model.AdminSession, error) {
	if password == "" {
		return nil, ErrInvalidCredentials
	}

	stored, err := s.store.GetAdminPasswordHash(ctx)
	if err != nil {
		return nil, fmt.Errorf("load admin credential: %w", err)
	}

	switch {
	case stored == "":
		if err := s.store.SetAdminPasswordHash(ctx, config.HashSecret(password)); err != nil {
			return nil, fmt.Errorf("bootstrap admin credential: %w", err)
		}
	case stored != config.HashSecret(password):
		return nil, ErrInvalidCredentials
	}

	if err := s.store.MarkBootstrapped(ctx); err != nil {
		return nil, fmt.Errorf("mark bootstrapped: %w", err)
	}

	// Best effort; a failed sweep must not block a valid login.
	_, _ = s.store.DeleteExpiredSessions(ctx, time.Now())

	token, err := randomHex(32)
	if err != nil {
		return nil, fmt.Errorf("mint session token: %w", err)
	}

	now := time.Now().UTC()
	session := &model.AdminSession{
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(model.SessionTTL),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// Logout removes the named session. Unknown tokens are not an error, so a
// client may retry a logout safely.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	err := s.store.DeleteSession(ctx, token)
	if errors.Is(err, config.ErrNotFound) {
		return nil
	}
	return err
}

// ValidateSession accepts a token only while its expiry is strictly in the
// future. Expired sessions stay in the store until the next login sweeps
// them, but they never authenticate.
func (s *AuthService) ValidateSession(ctx context.Context, token string) error {
	session, err := s.store.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}
	if session.Expired(time.Now()) {
		return ErrTokenExpired
	}
	return nil
}

// ValidateBearer accepts either a live session token or, until the first
// successful login, the raw admin password itself. The password fallback
// lets a fresh deployment drive the API before anyone has logged in; it
// closes permanently once a login succeeds.
func (s *AuthService) ValidateBearer(ctx context.Context, bearer string) error {
	if bearer == "" {
		return ErrInvalidCredentials
	}

	err := s.ValidateSession(ctx, bearer)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrInvalidCredentials) && !errors.Is(err, ErrTokenExpired) {
		return err
	}

	bootstrapped, berr := s.store.IsBootstrapped(ctx)
	if berr != nil {
		return berr
	}
	if bootstrapped {
		return err
	}

	stored, serr := s.store.GetAdminPasswordHash(ctx)
	if serr != nil {
		return serr
	}
	if stored != "" && stored == config.HashSecret(bearer) {
		return nil
	}
	return err
}

// CreateAPIKey mints a new key and returns it in plaintext exactly once.
// Only the digest and a display mask are stored; the plaintext cannot be
// recovered afterwards. Unknown permissions are dropped and an empty result
// falls back to read-only.
func (s *AuthService) CreateAPIKey(ctx context.Context, name string, permissions []string) (*model.APIKey, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", ErrNameRequired
	}
	if len(name) > model.MaxNameLength {
		return nil, "", ErrNameTooLong
	}

	secret, err := randomHex(32)
	if err != nil {
		return nil, "", fmt.Errorf("mint api key: %w", err)
	}
	plaintext := apiKeyPrefix + secret

	key := &model.APIKey{
		ID:          uuid.NewString(),
		Name:        name,
		KeyHash:     config.HashSecret(plaintext),
		KeyMask:     maskKey(plaintext),
		Permissions: model.NormalizePermissions(permissions),
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, "", fmt.Errorf("create api key: %w", err)
	}
	return key, plaintext, nil
}

// LookupAPIKey resolves a presented key by digest. A match refreshes the
// key's lastUsedAt as a side effect, so recency reflects every
// authenticated call, including ones that later fail a permission check.
func (s *AuthService) LookupAPIKey(ctx context.Context, presented string) (*model.APIKey, error) {
	key, err := s.store.GetAPIKeyByHash(ctx, config.HashSecret(presented))
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	// Recency is best effort; the lookup result stands even if the
	// timestamp write loses a race with a concurrent revoke.
	_ = s.store.UpdateAPIKeyLastUsed(ctx, key.ID)

	return key, nil
}

// ListAPIKeys returns all keys, masked. Plaintext is never available here.
func (s *AuthService) ListAPIKeys(ctx context.Context) ([]model.APIKey, error) {
	return s.store.ListAPIKeys(ctx)
}

// RevokeAPIKey removes a key. Revoking an unknown or already-revoked id
// reports ErrNotFound every time.
func (s *AuthService) RevokeAPIKey(ctx context.Context, id string) error {
	return s.store.DeleteAPIKey(ctx, id)
}

// NewWebhookSecret mints a signing secret for a webhook subscription.
func NewWebhookSecret() (string, error) {
	secret, err := randomHex(24)
	if err != nil {
		return "", fmt.Errorf("mint webhook secret: %w", err)
	}
	return "whsec_" + secret, nil
}

// maskKey keeps enough of the plaintext to recognize a key without
// revealing it: the prefix plus the first hex characters, then the tail.
func maskKey(plaintext string) string {
	if len(plaintext) < 12 {
		return plaintext
	}
	return plaintext[:8] + "..." + plaintext[len(plaintext)-4:]
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

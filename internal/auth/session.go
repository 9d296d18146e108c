package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"battery-passport/internal/domain"
)

// StorageKey is the blob key holding the signed-in user.
const StorageKey = "battery-passport:user"

// BlobStore is the small-blob persistence the session relies on.
type BlobStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Session persists the signed-in role between launches.
type Session struct {
	store  BlobStore
	logger zerolog.Logger
}

// NewSession creates a session backed by store.
func NewSession(store BlobStore, logger zerolog.Logger) *Session {
	return &Session{
		store:  store,
		logger: logger.With().Str("component", "auth").Logger(),
	}
}

// Login signs in with role and returns the stored user.
func (s *Session) Login(ctx context.Context, role domain.Role) (domain.User, error) {
	role = domain.Role(strings.ToLower(strings.TrimSpace(string(role))))
	if !role.Valid() {
		return domain.User{}, fmt.Errorf("unknown role %q", role)
	}

	user := domain.User{Role: role}
	data, err := json.Marshal(user)
	if err != nil {
		return domain.User{}, err
	}
	if err := s.store.Set(ctx, StorageKey, string(data)); err != nil {
		return domain.User{}, fmt.Errorf("save session: %w", err)
	}
	s.logger.Info().Str("role", string(role)).Msg("signed in")
	return user, nil
}

// Logout forgets the signed-in user.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.store.Delete(ctx, StorageKey); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	s.logger.Info().Msg("signed out")
	return nil
}

// Current returns the signed-in user, or nil when nobody is signed in.
// Unreadable stored state counts as signed out.
func (s *Session) Current(ctx context.Context) (*domain.User, error) {
	raw, ok, err := s.store.Get(ctx, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var user domain.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		s.logger.Warn().Err(err).Msg("failed to parse stored auth state")
		return nil, nil
	}
	if !user.Role.Valid() {
		s.logger.Warn().Str("role", string(user.Role)).Msg("stored auth state has unknown role")
		return nil, nil
	}
	return &user, nil
}

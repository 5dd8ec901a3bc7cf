package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"notes-server/internal/lockout"
	"notes-server/internal/observability"
	"notes-server/internal/user"
)

// UserStore is the source of truth the gateway authenticates against.
type UserStore interface {
	Create(ctx context.Context, username, email, passwordHash string) (user.User, error)
	GetByUsername(ctx context.Context, username string) (user.User, error)
}

// TokenService issues and validates bearer tokens.
type TokenService interface {
	Issue(principalID string) (string, error)
	Validate(raw string) (string, error)
}

// Service orchestrates login: lockout check first, credential check second,
// outcome recorded, token issued on success.
type Service struct {
	users   UserStore
	tracker lockout.Tracker
	tokens  TokenService
	logger  *observability.Logger
}

func NewService(users UserStore, tracker lockout.Tracker, tokens TokenService, logger *observability.Logger) *Service {
	return &Service{users: users, tracker: tracker, tokens: tokens, logger: logger}
}

// NormalizeIdentifier maps login identifiers to their canonical form so the
// lockout tracker and user store always key by the same string.
func NormalizeIdentifier(username string) string {
	return strings.TrimSpace(strings.ToLower(username))
}

// Login authenticates username/password and returns a signed token.
// Locked accounts fail before the credential check runs, so a locked login
// costs no hashing work and leaks no timing difference against a wrong
// password.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	username = NormalizeIdentifier(username)
	if username == "" || password == "" {
		return "", ErrInvalidCredentials
	}

	locked, err := s.tracker.IsLocked(ctx, username)
	if err != nil {
		return "", fmt.Errorf("check lockout: %w", err)
	}
	if locked {
		s.logger.Warn("login_blocked", map[string]any{"username": username})
		return "", ErrAccountLocked
	}

	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return "", s.loginFailed(ctx, username)
		}
		return "", fmt.Errorf("load user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", s.loginFailed(ctx, username)
	}

	if err := s.tracker.RecordSuccess(ctx, username); err != nil {
		return "", fmt.Errorf("record login success: %w", err)
	}

	return s.tokens.Issue(username)
}

// loginFailed records the failure and maps it to the uniform credentials
// error. A tracker write that fails propagates instead, so a failed attempt
// can never silently appear recorded.
func (s *Service) loginFailed(ctx context.Context, username string) error {
	if err := s.tracker.RecordFailure(ctx, username); err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}
	s.logger.Warn("login_failed", map[string]any{"username": username})
	return ErrInvalidCredentials
}

// Register creates an account and logs it straight in with a fresh token.
func (s *Service) Register(ctx context.Context, username, email, password string) (string, error) {
	username = NormalizeIdentifier(username)
	email = strings.TrimSpace(strings.ToLower(email))

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	u, err := s.users.Create(ctx, username, email, string(hash))
	if err != nil {
		return "", err
	}

	s.logger.Info("user_registered", map[string]any{"username": u.Username})
	return s.tokens.Issue(u.Username)
}

// Unlock is the administrative override for a locked account. Unknown
// identifiers are a no-op.
func (s *Service) Unlock(ctx context.Context, username string) error {
	username = NormalizeIdentifier(username)
	if username == "" {
		return nil
	}

	if err := s.tracker.Unlock(ctx, username); err != nil {
		return fmt.Errorf("unlock account: %w", err)
	}

	s.logger.Info("account_unlocked", map[string]any{"username": username})
	return nil
}

package services

import (
	"context"
	"errors"
	"strings"

	"github.com/simaland/userapi/internal/auth"
	"github.com/simaland/userapi/internal/logutil"
	"github.com/simaland/userapi/internal/metrics"
	"github.com/simaland/userapi/internal/store"
	"github.com/simaland/userapi/types"
)

// CredentialsRepository loads login credentials.
type CredentialsRepository interface {
	GetCredentials(ctx context.Context, login string) (types.Credentials, error)
}

// SessionRepository defines persistence operations for session tokens.
type SessionRepository interface {
	Replace(ctx context.Context, token types.SessionToken) error
	DeleteByToken(ctx context.Context, token string) (int, error)
	GrantByToken(ctx context.Context, token string) (types.SessionGrant, error)
}

// AuthPolicy holds the session rules chosen at startup.
type AuthPolicy struct {
	DenyBlockedLogin   bool
	EnforceTokenExpiry bool
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// AuthService encapsulates login, logout and per-request authorization.
type AuthService struct {
	users    CredentialsRepository
	sessions SessionRepository
	hasher   *auth.Hasher
	tokens   *auth.TokenGenerator
	policy   AuthPolicy
	events   *Events
	metrics  *metrics.Metrics
}

func NewAuthService(
	users CredentialsRepository,
	sessions SessionRepository,
	hasher *auth.Hasher,
	tokens *auth.TokenGenerator,
	policy AuthPolicy,
	events *Events,
	m *metrics.Metrics,
) *AuthService {
	if m == nil {
		m = metrics.New(nil)
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		tokens:   tokens,
		policy:   policy,
		events:   events,
		metrics:  m,
	}
}

// Login verifies the credentials and stores a new session token for the
// user, replacing any previous one.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (types.SessionToken, error) {
	token, err := s.login(ctx, req)
	s.metrics.Logins.WithLabelValues(loginOutcome(err)).Inc()
	return token, err
}

func (s *AuthService) login(ctx context.Context, req LoginRequest) (types.SessionToken, error) {
	if strings.TrimSpace(req.Login) == "" || req.Password == "" {
		return types.SessionToken{}, forbidden()
	}

	creds, err := s.users.GetCredentials(ctx, req.Login)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.SessionToken{}, forbidden()
		}
		return types.SessionToken{}, err
	}

	if !s.hasher.Matches(req.Password, creds.PasswordHash) {
		return types.SessionToken{}, forbidden()
	}
	if s.policy.DenyBlockedLogin && creds.Blocked {
		return types.SessionToken{}, forbidden()
	}

	issuedAt := s.tokens.Now()
	token := types.SessionToken{
		UserID:    creds.UserID,
		Token:     s.tokens.NewToken(),
		ExpiresAt: s.tokens.ExpiryOf(issuedAt),
	}
	if err := s.sessions.Replace(ctx, token); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			return types.SessionToken{}, conflict("token conflict, retry", err)
		case errors.Is(err, store.ErrNotFound):
			// the user was deleted between lookup and insert
			return types.SessionToken{}, forbidden()
		}
		return types.SessionToken{}, err
	}

	s.events.emit(ctx, types.EventSessionLogin, creds.UserID, creds.Login)
	return token, nil
}

// Logout deletes the session identified by token. Unknown tokens are not
// an error; an absent token is. Only a deleted session emits an event.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return forbidden()
	}
	userID, err := s.sessions.DeleteByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	s.events.emit(ctx, types.EventSessionLogout, userID, "")
	return nil
}

// Authorize resolves the caller's permission flags from a session token.
// Anything short of a live session with a permission row yields the
// fail-closed context.
func (s *AuthService) Authorize(ctx context.Context, token string) auth.Context {
	if token == "" {
		s.metrics.Authorizations.WithLabelValues(metrics.DecisionFailClosed).Inc()
		return auth.FailClosed()
	}

	grant, err := s.sessions.GrantByToken(ctx, token)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log := logutil.GetOrDefault(ctx)
			log.Error().Err(err).Msg("failed to resolve session")
		}
		s.metrics.Authorizations.WithLabelValues(metrics.DecisionFailClosed).Inc()
		return auth.FailClosed()
	}

	if s.policy.EnforceTokenExpiry && grant.ExpiresAt <= s.tokens.Now().Unix() {
		s.metrics.Authorizations.WithLabelValues(metrics.DecisionExpired).Inc()
		return auth.FailClosed()
	}

	s.metrics.Authorizations.WithLabelValues(metrics.DecisionGranted).Inc()
	return auth.Context{Blocked: grant.Blocked, IsAdmin: grant.IsAdmin}
}

func loginOutcome(err error) string {
	if err == nil {
		return metrics.OutcomeOK
	}
	switch KindOf(err) {
	case KindForbidden, KindBadRequest:
		return metrics.OutcomeForbidden
	case KindConflict:
		return metrics.OutcomeConflict
	default:
		return metrics.OutcomeError
	}
}

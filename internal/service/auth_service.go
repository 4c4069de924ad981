package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"safetywatch/internal/apperr"
	"safetywatch/internal/config"
	"safetywatch/internal/ids"
	"safetywatch/internal/models"
	"safetywatch/internal/repository"
	"safetywatch/internal/security"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type PrincipalStore interface {
	Create(ctx context.Context, p models.Principal) error
	FindByLogin(ctx context.Context, login string) (models.Principal, error)
	GetByID(ctx context.Context, id string) (models.Principal, error)
	UpdatePasswordHash(ctx context.Context, id string, hash []byte) error
	Delete(ctx context.Context, id string) error
}

type SessionStore interface {
	Create(ctx context.Context, session models.Session) error
	GetByID(ctx context.Context, id string) (models.Session, error)
	DeleteByID(ctx context.Context, id string) error
	TrimToLatest(ctx context.Context, principalID string, keep int) error
	Touch(ctx context.Context, sessionID string, ip string, userAgent string) error
}

type RoleReader interface {
	GetRole(ctx context.Context, principalID string) (models.Role, error)
}

// IdentityProvider owns login identities. Provisioning and seeding only talk
// to it through this interface so the backing store can be swapped.
type IdentityProvider interface {
	LoginFor(code string) string
	CreatePrincipal(ctx context.Context, login, password string) (models.Principal, error)
	FindPrincipal(ctx context.Context, login string) (models.Principal, error)
	SetPassword(ctx context.Context, principalID, password string) error
	DeletePrincipal(ctx context.Context, principalID string) error
}

type AuthService struct {
	principals PrincipalStore
	sessions   SessionStore
	roles      RoleReader
	hasher     security.PasswordHasher
	cfg        *config.AppConfig
	log        zerolog.Logger
	now        func() time.Time
}

func NewAuthService(
	principals PrincipalStore,
	sessions SessionStore,
	roles RoleReader,
	hasher security.PasswordHasher,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		principals: principals,
		sessions:   sessions,
		roles:      roles,
		hasher:     hasher,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

// LoginFor maps a worker or supervisor code to its login.
func (s *AuthService) LoginFor(code string) string {
	return strings.ToLower(strings.TrimSpace(code)) + "@" + s.cfg.Identity.LoginDomain
}

func (s *AuthService) CreatePrincipal(ctx context.Context, login, password string) (models.Principal, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.Principal{}, err
	}
	p := models.Principal{
		ID:           ids.New(),
		Login:        strings.ToLower(login),
		PasswordHash: hash,
	}
	if err := s.principals.Create(ctx, p); err != nil {
		return models.Principal{}, fmt.Errorf("create principal %s: %w", p.Login, err)
	}
	return p, nil
}

func (s *AuthService) FindPrincipal(ctx context.Context, login string) (models.Principal, error) {
	return s.principals.FindByLogin(ctx, strings.ToLower(login))
}

func (s *AuthService) SetPassword(ctx context.Context, principalID, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	return s.principals.UpdatePasswordHash(ctx, principalID, hash)
}

func (s *AuthService) DeletePrincipal(ctx context.Context, principalID string) error {
	return s.principals.Delete(ctx, principalID)
}

type LoginInput struct {
	Login     string
	Password  string
	IPAddress string
	UserAgent string
}

type AuthResult struct {
	AccessToken string
	ExpiresAt   time.Time
	Principal   models.Principal
	Role        models.Role
}

// Login accepts either a full login or a bare worker/supervisor code.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	login := strings.TrimSpace(input.Login)
	if login == "" || input.Password == "" {
		return AuthResult{}, apperr.Validation("Login and password are required", map[string]string{
			"login": "Login and password are required",
		})
	}
	if !strings.Contains(login, "@") {
		login = s.LoginFor(login)
	}

	principal, err := s.FindPrincipal(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrPrincipalNotFound) {
			return AuthResult{}, s.invalidCredentials()
		}
		return AuthResult{}, apperr.Internal("Failed to load user", err)
	}

	ok, err := s.hasher.Verify(input.Password, principal.PasswordHash)
	if err != nil {
		s.log.Warn().Err(err).Str("principal_id", principal.ID).Msg("stored password hash unreadable")
	}
	if err != nil || !ok {
		return AuthResult{}, s.invalidCredentials()
	}

	role, err := s.roles.GetRole(ctx, principal.ID)
	if err != nil && !errors.Is(err, repository.ErrRoleNotFound) {
		return AuthResult{}, apperr.InternalLookupFailure("Failed to verify user role", err)
	}

	now := s.now()
	session := models.Session{
		ID:          ids.New(),
		PrincipalID: principal.ID,
		IPAddress:   input.IPAddress,
		UserAgent:   input.UserAgent,
		ExpiresAt:   now.Add(s.cfg.Security.JWTAccessTTL),
	}
	token, expiresAt, err := security.GenerateAccessToken(
		s.cfg.Security.JWTAccessSecret,
		principal.ID,
		session.ID,
		s.cfg.Security.JWTAccessTTL,
		now,
	)
	if err != nil {
		return AuthResult{}, apperr.Internal("Failed to issue token", err)
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return AuthResult{}, apperr.Internal("Failed to create session", err)
	}

	if s.cfg.Security.MaxSessions > 0 {
		if err := s.sessions.TrimToLatest(ctx, principal.ID, s.cfg.Security.MaxSessions); err != nil {
			s.log.Warn().Err(err).Str("principal_id", principal.ID).Msg("enforce session limit failed")
		}
	}

	principal.PasswordHash = nil
	return AuthResult{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		Principal:   principal,
		Role:        role,
	}, nil
}

func (s *AuthService) invalidCredentials() error {
	return &apperr.Error{
		Kind:    apperr.KindUnauthenticated,
		Message: "Invalid login credentials",
		Err:     ErrInvalidCredentials,
	}
}

// Identity is what a verified bearer token resolves to.
type Identity struct {
	PrincipalID string
	SessionID   string
}

// Verify resolves a bearer token to its principal. A token whose session no
// longer exists or has expired is rejected even if its signature is valid.
func (s *AuthService) Verify(ctx context.Context, token, ip, userAgent string) (Identity, error) {
	claims, err := security.ParseAccessToken(token, s.cfg.Security.JWTAccessSecret)
	if err != nil {
		return Identity{}, apperr.Unauthenticated("Invalid authentication")
	}

	session, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return Identity{}, apperr.Unauthenticated("Invalid authentication")
		}
		return Identity{}, apperr.Internal("Failed to verify session", err)
	}
	if session.PrincipalID != claims.PrincipalID {
		return Identity{}, apperr.Unauthenticated("Invalid authentication")
	}
	if !session.ExpiresAt.After(s.now()) {
		if err := s.sessions.DeleteByID(ctx, session.ID); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
			s.log.Warn().Err(err).Str("session_id", session.ID).Msg("delete expired session failed")
		}
		return Identity{}, apperr.Unauthenticated("Invalid authentication")
	}

	if err := s.sessions.Touch(ctx, session.ID, ip, userAgent); err != nil {
		s.log.Debug().Err(err).Str("session_id", session.ID).Msg("touch session failed")
	}
	return Identity{PrincipalID: session.PrincipalID, SessionID: session.ID}, nil
}

func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.DeleteByID(ctx, sessionID); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return apperr.Internal("Failed to end session", err)
	}
	return nil
}

type Profile struct {
	Principal models.Principal
	Role      models.Role
}

func (s *AuthService) Me(ctx context.Context, principalID string) (Profile, error) {
	principal, err := s.principals.GetByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, repository.ErrPrincipalNotFound) {
			return Profile{}, apperr.Unauthenticated("Invalid authentication")
		}
		return Profile{}, apperr.Internal("Failed to load user", err)
	}
	role, err := s.roles.GetRole(ctx, principalID)
	if err != nil && !errors.Is(err, repository.ErrRoleNotFound) {
		return Profile{}, apperr.InternalLookupFailure("Failed to verify user role", err)
	}
	principal.PasswordHash = nil
	return Profile{Principal: principal, Role: role}, nil
}

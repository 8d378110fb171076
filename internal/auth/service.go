package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/tillpoint/internal/domain"
)

// Sentinel errors for the auth package.
var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrUserNotFound       = errors.New("auth: user not found")
)

// Router routes principals to tenant databases.
type Router interface {
	Resolve(ctx context.Context, id domain.TenantIdentity) (domain.TenantHandle, error)
	Discover(ctx context.Context, login string) (domain.TenantHandle, *domain.User, error)
	LocateOwner(ctx context.Context, ownerID uuid.UUID) (domain.TenantIdentity, error)
}

// Tokens is an issued session.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	Principal    Principal
}

// Service authenticates owners against the control plane and tenant users
// against their tenant database.
type Service struct {
	controlUsers domain.ControlUserRepository
	router       Router
	jwtSecret    string
	accessTTL    time.Duration
	refreshTTL   time.Duration
}

// NewService creates a new auth service.
func NewService(controlUsers domain.ControlUserRepository, router Router, jwtSecret string, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{
		controlUsers: controlUsers,
		router:       router,
		jwtSecret:    jwtSecret,
		accessTTL:    accessTTL,
		refreshTTL:   refreshTTL,
	}
}

// IsEmail reports whether a login identifier is email-shaped.
func IsEmail(identifier string) bool {
	at := strings.IndexByte(identifier, '@')
	return at > 0 && at < len(identifier)-1
}

// Login authenticates identifier and password. Email-shaped identifiers are
// owners looked up in the control plane; anything else is a tenant username
// found by discovery. The issued tokens carry the tenant database.
func (s *Service) Login(ctx context.Context, identifier, password string) (*Tokens, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, fmt.Errorf("auth.Login: %w", ErrInvalidCredentials)
	}

	var p Principal
	var err error
	if IsEmail(identifier) {
		p, err = s.ownerLogin(ctx, strings.ToLower(identifier), password)
	} else {
		p, err = s.tenantLogin(ctx, identifier, password)
	}
	if err != nil {
		return nil, fmt.Errorf("auth.Login: %w", err)
	}

	tokens, err := s.IssueTokens(p)
	if err != nil {
		return nil, fmt.Errorf("auth.Login: %w", err)
	}

	log.Info().
		Str("owner_id", p.OwnerID.String()).
		Str("tenant_db", p.Database).
		Str("role", string(p.Role)).
		Msg("login succeeded")
	return tokens, nil
}

func (s *Service) ownerLogin(ctx context.Context, email, password string) (Principal, error) {
	cu, err := s.controlUsers.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return Principal{}, ErrInvalidCredentials
	}
	if err != nil {
		return Principal{}, err
	}
	if !VerifyPassword(password, cu.PasswordHash) {
		return Principal{}, ErrInvalidCredentials
	}

	id, err := s.router.LocateOwner(ctx, cu.OwnerID)
	if err != nil {
		return Principal{}, fmt.Errorf("locate tenant: %w", err)
	}

	p := Principal{OwnerID: cu.OwnerID, Database: id.Database, UserID: cu.ID, Role: cu.Role}

	// Prefer the owner's tenant-side login so the token's user id resolves
	// inside the tenant.
	h, err := s.router.Resolve(ctx, id)
	if err != nil {
		return Principal{}, fmt.Errorf("resolve tenant: %w", err)
	}
	defer closeHandle(ctx, h)

	u, err := h.Users().FindByUsername(ctx, email)
	switch {
	case err == nil:
		if !u.Active {
			return Principal{}, ErrInvalidCredentials
		}
		p.UserID, p.Role = u.ID, u.Role
	case errors.Is(err, domain.ErrNotFound):
		log.Warn().Str("owner_id", cu.OwnerID.String()).Str("tenant_db", id.Database).Msg("owner has no tenant login, using control-plane identity")
	default:
		return Principal{}, fmt.Errorf("find tenant owner: %w", err)
	}

	return p, nil
}

func (s *Service) tenantLogin(ctx context.Context, username, password string) (Principal, error) {
	h, u, err := s.router.Discover(ctx, username)
	if errors.Is(err, domain.ErrNotFound) {
		return Principal{}, ErrInvalidCredentials
	}
	if err != nil {
		return Principal{}, fmt.Errorf("discover: %w", err)
	}
	database := h.Database()
	closeHandle(ctx, h)

	if !u.Active || !VerifyPassword(password, u.PasswordHash) {
		return Principal{}, ErrInvalidCredentials
	}

	return principalFor(u, database), nil
}

// IssueTokens signs an access and a refresh token for p.
func (s *Service) IssueTokens(p Principal) (*Tokens, error) {
	access, err := IssueAccessToken(s.jwtSecret, p, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("auth.IssueTokens: %w", err)
	}

	refresh, err := IssueRefreshToken(s.jwtSecret, p, s.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("auth.IssueTokens: %w", err)
	}

	return &Tokens{AccessToken: access, RefreshToken: refresh, Principal: p}, nil
}

// RefreshToken validates a refresh token and issues a new access token,
// re-reading the user's current role from its tenant.
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (string, error) {
	claims, err := ValidateToken(s.jwtSecret, refreshToken)
	if err != nil {
		return "", fmt.Errorf("auth.RefreshToken: %w", err)
	}

	if claims.TokenType != tokenTypeRefresh {
		return "", fmt.Errorf("auth.RefreshToken: %w", ErrInvalidToken)
	}

	p, err := claims.Principal()
	if err != nil {
		return "", fmt.Errorf("auth.RefreshToken: %w", err)
	}

	h, err := s.router.Resolve(ctx, p.Identity())
	if err != nil {
		return "", fmt.Errorf("auth.RefreshToken: %w", err)
	}
	defer closeHandle(ctx, h)

	u, err := h.Users().GetByID(ctx, p.UserID)
	switch {
	case err == nil:
		if !u.Active {
			return "", fmt.Errorf("auth.RefreshToken: %w", ErrUserNotFound)
		}
		p = principalFor(u, p.Database)
	case errors.Is(err, domain.ErrNotFound) && p.Role == domain.RoleOwner:
		// Control-plane owner identity without a tenant-side login.
	case errors.Is(err, domain.ErrNotFound):
		return "", fmt.Errorf("auth.RefreshToken: %w", ErrUserNotFound)
	default:
		return "", fmt.Errorf("auth.RefreshToken: %w", err)
	}

	newAccess, err := IssueAccessToken(s.jwtSecret, p, s.accessTTL)
	if err != nil {
		return "", fmt.Errorf("auth.RefreshToken: %w", err)
	}

	return newAccess, nil
}

func principalFor(u *domain.User, database string) Principal {
	p := Principal{OwnerID: u.OwnerID, Database: database, UserID: u.ID, Role: u.Role}
	if u.StoreID != nil {
		p.StoreID = *u.StoreID
	}
	return p
}

func closeHandle(ctx context.Context, h domain.TenantHandle) {
	if err := h.Close(context.WithoutCancel(ctx)); err != nil {
		log.Warn().Err(err).Str("tenant_db", h.Database()).Msg("tenant connection close failed")
	}
}

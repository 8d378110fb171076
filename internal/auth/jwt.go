package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/gosuda/tillpoint/internal/domain"
)

// Principal is the authenticated caller. Database is the tenant database the
// caller is routed to; it is empty only for principals without a tenant.
type Principal struct {
	OwnerID  uuid.UUID
	Database string
	UserID   uuid.UUID
	Role     domain.Role
	StoreID  uuid.UUID // uuid.Nil unless the role is store-scoped
}

// Identity returns the tenant routing identity of p.
func (p Principal) Identity() domain.TenantIdentity {
	return domain.TenantIdentity{OwnerID: p.OwnerID, Database: p.Database}
}

// Claims holds the JWT token payload. Field types and JSON tags are compatible
// with the middleware's claim parsing.
type Claims struct {
	jwt.RegisteredClaims
	OwnerID   string `json:"oid"`
	TenantDB  string `json:"tdb"`
	UserID    string `json:"uid"`
	Role      string `json:"role"`
	StoreID   string `json:"sid,omitempty"`
	TokenType string `json:"typ"` // "access" or "refresh"
}

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
	tokenIssuer      = "tillpoint"
)

// ErrInvalidToken is returned when a JWT cannot be parsed or has expired.
var ErrInvalidToken = errors.New("auth: invalid or expired token")

// IssueAccessToken creates a signed JWT access token.
func IssueAccessToken(secret string, p Principal, ttl time.Duration) (string, error) {
	return issueToken(secret, p, tokenTypeAccess, ttl)
}

// IssueRefreshToken creates a signed JWT refresh token.
func IssueRefreshToken(secret string, p Principal, ttl time.Duration) (string, error) {
	return issueToken(secret, p, tokenTypeRefresh, ttl)
}

func issueToken(secret string, p Principal, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    tokenIssuer,
		},
		OwnerID:   p.OwnerID.String(),
		TenantDB:  p.Database,
		UserID:    p.UserID.String(),
		Role:      string(p.Role),
		TokenType: tokenType,
	}
	if p.StoreID != uuid.Nil {
		claims.StoreID = p.StoreID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("auth.issueToken: %w", err)
	}

	return signed, nil
}

// ValidateToken parses and validates a JWT token string. Returns the embedded claims.
func ValidateToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, fmt.Errorf("auth.ValidateToken: %w", ErrInvalidToken)
	}

	if !token.Valid {
		return nil, fmt.Errorf("auth.ValidateToken: %w", ErrInvalidToken)
	}

	return claims, nil
}

// Principal decodes the caller carried by c.
func (c *Claims) Principal() (Principal, error) {
	ownerID, err := uuid.Parse(c.OwnerID)
	if err != nil {
		return Principal{}, fmt.Errorf("auth.Claims: invalid owner id: %w", ErrInvalidToken)
	}
	userID, err := uuid.Parse(c.UserID)
	if err != nil {
		return Principal{}, fmt.Errorf("auth.Claims: invalid user id: %w", ErrInvalidToken)
	}
	role := domain.Role(c.Role)
	if !role.Valid() {
		return Principal{}, fmt.Errorf("auth.Claims: invalid role %q: %w", c.Role, ErrInvalidToken)
	}

	p := Principal{OwnerID: ownerID, Database: c.TenantDB, UserID: userID, Role: role}
	if c.StoreID != "" {
		p.StoreID, err = uuid.Parse(c.StoreID)
		if err != nil {
			return Principal{}, fmt.Errorf("auth.Claims: invalid store id: %w", ErrInvalidToken)
		}
	}
	return p, nil
}

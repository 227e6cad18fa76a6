package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/abduss/studiovault/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Service validates access tokens issued by the studio platform.
type Service struct {
	cfg     config.AuthConfig
	nowFunc func() time.Time
	parser  *jwt.Parser
}

// NewService creates a token-validating Service.
func NewService(cfg config.AuthConfig) *Service {
	s := &Service{cfg: cfg, nowFunc: time.Now}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.nowFunc() }),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	s.parser = jwt.NewParser(opts...)
	return s
}

type tokenClaims struct {
	TenantID   string `json:"tenant_id"`
	Role       string `json:"role"`
	CustomerID string `json:"customer_id,omitempty"`
	jwt.RegisteredClaims
}

// ValidateAccessToken verifies the token signature and extracts the principal.
func (s *Service) ValidateAccessToken(tokenString string) (Principal, error) {
	if strings.TrimSpace(tokenString) == "" {
		return Principal{}, ErrUnauthorized
	}

	var claims tokenClaims
	parsed, err := s.parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.AccessTokenSecret), nil
	})
	if err != nil || !parsed.Valid {
		return Principal{}, ErrUnauthorized
	}

	tenantID, err := uuid.Parse(claims.TenantID)
	if err != nil {
		return Principal{}, ErrUnauthorized
	}

	principal := Principal{
		Subject:  claims.Subject,
		TenantID: tenantID,
		Role:     Role(claims.Role),
	}
	if claims.ExpiresAt != nil {
		principal.ExpiresAt = claims.ExpiresAt.Time
	}

	switch principal.Role {
	case RoleStudio:
	case RoleCustomer:
		customerID, err := uuid.Parse(claims.CustomerID)
		if err != nil {
			return Principal{}, ErrUnauthorized
		}
		principal.CustomerID = customerID
	default:
		return Principal{}, ErrUnauthorized
	}

	return principal, nil
}

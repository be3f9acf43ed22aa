package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopauth/shopauth/config"
)

// Token type claim values. The type claim is checked on verification so an
// access token can never be replayed as a refresh token or vice versa, on
// top of the distinct signing secrets.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims are the JWT claims carried by both token kinds.
type Claims struct {
	UserID    string `json:"userId"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// TokenPair holds a freshly issued access/refresh token pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenService issues and verifies signed, self-contained credentials.
// It is stateless: persistence of the refresh token is the caller's
// responsibility.
type TokenService struct {
	cfg config.AuthConfig
	now func() time.Time
}

// TokenServiceOption modifies a TokenService instance.
type TokenServiceOption func(*TokenService)

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(now func() time.Time) TokenServiceOption {
	return func(s *TokenService) {
		s.now = now
	}
}

// NewTokenService creates a token service from auth configuration.
func NewTokenService(cfg config.AuthConfig, options ...TokenServiceOption) (*TokenService, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("token signing secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}

	s := &TokenService{
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// IssuePair issues a new access/refresh token pair for the given user.
// When rememberMe is set, the access token lives as long as the configured
// remember-me TTL instead of the short default.
func (s *TokenService) IssuePair(userID uuid.UUID, rememberMe bool) (*TokenPair, error) {
	accessTTL := s.cfg.AccessTTL
	if rememberMe && s.cfg.RememberMeTTL > accessTTL {
		accessTTL = s.cfg.RememberMeTTL
	}

	accessToken, err := s.sign(userID, TokenTypeAccess, accessTTL, s.cfg.AccessSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refreshToken, err := s.sign(userID, TokenTypeRefresh, s.cfg.RefreshTTL, s.cfg.RefreshSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// VerifyAccess validates an access token and returns its claims.
// Expiry is the only recoverable failure and maps to ErrTokenExpired;
// every other failure maps to ErrInvalidToken.
func (s *TokenService) VerifyAccess(token string) (*Claims, error) {
	claims, err := s.parse(token, TokenTypeAccess, s.cfg.AccessSecret)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyRefresh validates a refresh token and returns its claims.
// All failures, expiry included, map to ErrInvalidRefreshToken: an expired
// refresh credential is not recoverable.
func (s *TokenService) VerifyRefresh(token string) (*Claims, error) {
	claims, err := s.parse(token, TokenTypeRefresh, s.cfg.RefreshSecret)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}
	return claims, nil
}

func (s *TokenService) sign(userID uuid.UUID, tokenType string, ttl time.Duration, secret string) (string, error) {
	now := s.now()
	claims := Claims{
		UserID:    userID.String(),
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    s.cfg.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func (s *TokenService) parse(tokenStr, wantType, secret string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience),
		jwt.WithTimeFunc(s.now),
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.TokenType != wantType {
		return nil, fmt.Errorf("unexpected token type: %s", claims.TokenType)
	}
	if _, err := uuid.Parse(claims.UserID); err != nil {
		return nil, fmt.Errorf("invalid user ID claim: %w", err)
	}

	return claims, nil
}

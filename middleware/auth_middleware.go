package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopauth/shopauth/models"
	"github.com/shopauth/shopauth/services"
	"github.com/shopauth/shopauth/utils"
	"go.uber.org/zap"
)

// TokenValidator defines the interface for verifying access tokens
type TokenValidator interface {
	// VerifyAccess validates an access token and returns its claims
	VerifyAccess(token string) (*services.Claims, error)
}

// PrincipalResolver loads the account behind verified claims
type PrincipalResolver interface {
	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	validator TokenValidator
	resolver  PrincipalResolver
	logger    *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(validator TokenValidator, resolver PrincipalResolver, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
		resolver:  resolver,
		logger:    logger,
	}
}

// accessTokenCookieName is the cookie carrying the access token.
// The Authorization header takes precedence when both are present.
const accessTokenCookieName = "accessToken"

// RequireAuth is a middleware that requires a valid access token. The 401
// payload carries a machine-readable code: TOKEN_EXPIRED means the client
// should attempt a silent refresh, anything else is terminal.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		token := extractToken(r)
		if token == "" {
			m.logger.Warn("missing token",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, services.GetErrorCode(services.ErrMissingToken), "Access denied, no token provided")
			return
		}

		claims, err := m.validator.VerifyAccess(token)
		if err != nil {
			if errors.Is(err, services.ErrTokenExpired) {
				m.logger.Debug("access token expired",
					zap.String("request_id", requestID))
				_ = utils.WriteUnauthorized(w, services.GetErrorCode(err), "Token expired")
				return
			}
			m.logger.Warn("token validation failed",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteUnauthorized(w, services.GetErrorCode(services.ErrInvalidToken), "Invalid token")
			return
		}

		user, err := m.resolvePrincipal(ctx, claims)
		if err != nil {
			m.logger.Warn("principal resolution failed",
				zap.String("request_id", requestID),
				zap.Error(err))
			if services.IsUnavailableError(err) {
				_ = utils.WriteServiceUnavailable(w, "")
				return
			}
			_ = utils.WriteUnauthorized(w, services.GetErrorCode(services.ErrInvalidToken), "Invalid token")
			return
		}

		ctx = WithClaims(ctx, claims)
		ctx = WithUser(ctx, user)

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("user_id", user.ID.String()))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuth resolves the principal when a valid token is present but lets
// unauthenticated requests through untouched.
func (m *AuthMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token := extractToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.validator.VerifyAccess(token)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		user, err := m.resolvePrincipal(ctx, claims)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx = WithClaims(ctx, claims)
		ctx = WithUser(ctx, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolvePrincipal loads and sanitizes the account named by the claims.
func (m *AuthMiddleware) resolvePrincipal(ctx context.Context, claims *services.Claims) (*models.User, error) {
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, services.ErrInvalidToken
	}

	user, err := m.resolver.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	return user.Sanitized(), nil
}

// extractToken extracts the access token from the Authorization header
// ("Bearer TOKEN") or the accessToken cookie. The header takes precedence.
func extractToken(r *http.Request) string {
	if token := extractBearerToken(r); token != "" {
		return token
	}
	if cookie, err := r.Cookie(accessTokenCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

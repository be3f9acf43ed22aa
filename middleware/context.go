package middleware

import (
	"context"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/shopauth/shopauth/models"
	"github.com/shopauth/shopauth/services"
)

// Context key type to avoid collisions
type contextKey string

const (
	// ClaimsKey is the context key for verified access token claims
	ClaimsKey contextKey = "claims"

	// UserKey is the context key for the resolved, sanitized principal
	UserKey contextKey = "user"
)

// GetRequestIDFromContext retrieves the request ID set by the router
func GetRequestIDFromContext(ctx context.Context) string {
	return chimiddleware.GetReqID(ctx)
}

// WithClaims adds verified token claims to the context
func WithClaims(ctx context.Context, claims *services.Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// GetClaimsFromContext retrieves verified token claims from context
func GetClaimsFromContext(ctx context.Context) *services.Claims {
	if val := ctx.Value(ClaimsKey); val != nil {
		if claims, ok := val.(*services.Claims); ok {
			return claims
		}
	}
	return nil
}

// WithUser adds the resolved principal to the context
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// GetUserFromContext retrieves the resolved principal from context.
// Returns nil when the request is unauthenticated.
func GetUserFromContext(ctx context.Context) *models.User {
	if val := ctx.Value(UserKey); val != nil {
		if user, ok := val.(*models.User); ok {
			return user
		}
	}
	return nil
}

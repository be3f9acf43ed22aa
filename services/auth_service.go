package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopauth/shopauth/models"
	"github.com/shopauth/shopauth/repositories"
	"go.uber.org/zap"
)

const (
	minShopNames = 3
	maxShopNames = 4
)

// AuthResult is returned by every operation that establishes a session.
type AuthResult struct {
	User   *models.User
	Tokens *TokenPair
}

// AuthService orchestrates signup, signin, refresh rotation and logout.
type AuthService struct {
	users      repositories.UserRepository
	shops      repositories.ShopRepository
	txManager  repositories.TransactionManager
	tokens     *TokenService
	bcryptCost int
	logger     *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(
	users repositories.UserRepository,
	shops repositories.ShopRepository,
	txManager repositories.TransactionManager,
	tokens *TokenService,
	bcryptCost int,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		users:      users,
		shops:      shops,
		txManager:  txManager,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

// Signup creates a principal together with all requested shops as a single
// logical transaction. Either the user and every shop are persisted, or
// nothing is.
func (s *AuthService) Signup(ctx context.Context, username, password string, shopNames []string) (*AuthResult, error) {
	if fields := validateSignup(username, password, shopNames); len(fields) > 0 {
		return nil, ValidationFailed(fields)
	}

	normalized := make([]string, 0, len(shopNames))
	seen := make(map[string]bool, len(shopNames))
	for _, name := range shopNames {
		n := models.NormalizeShopName(name)
		if seen[n] {
			return nil, ValidationFailed(map[string]string{
				"shopNames": "duplicate shop names are not allowed",
			})
		}
		seen[n] = true
		normalized = append(normalized, n)
	}

	exists, err := s.users.UsernameExists(ctx, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateUsername
	}

	for _, name := range normalized {
		taken, err := s.shops.NameExists(ctx, name)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, NewDomainError(ErrorTypeConflict, "DUPLICATE_SHOP_NAME",
				fmt.Sprintf("shop name %q is already taken", name), nil)
		}
	}

	user, err := models.NewUser(username, password, s.bcryptCost)
	if err != nil {
		return nil, WrapInternal("failed to hash password", err)
	}

	// Issue tokens before persisting so the refresh credential lands in the
	// same transaction as the user and shop rows.
	pair, err := s.tokens.IssuePair(user.ID, false)
	if err != nil {
		return nil, WrapInternal("failed to issue tokens", err)
	}
	user.RefreshToken = sql.NullString{String: pair.RefreshToken, Valid: true}

	err = s.txManager.InTransaction(ctx, func(txCtx context.Context, _ repositories.Transaction) error {
		if err := s.users.Create(txCtx, user); err != nil {
			return err
		}
		for _, name := range normalized {
			if err := s.shops.Create(txCtx, models.NewShop(name, user.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user signed up",
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username),
		zap.Int("shops", len(normalized)))

	return &AuthResult{User: user.Sanitized(), Tokens: pair}, nil
}

// Signin authenticates a principal by username and password. The two failure
// modes stay distinct internally but must render identically at the boundary.
func (s *AuthService) Signin(ctx context.Context, username, password string, rememberMe bool) (*AuthResult, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	if !user.CheckPassword(password) {
		return nil, ErrInvalidCredentials
	}

	pair, err := s.tokens.IssuePair(user.ID, rememberMe)
	if err != nil {
		return nil, WrapInternal("failed to issue tokens", err)
	}

	if err := s.users.SetRefreshToken(ctx, user.ID, pair.RefreshToken); err != nil {
		return nil, err
	}

	s.logger.Info("user signed in",
		zap.String("user_id", user.ID.String()),
		zap.Bool("remember_me", rememberMe))

	return &AuthResult{User: user.Sanitized(), Tokens: pair}, nil
}

// Refresh exchanges a valid refresh credential for a new pair, invalidating
// the presented one. The presented credential must exactly equal the stored
// one: a superseded token is rejected even when its signature still checks
// out. The swap is a conditional update so two concurrent rotations with the
// same stale value cannot both succeed.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}

	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, ErrInvalidRefreshToken
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	if !user.RefreshToken.Valid || user.RefreshToken.String != refreshToken {
		s.logger.Warn("superseded refresh token presented",
			zap.String("user_id", user.ID.String()))
		return nil, ErrInvalidRefreshToken
	}

	pair, err := s.tokens.IssuePair(user.ID, false)
	if err != nil {
		return nil, WrapInternal("failed to issue tokens", err)
	}

	rotated, err := s.users.RotateRefreshToken(ctx, user.ID, refreshToken, pair.RefreshToken)
	if err != nil {
		return nil, err
	}
	if !rotated {
		// Lost the race against a concurrent rotation.
		return nil, ErrInvalidRefreshToken
	}

	s.logger.Debug("refresh token rotated", zap.String("user_id", user.ID.String()))

	return &AuthResult{User: user.Sanitized(), Tokens: pair}, nil
}

// Logout clears the stored refresh credential matching the presented one.
// Logging out twice, or with a token that no longer matches, is not an error.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.users.ClearRefreshToken(ctx, refreshToken)
}

// validateSignup returns field-level validation failures for the signup rules.
func validateSignup(username, password string, shopNames []string) map[string]string {
	fields := make(map[string]string)
	if !models.ValidUsername(username) {
		fields["username"] = "username must be 3-30 characters of letters, numbers, and underscores"
	}
	if !models.ValidPassword(password) {
		fields["password"] = "password must be at least 8 characters with at least one number and one special character"
	}
	if len(shopNames) < minShopNames || len(shopNames) > maxShopNames {
		fields["shopNames"] = fmt.Sprintf("you must provide between %d and %d shop names", minShopNames, maxShopNames)
	} else {
		for _, name := range shopNames {
			if !models.ValidShopName(name) {
				fields["shopNames"] = fmt.Sprintf("shop name %q must be 2-50 characters of letters, numbers, spaces, hyphens, and underscores", name)
				break
			}
		}
	}
	return fields
}

package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopauth/shopauth/models"
	"github.com/shopauth/shopauth/repositories"
	"github.com/shopauth/shopauth/services"
	"go.uber.org/zap"
)

// pq error code for unique constraint violations
const uniqueViolation = "23505"

// UserRepository implements the repositories.UserRepository interface
type UserRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB, logger *zap.Logger) repositories.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, username, password_hash, refresh_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	ctx, cancel := r.db.queryContext(ctx)
	defer cancel()

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.PasswordHash,
		user.RefreshToken,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return services.ErrDuplicateUsername
		}
		return storeError("failed to create user", err)
	}

	r.logger.Debug("user created", zap.String("id", user.ID.String()), zap.String("username", user.Username))
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `
		SELECT id, username, password_hash, refresh_token, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	ctx, cancel := r.db.queryContext(ctx)
	defer cancel()

	executor := GetExecutor(ctx, r.db)
	user := &models.User{}

	err := executor.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.RefreshToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, services.ErrUserNotFound
		}
		return nil, storeError("failed to get user", err)
	}

	return user, nil
}

// GetByUsername retrieves a user by normalized username
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `
		SELECT id, username, password_hash, refresh_token, created_at, updated_at
		FROM users
		WHERE username = $1
	`

	ctx, cancel := r.db.queryContext(ctx)
	defer cancel()

	executor := GetExecutor(ctx, r.db)
	user := &models.User{}

	err := executor.QueryRowContext(ctx, query, models.NormalizeUsername(username)).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.RefreshToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, services.ErrUserNotFound
		}
		return nil, storeError("failed to get user", err)
	}

	return user, nil
}

// UsernameExists reports whether a user with the normalized username exists
func (r *UserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`

	ctx, cancel := r.db.queryContext(ctx)
	defer cancel()

	executor := GetExecutor(ctx, r.db)
	var exists bool
	if err := executor.QueryRowContext(ctx, query, models.NormalizeUsername(username)).Scan(&exists); err != nil {
		return false, storeError("failed to check username", err)
	}
	return exists, nil
}

// SetRefreshToken unconditionally stores a refresh token for the user
func (r *UserRepository) SetRefreshToken(ctx context.Context, id uuid.UUID, token string) error {
	query := `
		UPDATE users
		SET refresh_token = $2,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	ctx, cancel := r.db.queryContext(ctx)
	defer cancel()

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id, token)
	if err != nil {
		return storeError("failed to set refresh token", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storeError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return services.ErrUserNotFound
	}

	r.logger.Debug("refresh token stored", zap.String("id", id.String()))
	return nil
}

// RotateRefreshToken atomically replaces the stored refresh token when it
// still equals old. The conditional WHERE clause serializes the
// check-then-write: of two concurrent rotations with the same stale value,
// only one can match the row.
func (r *UserRepository) RotateRefreshToken(ctx context.Context, id uuid.UUID, old, new string) (bool, error) {
	query := `
		UPDATE users
		SET refresh_token = $3,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND refresh_token = $2
	`

	ctx, cancel := r.db.queryContext(ctx)
	defer cancel()

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, id, old, new)
	if err != nil {
		return false, storeError("failed to rotate refresh token", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, storeError("failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	r.logger.Debug("refresh token rotated", zap.String("id", id.String()))
	return true, nil
}

// ClearRefreshToken removes the stored refresh token matching the given value.
// Matching no row is not an error (logout is idempotent).
func (r *UserRepository) ClearRefreshToken(ctx context.Context, token string) error {
	query := `
		UPDATE users
		SET refresh_token = NULL,
		    updated_at = CURRENT_TIMESTAMP
		WHERE refresh_token = $1
	`

	ctx, cancel := r.db.queryContext(ctx)
	defer cancel()

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, token); err != nil {
		return storeError("failed to clear refresh token", err)
	}

	return nil
}

// isUniqueViolation reports whether the error is a PostgreSQL unique constraint violation
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// storeError maps driver failures: timeouts and cancellations surface as a
// retryable unavailable condition, everything else as internal.
func storeError(message string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return services.WrapUnavailable(message, err)
	}
	return services.WrapInternal(message, err)
}

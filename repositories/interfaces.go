package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopauth/shopauth/models"
)

// UserRepository provides access to user records
type UserRepository interface {
	// Create creates a new user
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByUsername retrieves a user by normalized (lowercase) username
	GetByUsername(ctx context.Context, username string) (*models.User, error)

	// UsernameExists reports whether a user with the normalized username exists
	UsernameExists(ctx context.Context, username string) (bool, error)

	// SetRefreshToken unconditionally stores a refresh token for the user
	// (signin/signup path; the previous session, if any, is invalidated)
	SetRefreshToken(ctx context.Context, id uuid.UUID, token string) error

	// RotateRefreshToken atomically replaces the stored refresh token, but
	// only if the stored value still equals old. Returns false when the
	// conditional update matched no row, which means the presented token
	// was already superseded.
	RotateRefreshToken(ctx context.Context, id uuid.UUID, old, new string) (bool, error)

	// ClearRefreshToken removes the stored refresh token matching the given
	// value. Clearing a token that is no longer stored is not an error.
	ClearRefreshToken(ctx context.Context, token string) error
}

// ShopRepository provides access to shop (tenant) records
type ShopRepository interface {
	// Create creates a new shop
	Create(ctx context.Context, shop *models.Shop) error

	// GetByName retrieves an active shop by normalized (lowercase) name
	GetByName(ctx context.Context, name string) (*models.Shop, error)

	// GetByOwner retrieves all active shops owned by the given user
	GetByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Shop, error)

	// NameExists reports whether any shop (active or not) has the normalized name
	NameExists(ctx context.Context, name string) (bool, error)
}

// Repositories bundles all repository instances
type Repositories struct {
	Users UserRepository
	Shops ShopRepository
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction.
	// Commits when the function returns nil, rolls back otherwise.
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

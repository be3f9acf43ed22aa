package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/shopauth/shopauth/models"
	"github.com/shopauth/shopauth/repositories"
	"github.com/shopauth/shopauth/services"
	"go.uber.org/zap"
)

// ShopRepository implements the repositories.ShopRepository interface
type ShopRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewShopRepository creates a new shop repository
func NewShopRepository(db *DB, logger *zap.Logger) repositories.ShopRepository {
	return &ShopRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new shop
func (r *ShopRepository) Create(ctx context.Context, shop *models.Shop) error {
	query := `
		INSERT INTO shops (id, name, owner_id, description, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	ctx, cancel := r.db.queryContext(ctx)
	defer cancel()

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		shop.ID,
		shop.Name,
		shop.OwnerID,
		shop.Description,
		shop.IsActive,
		shop.CreatedAt,
		shop.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return services.ErrDuplicateShopName
		}
		return storeError("failed to create shop", err)
	}

	r.logger.Debug("shop created", zap.String("id", shop.ID.String()), zap.String("name", shop.Name))
	return nil
}

// GetByName retrieves an active shop by normalized name
func (r *ShopRepository) GetByName(ctx context.Context, name string) (*models.Shop, error) {
	query := `
		SELECT id, name, owner_id, description, is_active, created_at, updated_at
		FROM shops
		WHERE name = $1 AND is_active = true
	`

	ctx, cancel := r.db.queryContext(ctx)
	defer cancel()

	executor := GetExecutor(ctx, r.db)
	shop := &models.Shop{}

	err := executor.QueryRowContext(ctx, query, models.NormalizeShopName(name)).Scan(
		&shop.ID,
		&shop.Name,
		&shop.OwnerID,
		&shop.Description,
		&shop.IsActive,
		&shop.CreatedAt,
		&shop.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, services.ErrShopNotFound
		}
		return nil, storeError("failed to get shop", err)
	}

	return shop, nil
}

// GetByOwner retrieves all active shops owned by the given user
func (r *ShopRepository) GetByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Shop, error) {
	query := `
		SELECT id, name, owner_id, description, is_active, created_at, updated_at
		FROM shops
		WHERE owner_id = $1 AND is_active = true
		ORDER BY created_at ASC
	`

	ctx, cancel := r.db.queryContext(ctx)
	defer cancel()

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, storeError("failed to query shops", err)
	}
	defer rows.Close()

	var shops []*models.Shop
	for rows.Next() {
		shop := &models.Shop{}
		err := rows.Scan(
			&shop.ID,
			&shop.Name,
			&shop.OwnerID,
			&shop.Description,
			&shop.IsActive,
			&shop.CreatedAt,
			&shop.UpdatedAt,
		)
		if err != nil {
			return nil, storeError("failed to scan shop", err)
		}
		shops = append(shops, shop)
	}

	if err := rows.Err(); err != nil {
		return nil, storeError("error iterating shop rows", err)
	}

	return shops, nil
}

// NameExists reports whether any shop has the normalized name
func (r *ShopRepository) NameExists(ctx context.Context, name string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM shops WHERE name = $1)`

	ctx, cancel := r.db.queryContext(ctx)
	defer cancel()

	executor := GetExecutor(ctx, r.db)
	var exists bool
	if err := executor.QueryRowContext(ctx, query, models.NormalizeShopName(name)).Scan(&exists); err != nil {
		return false, storeError("failed to check shop name", err)
	}
	return exists, nil
}

package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopauth/shopauth/models"
	"github.com/shopauth/shopauth/repositories"
	"go.uber.org/zap"
)

// ShopService answers tenant access questions and owner-scoped shop queries.
type ShopService struct {
	shops  repositories.ShopRepository
	users  repositories.UserRepository
	logger *zap.Logger
}

// NewShopService creates a new shop service
func NewShopService(shops repositories.ShopRepository, users repositories.UserRepository, logger *zap.Logger) *ShopService {
	return &ShopService{
		shops:  shops,
		users:  users,
		logger: logger,
	}
}

// VerifyAccess decides whether the given user may administer the named shop.
// An unknown or inactive shop yields ErrShopNotFound; a shop owned by someone
// else yields ErrShopAccessDenied. On success the sanitized tenant view is
// returned, never the raw record.
func (s *ShopService) VerifyAccess(ctx context.Context, userID uuid.UUID, shopName string) (*models.ShopView, error) {
	shop, err := s.shops.GetByName(ctx, shopName)
	if err != nil {
		return nil, err
	}

	if shop.OwnerID != userID {
		s.logger.Warn("shop access denied",
			zap.String("shop", shop.Name),
			zap.String("user_id", userID.String()))
		return nil, ErrShopAccessDenied
	}

	owner, err := s.users.GetByID(ctx, shop.OwnerID)
	if err != nil {
		return nil, err
	}

	return shop.View(owner.Username), nil
}

// ListByOwner returns all active shops the user owns, oldest first.
func (s *ShopService) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Shop, error) {
	return s.shops.GetByOwner(ctx, ownerID)
}

// GetOwnedShop returns one of the user's own shops by name. A shop that
// exists but belongs to someone else is reported as not found so the
// owner-scoped endpoint leaks nothing about other tenants.
func (s *ShopService) GetOwnedShop(ctx context.Context, ownerID uuid.UUID, shopName string) (*models.Shop, error) {
	shop, err := s.shops.GetByName(ctx, shopName)
	if err != nil {
		return nil, err
	}
	if shop.OwnerID != ownerID {
		return nil, ErrShopNotFound
	}
	return shop, nil
}

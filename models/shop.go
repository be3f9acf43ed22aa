package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var shopNameRegex = regexp.MustCompile(`^[a-zA-Z0-9\s\-_]+$`)

// Shop represents a tenant owned by exactly one user. Shops are created
// atomically with their owner at signup; the name routes subdomain traffic.
type Shop struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	OwnerID     uuid.UUID `json:"ownerId" db:"owner_id"`
	Description string    `json:"description" db:"description"`
	IsActive    bool      `json:"isActive" db:"is_active"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// TableName returns the table name for the Shop model
func (Shop) TableName() string {
	return "shops"
}

// NewShop creates a new active Shop owned by the given user.
func NewShop(name string, ownerID uuid.UUID) *Shop {
	now := time.Now()
	return &Shop{
		ID:        uuid.New(),
		Name:      NormalizeShopName(name),
		OwnerID:   ownerID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ShopView is the sanitized tenant view returned by the access check:
// display fields only, no internal identifiers.
type ShopView struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Owner       string `json:"owner"`
}

// View returns the sanitized view of the shop for the given owner username.
func (s *Shop) View(ownerUsername string) *ShopView {
	return &ShopView{
		Name:        s.Name,
		Description: s.Description,
		Owner:       ownerUsername,
	}
}

// NormalizeShopName lowercases and trims a shop name for case-insensitive matching.
func NormalizeShopName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidShopName reports whether a shop name satisfies the rules:
// 2-50 characters, letters, digits, spaces, hyphens and underscores only.
func ValidShopName(name string) bool {
	if len(name) < 2 || len(name) > 50 {
		return false
	}
	return shopNameRegex.MatchString(name)
}

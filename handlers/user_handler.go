package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopauth/shopauth/app"
	"github.com/shopauth/shopauth/middleware"
	"github.com/shopauth/shopauth/models"
	"github.com/shopauth/shopauth/utils"
)

// ProfileResponse is the response body for GET /user/profile
type ProfileResponse struct {
	User  *models.User   `json:"user"`
	Shops []*models.Shop `json:"shops"`
}

// GetProfileHandler returns the authenticated user with their shops
func GetProfileHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middleware.GetUserFromContext(r.Context())
		if user == nil {
			_ = utils.WriteUnauthorized(w, "", "")
			return
		}

		shops, err := deps.ShopService.ListByOwner(r.Context(), user.ID)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		_ = utils.WriteOK(w, ProfileResponse{User: user, Shops: shops})
	}
}

// ListShopsHandler returns all shops owned by the authenticated user
func ListShopsHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middleware.GetUserFromContext(r.Context())
		if user == nil {
			_ = utils.WriteUnauthorized(w, "", "")
			return
		}

		shops, err := deps.ShopService.ListByOwner(r.Context(), user.ID)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		_ = utils.WriteOK(w, shops)
	}
}

// GetShopHandler returns one of the authenticated user's shops by name
func GetShopHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middleware.GetUserFromContext(r.Context())
		if user == nil {
			_ = utils.WriteUnauthorized(w, "", "")
			return
		}

		shopName := chi.URLParam(r, "name")
		shop, err := deps.ShopService.GetOwnedShop(r.Context(), user.ID, shopName)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		_ = utils.WriteOK(w, shop)
	}
}

// VerifyShopResponse is the response body for GET /user/verify-shop/{name}
type VerifyShopResponse struct {
	Shop *models.ShopView `json:"shop"`
	User *models.User     `json:"user"`
}

// VerifyShopHandler decides whether the authenticated user may administer
// the named shop. 404 when the shop does not exist, 403 when it belongs to
// someone else, 200 with the sanitized tenant view and the principal
// otherwise.
func VerifyShopHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := middleware.GetUserFromContext(r.Context())
		if user == nil {
			_ = utils.WriteUnauthorized(w, "", "")
			return
		}

		shopName := chi.URLParam(r, "name")
		view, err := deps.ShopService.VerifyAccess(r.Context(), user.ID, shopName)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		_ = utils.WriteOK(w, VerifyShopResponse{Shop: view, User: user})
	}
}

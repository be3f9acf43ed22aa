package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopauth/shopauth/app"
	"github.com/shopauth/shopauth/config"
	"github.com/shopauth/shopauth/middleware"
	"github.com/shopauth/shopauth/models"
	"github.com/shopauth/shopauth/repositories"
	"github.com/shopauth/shopauth/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memUserRepo is an in-memory UserRepository for handler tests.
type memUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[uuid.UUID]*models.User)}
}

func (r *memUserRepo) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == user.Username {
			return services.ErrDuplicateUsername
		}
	}
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *memUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, services.ErrUserNotFound
}

func (r *memUserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	normalized := models.NormalizeUsername(username)
	for _, u := range r.users {
		if u.Username == normalized {
			clone := *u
			return &clone, nil
		}
	}
	return nil, services.ErrUserNotFound
}

func (r *memUserRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	_, err := r.GetByUsername(ctx, username)
	if err == nil {
		return true, nil
	}
	return false, nil
}

func (r *memUserRepo) SetRefreshToken(ctx context.Context, id uuid.UUID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return services.ErrUserNotFound
	}
	u.RefreshToken.String = token
	u.RefreshToken.Valid = true
	return nil
}

func (r *memUserRepo) RotateRefreshToken(ctx context.Context, id uuid.UUID, old, new string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || !u.RefreshToken.Valid || u.RefreshToken.String != old {
		return false, nil
	}
	u.RefreshToken.String = new
	return true, nil
}

func (r *memUserRepo) ClearRefreshToken(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.RefreshToken.Valid && u.RefreshToken.String == token {
			u.RefreshToken.String = ""
			u.RefreshToken.Valid = false
		}
	}
	return nil
}

// memShopRepo is an in-memory ShopRepository for handler tests.
type memShopRepo struct {
	mu    sync.Mutex
	shops map[uuid.UUID]*models.Shop
}

func newMemShopRepo() *memShopRepo {
	return &memShopRepo{shops: make(map[uuid.UUID]*models.Shop)}
}

func (r *memShopRepo) Create(ctx context.Context, shop *models.Shop) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.shops {
		if s.Name == shop.Name {
			return services.ErrDuplicateShopName
		}
	}
	clone := *shop
	r.shops[shop.ID] = &clone
	return nil
}

func (r *memShopRepo) GetByName(ctx context.Context, name string) (*models.Shop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	normalized := models.NormalizeShopName(name)
	for _, s := range r.shops {
		if s.Name == normalized && s.IsActive {
			clone := *s
			return &clone, nil
		}
	}
	return nil, services.ErrShopNotFound
}

func (r *memShopRepo) GetByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Shop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Shop
	for _, s := range r.shops {
		if s.OwnerID == ownerID && s.IsActive {
			clone := *s
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *memShopRepo) NameExists(ctx context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	normalized := models.NormalizeShopName(name)
	for _, s := range r.shops {
		if s.Name == normalized {
			return true, nil
		}
	}
	return false, nil
}

// memTxManager runs transactional functions directly.
type memTxManager struct{}

func (memTxManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	return nil, fmt.Errorf("not supported")
}

func (memTxManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	return fn(ctx, nil)
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Auth: config.AuthConfig{
			AccessSecret:  "access-secret-for-tests",
			RefreshSecret: "refresh-secret-for-tests",
			AccessTTL:     30 * time.Minute,
			RememberMeTTL: 7 * 24 * time.Hour,
			RefreshTTL:    7 * 24 * time.Hour,
			Issuer:        "shopauth-api",
			Audience:      "localhost",
			BCryptCost:    4,
		},
	}
}

// newTestServer wires the full handler stack over in-memory stores.
func newTestServer(t *testing.T) (*chi.Mux, *app.Dependencies) {
	t.Helper()

	cfg := testConfig()
	logger := zap.NewNop()
	users := newMemUserRepo()
	shops := newMemShopRepo()

	tokens, err := services.NewTokenService(cfg.Auth)
	require.NoError(t, err)

	deps := &app.Dependencies{
		Config:         cfg,
		Logger:         logger,
		Users:          users,
		Shops:          shops,
		TxManager:      memTxManager{},
		TokenService:   tokens,
		AuthService:    services.NewAuthService(users, shops, memTxManager{}, tokens, cfg.Auth.BCryptCost, logger),
		ShopService:    services.NewShopService(shops, users, logger),
		AuthMiddleware: middleware.NewAuthMiddleware(tokens, users, logger),
	}

	r := chi.NewRouter()
	r.Post("/auth/signup", SignupHandler(deps))
	r.Post("/auth/signin", SigninHandler(deps))
	r.Post("/auth/refresh", RefreshHandler(deps))
	r.Post("/auth/logout", LogoutHandler(deps))
	r.Route("/user", func(r chi.Router) {
		r.Use(deps.AuthMiddleware.RequireAuth)
		r.Get("/profile", GetProfileHandler(deps))
		r.Get("/shops", ListShopsHandler(deps))
		r.Get("/shop/{name}", GetShopHandler(deps))
		r.Get("/verify-shop/{name}", VerifyShopHandler(deps))
	})

	return r, deps
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reqBody *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(buf)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func cookieByName(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func signupBody(username string) map[string]interface{} {
	return map[string]interface{}{
		"username":  username,
		"password":  "sup3r-secret!",
		"shopNames": []string{username + " alpha", username + " beta", username + " gamma"},
	}
}

func TestSignupHandler(t *testing.T) {
	t.Run("creates the account and opens a session", func(t *testing.T) {
		router, _ := newTestServer(t)

		rec := doJSON(t, router, http.MethodPost, "/auth/signup", signupBody("newuser"), nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		cookies := rec.Result().Cookies()
		access := cookieByName(cookies, "accessToken")
		refresh := cookieByName(cookies, "refreshToken")
		require.NotNil(t, access)
		require.NotNil(t, refresh)
		assert.True(t, access.HttpOnly)
		assert.True(t, refresh.HttpOnly)
		assert.NotEmpty(t, access.Value)
		assert.NotEmpty(t, refresh.Value)

		var body struct {
			Data struct {
				User struct {
					Username string `json:"username"`
				} `json:"user"`
				AccessToken string `json:"accessToken"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "newuser", body.Data.User.Username)
		// The body carries the access token for bearer clients; it must
		// match the cookie
		assert.Equal(t, access.Value, body.Data.AccessToken)
		assert.NotContains(t, rec.Body.String(), "passwordHash")
		assert.NotContains(t, rec.Body.String(), "password_hash")
		assert.NotContains(t, rec.Body.String(), "refreshToken")
	})

	t.Run("duplicate username is rejected", func(t *testing.T) {
		router, _ := newTestServer(t)

		rec := doJSON(t, router, http.MethodPost, "/auth/signup", signupBody("newuser"), nil)
		require.Equal(t, http.StatusCreated, rec.Code)

		again := signupBody("newuser")
		again["shopNames"] = []string{"other alpha", "other beta", "other gamma"}
		rec = doJSON(t, router, http.MethodPost, "/auth/signup", again, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("taken shop name is rejected", func(t *testing.T) {
		router, _ := newTestServer(t)

		rec := doJSON(t, router, http.MethodPost, "/auth/signup", signupBody("firstuser"), nil)
		require.Equal(t, http.StatusCreated, rec.Code)

		second := signupBody("seconduser")
		second["shopNames"] = []string{"firstuser alpha", "fresh beta", "fresh gamma"}
		rec = doJSON(t, router, http.MethodPost, "/auth/signup", second, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid input is a bad request", func(t *testing.T) {
		router, _ := newTestServer(t)

		body := signupBody("newuser")
		body["shopNames"] = []string{"only one"}
		rec := doJSON(t, router, http.MethodPost, "/auth/signup", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSigninHandler(t *testing.T) {
	router, _ := newTestServer(t)
	rec := doJSON(t, router, http.MethodPost, "/auth/signup", signupBody("someuser"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("valid credentials open a session", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/auth/signin", map[string]interface{}{
			"username": "someuser",
			"password": "sup3r-secret!",
		}, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotNil(t, cookieByName(rec.Result().Cookies(), "accessToken"))
		assert.NotNil(t, cookieByName(rec.Result().Cookies(), "refreshToken"))

		var body struct {
			Data struct {
				AccessToken string `json:"accessToken"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.NotEmpty(t, body.Data.AccessToken)
	})

	t.Run("wrong password and unknown user are indistinguishable", func(t *testing.T) {
		wrongPassword := doJSON(t, router, http.MethodPost, "/auth/signin", map[string]interface{}{
			"username": "someuser",
			"password": "wrong-passw0rd!",
		}, nil)
		unknownUser := doJSON(t, router, http.MethodPost, "/auth/signin", map[string]interface{}{
			"username": "nobody",
			"password": "wrong-passw0rd!",
		}, nil)

		assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
		assert.Equal(t, http.StatusUnauthorized, unknownUser.Code)
		assert.JSONEq(t, wrongPassword.Body.String(), unknownUser.Body.String())
	})
}

func TestRefreshHandler(t *testing.T) {
	t.Run("rotates the session", func(t *testing.T) {
		router, _ := newTestServer(t)
		signup := doJSON(t, router, http.MethodPost, "/auth/signup", signupBody("someuser"), nil)
		require.Equal(t, http.StatusCreated, signup.Code)
		oldRefresh := cookieByName(signup.Result().Cookies(), "refreshToken")
		require.NotNil(t, oldRefresh)

		// HS256 tokens are second-granular; make sure the new pair differs
		time.Sleep(1100 * time.Millisecond)

		rec := doJSON(t, router, http.MethodPost, "/auth/refresh", nil, []*http.Cookie{oldRefresh})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		newRefresh := cookieByName(rec.Result().Cookies(), "refreshToken")
		require.NotNil(t, newRefresh)
		assert.NotEqual(t, oldRefresh.Value, newRefresh.Value)

		// The superseded token can no longer be used
		rec = doJSON(t, router, http.MethodPost, "/auth/refresh", nil, []*http.Cookie{oldRefresh})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		// A failed refresh clears both cookies
		cleared := cookieByName(rec.Result().Cookies(), "refreshToken")
		require.NotNil(t, cleared)
		assert.True(t, cleared.MaxAge < 0)
	})

	t.Run("accepts the token in the request body", func(t *testing.T) {
		router, _ := newTestServer(t)
		signup := doJSON(t, router, http.MethodPost, "/auth/signup", signupBody("someuser"), nil)
		require.Equal(t, http.StatusCreated, signup.Code)
		refresh := cookieByName(signup.Result().Cookies(), "refreshToken")
		require.NotNil(t, refresh)

		// No cookie attached; the credential travels in the body
		rec := doJSON(t, router, http.MethodPost, "/auth/refresh", map[string]interface{}{
			"refreshToken": refresh.Value,
		}, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.NotNil(t, cookieByName(rec.Result().Cookies(), "refreshToken"))
	})

	t.Run("missing credential is rejected", func(t *testing.T) {
		router, _ := newTestServer(t)
		rec := doJSON(t, router, http.MethodPost, "/auth/refresh", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestLogoutHandler(t *testing.T) {
	router, _ := newTestServer(t)
	signup := doJSON(t, router, http.MethodPost, "/auth/signup", signupBody("someuser"), nil)
	require.Equal(t, http.StatusCreated, signup.Code)
	refresh := cookieByName(signup.Result().Cookies(), "refreshToken")

	rec := doJSON(t, router, http.MethodPost, "/auth/logout", nil, []*http.Cookie{refresh})
	assert.Equal(t, http.StatusOK, rec.Code)
	cleared := cookieByName(rec.Result().Cookies(), "accessToken")
	require.NotNil(t, cleared)
	assert.True(t, cleared.MaxAge < 0)

	// Logout is idempotent
	rec = doJSON(t, router, http.MethodPost, "/auth/logout", nil, []*http.Cookie{refresh})
	assert.Equal(t, http.StatusOK, rec.Code)

	// The invalidated refresh token no longer rotates
	rec = doJSON(t, router, http.MethodPost, "/auth/refresh", nil, []*http.Cookie{refresh})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerifyShopHandler(t *testing.T) {
	router, _ := newTestServer(t)

	owner := doJSON(t, router, http.MethodPost, "/auth/signup", signupBody("owner"), nil)
	require.Equal(t, http.StatusCreated, owner.Code)
	ownerAccess := cookieByName(owner.Result().Cookies(), "accessToken")

	other := doJSON(t, router, http.MethodPost, "/auth/signup", signupBody("other"), nil)
	require.Equal(t, http.StatusCreated, other.Code)
	otherAccess := cookieByName(other.Result().Cookies(), "accessToken")

	t.Run("owner is granted the sanitized view", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/user/verify-shop/owner%20alpha", nil, []*http.Cookie{ownerAccess})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var body struct {
			Data struct {
				Shop struct {
					Name  string `json:"name"`
					Owner string `json:"owner"`
				} `json:"shop"`
				User struct {
					Username string `json:"username"`
				} `json:"user"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "owner alpha", body.Data.Shop.Name)
		assert.Equal(t, "owner", body.Data.Shop.Owner)
		assert.Equal(t, "owner", body.Data.User.Username)
		assert.NotContains(t, rec.Body.String(), "ownerId")
	})

	t.Run("foreign shop is forbidden", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/user/verify-shop/owner%20alpha", nil, []*http.Cookie{otherAccess})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unknown shop is not found", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/user/verify-shop/ghost%20shop", nil, []*http.Cookie{ownerAccess})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("anonymous access is unauthorized", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/user/verify-shop/owner%20alpha", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestProfileHandler(t *testing.T) {
	router, _ := newTestServer(t)
	signup := doJSON(t, router, http.MethodPost, "/auth/signup", signupBody("someuser"), nil)
	require.Equal(t, http.StatusCreated, signup.Code)
	access := cookieByName(signup.Result().Cookies(), "accessToken")

	rec := doJSON(t, router, http.MethodGet, "/user/profile", nil, []*http.Cookie{access})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			User struct {
				Username string `json:"username"`
			} `json:"user"`
			Shops []struct {
				Name string `json:"name"`
			} `json:"shops"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "someuser", body.Data.User.Username)
	assert.Len(t, body.Data.Shops, 3)
}

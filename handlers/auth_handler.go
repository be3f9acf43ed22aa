package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopauth/shopauth/app"
	"github.com/shopauth/shopauth/models"
	"github.com/shopauth/shopauth/services"
	"github.com/shopauth/shopauth/utils"
	"go.uber.org/zap"
)

// SignupRequest is the request body for POST /auth/signup
type SignupRequest struct {
	Username  string   `json:"username" validate:"required"`
	Password  string   `json:"password" validate:"required"`
	ShopNames []string `json:"shopNames" validate:"required"`
}

// SigninRequest is the request body for POST /auth/signin
type SigninRequest struct {
	Username   string `json:"username" validate:"required"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"rememberMe"`
}

// AuthResponse is the body returned by signup, signin and refresh. The
// tokens travel in the httpOnly cookies; the access token is also returned
// in the body for clients that authenticate with a bearer header instead.
// The refresh token never appears in a response body.
type AuthResponse struct {
	User        *models.User `json:"user"`
	AccessToken string       `json:"accessToken"`
}

// SignupHandler creates an account with its shops and opens a session
func SignupHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SignupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			_ = utils.WriteBadRequest(w, "Invalid request body", nil)
			return
		}

		if err := utils.ValidateStruct(req); err != nil {
			HandleValidationError(w, err, deps.Logger)
			return
		}

		result, err := deps.AuthService.Signup(r.Context(), req.Username, req.Password, req.ShopNames)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		setAuthCookies(w, deps.Config, result.Tokens, false)
		_ = utils.WriteCreated(w, AuthResponse{User: result.User, AccessToken: result.Tokens.AccessToken})
	}
}

// SigninHandler authenticates a user and opens a session. An unknown
// username and a wrong password produce the same response so the endpoint
// reveals nothing about which accounts exist.
func SigninHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SigninRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			_ = utils.WriteBadRequest(w, "Invalid request body", nil)
			return
		}

		if err := utils.ValidateStruct(req); err != nil {
			HandleValidationError(w, err, deps.Logger)
			return
		}

		result, err := deps.AuthService.Signin(r.Context(), req.Username, req.Password, req.RememberMe)
		if err != nil {
			if isCredentialFailure(err) {
				deps.Logger.Debug("signin rejected", zap.Error(err))
				_ = utils.WriteUnauthorized(w, "", "Incorrect username or password")
				return
			}
			HandleServiceError(w, err, deps.Logger)
			return
		}

		setAuthCookies(w, deps.Config, result.Tokens, req.RememberMe)
		_ = utils.WriteOK(w, AuthResponse{User: result.User, AccessToken: result.Tokens.AccessToken})
	}
}

// RefreshHandler rotates the refresh token and reissues both cookies. The
// refresh credential is read from the cookie, falling back to a
// {refreshToken} request body for clients that do not hold cookies.
func RefreshHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		refreshToken := refreshTokenFromRequest(r)

		result, err := deps.AuthService.Refresh(r.Context(), refreshToken)
		if err != nil {
			// A rejected rotation ends the session; stale cookies would
			// only produce repeated failures.
			clearAuthCookies(w, deps.Config)
			HandleServiceError(w, err, deps.Logger)
			return
		}

		setAuthCookies(w, deps.Config, result.Tokens, false)
		_ = utils.WriteOK(w, AuthResponse{User: result.User, AccessToken: result.Tokens.AccessToken})
	}
}

// LogoutHandler closes the session and expires both cookies. Logout always
// succeeds, even without a valid session.
func LogoutHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		refreshToken := refreshTokenFromRequest(r)

		if err := deps.AuthService.Logout(r.Context(), refreshToken); err != nil {
			deps.Logger.Warn("logout cleanup failed", zap.Error(err))
		}

		clearAuthCookies(w, deps.Config)
		_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse{Message: "Logged out successfully"})
	}
}

// isCredentialFailure reports whether the signin error must collapse into
// the generic rejection. An unknown user and a wrong password must be
// indistinguishable to the caller.
func isCredentialFailure(err error) bool {
	return errors.Is(err, services.ErrUserNotFound) || errors.Is(err, services.ErrInvalidCredentials)
}

// refreshTokenFromRequest reads the refresh token from the cookie, falling
// back to the request body when the cookie is absent.
func refreshTokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return ""
	}
	return body.RefreshToken
}

package handlers

import (
	"net/http"
	"time"

	"github.com/shopauth/shopauth/config"
	"github.com/shopauth/shopauth/services"
)

const (
	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"
)

// setAuthCookies attaches both tokens as httpOnly cookies. Token rotation
// and cookie replacement happen together; the cookies are the only place a
// browser client ever holds the credentials.
func setAuthCookies(w http.ResponseWriter, cfg *config.Config, pair *services.TokenPair, rememberMe bool) {
	accessTTL := cfg.Auth.AccessTTL
	if rememberMe && cfg.Auth.RememberMeTTL > accessTTL {
		accessTTL = cfg.Auth.RememberMeTTL
	}

	http.SetCookie(w, authCookie(cfg, accessTokenCookie, pair.AccessToken, accessTTL))
	http.SetCookie(w, authCookie(cfg, refreshTokenCookie, pair.RefreshToken, cfg.Auth.RefreshTTL))
}

// clearAuthCookies expires both token cookies.
func clearAuthCookies(w http.ResponseWriter, cfg *config.Config) {
	http.SetCookie(w, expiredCookie(cfg, accessTokenCookie))
	http.SetCookie(w, expiredCookie(cfg, refreshTokenCookie))
}

func authCookie(cfg *config.Config, name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   cfg.Auth.CookieDomain,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
}

func expiredCookie(cfg *config.Config, name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   cfg.Auth.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
}

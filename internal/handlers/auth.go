package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/simaland/userapi/internal/auth"
	"github.com/simaland/userapi/internal/services"
	"github.com/simaland/userapi/types"
)

// Authenticator is the session side of the auth service.
type Authenticator interface {
	Login(ctx context.Context, req services.LoginRequest) (types.SessionToken, error)
	Logout(ctx context.Context, token string) error
}

// AuthHandler provides the cookie session endpoints.
type AuthHandler struct {
	auth         Authenticator
	secureCookie bool
}

// NewAuthHandler constructs an AuthHandler. secureCookie marks the session
// cookie as HTTPS only.
func NewAuthHandler(authenticator Authenticator, secureCookie bool) *AuthHandler {
	return &AuthHandler{auth: authenticator, secureCookie: secureCookie}
}

// AuthRouter registers session routes on the given router.
func AuthRouter(r chi.Router, authenticator Authenticator, secureCookie bool) {
	handler := NewAuthHandler(authenticator, secureCookie)

	r.Post("/login", handler.Login)
	r.Post("/logout", handler.Logout)
}

// Login verifies credentials and sets the session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondMalformed(w, r, err)
		return
	}

	session, err := h.auth.Login(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    session.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, statusOK)
}

// Logout deletes the session named by the cookie and clears it.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), sessionToken(r)); err != nil {
		respondError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, statusOK)
}

func sessionToken(r *http.Request) string {
	cookie, err := r.Cookie(auth.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

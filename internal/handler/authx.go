package handler

import (
	"log/slog"
	"net/http"

	"github.com/chatapi/portal/internal/model"
	"github.com/chatapi/portal/internal/session"
)

// AuthHandler handles the portal's own logout. Provider logout is the
// identity provider's business; this endpoint only tears down the portal
// session.
type AuthHandler struct {
	sessions *session.Manager
	cookies  CookieConfig
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(sessions *session.Manager, cookies CookieConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{sessions: sessions, cookies: cookies, logger: logger}
}

// Logout clears the session cookie and deletes the stored session. Always
// succeeds from the client's point of view, even without a cookie: logout
// of a logged-out browser is a no-op, not an error.
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(h.cookies.Name); err == nil && cookie.Value != "" {
		if err := h.sessions.Destroy(r.Context(), cookie.Value); err != nil {
			h.logger.Warn("session delete on logout failed", "session_id", session.Abbrev(cookie.Value), "error", err)
		}
	}

	clearSessionCookie(w, h.cookies)
	writeJSON(w, http.StatusOK, model.LogoutResponse{
		Message:        "Logged out successfully",
		CrossTabLogout: true,
	})
}

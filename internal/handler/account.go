package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/chatapi/portal/internal/auth"
	"github.com/chatapi/portal/internal/service"
)

// AccountHandler serves the caller's own account view.
type AccountHandler struct {
	resolver *auth.Resolver
	cookies  CookieConfig
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(resolver *auth.Resolver, cookies CookieConfig, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{resolver: resolver, cookies: cookies, logger: logger}
}

// Me returns the caller's profile and redacted key list.
// GET /account/me
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, err := h.resolver.Resolve(r)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		h.logger.Error("account lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load account")
		return
	}

	// Validation already slid the store-side expiry; reissue the cookie so
	// the browser's copy slides with it.
	if id.SessionID != "" {
		setSessionCookie(w, h.cookies, id.SessionID, CookieMaxAgeRenew)
	}

	writeJSON(w, http.StatusOK, service.NewAccount(id))
}

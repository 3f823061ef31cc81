package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/chatapi/portal/internal/auth"
	"github.com/chatapi/portal/internal/model"
	"github.com/chatapi/portal/internal/service"
)

// ConsentHandler updates the caller's consent flags.
type ConsentHandler struct {
	resolver *auth.Resolver
	consent  *service.ConsentService
	logger   *slog.Logger
}

// NewConsentHandler creates a ConsentHandler.
func NewConsentHandler(resolver *auth.Resolver, consent *service.ConsentService, logger *slog.Logger) *ConsentHandler {
	return &ConsentHandler{resolver: resolver, consent: consent, logger: logger}
}

// consentRequest is a partial update: an absent field leaves that consent
// untouched, which is why both are pointers.
type consentRequest struct {
	AcceptedToS            *bool `json:"acceptedToS"`
	AcceptedCommunications *bool `json:"acceptedCommunications"`
}

// Update applies a consent change for the authenticated caller.
// POST /users/update-consent
func (h *ConsentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := h.resolver.Resolve(r)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		h.logger.Error("identity resolution failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to verify identity")
		return
	}

	var req consentRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.AcceptedToS == nil && req.AcceptedCommunications == nil {
		writeError(w, http.StatusBadRequest, "At least one consent field is required")
		return
	}

	updated, err := h.consent.Update(r.Context(), id.User.ID, req.AcceptedToS, req.AcceptedCommunications)
	if err != nil {
		h.logger.Error("consent update failed", "user_id", id.User.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update consent")
		return
	}

	writeJSON(w, http.StatusOK, model.ConsentUpdateResponse{
		Message: "Consent updated successfully",
		Updated: updated,
	})
}

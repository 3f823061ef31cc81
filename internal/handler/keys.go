package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/chatapi/portal/internal/auth"
	"github.com/chatapi/portal/internal/model"
	"github.com/chatapi/portal/internal/service"
)

// CaptchaTokenHeader carries the client-side CAPTCHA token on key
// operations.
const CaptchaTokenHeader = "X-Recaptcha-Token"

// CaptchaVerifier is the CAPTCHA check as the handlers see it, satisfied by
// *captcha.Verifier.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token string) (bool, error)
}

// KeyHandler drives the key lifecycle endpoints. The gates run in a fixed
// order so a client fixing one rejection at a time converges: identity,
// email verification, consent, input validation, CAPTCHA, then upstream.
type KeyHandler struct {
	resolver *auth.Resolver
	consent  *service.ConsentService
	keys     *service.KeyService
	captcha  CaptchaVerifier
	cookies  CookieConfig
	logger   *slog.Logger
}

// NewKeyHandler creates a KeyHandler.
func NewKeyHandler(resolver *auth.Resolver, consent *service.ConsentService, keys *service.KeyService, captcha CaptchaVerifier, cookies CookieConfig, logger *slog.Logger) *KeyHandler {
	return &KeyHandler{
		resolver: resolver,
		consent:  consent,
		keys:     keys,
		captcha:  captcha,
		cookies:  cookies,
		logger:   logger,
	}
}

// claimRequest is the permissionless enrollment payload. Every field is
// optional except the two consents.
type claimRequest struct {
	Email                string `json:"email"`
	Name                 string `json:"name"`
	Description          string `json:"description"`
	AcceptToS            bool   `json:"acceptToS"`
	AcceptCommunications bool   `json:"acceptCommunications"`
}

// Claim provisions a new permissionless user with a key and a session.
// POST /users/claim-api-key
func (h *KeyHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !req.AcceptToS {
		writeError(w, http.StatusUnauthorized, "You must accept the Terms of Service to claim an API key")
		return
	}
	if !req.AcceptCommunications {
		writeError(w, http.StatusUnauthorized, "You must accept the communications consent to claim an API key")
		return
	}
	if !h.captchaOK(w, r) {
		return
	}

	res, err := h.keys.Enroll(r.Context(), service.EnrollRequest{
		Email:                  req.Email,
		Name:                   req.Name,
		Description:            req.Description,
		AcceptedToS:            req.AcceptToS,
		AcceptedCommunications: req.AcceptCommunications,
	})
	if err != nil {
		h.logger.Error("enrollment failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to claim API key")
		return
	}

	if res.SessionID != "" {
		setSessionCookie(w, h.cookies, res.SessionID, CookieMaxAgeIssue)
	}
	writeJSON(w, http.StatusOK, model.KeyResponse{
		APIKey:    res.Key,
		SessionID: res.SessionID,
		Message:   "API key claimed successfully",
	})
}

// generateRequest names the key to issue.
type generateRequest struct {
	KeyName string `json:"keyName"`
}

// Generate issues a key for an authenticated user with no active key.
// POST /users/generate-key
func (h *KeyHandler) Generate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.gatedIdentity(w, r)
	if !ok {
		return
	}

	var req generateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.KeyName == "" {
		writeError(w, http.StatusBadRequest, "Key name is required")
		return
	}
	if !h.captchaOK(w, r) {
		return
	}

	key, err := h.keys.Generate(r.Context(), id, req.KeyName)
	if err != nil {
		if errors.Is(err, service.ErrActiveKeyExists) {
			writeError(w, http.StatusConflict, "An active API key already exists. Regenerate it instead of creating a new one.")
			return
		}
		h.logger.Error("key generation failed", "user_id", id.User.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to generate API key")
		return
	}

	writeJSON(w, http.StatusOK, model.KeyResponse{
		APIKey:  key,
		Message: "API key generated successfully",
	})
}

// regenerateRequest names the old key and the new key's name.
type regenerateRequest struct {
	KeyID   string `json:"keyId"`
	KeyName string `json:"keyName"`
}

// Regenerate replaces an existing key: the old one is deactivated first,
// then a fresh one issued.
// POST /users/regenerate-key
func (h *KeyHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.gatedIdentity(w, r)
	if !ok {
		return
	}

	var req regenerateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.KeyID == "" || req.KeyName == "" {
		writeError(w, http.StatusBadRequest, "Key ID and key name are required")
		return
	}
	if !h.captchaOK(w, r) {
		return
	}

	key, err := h.keys.Recreate(r.Context(), id, req.KeyID, req.KeyName)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDeactivateFailed):
			writeError(w, http.StatusInternalServerError, "Failed to deactivate old API key")
		case errors.Is(err, service.ErrGenerateAfterDeactivate):
			writeError(w, http.StatusInternalServerError, "Your old key was deactivated but a new key could not be issued. Please generate a new API key.")
		default:
			h.logger.Error("key regeneration failed", "user_id", id.User.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to regenerate API key")
		}
		return
	}

	writeJSON(w, http.StatusOK, model.KeyResponse{
		APIKey:  key,
		Message: "API key regenerated successfully",
	})
}

// gatedIdentity runs the shared mutation gates: authentication, email
// verification for provider-backed callers, and the consent check against
// the live backend record.
func (h *KeyHandler) gatedIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	id, err := h.resolver.Resolve(r)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return nil, false
		}
		h.logger.Error("identity resolution failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to verify identity")
		return nil, false
	}

	if !id.EmailVerified() {
		writeError(w, http.StatusForbidden, "Please verify your email address before managing API keys")
		return nil, false
	}

	status, err := h.consent.Check(r.Context(), id.User.ID)
	if err != nil {
		h.logger.Error("consent check failed", "user_id", id.User.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Unable to verify consent status")
		return nil, false
	}
	if !status.OK {
		writeJSON(w, http.StatusForbidden, model.ErrorResponse{
			Message:        "Required consent has not been given",
			MissingConsent: status.Missing,
			ConsentDetails: &status.Details,
		})
		return nil, false
	}
	return id, true
}

// captchaOK enforces the CAPTCHA gate. An absent token is rejected without
// an outbound verification call.
func (h *KeyHandler) captchaOK(w http.ResponseWriter, r *http.Request) bool {
	token := r.Header.Get(CaptchaTokenHeader)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "CAPTCHA verification required")
		return false
	}
	ok, err := h.captcha.Verify(r.Context(), token)
	if err != nil {
		h.logger.Error("captcha verification errored", "error", err)
		writeError(w, http.StatusUnauthorized, "CAPTCHA verification failed")
		return false
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, "CAPTCHA verification failed")
		return false
	}
	return true
}

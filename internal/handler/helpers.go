// Package handler implements the portal's HTTP endpoints. Handlers own
// status codes and response shapes; business rules live in the service
// layer and identity resolution in the auth package.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/chatapi/portal/internal/model"
)

// CookieConfig controls the portal session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

// Session cookie lifetimes. Issuance is shorter than renewal: an abandoned
// claim ages out in a week, while an actively used session slides along the
// store's own lifetime.
const (
	CookieMaxAgeIssue = 7 * 24 * 60 * 60
	CookieMaxAgeRenew = 14 * 24 * 60 * 60
)

// writeJSON serializes v as JSON and writes it to the response with the
// given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes the flat error envelope used across the portal.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, model.ErrorResponse{Message: message})
}

// readJSON decodes the request body as JSON into v. The body is closed
// after decoding regardless of success or failure.
func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// setSessionCookie issues or renews the portal session cookie. SameSite is
// strict; this portal has no cross-site flows.
func setSessionCookie(w http.ResponseWriter, cfg CookieConfig, sessionID string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.Name,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearSessionCookie expires the portal session cookie immediately.
func clearSessionCookie(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

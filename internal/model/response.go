package model

// MessageResponse is the minimal envelope for responses that carry only a
// human-readable message.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse carries a short message plus optional structured fields so
// clients can render targeted remediation instead of a generic banner.
type ErrorResponse struct {
	Message        string         `json:"message"`
	MissingConsent []string       `json:"missingConsent,omitempty"`
	ConsentDetails *ConsentDetail `json:"consentDetails,omitempty"`
	RetryAfter     int            `json:"retryAfter,omitempty"`
}

// ConsentDetail is the structured consent state attached to consent errors
// and consent checks.
type ConsentDetail struct {
	ToSAccepted              bool   `json:"tosAccepted"`
	ToSAcceptedAt            string `json:"tosAcceptedAt,omitempty"`
	CommunicationsAccepted   bool   `json:"communicationsAccepted"`
	CommunicationsAcceptedAt string `json:"communicationsAcceptedAt,omitempty"`
}

// KeyResponse is the envelope for key issuance. The raw key appears here
// once and is never retrievable again.
type KeyResponse struct {
	APIKey    string `json:"apikey"`
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ConsentUpdateResponse reports which consents an update touched.
type ConsentUpdateResponse struct {
	Message string   `json:"message"`
	Updated []string `json:"updated"`
}

// LogoutResponse signals the client to clear cross-tab auth state.
type LogoutResponse struct {
	Message        string `json:"message"`
	CrossTabLogout bool   `json:"crossTabLogout"`
}

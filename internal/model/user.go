package model

// AuthClass distinguishes how a caller authenticated. Extended users come
// through the OAuth identity provider; permissionless users hold an opaque
// session cookie issued by this portal.
type AuthClass string

const (
	AuthExtended       AuthClass = "auth0"
	AuthPermissionless AuthClass = "non-auth0"
)

// User is the normalized view of an upstream backend principal. The backend
// owns the record; the portal never persists one. Email is carried internally
// for key aliasing but is stripped from every client-facing response.
type User struct {
	ID            string    `json:"_id"`
	Email         string    `json:"-"` // never expose
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	AuthType      AuthClass `json:"authType"`
	CreatedAt     string    `json:"createdAt"`
	VerifiedEmail bool      `json:"verifiedEmail"`

	Consent Consent `json:"-"`
}

// Consent holds the two independent consent flags read from the backend
// user's metadata, with their acceptance timestamps when set.
type Consent struct {
	AcceptedToS              bool
	ToSAcceptedAt            string
	AcceptedCommunications   bool
	CommunicationsAcceptedAt string
}

// Complete reports whether both consents have been affirmatively given.
func (c Consent) Complete() bool {
	return c.AcceptedToS && c.AcceptedCommunications
}

// Missing enumerates the consents still outstanding, in presentation order.
func (c Consent) Missing() []string {
	var out []string
	if !c.AcceptedToS {
		out = append(out, "Terms of Service")
	}
	if !c.AcceptedCommunications {
		out = append(out, "Communications consent")
	}
	return out
}

// Account is the /account/me response shape: the normalized user plus the
// redacted key list.
type Account struct {
	ID            string    `json:"_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	AuthType      AuthClass `json:"authType"`
	CreatedAt     string    `json:"createdAt"`
	VerifiedEmail bool      `json:"verifiedEmail"`
	APIKeys       []APIKey  `json:"apiKeys"`
}

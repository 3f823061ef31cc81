package model

import "time"

// APIKey is the normalized view of one upstream-issued credential. The raw
// token is returned exactly once at generation time; reads only ever carry
// the redacted preview.
type APIKey struct {
	ID         string     `json:"_id"`
	KeyID      string     `json:"keyId"`
	KeyPreview string     `json:"keyPreview"`
	Name       string     `json:"name"`
	CreatedAt  string     `json:"createdAt"`
	LastUsed   *time.Time `json:"lastUsed,omitempty"`
	IsActive   bool       `json:"isActive"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

// Active reports whether a key with the given expiration is usable at now.
// A key with no expiration never expires upstream of its own accord.
func Active(expires *time.Time, now time.Time) bool {
	return expires == nil || expires.After(now)
}

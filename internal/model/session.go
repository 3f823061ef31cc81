package model

import "time"

// Session is a local opaque authentication token for permissionless users.
// The ID is 32 random bytes, hex-encoded. A session is valid while
// now < ExpiresAt; every successful validation slides ExpiresAt forward.
type Session struct {
	SessionID string    `json:"sessionId"`
	Email     string    `json:"email"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session is past its expiration at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Package auth resolves the caller's identity from an inbound request. Two
// independent sources are reconciled: the OAuth identity provider's session
// cookie, and the portal's own opaque session cookie for permissionless
// users.
package auth

import (
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoOAuthSession means the request carries no provider session at all.
	ErrNoOAuthSession = errors.New("no oauth session")
	// ErrInvalidOAuthSession means a provider cookie was present but did not
	// verify; it is treated like absence by the resolver.
	ErrInvalidOAuthSession = errors.New("invalid oauth session")
)

// OAuthSession is the decoded identity-provider session.
type OAuthSession struct {
	Subject       string
	Email         string
	Name          string
	EmailVerified bool
}

// OAuthDecoder verifies the provider session cookie: an HS256-signed token
// minted by the login edge, carrying the provider's standard profile claims.
type OAuthDecoder struct {
	cookieName string
	secret     []byte
}

// NewOAuthDecoder creates a decoder for the named cookie.
func NewOAuthDecoder(cookieName, secret string) *OAuthDecoder {
	return &OAuthDecoder{cookieName: cookieName, secret: []byte(secret)}
}

type oauthClaims struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

// FromRequest reads and verifies the provider session from the request.
func (d *OAuthDecoder) FromRequest(r *http.Request) (*OAuthSession, error) {
	cookie, err := r.Cookie(d.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrNoOAuthSession
	}

	claims := &oauthClaims{}
	token, err := jwt.ParseWithClaims(cookie.Value, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return d.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidOAuthSession
	}
	if claims.Subject == "" {
		return nil, ErrInvalidOAuthSession
	}

	return &OAuthSession{
		Subject:       claims.Subject,
		Email:         claims.Email,
		Name:          claims.Name,
		EmailVerified: claims.EmailVerified,
	}, nil
}

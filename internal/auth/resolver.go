package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/chatapi/portal/internal/litellm"
	"github.com/chatapi/portal/internal/model"
	"github.com/chatapi/portal/internal/session"
)

// ErrUnauthenticated is returned when neither identity source yields a
// usable user.
var ErrUnauthenticated = errors.New("not authenticated")

// Backend is the slice of the gateway client the resolver needs.
type Backend interface {
	GetUserByID(ctx context.Context, userID string) (*litellm.UserRecord, []model.APIKey, error)
	UpdateUser(ctx context.Context, userID, email string, metadata map[string]any) error
}

// Identity is a resolved caller: the normalized user plus which source
// authenticated it. OAuth is non-nil only for provider-backed callers;
// SessionID is non-empty only for portal-session callers.
type Identity struct {
	User      *model.User
	Record    *litellm.UserRecord
	Keys      []model.APIKey
	Class     model.AuthClass
	OAuth     *OAuthSession
	SessionID string
}

// EmailVerified reports whether the caller may mutate keys. Provider-backed
// callers carry the verdict in their OAuth claims; portal-session callers
// verified their address at claim time.
func (id *Identity) EmailVerified() bool {
	if id.OAuth != nil {
		return id.OAuth.EmailVerified
	}
	return true
}

// Resolver tries the provider session first and falls back to the portal's
// own session cookie. The ordering matters: a browser can hold both cookies
// after a claim followed by a login, and the provider identity wins.
type Resolver struct {
	oauth         *OAuthDecoder
	sessions      *session.Manager
	backend       Backend
	logger        *slog.Logger
	sessionCookie string
	now           func() time.Time
}

// NewResolver wires a resolver. sessionCookie names the portal's own cookie.
func NewResolver(oauth *OAuthDecoder, sessions *session.Manager, backend Backend, sessionCookie string, logger *slog.Logger) *Resolver {
	return &Resolver{
		oauth:         oauth,
		sessions:      sessions,
		backend:       backend,
		logger:        logger,
		sessionCookie: sessionCookie,
		now:           time.Now,
	}
}

// Resolve identifies the caller or returns ErrUnauthenticated. A provider
// session that cannot be resolved against the gateway, whether the subject
// is unknown or the lookup itself failed, falls through to the portal
// session rather than failing, so a half-enrolled browser still resolves
// via whichever source the gateway recognizes.
func (rs *Resolver) Resolve(r *http.Request) (*Identity, error) {
	ctx := r.Context()

	if sess, err := rs.oauth.FromRequest(r); err == nil {
		id, err := rs.resolveOAuth(ctx, sess)
		if err == nil {
			return id, nil
		}
		if errors.Is(err, litellm.ErrUserNotFound) {
			rs.logger.Debug("oauth subject unknown to gateway, trying portal session", "subject", sess.Subject)
		} else {
			rs.logger.Warn("oauth user lookup failed, trying portal session", "subject", sess.Subject, "error", err)
		}
	}

	return rs.resolveSession(r)
}

func (rs *Resolver) resolveOAuth(ctx context.Context, sess *OAuthSession) (*Identity, error) {
	record, keys, err := rs.backend.GetUserByID(ctx, sess.Subject)
	if err != nil {
		return nil, err
	}

	// Enrollment can race the first login, leaving a gateway record with no
	// email. Backfill it from the provider claims once.
	if record.Email == "" && sess.Email != "" {
		if err := rs.backend.UpdateUser(ctx, sess.Subject, sess.Email, nil); err != nil {
			rs.logger.Warn("email backfill failed", "user_id", sess.Subject, "error", err)
		} else if fresh, freshKeys, err := rs.backend.GetUserByID(ctx, sess.Subject); err == nil {
			record, keys = fresh, freshKeys
		}
	}

	user := normalizeUser(record, "Extended User", rs.now())
	return &Identity{
		User:   user,
		Record: record,
		Keys:   keys,
		Class:  model.AuthExtended,
		OAuth:  sess,
	}, nil
}

func (rs *Resolver) resolveSession(r *http.Request) (*Identity, error) {
	cookie, err := r.Cookie(rs.sessionCookie)
	if err != nil || cookie.Value == "" {
		return nil, ErrUnauthenticated
	}

	sess, err := rs.sessions.Validate(r.Context(), cookie.Value)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	record, keys, err := rs.backend.GetUserByID(r.Context(), sess.UserID)
	if err != nil {
		rs.logger.Warn("session user lookup failed", "session", session.Abbrev(sess.SessionID), "error", err)
		return nil, ErrUnauthenticated
	}

	user := normalizeUser(record, "User", rs.now())
	return &Identity{
		User:      user,
		Record:    record,
		Keys:      keys,
		Class:     model.AuthPermissionless,
		SessionID: sess.SessionID,
	}, nil
}

// normalizeUser maps a gateway record to the portal's response shape. The
// email is retained internally but never serialized.
func normalizeUser(record *litellm.UserRecord, displayName string, now time.Time) *model.User {
	return &model.User{
		ID:            record.UserID,
		Email:         record.Email,
		Name:          displayName,
		Description:   record.Description(),
		AuthType:      record.AuthType(),
		CreatedAt:     record.CreatedAtDisplay(now),
		VerifiedEmail: record.VerifiedEmail(),
		Consent:       record.Consent(),
	}
}

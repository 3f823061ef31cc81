package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/chatapi/portal/internal/auth"
	"github.com/chatapi/portal/internal/litellm"
	"github.com/chatapi/portal/internal/model"
	"github.com/chatapi/portal/internal/session"
)

// Key lifetimes by authentication class. A configured absolute expiration
// date can shorten these but never lengthen them.
const (
	LifetimeExtended       = 30 * 24 * time.Hour
	LifetimePermissionless = 5 * 24 * time.Hour
)

var (
	// ErrActiveKeyExists rejects generation while the user still holds an
	// unexpired key.
	ErrActiveKeyExists = errors.New("an active api key already exists")
	// ErrDeactivateFailed means regeneration stopped before touching the old
	// key; nothing changed upstream.
	ErrDeactivateFailed = errors.New("failed to deactivate old api key")
	// ErrGenerateAfterDeactivate means the old key is gone but no new key
	// was issued. There is no rollback; the caller must generate a fresh key.
	ErrGenerateAfterDeactivate = errors.New("key generation failed after deactivation")
)

// KeyService drives the key lifecycle against the backend. Key state is
// never stored here; active-or-not is derived from the backend's key list
// on every call.
type KeyService struct {
	backend  Backend
	sessions *session.Manager
	logger   *slog.Logger

	// expirationCap, when set, is an absolute deadline no issued key may
	// outlive. Earlier-wins against the class lifetime.
	expirationCap *time.Time
	now           func() time.Time
}

// NewKeyService wires a key service. expiresBy may be nil for no global
// deadline.
func NewKeyService(backend Backend, sessions *session.Manager, expiresBy *time.Time, logger *slog.Logger) *KeyService {
	return &KeyService{
		backend:       backend,
		sessions:      sessions,
		logger:        logger,
		expirationCap: expiresBy,
		now:           time.Now,
	}
}

// Generate issues a new key for an existing user, enforcing the one-active-
// key rule against the key list resolved with the caller's identity. Two
// concurrent calls can both pass that read; the window is accepted rather
// than locked over a remote call.
func (s *KeyService) Generate(ctx context.Context, id *auth.Identity, name string) (string, error) {
	now := s.now()
	for _, k := range id.Keys {
		if k.IsActive {
			return "", ErrActiveKeyExists
		}
	}

	key, err := s.issue(ctx, id.User, id.Class, name, now)
	if err != nil {
		return "", err
	}
	s.logger.Info("api key generated", "user_id", id.User.ID, "auth_type", id.Class)
	return key, nil
}

// Recreate deactivates the named key and then issues a replacement. The two
// steps are strictly ordered and there is no rollback: a generation failure
// after a successful deactivation leaves the user keyless and is reported
// distinctly so the caller knows to generate rather than retry regeneration.
func (s *KeyService) Recreate(ctx context.Context, id *auth.Identity, keyID, name string) (string, error) {
	if err := s.backend.DeactivateKeys(ctx, []string{keyID}); err != nil {
		s.logger.Error("key deactivation failed", "user_id", id.User.ID, "error", err)
		return "", fmt.Errorf("%w: %w", ErrDeactivateFailed, err)
	}

	key, err := s.issue(ctx, id.User, id.Class, name, s.now())
	if err != nil {
		s.logger.Error("generation failed after deactivation, user is keyless", "user_id", id.User.ID, "error", err)
		return "", fmt.Errorf("%w: %w", ErrGenerateAfterDeactivate, err)
	}
	s.logger.Info("api key regenerated", "user_id", id.User.ID)
	return key, nil
}

func (s *KeyService) issue(ctx context.Context, user *model.User, class model.AuthClass, name string, now time.Time) (string, error) {
	email := user.Email
	if email == "" {
		email = user.ID + "@unknown.com"
	}

	out, err := s.backend.GenerateKey(ctx, litellm.GenerateKeyRequest{
		UserID:   user.ID,
		KeyAlias: keyAlias(email, now),
		KeyName:  name,
		TeamID:   s.backend.Team(class),
		Duration: s.duration(class, now),
	})
	if err != nil {
		return "", err
	}
	if out.Key == "" {
		return "", errors.New("backend returned no key material")
	}
	return out.Key, nil
}

// EnrollRequest is a permissionless claim.
type EnrollRequest struct {
	Email                  string
	Name                   string
	Description            string
	AcceptedToS            bool
	AcceptedCommunications bool
}

// EnrollResult carries the raw key and the portal session issued with it.
type EnrollResult struct {
	UserID    string
	Key       string
	SessionID string
}

// Enroll provisions a permissionless user with an auto-created key and a
// portal session. An empty email gets a synthesized placeholder so the
// backend record and the key alias stay well-formed.
func (s *KeyService) Enroll(ctx context.Context, req EnrollRequest) (*EnrollResult, error) {
	now := s.now()
	email := req.Email
	if email == "" {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("synthesize email: %w", err)
		}
		email = hex.EncodeToString(buf) + "@example.com"
	}

	stamp := now.UTC().Format(time.RFC3339)
	metadata := map[string]any{
		"authType":               string(model.AuthPermissionless),
		"createdAt":              stamp,
		"acceptedToS":            req.AcceptedToS,
		"acceptedCommunications": req.AcceptedCommunications,
	}
	if req.Name != "" {
		metadata["name"] = req.Name
	}
	if req.Description != "" {
		metadata["description"] = req.Description
	}
	if req.AcceptedToS {
		metadata["tosAcceptedAt"] = stamp
	}
	if req.AcceptedCommunications {
		metadata["communicationsAcceptedAt"] = stamp
	}

	team := s.backend.Team(model.AuthPermissionless)
	created, err := s.backend.CreateUser(ctx, litellm.NewUserRequest{
		Email:         email,
		KeyAlias:      keyAlias(email, now),
		TeamID:        team,
		Teams:         []string{team},
		Metadata:      metadata,
		AutoCreateKey: true,
		Duration:      s.duration(model.AuthPermissionless, now),
	})
	if err != nil {
		return nil, err
	}
	if created.Key == "" {
		return nil, errors.New("backend created user without key material")
	}

	result := &EnrollResult{UserID: created.UserID, Key: created.Key}
	sid, err := s.sessions.Create(ctx, email, created.UserID)
	if err != nil {
		// The key is already issued; report it without a session rather
		// than failing the claim.
		s.logger.Warn("session creation failed after enrollment", "user_id", created.UserID, "error", err)
		return result, nil
	}
	result.SessionID = sid
	return result, nil
}

// duration computes the upstream key lifetime in whole seconds, applying
// the earlier-wins cap.
func (s *KeyService) duration(class model.AuthClass, now time.Time) string {
	lifetime := LifetimePermissionless
	if class == model.AuthExtended {
		lifetime = LifetimeExtended
	}
	expires := now.Add(lifetime)
	if s.expirationCap != nil && s.expirationCap.Before(expires) {
		expires = *s.expirationCap
	}
	secs := int64(expires.Sub(now) / time.Second)
	if secs < 0 {
		secs = 0
	}
	return strconv.FormatInt(secs, 10) + "s"
}

// keyAlias builds a unique, attributable alias: the issuance time and a
// short random suffix, both base36, appended to the email.
func keyAlias(email string, now time.Time) string {
	return email + "-" + strconv.FormatInt(now.Unix(), 36) + "-" + randBase36(6)
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

func randBase36(n int) string {
	buf := make([]byte, n)
	rand.Read(buf)
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = base36[int(b)%len(base36)]
	}
	return string(out)
}

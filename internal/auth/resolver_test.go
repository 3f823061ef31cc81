package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/chatapi/portal/internal/litellm"
	"github.com/chatapi/portal/internal/model"
	"github.com/chatapi/portal/internal/session"
)

const (
	testOAuthCookie   = "appSession"
	testSessionCookie = "chatapi-session"
	testSecret        = "test-signing-secret"
)

var errBackendDown = errors.New("backend down")

type fakeBackend struct {
	users   map[string]*litellm.UserRecord
	keys    map[string][]model.APIKey
	updates []string
	err     error
	fails   map[string]error // per-user lookup failures
}

func (f *fakeBackend) GetUserByID(_ context.Context, userID string) (*litellm.UserRecord, []model.APIKey, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	if err, ok := f.fails[userID]; ok {
		return nil, nil, err
	}
	u, ok := f.users[userID]
	if !ok {
		return nil, nil, litellm.ErrUserNotFound
	}
	return u, f.keys[userID], nil
}

func (f *fakeBackend) UpdateUser(_ context.Context, userID, email string, _ map[string]any) error {
	f.updates = append(f.updates, userID)
	if u, ok := f.users[userID]; ok {
		u.Email = email
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestResolver(t *testing.T, backend Backend) (*Resolver, *session.Manager) {
	t.Helper()
	mgr := session.NewManager(session.NewMemoryStore(), discardLogger())
	decoder := NewOAuthDecoder(testOAuthCookie, testSecret)
	return NewResolver(decoder, mgr, backend, testSessionCookie, discardLogger()), mgr
}

func signOAuthCookie(t *testing.T, sub, email string, verified bool) *http.Cookie {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":            sub,
		"email":          email,
		"name":           "Test Person",
		"email_verified": verified,
		"exp":            time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return &http.Cookie{Name: testOAuthCookie, Value: signed}
}

func TestResolveOAuthIdentity(t *testing.T) {
	backend := &fakeBackend{
		users: map[string]*litellm.UserRecord{
			"auth0|abc": {UserID: "auth0|abc", Email: "person@example.com"},
		},
		keys: map[string][]model.APIKey{
			"auth0|abc": {{ID: "sk-1", Name: "key"}},
		},
	}
	rs, _ := newTestResolver(t, backend)

	req := httptest.NewRequest(http.MethodGet, "/account/me", nil)
	req.AddCookie(signOAuthCookie(t, "auth0|abc", "person@example.com", true))

	id, err := rs.Resolve(req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id.Class != model.AuthExtended {
		t.Fatalf("class = %q, want %q", id.Class, model.AuthExtended)
	}
	if id.User.ID != "auth0|abc" {
		t.Errorf("user id = %q", id.User.ID)
	}
	if id.User.Name != "Extended User" {
		t.Errorf("name = %q, want synthesized display name", id.User.Name)
	}
	if !id.EmailVerified() {
		t.Error("EmailVerified() = false, want true from oauth claims")
	}
	if len(id.Keys) != 1 || id.Keys[0].ID != "sk-1" {
		t.Errorf("keys = %+v", id.Keys)
	}
	if len(backend.updates) != 0 {
		t.Errorf("unexpected backfill calls: %v", backend.updates)
	}
}

func TestResolveOAuthBackfillsMissingEmail(t *testing.T) {
	backend := &fakeBackend{
		users: map[string]*litellm.UserRecord{
			"auth0|abc": {UserID: "auth0|abc"},
		},
	}
	rs, _ := newTestResolver(t, backend)

	req := httptest.NewRequest(http.MethodGet, "/account/me", nil)
	req.AddCookie(signOAuthCookie(t, "auth0|abc", "person@example.com", true))

	id, err := rs.Resolve(req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(backend.updates) != 1 || backend.updates[0] != "auth0|abc" {
		t.Fatalf("backfill calls = %v, want one for auth0|abc", backend.updates)
	}
	if id.User.Email != "person@example.com" {
		t.Errorf("email = %q, want backfilled claim email", id.User.Email)
	}
}

func TestResolveUnknownOAuthFallsThroughToSession(t *testing.T) {
	backend := &fakeBackend{
		users: map[string]*litellm.UserRecord{
			"usr-1": {UserID: "usr-1", Email: "claimed@example.com", Metadata: map[string]any{"authType": "non-auth0"}},
		},
	}
	rs, mgr := newTestResolver(t, backend)

	sid, err := mgr.Create(context.Background(), "claimed@example.com", "usr-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/account/me", nil)
	req.AddCookie(signOAuthCookie(t, "auth0|missing", "gone@example.com", true))
	req.AddCookie(&http.Cookie{Name: testSessionCookie, Value: sid})

	id, err := rs.Resolve(req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id.Class != model.AuthPermissionless {
		t.Fatalf("class = %q, want %q", id.Class, model.AuthPermissionless)
	}
	if id.SessionID != sid {
		t.Errorf("session id = %q, want %q", session.Abbrev(id.SessionID), session.Abbrev(sid))
	}
	if !id.EmailVerified() {
		t.Error("permissionless identity should count as email-verified")
	}
}

func TestResolveTamperedOAuthCookieIgnored(t *testing.T) {
	backend := &fakeBackend{users: map[string]*litellm.UserRecord{}}
	rs, _ := newTestResolver(t, backend)

	req := httptest.NewRequest(http.MethodGet, "/account/me", nil)
	req.AddCookie(&http.Cookie{Name: testOAuthCookie, Value: "not.a.jwt"})

	if _, err := rs.Resolve(req); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestResolveWrongKeySignatureIgnored(t *testing.T) {
	backend := &fakeBackend{users: map[string]*litellm.UserRecord{
		"auth0|abc": {UserID: "auth0|abc", Email: "person@example.com"},
	}}
	rs, _ := newTestResolver(t, backend)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "auth0|abc"})
	signed, err := token.SignedString([]byte("some-other-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/account/me", nil)
	req.AddCookie(&http.Cookie{Name: testOAuthCookie, Value: signed})

	if _, err := rs.Resolve(req); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestResolveNoCookies(t *testing.T) {
	rs, _ := newTestResolver(t, &fakeBackend{})
	req := httptest.NewRequest(http.MethodGet, "/account/me", nil)
	if _, err := rs.Resolve(req); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestResolveUnknownSessionCookie(t *testing.T) {
	rs, _ := newTestResolver(t, &fakeBackend{})
	req := httptest.NewRequest(http.MethodGet, "/account/me", nil)
	req.AddCookie(&http.Cookie{Name: testSessionCookie, Value: "deadbeef"})
	if _, err := rs.Resolve(req); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestResolveBackendOutageFallsThroughToSession(t *testing.T) {
	backend := &fakeBackend{
		users: map[string]*litellm.UserRecord{
			"usr-1": {UserID: "usr-1", Email: "claimed@example.com", Metadata: map[string]any{"authType": "non-auth0"}},
		},
		fails: map[string]error{"auth0|abc": errBackendDown},
	}
	rs, mgr := newTestResolver(t, backend)

	sid, err := mgr.Create(context.Background(), "claimed@example.com", "usr-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/account/me", nil)
	req.AddCookie(signOAuthCookie(t, "auth0|abc", "person@example.com", true))
	req.AddCookie(&http.Cookie{Name: testSessionCookie, Value: sid})

	id, err := rs.Resolve(req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id.Class != model.AuthPermissionless {
		t.Fatalf("class = %q, want %q", id.Class, model.AuthPermissionless)
	}
	if id.SessionID != sid {
		t.Errorf("session id = %q, want %q", session.Abbrev(id.SessionID), session.Abbrev(sid))
	}
}

func TestResolveBackendOutageWithoutSessionUnauthenticated(t *testing.T) {
	backend := &fakeBackend{err: errBackendDown}
	rs, _ := newTestResolver(t, backend)

	req := httptest.NewRequest(http.MethodGet, "/account/me", nil)
	req.AddCookie(signOAuthCookie(t, "auth0|abc", "person@example.com", true))

	if _, err := rs.Resolve(req); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
}

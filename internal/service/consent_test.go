package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chatapi/portal/internal/litellm"
)

func boolPtr(b bool) *bool { return &b }

func newConsentService(backend Backend, at time.Time) *ConsentService {
	s := NewConsentService(backend, discardLogger())
	s.now = func() time.Time { return at }
	return s
}

func TestConsentCheckComplete(t *testing.T) {
	backend := &fakeBackend{record: &litellm.UserRecord{
		UserID: "usr-1",
		Metadata: map[string]any{
			"acceptedToS":            true,
			"tosAcceptedAt":          "2026-01-01T00:00:00Z",
			"acceptedCommunications": true,
		},
	}}
	svc := newConsentService(backend, time.Now())

	status, err := svc.Check(context.Background(), "usr-1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !status.OK {
		t.Error("status not OK for complete consent")
	}
	if len(status.Missing) != 0 {
		t.Errorf("missing = %v", status.Missing)
	}
	if status.Details.ToSAcceptedAt != "2026-01-01T00:00:00Z" {
		t.Errorf("details = %+v", status.Details)
	}
}

func TestConsentCheckEnumeratesMissing(t *testing.T) {
	backend := &fakeBackend{record: &litellm.UserRecord{
		UserID:   "usr-1",
		Metadata: map[string]any{"acceptedToS": true},
	}}
	svc := newConsentService(backend, time.Now())

	status, err := svc.Check(context.Background(), "usr-1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if status.OK {
		t.Error("status OK with communications consent missing")
	}
	if len(status.Missing) != 1 || status.Missing[0] != "Communications consent" {
		t.Errorf("missing = %v", status.Missing)
	}
}

func TestConsentCheckUpstreamFailureIsNotAPass(t *testing.T) {
	backend := &fakeBackend{getErr: errUpstream}
	svc := newConsentService(backend, time.Now())

	if _, err := svc.Check(context.Background(), "usr-1"); !errors.Is(err, errUpstream) {
		t.Fatalf("err = %v, want upstream error surfaced", err)
	}
}

func TestConsentUpdateStampsOnTransitionToTrue(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	backend := &fakeBackend{record: &litellm.UserRecord{
		UserID:   "usr-1",
		Metadata: map[string]any{"acceptedToS": false},
	}}
	svc := newConsentService(backend, at)

	updated, err := svc.Update(context.Background(), "usr-1", boolPtr(true), nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(updated) != 1 || updated[0] != "Terms of Service accepted" {
		t.Errorf("updated = %v", updated)
	}
	md := backend.updatedMetadata
	if md["acceptedToS"] != true {
		t.Errorf("acceptedToS = %v", md["acceptedToS"])
	}
	if md["tosAcceptedAt"] != "2026-03-01T12:00:00Z" {
		t.Errorf("tosAcceptedAt = %v", md["tosAcceptedAt"])
	}
}

func TestConsentUpdateRepeatedTrueKeepsOriginalStamp(t *testing.T) {
	backend := &fakeBackend{record: &litellm.UserRecord{
		UserID: "usr-1",
		Metadata: map[string]any{
			"acceptedToS":   true,
			"tosAcceptedAt": "2026-01-01T00:00:00Z",
		},
	}}
	svc := newConsentService(backend, time.Now())

	if _, err := svc.Update(context.Background(), "usr-1", boolPtr(true), nil); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := backend.updatedMetadata["tosAcceptedAt"]; got != "2026-01-01T00:00:00Z" {
		t.Errorf("tosAcceptedAt = %v, want original stamp preserved", got)
	}
}

func TestConsentUpdateRevokeKeepsStamp(t *testing.T) {
	backend := &fakeBackend{record: &litellm.UserRecord{
		UserID: "usr-1",
		Metadata: map[string]any{
			"acceptedCommunications":   true,
			"communicationsAcceptedAt": "2026-01-01T00:00:00Z",
		},
	}}
	svc := newConsentService(backend, time.Now())

	updated, err := svc.Update(context.Background(), "usr-1", nil, boolPtr(false))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(updated) != 1 || updated[0] != "Communications consent revoked" {
		t.Errorf("updated = %v", updated)
	}
	md := backend.updatedMetadata
	if md["acceptedCommunications"] != false {
		t.Errorf("acceptedCommunications = %v", md["acceptedCommunications"])
	}
	if md["communicationsAcceptedAt"] != "2026-01-01T00:00:00Z" {
		t.Errorf("communicationsAcceptedAt = %v, want historical stamp kept", md["communicationsAcceptedAt"])
	}
}

func TestConsentUpdateMergePreservesUnknownMetadata(t *testing.T) {
	backend := &fakeBackend{record: &litellm.UserRecord{
		UserID: "usr-1",
		Metadata: map[string]any{
			"description": "keeps me",
			"authType":    "non-auth0",
		},
	}}
	svc := newConsentService(backend, time.Now())

	if _, err := svc.Update(context.Background(), "usr-1", boolPtr(true), boolPtr(true)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	md := backend.updatedMetadata
	if md["description"] != "keeps me" || md["authType"] != "non-auth0" {
		t.Errorf("unknown metadata clobbered: %v", md)
	}
}

func TestConsentUpdateUpstreamWriteFailure(t *testing.T) {
	backend := &fakeBackend{
		record:    &litellm.UserRecord{UserID: "usr-1"},
		updateErr: errUpstream,
	}
	svc := newConsentService(backend, time.Now())

	if _, err := svc.Update(context.Background(), "usr-1", boolPtr(true), nil); !errors.Is(err, errUpstream) {
		t.Fatalf("err = %v, want upstream error", err)
	}
}

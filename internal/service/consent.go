package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chatapi/portal/internal/model"
)

// ConsentStatus is the result of a consent check against the live backend
// record.
type ConsentStatus struct {
	OK      bool
	Missing []string
	Details model.ConsentDetail
}

// ConsentService reads and updates the consent flags stored in the backend
// user's metadata. It never caches: a check reflects the record as of the
// call, so a consent granted in another tab is honored immediately.
type ConsentService struct {
	backend Backend
	logger  *slog.Logger

	now func() time.Time
}

// NewConsentService wires a consent service.
func NewConsentService(backend Backend, logger *slog.Logger) *ConsentService {
	return &ConsentService{backend: backend, logger: logger, now: time.Now}
}

// Check fetches the user's current consent state. An upstream failure is an
// error, never a pass; callers must refuse the gated operation.
func (s *ConsentService) Check(ctx context.Context, userID string) (*ConsentStatus, error) {
	record, _, err := s.backend.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("verify consent: %w", err)
	}
	c := record.Consent()
	return &ConsentStatus{
		OK:      c.Complete(),
		Missing: c.Missing(),
		Details: ConsentDetail(c),
	}, nil
}

// ConsentDetail converts the internal consent flags to the response shape.
func ConsentDetail(c model.Consent) model.ConsentDetail {
	return model.ConsentDetail{
		ToSAccepted:              c.AcceptedToS,
		ToSAcceptedAt:            c.ToSAcceptedAt,
		CommunicationsAccepted:   c.AcceptedCommunications,
		CommunicationsAcceptedAt: c.CommunicationsAcceptedAt,
	}
}

// Update applies a partial consent change: a nil flag leaves that consent
// untouched. The merge happens over the backend's current metadata map so
// fields this portal does not know about survive the round trip. Acceptance
// timestamps are stamped only when a flag transitions to true; revoking
// leaves the historical stamp in place.
func (s *ConsentService) Update(ctx context.Context, userID string, tos, comms *bool) ([]string, error) {
	record, _, err := s.backend.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load consent state: %w", err)
	}

	metadata := make(map[string]any, len(record.Metadata)+4)
	for k, v := range record.Metadata {
		metadata[k] = v
	}
	prev := record.Consent()
	stamp := s.now().UTC().Format(time.RFC3339)

	var updated []string
	if tos != nil {
		metadata["acceptedToS"] = *tos
		if *tos {
			if !prev.AcceptedToS {
				metadata["tosAcceptedAt"] = stamp
			}
			updated = append(updated, "Terms of Service accepted")
		} else {
			updated = append(updated, "Terms of Service revoked")
		}
	}
	if comms != nil {
		metadata["acceptedCommunications"] = *comms
		if *comms {
			if !prev.AcceptedCommunications {
				metadata["communicationsAcceptedAt"] = stamp
			}
			updated = append(updated, "Communications consent accepted")
		} else {
			updated = append(updated, "Communications consent revoked")
		}
	}

	if err := s.backend.UpdateUser(ctx, userID, "", metadata); err != nil {
		return nil, fmt.Errorf("update consent: %w", err)
	}
	s.logger.Info("consent updated", "user_id", userID, "changes", updated)
	return updated, nil
}

// Package service holds the portal's business rules: consent gating and the
// key lifecycle. Services are stateless; every decision is derived from the
// backend's answer at call time.
package service

import (
	"context"
	"encoding/json"

	"github.com/chatapi/portal/internal/litellm"
	"github.com/chatapi/portal/internal/model"
)

// Backend is the upstream surface the services depend on, satisfied by
// *litellm.Client and by test fakes.
type Backend interface {
	GetUserByID(ctx context.Context, userID string) (*litellm.UserRecord, []model.APIKey, error)
	GetUserByEmail(ctx context.Context, email string) (*litellm.UserRecord, []model.APIKey, error)
	CreateUser(ctx context.Context, req litellm.NewUserRequest) (*litellm.CreatedUser, error)
	UpdateUser(ctx context.Context, userID, email string, metadata map[string]any) error
	GenerateKey(ctx context.Context, req litellm.GenerateKeyRequest) (*litellm.GeneratedKey, error)
	DeactivateKeys(ctx context.Context, keyIDs []string) error
	ListModels(ctx context.Context) (json.RawMessage, error)
	Team(class model.AuthClass) string
}

var _ Backend = (*litellm.Client)(nil)

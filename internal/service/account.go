package service

import (
	"github.com/chatapi/portal/internal/auth"
	"github.com/chatapi/portal/internal/model"
)

// NewAccount assembles the client-facing account view from a resolved
// identity. The email never appears here; key material is already reduced
// to previews by normalization.
func NewAccount(id *auth.Identity) *model.Account {
	keys := id.Keys
	if keys == nil {
		keys = []model.APIKey{}
	}
	return &model.Account{
		ID:            id.User.ID,
		Name:          id.User.Name,
		Description:   id.User.Description,
		AuthType:      id.User.AuthType,
		CreatedAt:     id.User.CreatedAt,
		VerifiedEmail: id.User.VerifiedEmail,
		APIKeys:       keys,
	}
}

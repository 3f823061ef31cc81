package litellm

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/chatapi/portal/internal/model"
)

// UserRecord is the normalized backend user. Metadata is kept as the raw
// map so consent updates can merge into it without clobbering fields this
// portal does not know about.
type UserRecord struct {
	UserID              string
	Email               string
	Role                string
	Teams               []string
	MaxParallelRequests int
	CreatedAt           string
	Metadata            map[string]any
}

// rawKey is the backend's key shape inside `keys`.
type rawKey struct {
	Token      string     `json:"token"`
	KeyName    string     `json:"key_name"`
	KeyAlias   string     `json:"key_alias"`
	UserID     string     `json:"user_id"`
	CreatedAt  string     `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
	Expires    *time.Time `json:"expires"`
}

// NormalizeUserPayload turns a /user/info response into a UserRecord and a
// normalized key list. The backend has shipped two shapes over time: user
// data nested under `user_info`, and the same fields flattened at the top
// level; `user_id` may live at either level. Nested wins field-by-field,
// with top-level fallback.
func NormalizeUserPayload(raw json.RawMessage, now time.Time) (*UserRecord, []model.APIKey, error) {
	var top map[string]any
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, nil, fmt.Errorf("decode user payload: %w", err)
	}

	info := top
	if nested, ok := top["user_info"].(map[string]any); ok && nested != nil {
		info = nested
	}

	user := &UserRecord{
		UserID:              stringField(top, "user_id"),
		Email:               stringField(info, "user_email"),
		Role:                stringField(info, "user_role"),
		Teams:               stringSlice(info, "teams"),
		MaxParallelRequests: intField(info, "max_parallel_requests"),
		CreatedAt:           stringField(info, "created_at"),
		Metadata:            mapField(info, "metadata"),
	}
	if user.UserID == "" {
		user.UserID = stringField(info, "user_id")
	}

	keys, err := normalizeKeys(top, now)
	if err != nil {
		return nil, nil, err
	}
	return user, keys, nil
}

func normalizeKeys(top map[string]any, now time.Time) ([]model.APIKey, error) {
	rawList, ok := top["keys"]
	if !ok || rawList == nil {
		return nil, nil
	}
	b, err := json.Marshal(rawList)
	if err != nil {
		return nil, fmt.Errorf("reencode keys: %w", err)
	}
	var raw []rawKey
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decode keys: %w", err)
	}

	out := make([]model.APIKey, 0, len(raw))
	for _, k := range raw {
		id := k.Token
		if id == "" {
			id = k.KeyName
		}
		name := k.KeyName
		if name == "" {
			name = k.KeyAlias
		}
		createdAt := k.CreatedAt
		if createdAt == "" {
			createdAt = now.UTC().Format(time.RFC3339)
		}
		out = append(out, model.APIKey{
			ID:         id,
			KeyID:      k.Token,
			KeyPreview: k.KeyName,
			Name:       name,
			CreatedAt:  createdAt,
			LastUsed:   k.LastUsedAt,
			IsActive:   model.Active(k.Expires, now),
			ExpiresAt:  k.Expires,
		})
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// UserRecord metadata accessors
// ---------------------------------------------------------------------------

// AuthType reads the authentication class from metadata, defaulting to
// extended: records created before the permissionless flow existed carry no
// authType and are all provider-issued.
func (u *UserRecord) AuthType() model.AuthClass {
	if stringField(u.Metadata, "authType") == string(model.AuthPermissionless) {
		return model.AuthPermissionless
	}
	return model.AuthExtended
}

// Description reads the free-text description from metadata.
func (u *UserRecord) Description() string {
	if d := stringField(u.Metadata, "description"); d != "" {
		return d
	}
	return "No description provided"
}

// CreatedAtDisplay prefers the metadata creation stamp, falling back to the
// backend record's created_at, then to now.
func (u *UserRecord) CreatedAtDisplay(now time.Time) string {
	if v := stringField(u.Metadata, "createdAt"); v != "" {
		return v
	}
	if u.CreatedAt != "" {
		return u.CreatedAt
	}
	return now.UTC().Format(time.RFC3339)
}

// VerifiedEmail reads the verified-email marker from metadata. Meaningful
// only for extended users.
func (u *UserRecord) VerifiedEmail() bool {
	return boolField(u.Metadata, "verifiedEmail")
}

// Consent extracts both consent flags and their acceptance timestamps.
func (u *UserRecord) Consent() model.Consent {
	return model.Consent{
		AcceptedToS:              boolField(u.Metadata, "acceptedToS"),
		ToSAcceptedAt:            stringField(u.Metadata, "tosAcceptedAt"),
		AcceptedCommunications:   boolField(u.Metadata, "acceptedCommunications"),
		CommunicationsAcceptedAt: stringField(u.Metadata, "communicationsAcceptedAt"),
	}
}

// ---------------------------------------------------------------------------
// loose-JSON helpers
// ---------------------------------------------------------------------------

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func boolField(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	b, _ := m[key].(bool)
	return b
}

func intField(m map[string]any, key string) int {
	if m == nil {
		return 0
	}
	f, _ := m[key].(float64)
	return int(f)
}

func mapField(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	sub, _ := m[key].(map[string]any)
	return sub
}

func stringSlice(m map[string]any, key string) []string {
	if m == nil {
		return nil
	}
	raw, _ := m[key].([]any)
	if raw == nil {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

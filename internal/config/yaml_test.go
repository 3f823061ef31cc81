package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "portal.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAMLConfigExpandsEnv(t *testing.T) {
	t.Setenv("TEST_ADMIN_KEY", "sk-admin-secret")
	path := writeTempConfig(t, `
upstream:
  endpoint: http://gateway:4000
  admin_key: ${TEST_ADMIN_KEY}
`)

	cfg, err := LoadYAMLConfig(path)
	if err != nil {
		t.Fatalf("LoadYAMLConfig: %v", err)
	}
	if cfg.Upstream.AdminKey != "sk-admin-secret" {
		t.Errorf("admin key = %q, want env-expanded value", cfg.Upstream.AdminKey)
	}
	if cfg.Upstream.Endpoint != "http://gateway:4000" {
		t.Errorf("endpoint = %q", cfg.Upstream.Endpoint)
	}
}

func TestLoadYAMLConfigKeepsDefaults(t *testing.T) {
	path := writeTempConfig(t, `
server:
  port: 9090
`)

	cfg, err := LoadYAMLConfig(path)
	if err != nil {
		t.Fatalf("LoadYAMLConfig: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want override", cfg.Server.Port)
	}
	if cfg.Server.RateLimit.AccountPerMinute != 10 {
		t.Errorf("account rate = %d, want default 10", cfg.Server.RateLimit.AccountPerMinute)
	}
	if cfg.Auth.SessionCookie != "chatapi-session" {
		t.Errorf("session cookie = %q, want default", cfg.Auth.SessionCookie)
	}
	if cfg.Auth.OAuthCookie != "appSession" {
		t.Errorf("oauth cookie = %q, want default", cfg.Auth.OAuthCookie)
	}
}

func TestLoadYAMLConfigMissingFile(t *testing.T) {
	if _, err := LoadYAMLConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestKeysDeadline(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    time.Time
		wantNil bool
		wantErr bool
	}{
		{"empty means none", "", time.Time{}, true, false},
		{"date only", "2026-12-31", time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC), false, false},
		{"rfc3339", "2026-12-31T06:00:00Z", time.Date(2026, 12, 31, 6, 0, 0, 0, time.UTC), false, false},
		{"garbage", "soon", time.Time{}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := KeysConfig{ExpiresBy: tt.value}.Deadline()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected parse error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Deadline: %v", err)
			}
			if tt.wantNil {
				if got != nil {
					t.Fatalf("deadline = %v, want nil", got)
				}
				return
			}
			if got == nil || !got.Equal(tt.want) {
				t.Errorf("deadline = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWriteDefaultConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portal.yaml")
	if err := WriteDefaultConfig(path); err != nil {
		t.Fatalf("WriteDefaultConfig: %v", err)
	}
	cfg, err := LoadYAMLConfig(path)
	if err != nil {
		t.Fatalf("LoadYAMLConfig: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
}

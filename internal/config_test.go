package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pkgconfig "github.com/starford/fleeting/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())
	require.True(t, cfg.Search.Enabled())
}

func TestNotesConfig_Validation(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Notes.TTL = 0
	require.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Notes.Root = ""
	require.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.Notes.PreviewLength = 0
	require.Error(t, cfg.Validate())
}

func TestWatchConfig_DisabledSkipsDebounce(t *testing.T) {
	cfg := WatchConfig{Enabled: false}
	require.NoError(t, cfg.Validate())

	cfg.Enabled = true
	require.Error(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("FLEETING_TEST_TOKEN", "s3cret")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
app:
  http:
    port: 9090
notes:
  root: /tmp/fleeting
  ttl: 48h
  gc_missing_archived: true
expire:
  interval: 30s
search:
  path: ""
auth:
  mode: token
  token: ${FLEETING_TEST_TOKEN}
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg := NewDefaultConfig()
	require.NoError(t, pkgconfig.Load(path, cfg))

	require.Equal(t, 9090, cfg.App.HTTP.Port)
	require.Equal(t, "/tmp/fleeting", cfg.Notes.Root)
	require.Equal(t, 48*time.Hour, cfg.Notes.TTL)
	require.Equal(t, 80, cfg.Notes.PreviewLength)
	require.True(t, cfg.Notes.GCMissingArchived)
	require.Equal(t, 30*time.Second, cfg.Expire.Interval)
	require.False(t, cfg.Search.Enabled())
	require.Equal(t, "s3cret", cfg.Auth.Token)
	require.True(t, cfg.Auth.AuthEnabled())
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

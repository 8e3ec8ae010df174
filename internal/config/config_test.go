package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestRequireEnv(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		value     string
		file      map[string]string
		wantPanic bool
		want      string
	}{
		{
			name:  "variable set",
			key:   "MARKSYNC_TEST_VAR",
			value: "test_value",
			want:  "test_value",
		},
		{
			name: "value from file",
			key:  "MARKSYNC_TEST_FILE_VAR",
			file: map[string]string{"test_file_var": "from_file"},
			want: "from_file",
		},
		{
			name:  "environment wins over file",
			key:   "MARKSYNC_TEST_BOTH",
			value: "from_env",
			file:  map[string]string{"test_both": "from_file"},
			want:  "from_env",
		},
		{
			name:      "variable not set",
			key:       "MARKSYNC_TEST_VAR_MISSING",
			wantPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv(tt.key, tt.value)
			}

			if tt.wantPanic {
				defer func() {
					if r := recover(); r == nil {
						t.Errorf("requireEnv() should have panicked")
					}
				}()
			}

			result := source{file: tt.file}.requireEnv(tt.key)
			if !tt.wantPanic && result != tt.want {
				t.Errorf("requireEnv() = %v, want %v", result, tt.want)
			}
		})
	}
}

func TestMustDuration(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		def      time.Duration
		expected time.Duration
	}{
		{
			name:     "valid duration",
			key:      "MARKSYNC_TEST_DURATION",
			value:    "5s",
			def:      1 * time.Second,
			expected: 5 * time.Second,
		},
		{
			name:     "invalid duration uses default",
			key:      "MARKSYNC_TEST_DURATION_INVALID",
			value:    "invalid",
			def:      10 * time.Second,
			expected: 10 * time.Second,
		},
		{
			name:     "missing variable uses default",
			key:      "MARKSYNC_TEST_DURATION_MISSING",
			def:      15 * time.Second,
			expected: 15 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv(tt.key, tt.value)
			}

			result := source{}.mustDuration(tt.key, tt.def)
			if result != tt.expected {
				t.Errorf("mustDuration() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMustBool(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		value    string
		def      bool
		expected bool
	}{
		{"true value", "MARKSYNC_TEST_BOOL", "true", false, true},
		{"false value", "MARKSYNC_TEST_BOOL_FALSE", "false", true, false},
		{"invalid value uses default", "MARKSYNC_TEST_BOOL_INVALID", "invalid", true, true},
		{"missing variable uses default", "MARKSYNC_TEST_BOOL_MISSING", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv(tt.key, tt.value)
			}

			result := source{}.mustBool(tt.key, tt.def)
			if result != tt.expected {
				t.Errorf("mustBool() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestParseProviders(t *testing.T) {
	got := parseProviders("GitHub=https://gh.example/authorize, google = https://accounts.example/o/oauth2")
	want := map[string]string{
		"github": "https://gh.example/authorize",
		"google": "https://accounts.example/o/oauth2",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseProviders() = %v, want %v", got, want)
	}

	if got := parseProviders(""); len(got) != 0 {
		t.Errorf("parseProviders(\"\") = %v, want empty", got)
	}

	defer func() {
		if r := recover(); r == nil {
			t.Errorf("parseProviders() should have panicked on missing url")
		}
	}()
	parseProviders("github")
}

func TestSplitAndTrim(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{` a , "b",, 'c' `, []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		if got := splitAndTrim(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitAndTrim(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("MARKSYNC_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("MARKSYNC_REDIS_ADDR", "localhost:6379")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("MARKSYNC_CONFIG_FILE", "")

	cfg := Load()
	if cfg.BackendDriver != DriverRedis {
		t.Errorf("BackendDriver = %v, want %v", cfg.BackendDriver, DriverRedis)
	}
	if cfg.BroadcastChannel != "smart-bookmarks" {
		t.Errorf("BroadcastChannel = %v, want smart-bookmarks", cfg.BroadcastChannel)
	}
	if cfg.SignedOutURL != "/" {
		t.Errorf("SignedOutURL = %v, want /", cfg.SignedOutURL)
	}
	if cfg.MutationTimeout != 10*time.Second {
		t.Errorf("MutationTimeout = %v, want 10s", cfg.MutationTimeout)
	}
}

func TestLoadFromFile(t *testing.T) {
	setRequired(t)

	path := filepath.Join(t.TempDir(), "marksync.yaml")
	content := `
listen_port: ":9090"
broadcast: local
rate_limit_burst: 5
allowed_origins:
  - https://app.example
  - https://beta.example
oauth_providers:
  github: https://gh.example/authorize
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv("MARKSYNC_CONFIG_FILE", path)
	t.Setenv("MARKSYNC_LISTEN_PORT", ":7070")

	cfg := Load()
	if cfg.ListenPort != ":7070" {
		t.Errorf("ListenPort = %v, want env value :7070", cfg.ListenPort)
	}
	if cfg.BroadcastDriver != DriverLocal {
		t.Errorf("BroadcastDriver = %v, want %v", cfg.BroadcastDriver, DriverLocal)
	}
	if cfg.RateLimitBurst != 5 {
		t.Errorf("RateLimitBurst = %v, want 5", cfg.RateLimitBurst)
	}
	if want := []string{"https://app.example", "https://beta.example"}; !reflect.DeepEqual(cfg.AllowedOrigins, want) {
		t.Errorf("AllowedOrigins = %v, want %v", cfg.AllowedOrigins, want)
	}
	if got := cfg.OAuthProviders["github"]; got != "https://gh.example/authorize" {
		t.Errorf("OAuthProviders[github] = %v", got)
	}
	if want := []string{"github"}; !reflect.DeepEqual(cfg.ProviderNames(), want) {
		t.Errorf("ProviderNames() = %v, want %v", cfg.ProviderNames(), want)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without dsn", map[string]string{"MARKSYNC_BACKEND": "postgres"}},
		{"unknown backend", map[string]string{"MARKSYNC_BACKEND": "sqlite"}},
		{"unknown broadcast", map[string]string{"MARKSYNC_BROADCAST": "kafka"}},
		{"short secret", map[string]string{"MARKSYNC_JWT_SECRET": "short"}},
		{"password required", map[string]string{"MARKSYNC_REDIS_PASSWORD_REQUIRED": "true"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			defer func() {
				if r := recover(); r == nil {
					t.Errorf("Load() should have panicked")
				}
			}()
			Load()
		})
	}
}

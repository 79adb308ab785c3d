package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range []string{
		"CALLBUNKER_DATA_DIR", "CALLBUNKER_HTTP_PORT", "CALLBUNKER_LOG_LEVEL",
		"CALLBUNKER_TLS_CERT", "CALLBUNKER_TLS_KEY", "CALLBUNKER_DATABASE_URL",
		"CALLBUNKER_PUBLIC_URL", "CALLBUNKER_TWILIO_AUTH_TOKEN", "CALLBUNKER_GATHER_TIMEOUT",
		"CALLBUNKER_WEBHOOK_TIMEOUT", "CALLBUNKER_SYSTEM_NUMBERS", "CALLBUNKER_PASSTHROUGH_CALLERS",
	} {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
}

func validConfig() *Config {
	return &Config{
		HTTPPort:         8080,
		LogLevel:         "info",
		LogFormat:        "text",
		GatherTimeout:    defaultGatherTimeout,
		RingTimeout:      defaultRingTimeout,
		RecordMaxLength:  defaultRecordMaxLength,
		WebhookTimeout:   defaultWebhookTimeout,
		FailureRetention: defaultFailureRetention,
		CacheTTL:         defaultCacheTTL,
		SMTPTLS:          defaultSMTPTLS,
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	os.Args = []string{"callbunker"}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DataDir != defaultDataDir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, defaultDataDir)
	}
	if cfg.HTTPPort != defaultHTTPPort {
		t.Errorf("HTTPPort = %d, want %d", cfg.HTTPPort, defaultHTTPPort)
	}
	if cfg.GatherTimeout != defaultGatherTimeout {
		t.Errorf("GatherTimeout = %d, want %d", cfg.GatherTimeout, defaultGatherTimeout)
	}
	if cfg.RingTimeout != defaultRingTimeout {
		t.Errorf("RingTimeout = %d, want %d", cfg.RingTimeout, defaultRingTimeout)
	}
	if cfg.SayVoice != defaultSayVoice {
		t.Errorf("SayVoice = %q, want %q", cfg.SayVoice, defaultSayVoice)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, defaultLogLevel)
	}
}

func TestEnvVarOverride(t *testing.T) {
	clearEnv(t)
	os.Args = []string{"callbunker"}
	t.Setenv("CALLBUNKER_HTTP_PORT", "9090")
	t.Setenv("CALLBUNKER_DATA_DIR", "/tmp/callbunker-test")
	t.Setenv("CALLBUNKER_LOG_LEVEL", "debug")
	t.Setenv("CALLBUNKER_WEBHOOK_TIMEOUT", "3s")
	t.Setenv("CALLBUNKER_SYSTEM_NUMBERS", "+15550001111, 15550002222,")
	t.Setenv("CALLBUNKER_PASSTHROUGH_CALLERS", "+12024558888")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d, want 9090", cfg.HTTPPort)
	}
	if cfg.DataDir != "/tmp/callbunker-test" {
		t.Errorf("DataDir = %q, want /tmp/callbunker-test", cfg.DataDir)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.WebhookTimeout != 3*time.Second {
		t.Errorf("WebhookTimeout = %s, want 3s", cfg.WebhookTimeout)
	}
	nums := cfg.SystemNumberList()
	if len(nums) != 2 || nums[0] != "+15550001111" || nums[1] != "15550002222" {
		t.Errorf("SystemNumberList() = %v", nums)
	}
	if pt := cfg.PassThroughList(); len(pt) != 1 || pt[0] != "+12024558888" {
		t.Errorf("PassThroughList() = %v", pt)
	}
}

func TestEnvVarInvalidValue(t *testing.T) {
	clearEnv(t)
	os.Args = []string{"callbunker"}
	t.Setenv("CALLBUNKER_GATHER_TIMEOUT", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric env value")
	}
}

func TestCLIFlagsPrecedence(t *testing.T) {
	clearEnv(t)
	os.Args = []string{"callbunker", "--http-port", "3000", "--log-level", "warn"}
	t.Setenv("CALLBUNKER_HTTP_PORT", "9090")
	t.Setenv("CALLBUNKER_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 3000 {
		t.Errorf("HTTPPort = %d, want 3000 (CLI should override env)", cfg.HTTPPort)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn (CLI should override env)", cfg.LogLevel)
	}
}

func TestEnvName(t *testing.T) {
	if got := EnvName("fcm-credentials-file"); got != "CALLBUNKER_FCM_CREDENTIALS_FILE" {
		t.Errorf("EnvName = %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"invalid port", func(c *Config) { c.HTTPPort = 0 }, true},
		{"invalid log level", func(c *Config) { c.LogLevel = "verbose" }, true},
		{"tls mismatch", func(c *Config) { c.TLSCert = "/path/cert.pem" }, true},
		{"mysql url", func(c *Config) { c.DatabaseURL = "mysql://db" }, true},
		{"postgres url", func(c *Config) { c.DatabaseURL = "postgres://u:p@localhost/cb" }, false},
		{"relative public url", func(c *Config) { c.PublicURL = "screen.example.com" }, true},
		{"token without public url", func(c *Config) { c.TwilioAuthToken = "secret" }, true},
		{"token with public url", func(c *Config) {
			c.TwilioAuthToken = "secret"
			c.PublicURL = "https://screen.example.com/"
		}, false},
		{"gather timeout too long", func(c *Config) { c.GatherTimeout = 120 }, true},
		{"short retention", func(c *Config) { c.FailureRetention = time.Minute }, true},
		{"admin half configured", func(c *Config) { c.AdminUsername = "root" }, true},
		{"bad smtp tls", func(c *Config) { c.SMTPTLS = "ssl" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublicURLTrailingSlashTrimmed(t *testing.T) {
	cfg := validConfig()
	cfg.PublicURL = "https://screen.example.com/"
	if err := cfg.validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PublicURL != "https://screen.example.com" {
		t.Errorf("PublicURL = %q", cfg.PublicURL)
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		cfg := &Config{LogLevel: tt.level}
		if got := cfg.SlogLevel(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

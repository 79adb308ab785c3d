package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"
)

// Config holds all runtime configuration for the CallBunker server.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DataDir     string
	DatabaseURL string // postgres:// DSN; empty selects the embedded SQLite store
	HTTPPort    int
	TLSCert     string
	TLSKey      string
	LogLevel    string
	LogFormat   string // "text" or "json"

	// Voice provider.
	PublicURL       string // externally reachable base URL, used for webhook signature checks
	TwilioAuthToken string // enables X-Twilio-Signature validation when set
	SystemNumbers   string // comma-separated numbers owned by the platform itself
	PassThrough     string // comma-separated callers bridged without screening
	SayVoice        string
	GatherTimeout   int // seconds
	RingTimeout     int // seconds
	RecordMaxLength int // seconds
	WebhookTimeout  time.Duration

	FailureRetention time.Duration

	// Admin API.
	JWTSecret     string
	AdminUsername string
	AdminPassword string

	RedisURL string
	CacheTTL time.Duration

	// Notifications.
	SMTPHost           string
	SMTPPort           int
	SMTPFrom           string
	SMTPUsername       string
	SMTPPassword       string
	SMTPTLS            string // "starttls", "tls" or "none"
	OperatorEmail      string
	FCMCredentialsFile string
}

// defaults
const (
	defaultDataDir          = "./data"
	defaultHTTPPort         = 8080
	defaultLogLevel         = "info"
	defaultLogFormat        = "text"
	defaultSayVoice         = "Polly.Joanna"
	defaultGatherTimeout    = 6
	defaultRingTimeout      = 30
	defaultRecordMaxLength  = 120
	defaultWebhookTimeout   = 5 * time.Second
	defaultFailureRetention = 7 * 24 * time.Hour
	defaultCacheTTL         = time.Minute
	defaultSMTPPort         = 587
	defaultSMTPTLS          = "starttls"
)

// envPrefix is the prefix for all CallBunker environment variables.
const envPrefix = "CALLBUNKER_"

// Load parses configuration from CLI flags and environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("callbunker", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for the embedded database")
	fs.StringVar(&cfg.DatabaseURL, "database-url", "", "PostgreSQL connection string (uses SQLite in data-dir if empty)")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP server listen port")
	fs.StringVar(&cfg.TLSCert, "tls-cert", "", "path to TLS certificate file")
	fs.StringVar(&cfg.TLSKey, "tls-key", "", "path to TLS private key file")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")

	fs.StringVar(&cfg.PublicURL, "public-url", "", "public base URL the voice provider calls (e.g. https://screen.example.com)")
	fs.StringVar(&cfg.TwilioAuthToken, "twilio-auth-token", "", "provider auth token for webhook signature validation")
	fs.StringVar(&cfg.SystemNumbers, "system-numbers", "", "comma-separated platform-owned numbers; calls from these are rejected")
	fs.StringVar(&cfg.PassThrough, "passthrough-callers", "", "comma-separated callers (e.g. carrier verification lines) bridged without a challenge")
	fs.StringVar(&cfg.SayVoice, "say-voice", defaultSayVoice, "voice used for spoken prompts")
	fs.IntVar(&cfg.GatherTimeout, "gather-timeout", defaultGatherTimeout, "seconds to wait for PIN or passphrase input")
	fs.IntVar(&cfg.RingTimeout, "ring-timeout", defaultRingTimeout, "seconds to ring the forwarding target")
	fs.IntVar(&cfg.RecordMaxLength, "record-max-length", defaultRecordMaxLength, "maximum voicemail length in seconds")
	fs.DurationVar(&cfg.WebhookTimeout, "webhook-timeout", defaultWebhookTimeout, "deadline for handling one provider webhook")
	fs.DurationVar(&cfg.FailureRetention, "failure-retention", defaultFailureRetention, "how long failed attempts are retained")

	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "hex-encoded 32-byte secret for API token signing (auto-generated if empty)")
	fs.StringVar(&cfg.AdminUsername, "admin-username", "", "bootstrap admin username, created on first start")
	fs.StringVar(&cfg.AdminPassword, "admin-password", "", "bootstrap admin password")

	fs.StringVar(&cfg.RedisURL, "redis-url", "", "Redis address or redis:// URL for the tenant lookup cache")
	fs.DurationVar(&cfg.CacheTTL, "cache-ttl", defaultCacheTTL, "tenant lookup cache TTL")

	fs.StringVar(&cfg.SMTPHost, "smtp-host", "", "SMTP server host for email notifications")
	fs.IntVar(&cfg.SMTPPort, "smtp-port", defaultSMTPPort, "SMTP server port")
	fs.StringVar(&cfg.SMTPFrom, "smtp-from", "", "sender address for email notifications")
	fs.StringVar(&cfg.SMTPUsername, "smtp-username", "", "SMTP username")
	fs.StringVar(&cfg.SMTPPassword, "smtp-password", "", "SMTP password")
	fs.StringVar(&cfg.SMTPTLS, "smtp-tls", defaultSMTPTLS, "SMTP TLS mode (starttls, tls, none)")
	fs.StringVar(&cfg.OperatorEmail, "operator-email", "", "address that receives operator notices (tenant deletions)")
	fs.StringVar(&cfg.FCMCredentialsFile, "fcm-credentials-file", "", "Firebase service account JSON for push notifications")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	if err := applyEnvOverrides(fs); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides sets every flag not given on the command line from its
// CALLBUNKER_* environment variable, e.g. --smtp-host from CALLBUNKER_SMTP_HOST.
func applyEnvOverrides(fs *flag.FlagSet) error {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	var err error
	fs.VisitAll(func(f *flag.Flag) {
		if err != nil || set[f.Name] {
			return
		}
		val, ok := os.LookupEnv(EnvName(f.Name))
		if !ok || val == "" {
			return
		}
		if serr := fs.Set(f.Name, val); serr != nil {
			err = fmt.Errorf("env %s: %w", EnvName(f.Name), serr)
		}
	})
	return err
}

// EnvName returns the environment variable consulted for a flag.
func EnvName(flagName string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("tls-cert and tls-key must both be provided or both be omitted")
	}

	if c.DatabaseURL != "" && !strings.HasPrefix(c.DatabaseURL, "postgres://") && !strings.HasPrefix(c.DatabaseURL, "postgresql://") {
		return fmt.Errorf("database-url must be a postgres:// URL")
	}

	if c.PublicURL != "" {
		u, err := url.Parse(c.PublicURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("public-url must be an absolute URL, got %q", c.PublicURL)
		}
		c.PublicURL = strings.TrimRight(c.PublicURL, "/")
	}
	if c.TwilioAuthToken != "" && c.PublicURL == "" {
		return fmt.Errorf("twilio-auth-token requires public-url for signature validation")
	}

	if c.GatherTimeout < 1 || c.GatherTimeout > 60 {
		return fmt.Errorf("gather-timeout must be between 1 and 60, got %d", c.GatherTimeout)
	}
	if c.RingTimeout < 5 || c.RingTimeout > 600 {
		return fmt.Errorf("ring-timeout must be between 5 and 600, got %d", c.RingTimeout)
	}
	if c.RecordMaxLength < 10 || c.RecordMaxLength > 3600 {
		return fmt.Errorf("record-max-length must be between 10 and 3600, got %d", c.RecordMaxLength)
	}
	if c.WebhookTimeout <= 0 {
		return fmt.Errorf("webhook-timeout must be positive")
	}
	if c.FailureRetention < time.Hour {
		return fmt.Errorf("failure-retention must be at least 1h, got %s", c.FailureRetention)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache-ttl must be positive")
	}

	if (c.AdminUsername == "") != (c.AdminPassword == "") {
		return fmt.Errorf("admin-username and admin-password must both be provided or both be omitted")
	}

	validSMTPTLS := map[string]bool{"starttls": true, "tls": true, "none": true}
	if !validSMTPTLS[strings.ToLower(c.SMTPTLS)] {
		return fmt.Errorf("smtp-tls must be one of starttls, tls, none; got %q", c.SMTPTLS)
	}
	c.SMTPTLS = strings.ToLower(c.SMTPTLS)

	return nil
}

// TLSEnabled returns true if TLS certificates are configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != ""
}

// SystemNumberList returns the configured platform-owned numbers, trimmed
// and with empty entries removed.
func (c *Config) SystemNumberList() []string {
	return splitList(c.SystemNumbers)
}

// PassThroughList returns the callers that skip screening.
func (c *Config) PassThroughList() []string {
	return splitList(c.PassThrough)
}

func splitList(raw string) []string {
	var out []string
	for _, n := range strings.Split(raw, ",") {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// JWTSecretBytes returns the decoded 32-byte JWT signing secret.
// If no secret is configured, it generates a random 32-byte key and stores
// the hex-encoded value back in the config for the process lifetime.
func (c *Config) JWTSecretBytes() ([]byte, error) {
	if c.JWTSecret == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating jwt secret: %w", err)
		}
		c.JWTSecret = hex.EncodeToString(key)
		slog.Warn("no jwt-secret configured, generated ephemeral key (tokens will not survive restart)")
		return key, nil
	}
	key, err := hex.DecodeString(c.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("decoding jwt secret: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("jwt secret must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

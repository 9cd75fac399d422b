// Package config loads application configuration from environment variables
// and an optional .env file.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrAPIKeyRequired is returned by commands that need the read API.
var ErrAPIKeyRequired = errors.New("RTPROVISION_API_KEY is required")

// Config holds the application configuration.
type Config struct {
	APIKey         string
	APIBaseURL     string
	AppAPIURL      string
	AppOrigin      string
	TrackingPrefix string

	ListenAddr string
	DBPath     string
	SecretKey  []byte
	LogLevel   slog.Level

	DirectTimeout    time.Duration
	ReadTimeout      time.Duration
	BrowserHeadless  bool
	BrowserTimeout   time.Duration
	BrowserUserAgent string

	BatchSize       int
	RateLimitRPS    float64
	MaxResolvePages int
	CredentialTTL   time.Duration
	WarnThreshold   time.Duration
}

// HasAPIKey reports whether the key-authenticated read API can be used.
func (c *Config) HasAPIKey() bool {
	return c.APIKey != ""
}

var defaults = map[string]any{
	"RTPROVISION_API_BASE_URL":      "https://api.redtrack.io",
	"RTPROVISION_APP_API_URL":       "https://app.redtrack.io/api",
	"RTPROVISION_APP_ORIGIN":        "https://app.redtrack.io",
	"RTPROVISION_TRACKING_PREFIX":   "rt.",
	"RTPROVISION_LISTEN_ADDR":       "127.0.0.1:8080",
	"RTPROVISION_DB_PATH":           "rtprovision.db",
	"RTPROVISION_LOG_LEVEL":         "info",
	"RTPROVISION_DIRECT_TIMEOUT":    "30s",
	"RTPROVISION_READ_TIMEOUT":      "10s",
	"RTPROVISION_BROWSER_HEADLESS":  "true",
	"RTPROVISION_BROWSER_TIMEOUT":   "90s",
	"RTPROVISION_BATCH_SIZE":        "10",
	"RTPROVISION_RATE_LIMIT_RPS":    "5",
	"RTPROVISION_MAX_RESOLVE_PAGES": "500",
	"RTPROVISION_CREDENTIAL_TTL":    "24h",
	"RTPROVISION_WARN_THRESHOLD":    "2h",
}

// Load reads configuration from the environment and returns a validated Config.
// A .env file in the working directory is read first when present
// (RTPROVISION_ENV_FILE overrides the path); real environment variables win.
// RTPROVISION_API_KEY is optional: without it domain lookups and registration
// fail with UNAUTHORIZED from the platform. RTPROVISION_SECRET_KEY must be 64
// hex characters when set; without it credentials cannot be stored.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	envFile := ".env"
	if p, ok := os.LookupEnv("RTPROVISION_ENV_FILE"); ok && p != "" {
		envFile = p
	}
	if _, err := os.Stat(envFile); err == nil {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", envFile, err)
		}
	}

	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	r := reader{v: v}
	cfg := &Config{
		APIKey:           strings.TrimSpace(v.GetString("RTPROVISION_API_KEY")),
		APIBaseURL:       v.GetString("RTPROVISION_API_BASE_URL"),
		AppAPIURL:        v.GetString("RTPROVISION_APP_API_URL"),
		AppOrigin:        v.GetString("RTPROVISION_APP_ORIGIN"),
		TrackingPrefix:   v.GetString("RTPROVISION_TRACKING_PREFIX"),
		ListenAddr:       v.GetString("RTPROVISION_LISTEN_ADDR"),
		DBPath:           v.GetString("RTPROVISION_DB_PATH"),
		DirectTimeout:    r.duration("RTPROVISION_DIRECT_TIMEOUT"),
		ReadTimeout:      r.duration("RTPROVISION_READ_TIMEOUT"),
		BrowserHeadless:  r.boolean("RTPROVISION_BROWSER_HEADLESS"),
		BrowserTimeout:   r.duration("RTPROVISION_BROWSER_TIMEOUT"),
		BrowserUserAgent: v.GetString("RTPROVISION_BROWSER_USER_AGENT"),
		BatchSize:        r.positiveInt("RTPROVISION_BATCH_SIZE"),
		RateLimitRPS:     r.float("RTPROVISION_RATE_LIMIT_RPS"),
		MaxResolvePages:  r.positiveInt("RTPROVISION_MAX_RESOLVE_PAGES"),
		CredentialTTL:    r.duration("RTPROVISION_CREDENTIAL_TTL"),
		WarnThreshold:    r.duration("RTPROVISION_WARN_THRESHOLD"),
	}
	cfg.LogLevel = r.level("RTPROVISION_LOG_LEVEL")
	cfg.SecretKey = r.secretKey("RTPROVISION_SECRET_KEY")

	if r.err != nil {
		return nil, r.err
	}
	return cfg, nil
}

// reader parses typed values and keeps the first error.
type reader struct {
	v   *viper.Viper
	err error
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *reader) duration(key string) time.Duration {
	s := r.v.GetString(key)
	d, err := time.ParseDuration(s)
	if err != nil {
		r.fail(fmt.Errorf("%s has invalid duration %q: %w", key, s, err))
		return 0
	}
	if d <= 0 {
		r.fail(fmt.Errorf("%s must be positive, got %q", key, s))
	}
	return d
}

func (r *reader) positiveInt(key string) int {
	s := r.v.GetString(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		r.fail(fmt.Errorf("%s has invalid integer %q: %w", key, s, err))
		return 0
	}
	if n <= 0 {
		r.fail(fmt.Errorf("%s must be positive, got %d", key, n))
	}
	return n
}

// float accepts zero or a negative value to disable rate limiting.
func (r *reader) float(key string) float64 {
	s := r.v.GetString(key)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		r.fail(fmt.Errorf("%s has invalid number %q: %w", key, s, err))
	}
	return f
}

func (r *reader) boolean(key string) bool {
	s := r.v.GetString(key)
	b, err := strconv.ParseBool(s)
	if err != nil {
		r.fail(fmt.Errorf("%s has invalid boolean %q: %w", key, s, err))
	}
	return b
}

func (r *reader) level(key string) slog.Level {
	var lvl slog.Level
	s := r.v.GetString(key)
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		r.fail(fmt.Errorf("%s has invalid log level %q: %w", key, s, err))
	}
	return lvl
}

func (r *reader) secretKey(key string) []byte {
	s := strings.TrimSpace(r.v.GetString(key))
	if s == "" {
		return nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		r.fail(fmt.Errorf("%s must be hex-encoded: %w", key, err))
		return nil
	}
	if len(b) != 32 {
		r.fail(fmt.Errorf("%s must decode to 32 bytes, got %d", key, len(b)))
		return nil
	}
	return b
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/htmlindex"
)

const (
	DefaultEndpoint       = "http://r.admob.com/ad_source.php"
	DefaultPixelURL       = "http://p.admob.com/e0"
	DefaultPubcodeVersion = "20090601-GO"
	DefaultTimeout        = 1 * time.Second
)

// Config holds process-wide settings derived from environment variables.
// It is read-only once Load returns and safe to share between requests.
type Config struct {
	// AdMob account defaults, overridable per call
	PublisherID string
	AnalyticsID string
	Encoding    string
	TestMode    bool

	// Identity cookie placement
	CookiePath   string
	CookieDomain string

	// Remote endpoint
	Endpoint       string
	PubcodeVersion string
	Timeout        time.Duration

	// Analytics pixel appended to the first response body of a request
	PixelEnabled bool
	PixelURL     string

	// Request fact extraction
	SessionCookieName string
	TrustForwardedFor bool

	// Demo host
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ServiceName  string

	// Tracing configuration
	TracingEnabled    bool
	TempoEndpoint     string
	TracingSampleRate float64
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.PublisherID = getenv("ADMOB_PUBLISHER_ID", "")
	cfg.AnalyticsID = getenv("ADMOB_ANALYTICS_ID", "")
	cfg.Encoding = getenv("ADMOB_ENCODING", "utf-8")
	// test calls are non-billable; production must opt in explicitly
	cfg.TestMode = envBool("ADMOB_TEST", false)

	cfg.CookiePath = getenv("ADMOB_COOKIE_PATH", "/")
	cfg.CookieDomain = getenv("ADMOB_COOKIE_DOMAIN", "")

	cfg.Endpoint = getenv("ADMOB_ENDPOINT", DefaultEndpoint)
	cfg.PubcodeVersion = getenv("ADMOB_PUBCODE_VERSION", DefaultPubcodeVersion)
	cfg.Timeout = envDuration("ADMOB_TIMEOUT", DefaultTimeout)

	cfg.PixelEnabled = envBool("ADMOB_PIXEL_ENABLED", false)
	cfg.PixelURL = getenv("ADMOB_PIXEL_URL", DefaultPixelURL)

	cfg.SessionCookieName = getenv("SESSION_COOKIE_NAME", "sessionid")
	cfg.TrustForwardedFor = envBool("TRUST_FORWARDED_FOR", false)

	cfg.Port = getenv("PORT", "8787")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 5*time.Second)
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 10*time.Second)
	cfg.ServiceName = getenv("SERVICE_NAME", "admob-go")

	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TempoEndpoint = getenv("TEMPO_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0)

	return cfg
}

// Default returns the configuration Load would produce with an empty
// environment. Tests start from it and override fields.
func Default() Config {
	return Config{
		Encoding:          "utf-8",
		CookiePath:        "/",
		Endpoint:          DefaultEndpoint,
		PubcodeVersion:    DefaultPubcodeVersion,
		Timeout:           DefaultTimeout,
		PixelURL:          DefaultPixelURL,
		SessionCookieName: "sessionid",
		Port:              "8787",
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		ServiceName:       "admob-go",
		TempoEndpoint:     "tempo:4317",
		TracingSampleRate: 1.0,
	}
}

// Validate reports settings that would make every outbound call fail.
// An empty publisher or analytics id is not an error here because either
// can be supplied per call.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Endpoint) == "" {
		errs = append(errs, errors.New("ADMOB_ENDPOINT must not be empty"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("ADMOB_TIMEOUT must be positive, got %s", c.Timeout))
	}
	if c.PixelEnabled && c.PixelURL == "" {
		errs = append(errs, errors.New("ADMOB_PIXEL_URL required when ADMOB_PIXEL_ENABLED is set"))
	}
	if c.Encoding != "" {
		if _, err := htmlindex.Get(c.Encoding); err != nil {
			errs = append(errs, fmt.Errorf("ADMOB_ENCODING %q is not a known charset", c.Encoding))
		}
	}
	if c.CookiePath == "" {
		errs = append(errs, errors.New("ADMOB_COOKIE_PATH must not be empty"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}

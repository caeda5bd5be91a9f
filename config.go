package notehive

import (
	"os"
	"time"

	"github.com/notehive/notehive/internal/store"
)

// Config configures the notehive client.
type Config struct {
	// LocalPath is the path to the local SQLite database.
	// If empty, derived from UserID under the default data directory.
	LocalPath string

	// NimbusURL is the URL of the Nimbus cloud notes service.
	// If empty, the client operates in offline-only mode: every mutation is
	// applied locally and queued, and nothing ever drains.
	NimbusURL string

	// APIKey authenticates with Nimbus.
	APIKey string

	// UserID identifies the account owning this local store.
	UserID string

	// ProbeInterval is how often the connectivity monitor probes Nimbus.
	// Defaults to 30 seconds.
	ProbeInterval time.Duration

	// DisableAutoSync prevents the background connectivity monitor from
	// starting. By default the monitor runs and drains the offline queue on
	// every offline-to-online transition; with it disabled, draining is left
	// to explicit DrainNow and SyncOfflineChanges calls.
	DisableAutoSync bool

	// Replay selects the drain failure policy. Defaults to ReplayDiscard.
	Replay ReplayPolicy

	// MaxReplayAttempts bounds per-operation retries under ReplayRetry.
	// Defaults to 3. Ignored under ReplayDiscard.
	MaxReplayAttempts int

	// Debug enables verbose logging of remote API traffic and drain
	// decisions.
	Debug bool

	// DebugLogPath is the path to write debug logs.
	// Defaults to stderr if empty.
	DebugLogPath string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ProbeInterval:     30 * time.Second,
		Replay:            ReplayDiscard,
		MaxReplayAttempts: 3,
	}
}

// ConfigFromEnv reads configuration from environment variables.
//
//	NOTEHIVE_DB_PATH   → LocalPath
//	NIMBUS_URL         → NimbusURL
//	NIMBUS_API_KEY     → APIKey
//	NOTEHIVE_USER_ID   → UserID
//	NOTEHIVE_DEBUG     → Debug (any non-empty value enables)
//	NOTEHIVE_DEBUG_LOG → DebugLogPath
func ConfigFromEnv() Config {
	return Config{
		LocalPath:    os.Getenv("NOTEHIVE_DB_PATH"),
		NimbusURL:    os.Getenv("NIMBUS_URL"),
		APIKey:       os.Getenv("NIMBUS_API_KEY"),
		UserID:       os.Getenv("NOTEHIVE_USER_ID"),
		Debug:        os.Getenv("NOTEHIVE_DEBUG") != "",
		DebugLogPath: os.Getenv("NOTEHIVE_DEBUG_LOG"),
	}
}

// Validate checks the configuration for errors.
// Returns *ValidationError for invalid fields.
func (c *Config) Validate() error {
	if c.UserID == "" {
		return &ValidationError{Field: "UserID", Message: "required: account owning the local store"}
	}
	if c.LocalPath == "" {
		return &ValidationError{Field: "LocalPath", Message: "required: path to SQLite database"}
	}
	if c.NimbusURL != "" && c.APIKey == "" {
		return &ValidationError{Field: "APIKey", Message: "required when NimbusURL is set"}
	}
	if c.ProbeInterval < 0 {
		return &ValidationError{Field: "ProbeInterval", Message: "must be non-negative"}
	}
	switch c.Replay {
	case ReplayDiscard, ReplayRetry:
	default:
		return &ValidationError{Field: "Replay", Message: "must be discard or retry"}
	}
	if c.Replay == ReplayRetry && c.MaxReplayAttempts < 1 {
		return &ValidationError{Field: "MaxReplayAttempts", Message: "must be at least 1 under retry policy"}
	}
	return nil
}

// IsOffline reports whether the client operates in offline-only mode.
// Offline-only mode is determined by NimbusURL being empty.
func (c *Config) IsOffline() bool {
	return c.NimbusURL == ""
}

// WithDefaults fills in default values for unset fields. LocalPath is derived
// from UserID when not explicitly set.
func (c Config) WithDefaults() Config {
	if c.ProbeInterval == 0 {
		c.ProbeInterval = 30 * time.Second
	}
	if c.Replay == "" {
		c.Replay = ReplayDiscard
	}
	if c.MaxReplayAttempts == 0 {
		c.MaxReplayAttempts = 3
	}
	if c.LocalPath == "" && c.UserID != "" {
		c.LocalPath = store.UserDBPath(c.UserID)
	}
	return c
}

// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration.
//
// WAFFLE's CoreConfig handles framework-level settings like:
//   - HTTP/HTTPS ports and TLS configuration
//   - Logging level and format
//   - CORS settings
//   - Request body size limits
//
// AppConfig carries everything the buddy engine and its backends need. The
// buddyctl CLI fills the same struct from viper so both entry points build the
// engine identically.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Group locks. Blank RedisURL selects in-process locks (single instance only).
	RedisURL string
	LockTTL  time.Duration

	// Event delivery. Blank KafkaBrokers logs events instead of publishing them.
	KafkaBrokers           []string
	KafkaChannelTopic      string
	KafkaNotificationTopic string

	// Cycle schedule and partitioning
	CycleAnchor     time.Time // a Monday; cycles are counted from here
	CycleLengthDays int
	HistoryWeeks    int
	MaxAttempts     int
	RunConcurrency  int

	// Background jobs
	SchedulerEnabled  bool
	SchedulerInterval time.Duration
	IntegrityInterval time.Duration

	// AdminAPIKey guards /api/buddies. Blank leaves the API open.
	AdminAPIKey string
	// APIRateLimit is the per-client request budget per minute on
	// /api/buddies. Zero disables the limit.
	APIRateLimit int
}

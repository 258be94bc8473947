// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/buddyhub/internal/app/buddy"
	"github.com/dalemusser/buddyhub/internal/app/system/gateway"
	"github.com/dalemusser/buddyhub/internal/app/system/grouplock"
	"github.com/dalemusser/buddyhub/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// AnchorLayout is the date format of the cycle_anchor setting.
const AnchorLayout = "2006-01-02"

// appConfigKeys defines the configuration keys for BuddyHub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, redis_url, etc.
//   - Environment variables: BUDDYHUB_MONGO_URI, BUDDYHUB_REDIS_URL, etc.
//   - Command-line flags: --mongo_uri, --redis_url, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "buddyhub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	// Group locks
	{Name: "redis_url", Default: "", Desc: "Redis URL for cross-instance group locks (blank uses in-process locks)"},
	{Name: "lock_ttl", Default: "2m", Desc: "Expiry of a held group lock (e.g., 2m)"},

	// Event delivery
	{Name: "kafka_brokers", Default: "", Desc: "Comma-separated Kafka brokers (blank logs events instead)"},
	{Name: "kafka_channel_topic", Default: gateway.DefaultChannelTopic, Desc: "Topic for buddy channel events"},
	{Name: "kafka_notification_topic", Default: gateway.DefaultNotificationTopic, Desc: "Topic for member notifications"},

	// Cycle schedule and partitioning
	{Name: "cycle_anchor", Default: buddy.DefaultAnchor.Format(AnchorLayout), Desc: "Monday that cycle boundaries are counted from (YYYY-MM-DD)"},
	{Name: "cycle_length_days", Default: buddy.DefaultCycleDays, Desc: "Length of a buddy cycle in days"},
	{Name: "history_weeks", Default: buddy.DefaultHistoryWeeks, Desc: "Weeks of past pairings to avoid repeating"},
	{Name: "max_attempts", Default: buddy.DefaultMaxAttempts, Desc: "Shuffles tried per group to avoid repeat pairings"},
	{Name: "run_concurrency", Default: 4, Desc: "Groups processed in parallel during a cycle run"},

	// Background jobs
	{Name: "scheduler_enabled", Default: true, Desc: "Run the cycle and integrity jobs in this process"},
	{Name: "scheduler_interval", Default: "1h", Desc: "How often the cycle job checks for a new cycle"},
	{Name: "integrity_interval", Default: "24h", Desc: "How often the integrity check runs"},

	// Admin API
	{Name: "admin_api_key", Default: "", Desc: "X-API-Key required by /api/buddies (blank disables the check)"},
	{Name: "api_rate_limit", Default: 60, Desc: "Requests per minute per client on /api/buddies (0 disables)"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, BUDDYHUB_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
//
// BUDDYHUB_TIMEOUT_* overrides are applied here, before any job captures a
// timeout. A malformed cycle_anchor is kept as the zero time here and rejected by
// ValidateConfig.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "BUDDYHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	anchor, err := ParseAnchor(appValues.String("cycle_anchor"))
	if err != nil {
		logger.Warn("unparseable cycle_anchor", zap.Error(err))
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		RedisURL: appValues.String("redis_url"),
		LockTTL:  appValues.Duration("lock_ttl", grouplock.DefaultTTL),

		KafkaBrokers:           SplitList(appValues.String("kafka_brokers")),
		KafkaChannelTopic:      appValues.String("kafka_channel_topic"),
		KafkaNotificationTopic: appValues.String("kafka_notification_topic"),

		CycleAnchor:     anchor,
		CycleLengthDays: appValues.Int("cycle_length_days"),
		HistoryWeeks:    appValues.Int("history_weeks"),
		MaxAttempts:     appValues.Int("max_attempts"),
		RunConcurrency:  appValues.Int("run_concurrency"),

		SchedulerEnabled:  appValues.Bool("scheduler_enabled"),
		SchedulerInterval: appValues.Duration("scheduler_interval", time.Hour),
		IntegrityInterval: appValues.Duration("integrity_interval", 24*time.Hour),

		AdminAPIKey:  appValues.String("admin_api_key"),
		APIRateLimit: appValues.Int("api_rate_limit"),
	}

	if n := timeouts.ConfigureFromEnv(); n > 0 {
		logger.Info("timeouts configured from environment",
			zap.Int("overrides", n),
			zap.Any("timeouts", timeouts.Current()))
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := CheckAppConfig(appCfg); err != nil {
		logger.Error("invalid buddyhub configuration", zap.Error(err))
		return err
	}
	if appCfg.AdminAPIKey == "" {
		logger.Warn("admin_api_key is blank; /api/buddies is unauthenticated")
	}
	return nil
}

// CheckAppConfig validates the settings shared by the service and the CLI.
func CheckAppConfig(appCfg AppConfig) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if strings.TrimSpace(appCfg.MongoDatabase) == "" {
		return errors.New("mongo_database is required")
	}
	if appCfg.CycleAnchor.IsZero() {
		return errors.New("cycle_anchor must be a date in YYYY-MM-DD form")
	}
	if appCfg.CycleAnchor.Weekday() != time.Monday {
		return fmt.Errorf("cycle_anchor %s is a %s, want a Monday",
			appCfg.CycleAnchor.Format(AnchorLayout), appCfg.CycleAnchor.Weekday())
	}

	for _, knob := range []struct {
		name  string
		value int
	}{
		{"cycle_length_days", appCfg.CycleLengthDays},
		{"history_weeks", appCfg.HistoryWeeks},
		{"max_attempts", appCfg.MaxAttempts},
		{"run_concurrency", appCfg.RunConcurrency},
	} {
		if knob.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", knob.name, knob.value)
		}
	}
	if appCfg.APIRateLimit < 0 {
		return fmt.Errorf("api_rate_limit must not be negative, got %d", appCfg.APIRateLimit)
	}
	if appCfg.MongoMinPoolSize > appCfg.MongoMaxPoolSize {
		return fmt.Errorf("mongo_min_pool_size (%d) exceeds mongo_max_pool_size (%d)",
			appCfg.MongoMinPoolSize, appCfg.MongoMaxPoolSize)
	}

	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"lock_ttl", appCfg.LockTTL},
		{"scheduler_interval", appCfg.SchedulerInterval},
		{"integrity_interval", appCfg.IntegrityInterval},
	} {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.value)
		}
	}
	return nil
}

// ParseAnchor parses a YYYY-MM-DD cycle anchor as UTC midnight.
func ParseAnchor(s string) (time.Time, error) {
	t, err := time.ParseInLocation(AnchorLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cycle anchor %q: %w", s, err)
	}
	return t, nil
}

// SplitList splits a comma-separated setting, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dalemusser/buddyhub/internal/app/bootstrap"
	"github.com/dalemusser/buddyhub/internal/app/buddy"
	"github.com/dalemusser/buddyhub/internal/app/system/grouplock"
	"github.com/dalemusser/buddyhub/internal/app/system/timeouts"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// engineAPI is what the commands call on the buddy engine.
type engineAPI interface {
	RunCycle(ctx context.Context, groupID string) (buddy.RunReport, error)
	AssignMidCycle(ctx context.Context, memberID, groupID string) (buddy.RepairOutcome, error)
	HandleLeave(ctx context.Context, memberID, groupID string) (buddy.RepairOutcome, error)
	Validate(ctx context.Context, groupID string) (buddy.ValidationReport, error)
}

// openFunc connects to the backends and returns the engine plus a func that
// releases them.
type openFunc func(ctx context.Context, cfg bootstrap.AppConfig, logger *zap.Logger) (engineAPI, func(), error)

// cli holds the state shared by every command.
type cli struct {
	v       *viper.Viper
	out     io.Writer
	logger  *zap.Logger
	verbose bool
	open    openFunc
}

func newCLI(out io.Writer) *cli {
	return &cli{
		v:    viper.New(),
		out:  out,
		open: openEngine,
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "buddyctl",
		Short: "Operate the accountability-buddy engine",
		Long: `buddyctl runs buddy cycles, applies mid-cycle join and leave repairs,
and checks buddy assignments for consistency.

Settings come from flags, BUDDYHUB_* environment variables, or a config file,
in that order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")
	pf.String("config", "", "config file (yaml, json, or toml)")
	pf.String("mongo-uri", "mongodb://localhost:27017", "MongoDB connection URI")
	pf.String("mongo-database", "buddyhub", "MongoDB database name")
	pf.String("redis-url", "", "Redis URL for group locks shared with the service")
	pf.String("cycle-anchor", buddy.DefaultAnchor.Format(bootstrap.AnchorLayout), "Monday cycles are counted from (YYYY-MM-DD)")
	pf.Int("cycle-length-days", buddy.DefaultCycleDays, "cycle length in days")
	pf.Int("history-weeks", buddy.DefaultHistoryWeeks, "weeks of pairings to avoid repeating")
	pf.Int("max-attempts", buddy.DefaultMaxAttempts, "shuffles tried per group")
	pf.Int("run-concurrency", 4, "groups processed in parallel")
	pf.String("kafka-brokers", "", "comma-separated Kafka brokers (blank logs events)")

	for _, name := range []string{
		"mongo-uri", "mongo-database", "redis-url", "cycle-anchor", "cycle-length-days",
		"history-weeks", "max-attempts", "run-concurrency", "kafka-brokers",
	} {
		_ = c.v.BindPFlag(strings.ReplaceAll(name, "-", "_"), pf.Lookup(name))
	}
	_ = c.v.BindPFlag("config", pf.Lookup("config"))

	root.AddCommand(
		newRunCmd(c),
		newJoinCmd(c),
		newLeaveCmd(c),
		newValidateCmd(c),
	)
	return root
}

// init builds the logger and loads the config file. Flags and environment
// are read lazily by viper.
func (c *cli) init() error {
	c.v.SetEnvPrefix("BUDDYHUB")
	c.v.AutomaticEnv()
	c.v.SetDefault("lock_ttl", grouplock.DefaultTTL)
	c.v.SetDefault("mongo_max_pool_size", 10)
	c.v.SetDefault("mongo_min_pool_size", 0)
	c.v.SetDefault("kafka_channel_topic", "")
	c.v.SetDefault("kafka_notification_topic", "")

	if path := c.v.GetString("config"); path != "" {
		c.v.SetConfigFile(path)
		if err := c.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if c.logger == nil {
		cfg := zap.NewProductionConfig()
		cfg.OutputPaths = []string{"stderr"}
		if c.verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		} else {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		}
		logger, err := cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		c.logger = logger
	}
	timeouts.ConfigureFromEnv()
	return nil
}

// appConfig assembles and validates the engine settings.
func (c *cli) appConfig() (bootstrap.AppConfig, error) {
	anchor, err := bootstrap.ParseAnchor(c.v.GetString("cycle_anchor"))
	if err != nil {
		return bootstrap.AppConfig{}, err
	}
	cfg := bootstrap.AppConfig{
		MongoURI:               c.v.GetString("mongo_uri"),
		MongoDatabase:          c.v.GetString("mongo_database"),
		MongoMaxPoolSize:       uint64(c.v.GetInt("mongo_max_pool_size")),
		MongoMinPoolSize:       uint64(c.v.GetInt("mongo_min_pool_size")),
		RedisURL:               c.v.GetString("redis_url"),
		LockTTL:                c.v.GetDuration("lock_ttl"),
		KafkaBrokers:           bootstrap.SplitList(c.v.GetString("kafka_brokers")),
		KafkaChannelTopic:      c.v.GetString("kafka_channel_topic"),
		KafkaNotificationTopic: c.v.GetString("kafka_notification_topic"),
		CycleAnchor:            anchor,
		CycleLengthDays:        c.v.GetInt("cycle_length_days"),
		HistoryWeeks:           c.v.GetInt("history_weeks"),
		MaxAttempts:            c.v.GetInt("max_attempts"),
		RunConcurrency:         c.v.GetInt("run_concurrency"),
		// The CLI never starts the background jobs.
		SchedulerInterval: time.Hour,
		IntegrityInterval: 24 * time.Hour,
	}
	if err := bootstrap.CheckAppConfig(cfg); err != nil {
		return bootstrap.AppConfig{}, err
	}
	return cfg, nil
}

// openEngine connects like the service does and makes sure the indexes the
// engine relies on exist.
func openEngine(ctx context.Context, cfg bootstrap.AppConfig, logger *zap.Logger) (engineAPI, func(), error) {
	deps, err := bootstrap.ConnectDB(ctx, nil, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		sctx, cancel := context.WithTimeout(context.Background(), timeouts.Short())
		defer cancel()
		_ = bootstrap.Shutdown(sctx, nil, cfg, deps, logger)
	}
	if err := bootstrap.EnsureSchema(ctx, nil, cfg, deps, logger); err != nil {
		closeFn()
		return nil, nil, err
	}
	return deps.Engine, closeFn, nil
}

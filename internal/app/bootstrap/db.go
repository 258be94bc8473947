// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/buddyhub/internal/app/system/gateway"
	"github.com/dalemusser/buddyhub/internal/app/system/grouplock"
	"github.com/dalemusser/buddyhub/internal/app/system/indexes"
	"github.com/dalemusser/buddyhub/internal/app/system/tasks"
	"github.com/dalemusser/buddyhub/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

const connectTimeout = 10 * time.Second

// ConnectDB connects MongoDB, Redis (when configured), and the event gateway,
// then builds the buddy engine and its background jobs over them.
//
// coreCfg is not consulted, so the CLI passes nil.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	cctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	opts := options.Client().ApplyURI(appCfg.MongoURI)
	if appCfg.MongoMaxPoolSize > 0 {
		opts.SetMaxPoolSize(appCfg.MongoMaxPoolSize)
	}
	if appCfg.MongoMinPoolSize > 0 {
		opts.SetMinPoolSize(appCfg.MongoMinPoolSize)
	}
	client, err := mongo.Connect(cctx, opts)
	if err != nil {
		return DBDeps{}, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(cctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return DBDeps{}, fmt.Errorf("ping mongo: %w", err)
	}
	logger.Info("connected to MongoDB", zap.String("database", appCfg.MongoDatabase))

	deps := DBDeps{
		BuddyHubMongoClient:   client,
		BuddyHubMongoDatabase: client.Database(appCfg.MongoDatabase),
	}

	if appCfg.RedisURL != "" {
		rdb, err := grouplock.Connect(cctx, appCfg.RedisURL)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return DBDeps{}, err
		}
		deps.Redis = rdb
		logger.Info("connected to Redis for group locks")
	}

	gw, err := NewGateway(appCfg, logger)
	if err != nil {
		closeDeps(context.Background(), deps, logger)
		return DBDeps{}, err
	}
	deps.Gateway = gw

	deps.Engine = NewEngine(deps, appCfg, logger)
	deps.Jobs = workers.NewRunner(logger,
		tasks.BuddyCycleJob(deps.Engine, logger, appCfg.SchedulerInterval),
		tasks.IntegrityCheckJob(deps.Engine, logger, appCfg.IntegrityInterval),
	)
	return deps, nil
}

// NewGateway returns the Kafka gateway when brokers are configured and the
// logging gateway otherwise.
func NewGateway(appCfg AppConfig, logger *zap.Logger) (EventGateway, error) {
	if len(appCfg.KafkaBrokers) == 0 {
		logger.Info("no kafka_brokers configured; buddy events will only be logged")
		return gateway.NewLog(logger), nil
	}
	gw, err := gateway.NewKafka(gateway.KafkaConfig{
		Brokers:           appCfg.KafkaBrokers,
		ChannelTopic:      appCfg.KafkaChannelTopic,
		NotificationTopic: appCfg.KafkaNotificationTopic,
	}, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("publishing buddy events to Kafka", zap.Strings("brokers", appCfg.KafkaBrokers))
	return gw, nil
}

// EnsureSchema creates the indexes the stores rely on, including the unique
// (group, start) cycle index that makes cycle creation idempotent.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if err := indexes.EnsureAll(ctx, deps.BuddyHubMongoDatabase); err != nil {
		logger.Error("ensure indexes failed", zap.Error(err))
		return err
	}
	return nil
}

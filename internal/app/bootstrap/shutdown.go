// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown stops background jobs, then tears down the gateway, Redis, and
// MongoDB in that order.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.Jobs != nil {
		deps.Jobs.Stop()
	}
	return closeDeps(ctx, deps, logger)
}

func closeDeps(ctx context.Context, deps DBDeps, logger *zap.Logger) error {
	if deps.Gateway != nil {
		if err := deps.Gateway.Close(); err != nil {
			logger.Warn("event gateway close failed", zap.Error(err))
		}
	}
	if deps.Redis != nil {
		if err := deps.Redis.Close(); err != nil {
			logger.Warn("Redis close failed", zap.Error(err))
		}
	}
	if deps.BuddyHubMongoClient != nil {
		logger.Info("disconnecting BuddyHub MongoDB client")
		if err := deps.BuddyHubMongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			return err
		}
	}
	return nil
}

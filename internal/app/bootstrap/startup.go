// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. Background
// jobs start here so the first cycle run sees the indexes EnsureSchema made.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if !appCfg.SchedulerEnabled {
		logger.Info("scheduler disabled; cycles run only when triggered")
		return nil
	}
	deps.Jobs.Start()
	return nil
}

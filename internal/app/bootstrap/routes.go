// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"time"

	buddiesfeature "github.com/dalemusser/buddyhub/internal/app/features/buddies"
	healthfeature "github.com/dalemusser/buddyhub/internal/app/features/health"
	"github.com/dalemusser/buddyhub/internal/app/system/ratelimit"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// the Startup hook have completed. BuddyHub serves JSON only: the health
// check and the buddy admin API.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	r := chi.NewRouter()

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.BuddyHubMongoClient, deps.Redis, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	buddiesHandler := buddiesfeature.NewHandler(deps.Engine, appCfg.AdminAPIKey, logger)
	if appCfg.APIRateLimit > 0 {
		buddiesHandler.Limiter = ratelimit.New(appCfg.APIRateLimit, time.Minute)
	}
	r.Mount("/api/buddies", buddiesfeature.Routes(buddiesHandler))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"error":"not found"}`))
	})

	logger.Info("routes mounted", zap.Bool("api_key_required", appCfg.AdminAPIKey != ""))
	return r, nil
}

// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/buddyhub/internal/app/buddy"
	"github.com/dalemusser/buddyhub/internal/app/system/workers"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// EventGateway is a buddy.Gateway that holds resources needing release.
type EventGateway interface {
	buddy.Gateway
	Close() error
}

// DBDeps holds database/back-end dependencies for the app.
type DBDeps struct {
	BuddyHubMongoClient   *mongo.Client
	BuddyHubMongoDatabase *mongo.Database

	// Redis is nil when group locks are in-process.
	Redis *redis.Client

	Gateway EventGateway
	Engine  *buddy.Engine

	// Jobs is built with the engine and started by Startup when the
	// scheduler is enabled.
	Jobs *workers.Runner
}

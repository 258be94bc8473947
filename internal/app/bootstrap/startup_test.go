package bootstrap

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dalemusser/buddyhub/internal/app/system/gateway"
	"github.com/dalemusser/buddyhub/internal/app/system/tasks"
	"github.com/dalemusser/buddyhub/internal/app/system/workers"
	"github.com/dalemusser/buddyhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func testDeps(t *testing.T) DBDeps {
	t.Helper()
	db := testutil.SetupTestDB(t)
	deps := DBDeps{
		BuddyHubMongoClient:   db.Client(),
		BuddyHubMongoDatabase: db,
		Gateway:               gateway.NewLog(testLogger()),
	}
	deps.Engine = NewEngine(deps, validConfig(), testLogger())
	return deps
}

func TestNewEngine_RunsAgainstMongo(t *testing.T) {
	deps := testDeps(t)
	fixtures := testutil.NewFixtures(t, deps.BuddyHubMongoDatabase)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	g := fixtures.CreateGroup(ctx, "Moai")
	fixtures.CreateActiveMembers(ctx, g.ID, time.Now().AddDate(-1, 0, 0), "A", "B", "C", "D")

	rep, err := deps.Engine.RunCycle(ctx, "")
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if rep.GroupsProcessed != 1 || rep.PairingsCreated != 2 {
		t.Errorf("report = %+v, want 1 group with 2 pairings", rep)
	}

	n, err := deps.BuddyHubMongoDatabase.Collection("buddy_pairings").CountDocuments(ctx, bson.M{"group_id": g.ID})
	if err != nil {
		t.Fatalf("count pairings: %v", err)
	}
	if n != 2 {
		t.Errorf("stored pairings = %d, want 2", n)
	}
}

func TestBuildHandler_MountsRoutes(t *testing.T) {
	deps := testDeps(t)
	cfg := validConfig()
	cfg.AdminAPIKey = "key"

	h, err := BuildHandler(nil, cfg, deps, testLogger())
	if err != nil {
		t.Fatalf("BuildHandler: %v", err)
	}

	tests := []struct {
		method, path, key string
		want              int
	}{
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/api/buddies/validate", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/buddies/validate", "key", http.StatusOK},
		{http.MethodGet, "/nope", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		if tt.key != "" {
			req.Header.Set("X-API-Key", tt.key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("%s %s: status %d, want %d", tt.method, tt.path, rec.Code, tt.want)
		}
	}
}

func TestStartupAndShutdown_Scheduler(t *testing.T) {
	deps := testDeps(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	cfg := validConfig()
	cfg.SchedulerEnabled = true
	deps.Jobs = workers.NewRunner(testLogger(),
		tasks.BuddyCycleJob(deps.Engine, testLogger(), time.Hour),
		tasks.IntegrityCheckJob(deps.Engine, testLogger(), time.Hour),
	)

	if err := Startup(ctx, nil, cfg, deps, testLogger()); err != nil {
		t.Fatalf("Startup: %v", err)
	}
	deps.Jobs.Stop()

	// Shutdown must tolerate already-stopped jobs. The Mongo client belongs to
	// SetupTestDB, so it is left out here.
	deps.BuddyHubMongoClient = nil
	if err := Shutdown(ctx, nil, cfg, deps, testLogger()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

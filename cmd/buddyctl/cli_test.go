package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/buddyhub/internal/app/bootstrap"
	"github.com/dalemusser/buddyhub/internal/app/buddy"
	"github.com/dalemusser/buddyhub/internal/app/buddy/buddytest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	testNow = time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC)
	longAgo = time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
)

type result struct {
	Success   bool            `json:"success"`
	Operation string          `json:"operation"`
	Result    json.RawMessage `json:"result"`
	Error     string          `json:"error"`
}

// testCLI returns a cli whose engine runs over in-memory stores.
func testCLI(t *testing.T) (*cli, *bytes.Buffer, *buddytest.Memory) {
	t.Helper()
	out := &bytes.Buffer{}
	mem := buddytest.New()
	engine := buddy.NewEngine(mem.Stores(), buddy.Options{
		Partitioner: buddy.NewSeededPartitioner(3, 0),
		Now:         buddytest.NewClock(testNow).Now,
	}, zap.NewNop())

	c := newCLI(out)
	c.logger = zap.NewNop()
	c.open = func(ctx context.Context, cfg bootstrap.AppConfig, logger *zap.Logger) (engineAPI, func(), error) {
		return engine, func() {}, nil
	}
	return c, out, mem
}

func execute(c *cli, args ...string) error {
	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	return root.ExecuteContext(context.Background())
}

func decode(t *testing.T, out *bytes.Buffer) result {
	t.Helper()
	var r result
	require.NoError(t, json.Unmarshal(out.Bytes(), &r), "output: %s", out.String())
	return r
}

func TestRun_PrintsReport(t *testing.T) {
	c, out, mem := testCLI(t)
	mem.AddMembers("g1", longAgo, "A", "B", "C", "D", "E")

	require.NoError(t, execute(c, "run"))

	r := decode(t, out)
	require.True(t, r.Success)
	require.Equal(t, "run_cycle", r.Operation)

	var rep buddy.RunReport
	require.NoError(t, json.Unmarshal(r.Result, &rep))
	require.Equal(t, 1, rep.GroupsProcessed)
	require.Equal(t, 2, rep.PairingsCreated)
}

func TestJoin_RequiresFlags(t *testing.T) {
	c, out, _ := testCLI(t)

	err := execute(c, "join", "--group", "g1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "member")
	require.Zero(t, out.Len(), "nothing should be printed for usage errors")
}

func TestJoinAndLeave(t *testing.T) {
	c, out, mem := testCLI(t)
	mem.AddMembers("g1", longAgo, "A", "B", "C", "D")
	require.NoError(t, execute(c, "run", "--group", "g1"))
	out.Reset()

	mem.AddMembers("g1", testNow, "F")
	require.NoError(t, execute(c, "join", "--group", "g1", "--member", "F"))
	r := decode(t, out)
	require.True(t, r.Success)
	require.Equal(t, buddy.OpAssignMidCycle, r.Operation)

	var outcome buddy.RepairOutcome
	require.NoError(t, json.Unmarshal(r.Result, &outcome))
	require.True(t, outcome.Applied)
	require.Contains(t, outcome.Members, "F")

	out.Reset()
	mem.Deactivate("g1", "F")
	require.NoError(t, execute(c, "leave", "--group", "g1", "--member", "F"))
	r = decode(t, out)
	require.True(t, r.Success)
	require.Equal(t, buddy.OpHandleLeave, r.Operation)
}

func TestValidate_ExitsNonZeroOnViolations(t *testing.T) {
	c, out, mem := testCLI(t)
	mem.AddMembers("g1", longAgo, "A", "B", "C", "D")

	// No cycle has run yet, so the group has uncovered members.
	err := execute(c, "validate")
	require.ErrorIs(t, err, errFailed)

	r := decode(t, out)
	require.True(t, r.Success, "the check itself succeeded")
	var rep buddy.ValidationReport
	require.NoError(t, json.Unmarshal(r.Result, &rep))
	require.False(t, rep.Valid)
	require.Positive(t, rep.ViolationCount)
}

func TestInvalidConfig_PrintsError(t *testing.T) {
	c, out, _ := testCLI(t)
	t.Setenv("BUDDYHUB_CYCLE_ANCHOR", "2024-01-03")

	err := execute(c, "run")
	require.ErrorIs(t, err, errFailed)

	r := decode(t, out)
	require.False(t, r.Success)
	require.True(t, strings.Contains(r.Error, "Monday"), "error: %s", r.Error)
}

func TestOpenFailure_PrintsError(t *testing.T) {
	c, out, _ := testCLI(t)
	c.open = func(context.Context, bootstrap.AppConfig, *zap.Logger) (engineAPI, func(), error) {
		return nil, nil, errors.New("connect mongo: no reachable servers")
	}

	require.ErrorIs(t, execute(c, "validate", "--group", "g1"), errFailed)
	r := decode(t, out)
	require.Equal(t, "validate", r.Operation)
	require.Contains(t, r.Error, "no reachable servers")
}

func TestFlagsOverrideEnv(t *testing.T) {
	c, _, _ := testCLI(t)
	t.Setenv("BUDDYHUB_HISTORY_WEEKS", "4")

	var seen bootstrap.AppConfig
	c.open = func(_ context.Context, cfg bootstrap.AppConfig, _ *zap.Logger) (engineAPI, func(), error) {
		seen = cfg
		return nil, nil, errors.New("stop here")
	}

	_ = execute(c, "run", "--max-attempts", "3")
	require.Equal(t, 4, seen.HistoryWeeks)
	require.Equal(t, 3, seen.MaxAttempts)
	require.Equal(t, "buddyhub", seen.MongoDatabase)
}

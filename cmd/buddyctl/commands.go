package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/buddyhub/internal/app/buddy"
	"github.com/dalemusser/buddyhub/internal/app/system/timeouts"
	"github.com/spf13/cobra"
)

// errFailed signals a failure already reported in the printed envelope.
var errFailed = errors.New("operation failed")

// envelope matches the HTTP API response body.
type envelope struct {
	Success   bool   `json:"success"`
	Operation string `json:"operation"`
	Result    any    `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

func newRunCmd(c *cli) *cobra.Command {
	var groupID string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Ensure the current buddy cycle exists",
		Long: `Creates the current cycle's buddy groups for every active group, or only
for --group. Groups whose cycle already exists are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.invoke(cmd.Context(), "run_cycle", timeouts.Run(), func(ctx context.Context, e engineAPI) (any, error) {
				return e.RunCycle(ctx, groupID)
			})
		},
	}
	cmd.Flags().StringVar(&groupID, "group", "", "limit the run to one group id")
	return cmd
}

func newJoinCmd(c *cli) *cobra.Command {
	return newRepairCmd(c, "join", "Place a member who joined mid-cycle into a buddy group",
		buddy.OpAssignMidCycle, func(e engineAPI) repairFunc { return e.AssignMidCycle })
}

func newLeaveCmd(c *cli) *cobra.Command {
	return newRepairCmd(c, "leave", "Repair buddy groups after a member left mid-cycle",
		buddy.OpHandleLeave, func(e engineAPI) repairFunc { return e.HandleLeave })
}

type repairFunc func(ctx context.Context, memberID, groupID string) (buddy.RepairOutcome, error)

func newRepairCmd(c *cli, use, short, op string, pick func(engineAPI) repairFunc) *cobra.Command {
	var groupID, memberID string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.invoke(cmd.Context(), op, timeouts.Repair(), func(ctx context.Context, e engineAPI) (any, error) {
				return pick(e)(ctx, memberID, groupID)
			})
		},
	}
	cmd.Flags().StringVar(&groupID, "group", "", "group id (required)")
	cmd.Flags().StringVar(&memberID, "member", "", "member id (required)")
	_ = cmd.MarkFlagRequired("group")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}

func newValidateCmd(c *cli) *cobra.Command {
	var groupID string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check buddy assignments for consistency",
		Long: `Reports coverage gaps, duplicate or inactive members, invalid group sizes,
and member state or channel mismatches. Nothing is repaired. Exits non-zero
when any violation is found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var valid bool
			err := c.invoke(cmd.Context(), "validate", timeouts.Run(), func(ctx context.Context, e engineAPI) (any, error) {
				rep, err := e.Validate(ctx, groupID)
				valid = rep.Valid
				return rep, err
			})
			if err == nil && !valid {
				return errFailed
			}
			return err
		},
	}
	cmd.Flags().StringVar(&groupID, "group", "", "limit the check to one group id")
	return cmd
}

// invoke opens the engine, runs fn under timeout, and prints the envelope.
func (c *cli) invoke(ctx context.Context, op string, timeout time.Duration, fn func(ctx context.Context, e engineAPI) (any, error)) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := c.appConfig()
	if err != nil {
		return c.print(envelope{Operation: op, Error: err.Error()})
	}

	engine, closeFn, err := c.open(ctx, cfg, c.logger)
	if err != nil {
		return c.print(envelope{Operation: op, Error: err.Error()})
	}
	defer closeFn()

	rctx, cancel := timeouts.WithTimeout(ctx, timeout, c.logger, "buddyctl "+op)
	defer cancel()

	result, err := fn(rctx, engine)
	if err != nil {
		return c.print(envelope{Operation: op, Error: err.Error()})
	}
	return c.print(envelope{Success: true, Operation: op, Result: result})
}

func (c *cli) print(env envelope) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if !env.Success {
		return errFailed
	}
	return nil
}

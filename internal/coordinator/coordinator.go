// Package coordinator composes the fleet manager and dispatch engine into
// the end-to-end run spec.md §2/§4.5 describes: configure fleet -> launch ->
// build dispatch -> run to completion -> tear down. It is the module
// cmd/coordinator's CLI drives; nothing here is itself a CLI surface
// (spec.md §6).
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ke0m/scaleup/internal/aggregate"
	"github.com/ke0m/scaleup/internal/chunkstream"
	"github.com/ke0m/scaleup/internal/clog"
	"github.com/ke0m/scaleup/internal/dispatch"
	"github.com/ke0m/scaleup/internal/fleet"
	"github.com/ke0m/scaleup/internal/scheduler"
)

// Options configures one end-to-end coordinator run.
type Options struct {
	BindAddr string
	Source   chunkstream.Source
	Agg      *aggregate.Aggregator

	Adapter    scheduler.Adapter
	WorkerCmd  string
	LogDir     string
	NamePrefix string

	NumWorkers           int
	SchedulerParams      scheduler.Params
	LaunchPolicy         fleet.LaunchPolicy
	ConfirmRunning       bool
	InterSubmissionDelay time.Duration

	CleanFiles bool
}

// Result is what a completed Run produced: the final aggregate plus the
// fleet status observed at launch time, for callers that want to report it.
type Result struct {
	Output       chunkstream.Fields
	LaunchStatus []scheduler.State
}

// Run executes one full coordinator lifecycle: launch the fleet, bind and
// drive the dispatch engine to DONE, then tear the fleet down. Run always
// tears down the fleet it launched, even on a fatal dispatch error, mirroring
// spec.md §5's "shutdown happens only after DONE" for the success path and
// "fatal errors tear down the fleet and exit" for the failure path (spec.md
// §7 Propagation).
func Run(ctx context.Context, opts Options) (Result, error) {
	runID := uuid.NewString()
	log := clog.New("coordinator", runID)

	log.Printf("launching %d workers via %s policy", opts.NumWorkers, launchPolicyName(opts.LaunchPolicy))

	mgr := fleet.NewManager(opts.Adapter, clog.New("fleet", runID), opts.NamePrefix, opts.WorkerCmd, opts.LogDir, opts.InterSubmissionDelay)
	records, status, err := mgr.Launch(ctx, opts.NumWorkers, opts.SchedulerParams, opts.LaunchPolicy, opts.ConfirmRunning)
	if err != nil {
		return Result{}, fmt.Errorf("coordinator: launch failed: %w", err)
	}

	engine := dispatch.NewEngine(opts.BindAddr, opts.Source, opts.Agg, clog.New("dispatch", runID))
	if err := engine.Bind(); err != nil {
		mgr.Shutdown(ctx, records, opts.CleanFiles)
		return Result{}, fmt.Errorf("coordinator: bind failed: %w", err)
	}
	log.Printf("dispatch engine bound at %s", engine.Addr())

	output, runErr := engine.Run(ctx)

	log.Printf("tearing down fleet")
	// Teardown must still reach the scheduler when ctx was canceled.
	mgr.Shutdown(context.WithoutCancel(ctx), records, opts.CleanFiles)

	if runErr != nil {
		return Result{LaunchStatus: status}, fmt.Errorf("coordinator: dispatch failed: %w", runErr)
	}
	return Result{Output: output, LaunchStatus: status}, nil
}

func launchPolicyName(p fleet.LaunchPolicy) string {
	switch p {
	case fleet.PolicyBusyRetry:
		return "busy-retry"
	case fleet.PolicyAdaptive:
		return "adaptive"
	default:
		return "quiet"
	}
}

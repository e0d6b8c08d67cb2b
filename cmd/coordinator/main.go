/*
Starts a coordinator that launches a worker fleet, binds a dispatch engine for
one of the built-in demos, drives it to completion, and tears the fleet down.

For usage details, run coordinator with the command line flag -h or --help.
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ke0m/scaleup/internal/clog"
	"github.com/ke0m/scaleup/internal/config"
	"github.com/ke0m/scaleup/internal/coordinator"
	"github.com/ke0m/scaleup/internal/demo"
	"github.com/ke0m/scaleup/internal/fleet"
	"github.com/ke0m/scaleup/internal/scheduler"
)

func main() {
	var cfgPath string
	var verbose bool

	root := &cobra.Command{
		Use:   "coordinator",
		Short: "Launch a worker fleet and dispatch a demo chunk stream to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if verbose {
				cfg.Verbose = true
			}
			return run(cfg)
		},
	}
	root.Flags().StringVarP(&cfgPath, "config", "c", "", "path to a YAML configuration file")
	root.Flags().BoolVarP(&verbose, "verbose", "l", false, "show logging output (for debugging)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	if cfg.Verbose {
		clog.Enable()
	}

	d, err := demo.ByName(cfg.Demo, cfg.ArrayLength)
	if err != nil {
		return err
	}
	source := d.NewSource(cfg.NumChunks)
	agg := d.NewAggregator(cfg.NumChunks)

	log := clog.New("coordinator", "main")
	adapter, err := buildAdapter(cfg, log)
	if err != nil {
		return err
	}

	params := scheduler.Params{
		Cores:           cfg.Scheduler.Cores,
		MemoryGB:        cfg.Scheduler.MemoryGB,
		WallTimeMinutes: cfg.Scheduler.WallTimeMinutes,
		Queue:           cfg.Scheduler.Queue,
		Host:            cfg.Host,
	}

	opts := coordinator.Options{
		BindAddr:             cfg.BindAddr,
		Source:               source,
		Agg:                  agg,
		Adapter:              adapter,
		WorkerCmd:            cfg.WorkerCmd,
		LogDir:               cfg.LogDir,
		NamePrefix:           cfg.NamePrefix,
		NumWorkers:           cfg.NumWorkers,
		SchedulerParams:      params,
		LaunchPolicy:         parseLaunchPolicy(cfg.LaunchPolicy),
		ConfirmRunning:       cfg.ConfirmRunning,
		InterSubmissionDelay: cfg.InterSubmissionDelay,
		CleanFiles:           cfg.CleanFiles,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle SIGTERM: cancellation propagates into the dispatch engine's Run
	// loop and the fleet manager's blocking calls, triggering a graceful
	// teardown instead of an abrupt exit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-sigCh
		if !ok {
			return
		}
		fmt.Printf("terminating coordinator on signal %v...\n", sig)
		cancel()
	}()
	defer signal.Stop(sigCh)

	fmt.Printf("starting coordinator: demo=%s chunks=%d workers=%d\n", cfg.Demo, cfg.NumChunks, cfg.NumWorkers)

	result, err := coordinator.Run(ctx, opts)
	if err != nil {
		return err
	}

	fmt.Printf("done: %v\n", result.Output)
	return nil
}

func buildAdapter(cfg config.Config, log *clog.CLogger) (scheduler.Adapter, error) {
	switch cfg.Mode {
	case "ssh":
		return scheduler.NewSSH(log), nil
	case "slurm", "":
		return scheduler.NewSlurm(log), nil
	default:
		return nil, fmt.Errorf("unknown scheduler mode %q", cfg.Mode)
	}
}

func parseLaunchPolicy(s string) fleet.LaunchPolicy {
	switch s {
	case "busy-retry":
		return fleet.PolicyBusyRetry
	case "adaptive":
		return fleet.PolicyAdaptive
	default:
		return fleet.PolicyQuiet
	}
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mission-sim/mission-sim/sim"
	"github.com/mission-sim/mission-sim/sim/duration"
	"github.com/mission-sim/mission-sim/sim/incremental"
	"github.com/mission-sim/mission-sim/sim/store"
	"github.com/mission-sim/mission-sim/sim/telemetry"
	"github.com/mission-sim/mission-sim/sim/trace"
)

var (
	logLevel   string   // Log verbosity level
	planPaths  []string // Plan files; incremental takes several revisions
	horizon    string   // Overrides the plan horizon when set
	resultsDB  string   // SQLite database receiving the results
	metricsOut string   // Prometheus textfile written after the run
	traceLevel string   // Decision trace verbosity
	verifyRuns int      // Concurrent cold simulations compared by verify
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "mission-sim",
	Short: "Discrete-event simulator for mission plans",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	},
}

// runCmd simulates one plan from scratch.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Simulate a plan",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runPlan(cmd.Context(), cmd.OutOrStdout(), planPaths[0]); err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
	},
}

// incrementalCmd simulates successive revisions of a plan with one driver.
var incrementalCmd = &cobra.Command{
	Use:   "incremental",
	Short: "Simulate successive plan revisions, reusing work where the edits allow",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runIncremental(cmd.Context(), cmd.OutOrStdout(), planPaths); err != nil {
			logrus.Fatalf("Incremental simulation failed: %v", err)
		}
	},
}

// verifyCmd checks determinism and incremental equivalence for a plan.
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that a plan simulates identically across runs and incremental extension",
	Run: func(cmd *cobra.Command, args []string) {
		if err := verifyPlan(cmd.Context(), cmd.OutOrStdout(), planPaths[0], verifyRuns); err != nil {
			logrus.Fatalf("Verification failed: %v", err)
		}
	},
}

// Execute runs the CLI root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadPlan reads a plan and resolves its model, schedule and horizon.
func loadPlan(path string) (*Plan, *sim.Model, sim.Schedule, duration.Duration, error) {
	plan, err := LoadPlan(path)
	if err != nil {
		return nil, nil, nil, 0, err
	}
	model, err := newModel(plan.Model)
	if err != nil {
		return nil, nil, nil, 0, err
	}
	schedule, err := plan.Schedule()
	if err != nil {
		return nil, nil, nil, 0, err
	}
	if horizon != "" {
		plan.Horizon = horizon
	}
	h, err := plan.HorizonDuration()
	if err != nil {
		return nil, nil, nil, 0, err
	}
	return plan, model, schedule, h, nil
}

// observers builds the trace and metrics requested by the flags.
func observers() ([]sim.Option, *trace.SimulationTrace, *telemetry.Metrics, error) {
	if !trace.IsValidTraceLevel(traceLevel) {
		return nil, nil, nil, fmt.Errorf("unknown trace level %q", traceLevel)
	}
	var opts []sim.Option
	var st *trace.SimulationTrace
	if trace.TraceLevel(traceLevel) == trace.TraceLevelBatches {
		st = trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelBatches})
		opts = append(opts, sim.WithTrace(st))
	}
	var metrics *telemetry.Metrics
	if metricsOut != "" {
		metrics = telemetry.NewMetrics("mission_sim")
		opts = append(opts, sim.WithMetrics(metrics))
	}
	return opts, st, metrics, nil
}

// finish writes the optional outputs of a command.
func finish(ctx context.Context, w io.Writer, res *sim.Results, run store.Run, st *trace.SimulationTrace, metrics *telemetry.Metrics) error {
	renderResults(w, res)
	if st != nil {
		renderTraceSummary(w, st)
	}
	if metricsOut != "" {
		if err := metrics.WriteTextfile(metricsOut); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
		logrus.Infof("Metrics written to: %s", metricsOut)
	}
	if resultsDB != "" {
		db, err := store.New(resultsDB)
		if err != nil {
			return err
		}
		defer db.Close()
		saved, err := db.SaveRun(ctx, run, res)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Saved run %s (fingerprint %s)\n", saved.ID, saved.Fingerprint)
	}
	return nil
}

func runPlan(ctx context.Context, w io.Writer, path string) error {
	plan, model, schedule, h, err := loadPlan(path)
	if err != nil {
		return err
	}
	opts, st, metrics, err := observers()
	if err != nil {
		return err
	}

	logrus.Infof("Starting simulation of %s: %d activities, horizon=%v", path, len(schedule), h)
	started := time.Now()
	res, err := sim.Simulate(ctx, model, schedule, h, opts...)
	if err != nil {
		return err
	}
	logrus.Infof("Simulation complete in %v", time.Since(started))
	return finish(ctx, w, res, store.Run{Model: plan.Model, Plan: path, Mode: "fresh"}, st, metrics)
}

func runIncremental(ctx context.Context, w io.Writer, paths []string) error {
	opts, st, metrics, err := observers()
	if err != nil {
		return err
	}
	var (
		driver    *incremental.Driver
		modelName string
		res       *sim.Results
	)
	for i, path := range paths {
		plan, model, schedule, h, err := loadPlan(path)
		if err != nil {
			return err
		}
		if driver == nil {
			driver, modelName = incremental.NewDriver(model, opts...), plan.Model
		} else if plan.Model != modelName {
			return fmt.Errorf("revision %d (%s) uses model %q, earlier revisions use %q", i, path, plan.Model, modelName)
		}
		if res, err = driver.Simulate(ctx, schedule, h); err != nil {
			return fmt.Errorf("revision %d (%s): %w", i, path, err)
		}
		logrus.Infof("Revision %d (%s) simulated to %v", i, path, h)
	}
	if driver == nil {
		return fmt.Errorf("no plan revisions given")
	}
	if err := finish(ctx, w, res, store.Run{Model: modelName, Plan: paths[len(paths)-1], Mode: "incremental"}, st, metrics); err != nil {
		return err
	}
	renderDriverStats(w, driver.Stats())
	return nil
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")

	for _, c := range []*cobra.Command{runCmd, incrementalCmd, verifyCmd} {
		c.Flags().StringVar(&horizon, "horizon", "", "Simulation horizon (Go duration); defaults to the plan's")
		c.Flags().StringVar(&traceLevel, "trace-level", "none", "Decision trace level (none, batches)")
	}
	for _, c := range []*cobra.Command{runCmd, incrementalCmd} {
		c.Flags().StringVar(&resultsDB, "results-db", "", "SQLite database to save the results into")
		c.Flags().StringVar(&metricsOut, "metrics-out", "", "File to write Prometheus metrics to after the run")
	}
	runCmd.Flags().StringSliceVar(&planPaths, "plan", nil, "Path to the YAML plan")
	verifyCmd.Flags().StringSliceVar(&planPaths, "plan", nil, "Path to the YAML plan")
	incrementalCmd.Flags().StringArrayVar(&planPaths, "plan", nil, "Path to a YAML plan revision (repeat in order)")
	verifyCmd.Flags().IntVar(&verifyRuns, "runs", 4, "Number of concurrent cold simulations to compare")
	for _, c := range []*cobra.Command{runCmd, incrementalCmd, verifyCmd} {
		_ = c.MarkFlagRequired("plan")
	}

	rootCmd.AddCommand(runCmd, incrementalCmd, verifyCmd)
}

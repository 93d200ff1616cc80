package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mission-sim/mission-sim/sim"
	"github.com/mission-sim/mission-sim/sim/duration"
	"github.com/mission-sim/mission-sim/sim/incremental"
)

// verifyPlan simulates the plan runs times concurrently, each on a model of
// its own, then once more through the incremental driver in growing horizon
// steps, and fails unless every fingerprint agrees.
func verifyPlan(ctx context.Context, w io.Writer, path string, runs int) error {
	if runs < 1 {
		return fmt.Errorf("--runs must be at least 1, got %d", runs)
	}
	plan, _, schedule, h, err := loadPlan(path)
	if err != nil {
		return err
	}

	fingerprints := make([]string, runs)
	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < runs; i++ {
		g.Go(func() error {
			model, err := newModel(plan.Model)
			if err != nil {
				return err
			}
			res, err := sim.Simulate(gCtx, model, schedule.Clone(), h)
			if err != nil {
				return fmt.Errorf("run %d: %w", i, err)
			}
			fingerprints[i], err = res.Fingerprint()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, f := range fingerprints[1:] {
		if f != fingerprints[0] {
			return fmt.Errorf("run %d fingerprint %s differs from run 0 fingerprint %s", i+1, f, fingerprints[0])
		}
	}
	fmt.Fprintf(w, "Cold runs: %d, fingerprint %s\n", runs, fingerprints[0])

	got, stats, err := extendInSteps(ctx, plan.Model, schedule, h, 4)
	if err != nil {
		return err
	}
	if got != fingerprints[0] {
		return fmt.Errorf("incremental fingerprint %s differs from cold fingerprint %s", got, fingerprints[0])
	}
	fmt.Fprintf(w, "Incremental: %d requests, %d extensions, %d resets, fingerprint matches\n",
		stats.Simulations, stats.Extensions, stats.Resets)
	return nil
}

// extendInSteps reaches h through the driver in steps equal horizon increments.
func extendInSteps(ctx context.Context, modelName string, schedule sim.Schedule, h duration.Duration, steps int) (string, incremental.Stats, error) {
	model, err := newModel(modelName)
	if err != nil {
		return "", incremental.Stats{}, err
	}
	driver := incremental.NewDriver(model)
	var res *sim.Results
	for i := 1; i <= steps; i++ {
		at := h / duration.Duration(steps) * duration.Duration(i)
		if i == steps {
			at = h
		}
		if res, err = driver.Simulate(ctx, schedule, at); err != nil {
			return "", incremental.Stats{}, fmt.Errorf("incremental step to %v: %w", at, err)
		}
		logrus.Debugf("incremental step %d/%d reached %v", i, steps, at)
	}
	f, err := res.Fingerprint()
	return f, driver.Stats(), err
}

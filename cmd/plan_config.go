package cmd

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/mission-sim/mission-sim/sim"
	"github.com/mission-sim/mission-sim/sim/duration"
	"github.com/mission-sim/mission-sim/sim/mission/banana"
	"github.com/mission-sim/mission-sim/sim/value"
)

// Plan is a YAML plan file: a model, a horizon and the activities to run.
type Plan struct {
	Model      string                  `yaml:"model"`
	Horizon    string                  `yaml:"horizon"`
	Activities map[string]PlanActivity `yaml:"activities"`
}

// PlanActivity is one directive of a plan. Start and durations in arguments
// use Go duration syntax ("90s", "1h30m").
type PlanActivity struct {
	Type      string         `yaml:"type"`
	Start     string         `yaml:"start"`
	Arguments map[string]any `yaml:"arguments"`
}

// LoadPlan parses a plan file with strict field checking: unknown keys are errors.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	var p Plan
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&p); err != nil {
		return nil, fmt.Errorf("parse plan %s: %w", path, err)
	}
	if p.Model == "" {
		p.Model = banana.Name
	}
	return &p, nil
}

// HorizonDuration parses the plan horizon. An empty horizon means the latest
// activity start.
func (p *Plan) HorizonDuration() (duration.Duration, error) {
	if p.Horizon == "" {
		var latest duration.Duration
		for id, a := range p.Activities {
			start, err := a.start()
			if err != nil {
				return 0, fmt.Errorf("activity %s: %w", id, err)
			}
			latest = duration.Max2(latest, start)
		}
		return latest, nil
	}
	h, err := duration.Parse(p.Horizon)
	if err != nil {
		return 0, fmt.Errorf("horizon: %w", err)
	}
	if h < 0 {
		return 0, fmt.Errorf("horizon must not be negative, got %v", h)
	}
	return h, nil
}

// Schedule converts the plan's activities into a simulation schedule.
func (p *Plan) Schedule() (sim.Schedule, error) {
	ids := make([]string, 0, len(p.Activities))
	for id := range p.Activities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	s := make(sim.Schedule, len(ids))
	for _, id := range ids {
		a := p.Activities[id]
		if a.Type == "" {
			return nil, fmt.Errorf("activity %s: missing type", id)
		}
		start, err := a.start()
		if err != nil {
			return nil, fmt.Errorf("activity %s: %w", id, err)
		}
		var args value.Map
		if a.Arguments != nil {
			v, err := value.FromAny(a.Arguments)
			if err != nil {
				return nil, fmt.Errorf("activity %s: arguments: %w", id, err)
			}
			args = v.(value.Map)
		}
		s[id] = sim.Entry{Start: start, Type: a.Type, Arguments: args}
	}
	return s, nil
}

// start parses the activity start; an empty start is time zero.
func (a PlanActivity) start() (duration.Duration, error) {
	if a.Start == "" {
		return 0, nil
	}
	d, err := duration.Parse(a.Start)
	if err != nil {
		return 0, fmt.Errorf("start: %w", err)
	}
	return d, nil
}

// newModel builds the model a plan names.
func newModel(name string) (*sim.Model, error) {
	switch name {
	case banana.Name:
		m, _ := banana.NewModel()
		return m, nil
	default:
		return nil, fmt.Errorf("unknown model %q (known: %s)", name, banana.Name)
	}
}

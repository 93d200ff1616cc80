package sim

import (
	"fmt"

	"github.com/mission-sim/mission-sim/sim/cell"
	"github.com/mission-sim/mission-sim/sim/task"
)

type daemonDef struct {
	name    string
	factory task.Factory
}

type resourceDef struct {
	name     string
	kind     ResourceKind
	resource Resource
}

// Model is a mission model: its cells, activity types, daemons and resources.
// A Model is assembled once and may then back any number of simulations.
type Model struct {
	name      string
	schema    *cell.Schema
	registry  *task.Registry
	daemons   []daemonDef
	resources []resourceDef
	names     map[string]bool
}

// NewModel creates an empty mission model.
func NewModel(name string) *Model {
	return &Model{
		name:     name,
		schema:   cell.NewSchema(),
		registry: task.NewRegistry(),
		names:    make(map[string]bool),
	}
}

func (m *Model) Name() string             { return m.name }
func (m *Model) Schema() *cell.Schema     { return m.schema }
func (m *Model) Registry() *task.Registry { return m.registry }

// AddDaemon registers a task started at time zero in every simulation.
func (m *Model) AddDaemon(name string, f task.Factory) {
	m.daemons = append(m.daemons, daemonDef{name: name, factory: f})
}

// AddDiscreteResource registers a resource sampled into a discrete profile.
func (m *Model) AddDiscreteResource(name string, r Resource) {
	m.addResource(name, KindDiscrete, r)
}

// AddRealResource registers a resource sampled into a linear profile.
func (m *Model) AddRealResource(name string, r Resource) {
	m.addResource(name, KindReal, r)
}

func (m *Model) addResource(name string, kind ResourceKind, r Resource) {
	if m.names[name] {
		panic(fmt.Sprintf("resource %q registered twice", name))
	}
	m.names[name] = true
	m.resources = append(m.resources, resourceDef{name: name, kind: kind, resource: r})
}

// RegisterActivity adds an activity type to the model's registry.
func (m *Model) RegisterActivity(t task.ActivityType) error {
	return m.registry.Register(t)
}

// Resources lists resource names in registration order.
func (m *Model) Resources() []string {
	names := make([]string, len(m.resources))
	for i, r := range m.resources {
		names[i] = r.name
	}
	return names
}

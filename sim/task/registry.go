package task

import (
	"fmt"
	"sort"

	"github.com/mission-sim/mission-sim/sim/simerr"
	"github.com/mission-sim/mission-sim/sim/value"
)

// ActivityType turns serialized arguments into a task factory.
type ActivityType struct {
	Name        string
	Instantiate func(args value.Map) (Factory, error)
}

// Registry maps activity type names to their instantiation functions.
type Registry struct {
	types map[string]ActivityType
}

// NewRegistry creates an empty activity type registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]ActivityType)}
}

// Register adds an activity type. Names must be unique.
func (r *Registry) Register(t ActivityType) error {
	if t.Name == "" || t.Instantiate == nil {
		return fmt.Errorf("activity type requires a name and an instantiate function")
	}
	if _, dup := r.types[t.Name]; dup {
		return fmt.Errorf("activity type %q already registered", t.Name)
	}
	r.types[t.Name] = t
	return nil
}

// Instantiate validates args for the named type and returns a factory.
// Failures are *simerr.Error values with CodeInstantiation.
func (r *Registry) Instantiate(activityID, typ string, args value.Map) (Factory, error) {
	t, ok := r.types[typ]
	if !ok {
		return nil, simerr.Instantiation(activityID, typ, fmt.Errorf("unknown activity type"))
	}
	if args == nil {
		args = value.Map{}
	}
	f, err := t.Instantiate(args)
	if err != nil {
		return nil, simerr.Instantiation(activityID, typ, err)
	}
	return f, nil
}

// Has reports whether typ is registered.
func (r *Registry) Has(typ string) bool {
	_, ok := r.types[typ]
	return ok
}

// Types lists registered type names in sorted order.
func (r *Registry) Types() []string {
	names := make([]string, 0, len(r.types))
	for n := range r.types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

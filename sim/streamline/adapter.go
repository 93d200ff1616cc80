package streamline

import (
	"github.com/mission-sim/mission-sim/sim"
	"github.com/mission-sim/mission-sim/sim/task"
	"github.com/mission-sim/mission-sim/sim/value"
)

func toSample(e Expiry, d sim.Dynamics) sim.Sample {
	s := sim.Sample{Dynamics: d}
	if v, ok := e.Value(); ok {
		s.Expiry, s.Expires = v, true
	}
	return s
}

// AsDiscrete exposes r to the engine as a discrete resource.
func AsDiscrete[V comparable](r Resource[Discrete[V]], encode func(V) value.Value) sim.Resource {
	return sim.ResourceFunc(func(q task.Querier) (sim.Sample, error) {
		d, err := r.Dynamics(q).Get()
		if err != nil {
			return sim.Sample{}, err
		}
		return toSample(d.Expiry, sim.Discrete{Value: encode(d.Data.Value)}), nil
	})
}

// AsReal exposes r to the engine as a real resource.
func AsReal(r Resource[Linear]) sim.Resource {
	return sim.ResourceFunc(func(q task.Querier) (sim.Sample, error) {
		d, err := r.Dynamics(q).Get()
		if err != nil {
			return sim.Sample{}, err
		}
		return toSample(d.Expiry, sim.Linear{Initial: d.Data.Value, Rate: d.Data.Rate}), nil
	})
}

// Encoders for common discrete value types.
func EncodeBool(b bool) value.Value { return value.Bool(b) }
func EncodeInt(i int) value.Value { return value.Int(i) }
func EncodeFloat(f float64) value.Value { return value.Real(f) }
func EncodeString(s string) value.Value { return value.String(s) }

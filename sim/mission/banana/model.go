// Package banana is a small reference mission model: a banana stand with a
// plant, a stock of fruit, a peel counter, a producer label and a battery.
// Its activities exercise every part of the kernel: concurrent additive
// effects, conflicting sets, spawned children, condition waits and caches.
package banana

import (
	"github.com/mission-sim/mission-sim/sim"
	"github.com/mission-sim/mission-sim/sim/streamline"
)

// Name identifies the model in plans.
const Name = "banananation"

const (
	InitialFruit    = 4.0
	InitialPeel     = 4.0
	InitialPlant    = 200
	InitialProducer = "Chiquita"
	InitialBattery  = 20.0
)

// Mission holds the model's cell-backed resources.
type Mission struct {
	Fruit    *streamline.CellResource[streamline.Linear]
	Peel     *streamline.CellResource[streamline.Linear]
	Plant    *streamline.CellResource[streamline.Discrete[int]]
	Producer *streamline.CellResource[streamline.Discrete[string]]
	Battery  *streamline.CellResource[streamline.Linear]

	FruitCached *streamline.CellResource[streamline.Linear]
	HasFruit    streamline.Resource[streamline.Discrete[bool]]
}

// NewModel builds the model with its resources and activity types registered.
func NewModel() (*sim.Model, *Mission) {
	m := sim.NewModel(Name)
	schema := m.Schema()
	mission := &Mission{
		Fruit:    streamline.LinearCell(schema, "fruit", InitialFruit, 0),
		Peel:     streamline.LinearCell(schema, "peel", InitialPeel, 0),
		Plant:    streamline.DiscreteCell(schema, "plant", InitialPlant),
		Producer: streamline.DiscreteCell(schema, "producer", InitialProducer),
		Battery:  streamline.LinearCell(schema, "battery", InitialBattery, 0),
	}
	mission.FruitCached = streamline.Cache[streamline.Linear](m, "fruit_cached", mission.Fruit, streamline.Linear{Value: InitialFruit})
	mission.HasFruit = streamline.AboveThreshold(mission.Fruit, 1)

	m.AddRealResource("fruit", streamline.AsReal(mission.Fruit))
	m.AddRealResource("peel", streamline.AsReal(mission.Peel))
	m.AddDiscreteResource("plant", streamline.AsDiscrete[int](mission.Plant, streamline.EncodeInt))
	m.AddDiscreteResource("producer", streamline.AsDiscrete[string](mission.Producer, streamline.EncodeString))
	m.AddRealResource("battery", streamline.AsReal(mission.Battery))
	m.AddRealResource("fruit_cached", streamline.AsReal(mission.FruitCached))
	m.AddDiscreteResource("has_fruit", streamline.AsDiscrete[bool](mission.HasFruit, streamline.EncodeBool))

	for _, t := range mission.activityTypes() {
		if err := m.RegisterActivity(t); err != nil {
			panic(err)
		}
	}
	return m, mission
}

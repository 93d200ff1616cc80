package banana

import (
	"fmt"

	"github.com/mission-sim/mission-sim/sim/duration"
	"github.com/mission-sim/mission-sim/sim/streamline"
	"github.com/mission-sim/mission-sim/sim/task"
	"github.com/mission-sim/mission-sim/sim/value"
)

// Activity type names.
const (
	PeelBanana     = "PeelBanana"
	BiteBanana     = "BiteBanana"
	GrowBanana     = "GrowBanana"
	ChangeProducer = "ChangeProducer"
	PickBanana     = "PickBanana"
	PickBananas    = "PickBananas"
	ChargeBattery  = "ChargeBattery"
	WaitForPower   = "WaitForPower"
)

const (
	FromStem = "fromStem"
	FromTip  = "fromTip"
)

// pickDuration is how long one PickBanana takes.
const pickDuration = duration.Second

func (ms *Mission) activityTypes() []task.ActivityType {
	return []task.ActivityType{
		{Name: PeelBanana, Instantiate: ms.peelBanana},
		{Name: BiteBanana, Instantiate: ms.biteBanana},
		{Name: GrowBanana, Instantiate: ms.growBanana},
		{Name: ChangeProducer, Instantiate: ms.changeProducer},
		{Name: PickBanana, Instantiate: ms.pickBanana},
		{Name: PickBananas, Instantiate: ms.pickBananas},
		{Name: ChargeBattery, Instantiate: ms.chargeBattery},
		{Name: WaitForPower, Instantiate: ms.waitForPower},
	}
}

func (ms *Mission) peelBanana(args value.Map) (task.Factory, error) {
	if err := task.CheckArgs(args, "peelDirection"); err != nil {
		return nil, err
	}
	direction, err := task.ArgString(args, "peelDirection", FromStem)
	if err != nil {
		return nil, err
	}
	if direction != FromStem && direction != FromTip {
		return nil, fmt.Errorf("peelDirection must be %q or %q, got %q", FromStem, FromTip, direction)
	}
	return task.Of(func(s task.Scheduler) (task.Status, error) {
		streamline.Decrease(s, ms.Peel, 1)
		return task.Done()
	}), nil
}

func (ms *Mission) biteBanana(args value.Map) (task.Factory, error) {
	if err := task.CheckArgs(args, "biteSize"); err != nil {
		return nil, err
	}
	size, err := task.ArgFloat(args, "biteSize", 1)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, fmt.Errorf("biteSize must be positive, got %g", size)
	}
	return task.Of(func(s task.Scheduler) (task.Status, error) {
		streamline.Decrease(s, ms.Fruit, size)
		return task.Done()
	}), nil
}

// growBanana takes quantity off the plant and ripens it into fruit at a
// constant rate over growingDuration.
func (ms *Mission) growBanana(args value.Map) (task.Factory, error) {
	if err := task.CheckArgs(args, "quantity", "growingDuration"); err != nil {
		return nil, err
	}
	quantity, err := task.ArgInt(args, "quantity", 1)
	if err != nil {
		return nil, err
	}
	grow, err := task.ArgDuration(args, "growingDuration", duration.Hour)
	if err != nil {
		return nil, err
	}
	if quantity <= 0 || grow <= 0 {
		return nil, fmt.Errorf("quantity and growingDuration must be positive")
	}
	rate := float64(quantity) / grow.Seconds()
	return task.Of(func(s task.Scheduler) (task.Status, error) {
		streamline.Increment(s, ms.Plant, -int(quantity))
		streamline.AddRate(s, ms.Fruit, rate)
		return task.Delay(grow, task.Func(func(s task.Scheduler) (task.Status, error) {
			streamline.AddRate(s, ms.Fruit, -rate)
			return task.DoneWith(value.Int(quantity))
		}))
	}), nil
}

func (ms *Mission) changeProducer(args value.Map) (task.Factory, error) {
	if err := task.CheckArgs(args, "producer"); err != nil {
		return nil, err
	}
	producer, err := task.ArgString(args, "producer", "Dole")
	if err != nil {
		return nil, err
	}
	return task.Of(func(s task.Scheduler) (task.Status, error) {
		ms.Producer.Set(s, streamline.Discrete[string]{Value: producer})
		return task.Done()
	}), nil
}

func (ms *Mission) pick() task.Factory {
	return task.Of(func(s task.Scheduler) (task.Status, error) {
		return task.Delay(pickDuration, task.Func(func(s task.Scheduler) (task.Status, error) {
			streamline.Increase(s, ms.Fruit, 1)
			streamline.Increment(s, ms.Plant, -1)
			return task.Done()
		}))
	})
}

func (ms *Mission) pickBanana(args value.Map) (task.Factory, error) {
	if err := task.CheckArgs(args); err != nil {
		return nil, err
	}
	return ms.pick(), nil
}

// pickBananas picks quantity bananas one after another, each as a child
// PickBanana activity.
func (ms *Mission) pickBananas(args value.Map) (task.Factory, error) {
	if err := task.CheckArgs(args, "quantity"); err != nil {
		return nil, err
	}
	quantity, err := task.ArgInt(args, "quantity", 2)
	if err != nil {
		return nil, err
	}
	if quantity < 0 {
		return nil, fmt.Errorf("quantity must not be negative, got %d", quantity)
	}
	return func() task.Task {
		var picked int64
		var next task.Func
		next = func(s task.Scheduler) (task.Status, error) {
			if picked == quantity {
				return task.DoneWith(value.Int(picked))
			}
			picked++
			return task.Call(task.Span{Type: PickBanana, Arguments: value.Map{}}, ms.pick(), next)
		}
		return next
	}, nil
}

func (ms *Mission) chargeBattery(args value.Map) (task.Factory, error) {
	if err := task.CheckArgs(args, "rate", "duration"); err != nil {
		return nil, err
	}
	rate, err := task.ArgFloat(args, "rate", 1)
	if err != nil {
		return nil, err
	}
	d, err := task.ArgDuration(args, "duration", 10*duration.Second)
	if err != nil {
		return nil, err
	}
	if d < 0 {
		return nil, fmt.Errorf("duration must not be negative, got %v", d)
	}
	return task.Of(func(s task.Scheduler) (task.Status, error) {
		streamline.AddRate(s, ms.Battery, rate)
		return task.Delay(d, task.Func(func(s task.Scheduler) (task.Status, error) {
			streamline.AddRate(s, ms.Battery, -rate)
			return task.Done()
		}))
	}), nil
}

// waitForPower waits until the battery holds threshold, then spends it.
func (ms *Mission) waitForPower(args value.Map) (task.Factory, error) {
	if err := task.CheckArgs(args, "threshold"); err != nil {
		return nil, err
	}
	threshold, err := task.ArgFloat(args, "threshold", 50)
	if err != nil {
		return nil, err
	}
	return task.Of(func(s task.Scheduler) (task.Status, error) {
		return task.Await(streamline.AtLeast(ms.Battery, threshold), task.Func(func(s task.Scheduler) (task.Status, error) {
			streamline.Decrease(s, ms.Battery, threshold)
			return task.Done()
		}))
	}), nil
}

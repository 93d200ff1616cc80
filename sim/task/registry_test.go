package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mission-sim/mission-sim/sim/duration"
	"github.com/mission-sim/mission-sim/sim/simerr"
	"github.com/mission-sim/mission-sim/sim/value"
)

func biteType() ActivityType {
	return ActivityType{
		Name: "Bite",
		Instantiate: func(args value.Map) (Factory, error) {
			if err := CheckArgs(args, "size"); err != nil {
				return nil, err
			}
			if _, err := ArgFloat(args, "size", 1); err != nil {
				return nil, err
			}
			return Of(func(Scheduler) (Status, error) { return Done() }), nil
		},
	}
}

func TestRegistry_Instantiate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(biteType()))
	assert.Error(t, r.Register(biteType()), "duplicate names are rejected")

	f, err := r.Instantiate("a1", "Bite", value.Map{"size": value.Int(2)})
	require.NoError(t, err)
	assert.NotNil(t, f())

	_, err = r.Instantiate("a2", "Nibble", nil)
	require.Error(t, err)
	assert.True(t, simerr.IsInstantiation(err))
	assert.Contains(t, err.Error(), "activity=a2")

	_, err = r.Instantiate("a3", "Bite", value.Map{"size": value.String("big")})
	assert.True(t, simerr.IsInstantiation(err))

	_, err = r.Instantiate("a4", "Bite", value.Map{"colour": value.String("yellow")})
	assert.True(t, simerr.IsInstantiation(err))

	assert.Equal(t, []string{"Bite"}, r.Types())
	assert.True(t, r.Has("Bite"))
}

func TestArgDuration_AcceptsMicrosAndStrings(t *testing.T) {
	args := value.Map{"a": value.Int(1500), "b": value.String("2s"), "c": value.Bool(true)}

	d, err := ArgDuration(args, "a", 0)
	require.NoError(t, err)
	assert.Equal(t, duration.Duration(1500), d)

	d, err = ArgDuration(args, "b", 0)
	require.NoError(t, err)
	assert.Equal(t, 2*duration.Second, d)

	d, err = ArgDuration(args, "missing", duration.Minute)
	require.NoError(t, err)
	assert.Equal(t, duration.Minute, d)

	_, err = ArgDuration(args, "c", 0)
	assert.Error(t, err)
}

func TestTask_StatusHelpers(t *testing.T) {
	next := Func(func(Scheduler) (Status, error) { return Done() })
	st, err := Delay(duration.Second, next)
	require.NoError(t, err)
	d, ok := st.(Delayed)
	require.True(t, ok)
	assert.Equal(t, duration.Second, d.Duration)

	st, _ = DoneWith(value.Int(3))
	assert.Equal(t, Completed{Value: value.Int(3)}, st)
	assert.Equal(t, "task-12", ID(12).String())
}

package task

import (
	"fmt"

	"github.com/mission-sim/mission-sim/sim/duration"
	"github.com/mission-sim/mission-sim/sim/value"
)

// CheckArgs rejects argument names outside allowed.
func CheckArgs(args value.Map, allowed ...string) error {
	ok := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		ok[a] = true
	}
	for _, k := range args.SortedKeys() {
		if !ok[k] {
			return fmt.Errorf("unknown argument %q", k)
		}
	}
	return nil
}

// ArgFloat reads a numeric argument, accepting integers.
func ArgFloat(args value.Map, name string, def float64) (float64, error) {
	switch v := args[name].(type) {
	case nil, value.Null:
		return def, nil
	case value.Real:
		return float64(v), nil
	case value.Int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("argument %q: expected number, got %s", name, value.Format(v))
	}
}

func ArgInt(args value.Map, name string, def int64) (int64, error) {
	switch v := args[name].(type) {
	case nil, value.Null:
		return def, nil
	case value.Int:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("argument %q: expected integer, got %s", name, value.Format(v))
	}
}

func ArgString(args value.Map, name string, def string) (string, error) {
	switch v := args[name].(type) {
	case nil, value.Null:
		return def, nil
	case value.String:
		return string(v), nil
	default:
		return "", fmt.Errorf("argument %q: expected string, got %s", name, value.Format(v))
	}
}

// ArgDuration reads either an integer count of microseconds or a Go duration string.
func ArgDuration(args value.Map, name string, def duration.Duration) (duration.Duration, error) {
	switch v := args[name].(type) {
	case nil, value.Null:
		return def, nil
	case value.Int:
		return duration.Duration(v), nil
	case value.String:
		d, err := duration.Parse(string(v))
		if err != nil {
			return 0, fmt.Errorf("argument %q: %w", name, err)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("argument %q: expected duration, got %s", name, value.Format(v))
	}
}

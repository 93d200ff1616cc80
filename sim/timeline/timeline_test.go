package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mission-sim/mission-sim/sim/duration"
	"github.com/mission-sim/mission-sim/sim/effect"
	"github.com/mission-sim/mission-sim/sim/simerr"
)

// exprTrait renders the structure of combined effects as a string.
type exprTrait struct{}

func (exprTrait) Empty() string { return "" }

func (exprTrait) Sequentially(p, s string) string {
	switch {
	case p == "":
		return s
	case s == "":
		return p
	}
	return p + ";" + s
}

func (exprTrait) Concurrently(l, r string) string {
	switch {
	case l == "":
		return r
	case r == "":
		return l
	}
	return "(" + l + "|" + r + ")"
}

func ident(s string) string { return s }

func eval(t *testing.T, tl *Timeline[string], from, to History[string]) []Step[string] {
	t.Helper()
	steps, err := Evaluate[string, string](tl, exprTrait{}, ident, from.Index(), to.Index())
	require.NoError(t, err)
	return steps
}

func TestEvaluate_SequentialEmits_SingleStep(t *testing.T) {
	tl := New[string]()
	h := tl.Origin().Emit("a").Emit("b")

	steps := eval(t, tl, tl.Origin(), h)

	assert.Equal(t, []Step[string]{{Delay: 0, Effect: "a;b"}}, steps)
}

func TestEvaluate_WaitsSplitSteps(t *testing.T) {
	tl := New[string]()
	h := tl.Origin().Emit("a")
	h, err := h.Wait(5 * duration.Second)
	require.NoError(t, err)
	h = h.Emit("b")
	h, err = h.Wait(2 * duration.Second)
	require.NoError(t, err)

	steps := eval(t, tl, tl.Origin(), h)

	assert.Equal(t, []Step[string]{
		{Delay: 0, Effect: "a"},
		{Delay: 5 * duration.Second, Effect: "b"},
		{Delay: 2 * duration.Second, Effect: ""},
	}, steps)
}

func TestEvaluate_ForkJoinIdentity(t *testing.T) {
	// GIVEN a prefix followed by a fork with one event on each branch
	tl := New[string]()
	prefix := tl.Origin().Emit("p")
	left := prefix.Fork()
	right := left
	left = left.Emit("a")
	right = right.Emit("b")

	// WHEN the branches are joined
	joined, err := left.Join(right)
	require.NoError(t, err)

	// THEN evaluation equals sequentially(prefix, concurrently(a, b))
	steps := eval(t, tl, tl.Origin(), joined)
	tr := exprTrait{}
	assert.Equal(t, tr.Sequentially("p", tr.Concurrently("a", "b")), steps[0].Effect)
	assert.False(t, joined.Forked())
}

func TestEvaluate_NestedForks(t *testing.T) {
	tl := New[string]()
	outer := tl.Origin().Fork()
	parent := outer.Emit("a")
	inner := parent.Fork()
	c := inner.Emit("c")
	d := inner.Emit("d")
	parent, err := c.Join(d)
	require.NoError(t, err)
	sibling := outer.Emit("b")

	joined, err := parent.Join(sibling)
	require.NoError(t, err)

	steps := eval(t, tl, tl.Origin(), joined)
	assert.Equal(t, "(a;(c|d)|b)", steps[0].Effect)
}

func TestEvaluate_PartialRangeStartsAtCursor(t *testing.T) {
	tl := New[string]()
	mid := tl.Origin().Emit("old")
	end := mid.Emit("new")

	steps := eval(t, tl, mid, end)
	assert.Equal(t, "new", steps[0].Effect)

	steps = eval(t, tl, end, end)
	assert.Equal(t, []Step[string]{{Delay: 0, Effect: ""}}, steps)
}

func TestHistory_IsPersistent(t *testing.T) {
	// GIVEN two handles extended independently from one point
	tl := New[string]()
	base := tl.Origin().Emit("x")
	one := base.Emit("one")
	two := base.Emit("two")

	// THEN each sees only its own extension
	assert.Equal(t, "x;one", eval(t, tl, tl.Origin(), one)[0].Effect)
	assert.Equal(t, "x;two", eval(t, tl, tl.Origin(), two)[0].Effect)
	assert.Equal(t, "x", eval(t, tl, tl.Origin(), base)[0].Effect)
}

func TestWait_Contract(t *testing.T) {
	tl := New[string]()
	h := tl.Origin()

	same, err := h.Wait(0)
	require.NoError(t, err)
	assert.Equal(t, h.Index(), same.Index(), "waiting zero records nothing")

	_, err = h.Wait(-1)
	assert.True(t, simerr.IsContractViolation(err))

	_, err = h.Fork().Wait(duration.Second)
	assert.True(t, simerr.IsContractViolation(err))
}

func TestJoin_Contract(t *testing.T) {
	tl := New[string]()
	h := tl.Origin().Emit("a")

	// no fork at all
	_, err := h.Join(h)
	assert.True(t, simerr.IsContractViolation(err))

	// different fork bases
	f1 := h.Fork()
	f2 := h.Emit("b").Fork()
	_, err = f1.Join(f2)
	assert.True(t, simerr.IsContractViolation(err))

	// different timelines
	other := New[string]().Origin().Fork()
	_, err = tl.Origin().Fork().Join(other)
	assert.True(t, simerr.IsContractViolation(err))

	// branches forked separately at the same base may join
	a := h.Fork().Emit("x")
	b := h.Fork().Emit("y")
	_, err = a.Join(b)
	assert.NoError(t, err)
}

func TestLastForkBase_TracksInnermost(t *testing.T) {
	tl := New[string]()
	_, ok := tl.Origin().LastForkBase()
	assert.False(t, ok)

	outer := tl.Origin().Emit("a").Fork()
	inner := outer.Emit("b").Fork()
	base, ok := inner.LastForkBase()
	require.True(t, ok)
	assert.Equal(t, outer.Index()+1, base)

	joined, err := inner.Join(inner.Emit("c"))
	require.NoError(t, err)
	base, _ = joined.LastForkBase()
	assert.Equal(t, outer.Index(), base)
}

func TestEvaluate_NotAncestor_ContractViolation(t *testing.T) {
	tl := New[string]()
	a := tl.Origin().Emit("a")
	b := tl.Origin().Emit("b")

	_, err := Evaluate[string, string](tl, exprTrait{}, ident, a.Index(), b.Index())
	assert.True(t, simerr.IsContractViolation(err))
}

func TestEvaluate_NoncommutingTrait_ReturnsError(t *testing.T) {
	tl := New[string]()
	f := tl.Origin().Fork()
	joined, err := f.Emit("set 1").Join(f.Emit("set 2"))
	require.NoError(t, err)

	toFunc := func(label string) effect.Func[int] {
		return effect.NewFunc(label, func(m int) int { return m })
	}
	_, err = Evaluate(tl, effect.Noncommuting[int](), toFunc, Origin, joined.Index())
	require.Error(t, err)
	assert.True(t, simerr.IsNonCommuting(err))
	assert.Contains(t, err.Error(), "set 1")
}

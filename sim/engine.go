package sim

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mission-sim/mission-sim/sim/cell"
	"github.com/mission-sim/mission-sim/sim/duration"
	"github.com/mission-sim/mission-sim/sim/simerr"
	"github.com/mission-sim/mission-sim/sim/task"
	"github.com/mission-sim/mission-sim/sim/telemetry"
	"github.com/mission-sim/mission-sim/sim/timeline"
	"github.com/mission-sim/mission-sim/sim/trace"
	"github.com/mission-sim/mission-sim/sim/value"
)

// activityNamespace seeds the name-based identifiers of spawned activities.
var activityNamespace = uuid.MustParse("6f1c2d7e-4b0a-4c53-9a43-2f3c1e5d8b90")

type taskState struct {
	id       task.ID
	next     task.Task
	span     task.Span
	path     string // stable name children derive their identifiers from
	activity string // "" for helper tasks
	parent   *taskState
	spawned  int

	start   duration.Duration
	end     duration.Duration
	done    bool
	result  value.Value
	waiters []task.ID
}

type conditionState struct {
	id         uint64
	task       task.ID
	condition  task.Condition
	deps       map[cell.ID]struct{}
	generation uint64
	fresh      bool
}

type trackedResource struct {
	resourceDef
	deps       map[cell.ID]struct{}
	builder    profileBuilder
	generation uint64
	expired    bool
}

type branch struct {
	tip  timeline.History[cell.Event]
	task task.ID
}

type frame struct {
	tip      timeline.History[cell.Event]
	branches []branch
}

type batchStats struct {
	jobs, resumed, spawned, completed, conditions, resampled int
}

// Engine executes one simulation of a Model.
//
// Each call to Step runs one batch: every job due at the earliest pending
// instant. Jobs of a batch run on concurrent branches of the timeline, so
// their effects combine with the cells' Concurrently; successive batches are
// sequential. An Engine is not safe for concurrent use.
type Engine struct {
	model *Model
	tl    *timeline.Timeline[cell.Event]
	trunk timeline.History[cell.Event]
	cells *cell.LiveCells
	queue *jobQueue
	seq   uint64
	now   duration.Duration

	tasks      map[task.ID]*taskState
	order      []task.ID
	nextTask   task.ID
	conditions map[uint64]*conditionState
	nextCond   uint64
	resources  []*trackedResource
	touched    map[cell.TopicID]struct{}

	batches int
	stats   batchStats
	err     error
	trace   *trace.SimulationTrace
	metrics *telemetry.Metrics
}

// NewEngine prepares a simulation at time zero: daemons are scheduled and
// every resource takes its initial sample.
func NewEngine(model *Model, opts ...Option) (*Engine, error) {
	o := BuildOptions(opts...)
	tl := timeline.New[cell.Event]()
	e := &Engine{
		model:      model,
		tl:         tl,
		trunk:      tl.Origin(),
		cells:      cell.NewLiveCells(model.schema, tl),
		queue:      newJobQueue(),
		tasks:      make(map[task.ID]*taskState),
		conditions: make(map[uint64]*conditionState),
		touched:    make(map[cell.TopicID]struct{}),
		trace:      o.Trace,
		metrics:    o.Metrics,
	}
	for _, d := range model.daemons {
		ts, err := e.newTask(task.Span{}, d.factory, nil)
		if err != nil {
			return nil, fmt.Errorf("daemon %q: %w", d.name, err)
		}
		ts.path = "daemon/" + d.name
		e.push(job{time: 0, kind: jobTask, task: ts.id})
	}
	for _, r := range model.resources {
		e.resources = append(e.resources, &trackedResource{resourceDef: r})
	}
	if err := e.updateResources(nil, true); err != nil {
		return nil, e.fail(err)
	}
	logrus.Debugf("engine ready: %d cells, %d daemons, %d resources",
		model.schema.NumCells(), len(model.daemons), len(model.resources))
	return e, nil
}

// Now returns the time of the latest batch.
func (e *Engine) Now() duration.Duration { return e.now }

// Batches returns the number of batches executed.
func (e *Engine) Batches() int { return e.batches }

// Err returns the error that stopped the engine, if any.
func (e *Engine) Err() error { return e.err }

// ScheduleActivity starts a directive's task at start, recording it under id.
func (e *Engine) ScheduleActivity(id string, start duration.Duration, span task.Span, f task.Factory) error {
	if start < e.now {
		return simerr.Contract("activity %s scheduled at %v, before current time %v", id, start, e.now)
	}
	ts, err := e.newTask(span, f, nil)
	if err != nil {
		return err
	}
	ts.path, ts.activity, ts.start = id, id, start
	e.push(job{time: start, kind: jobTask, task: ts.id})
	return nil
}

// NextTime returns the instant of the next batch, if any job is pending.
func (e *Engine) NextTime() (duration.Duration, bool) {
	for {
		j, ok := e.queue.peek()
		if !ok {
			return 0, false
		}
		if !e.stale(j) {
			return j.time, true
		}
		e.queue.popNext()
	}
}

// Step runs the next batch if it is due no later than horizon. It reports
// whether a batch ran. Once a batch fails, every later call returns the same error.
func (e *Engine) Step(horizon duration.Duration) (bool, error) {
	if e.err != nil {
		return false, e.err
	}
	t, ok := e.NextTime()
	if !ok || t > horizon {
		return false, nil
	}
	if err := e.runBatch(t); err != nil {
		return false, e.fail(err)
	}
	return true, nil
}

func (e *Engine) fail(err error) error {
	stamp(err, e.now)
	e.err = err
	e.metrics.RecordFailure(string(simerr.CodeOf(err)))
	logrus.Warnf("[t=%v] simulation failed: %v", e.now, err)
	return err
}

// stamp records t on the first simulation error in err's chain that has no time yet.
func stamp(err error, t duration.Duration) {
	var se *simerr.Error
	if errors.As(err, &se) && !se.HasTime {
		se.Time, se.HasTime = t, true
	}
}

func (e *Engine) push(j job) {
	j.seq = e.seq
	e.seq++
	e.queue.schedule(j)
}

func (e *Engine) stale(j job) bool {
	switch j.kind {
	case jobCondition:
		c, ok := e.conditions[j.condition]
		return !ok || c.generation != j.generation
	case jobResource:
		return e.resources[j.resource].generation != j.generation
	}
	return false
}

func (e *Engine) newTask(span task.Span, f task.Factory, parent *taskState) (*taskState, error) {
	if f == nil {
		return nil, simerr.Contract("nil task factory")
	}
	ts := &taskState{
		id:     e.nextTask,
		span:   span,
		start:  e.now,
		parent: parent,
		result: value.Null{},
	}
	e.nextTask++
	if parent != nil {
		ts.path = uuid.NewSHA1(activityNamespace, []byte(fmt.Sprintf("%s/%d", parent.path, parent.spawned))).String()
		parent.spawned++
		if span.Type != "" {
			ts.activity = ts.path
		}
	}
	ts.next = f()
	e.tasks[ts.id] = ts
	e.order = append(e.order, ts.id)
	return ts, nil
}

// guard runs fn and converts a panic into an error.
func guard(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if re, ok := r.(error); ok {
				err = re
				return
			}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	fn()
	return nil
}

func (e *Engine) runBatch(t duration.Duration) error {
	if t < e.now {
		return simerr.Contract("batch at %v precedes current time %v", t, e.now)
	}
	trunk, err := e.trunk.Wait(t - e.now)
	if err != nil {
		return err
	}
	e.trunk, e.now = trunk, t
	e.stats = batchStats{}

	var resume []task.ID
	for {
		j, ok := e.queue.peek()
		if !ok || j.time != t {
			break
		}
		e.queue.popNext()
		if e.stale(j) {
			continue
		}
		e.stats.jobs++
		switch j.kind {
		case jobTask:
			if ts := e.tasks[j.task]; ts != nil && !ts.done {
				resume = append(resume, j.task)
			}
		case jobCondition:
			c := e.conditions[j.condition]
			delete(e.conditions, c.id)
			resume = append(resume, c.task)
		case jobResource:
			e.resources[j.resource].expired = true
		}
	}

	if err := e.runFrames(resume); err != nil {
		return err
	}
	return e.commit()
}

// runFrames steps every resumed task on its own fork of the trunk, and every
// spawned child on a fork of its parent, joining branches back in reverse
// order of creation.
func (e *Engine) runFrames(resume []task.ID) error {
	root := &frame{tip: e.trunk}
	for _, id := range resume {
		root.tip = root.tip.Fork()
		root.branches = append(root.branches, branch{tip: root.tip, task: id})
	}
	stack := []*frame{root}
	for {
		top := stack[len(stack)-1]
		if n := len(top.branches); n > 0 {
			b := top.branches[n-1]
			top.branches = top.branches[:n-1]
			tip, spawned, err := e.stepTask(b.task, b.tip)
			if err != nil {
				return err
			}
			stack = append(stack, &frame{tip: tip, branches: spawned})
			continue
		}
		stack = stack[:len(stack)-1]
		if len(stack) == 0 {
			if top.tip.Forked() {
				return simerr.Contract("batch at %v left an unmerged fork", e.now)
			}
			e.trunk = top.tip
			return nil
		}
		parent := stack[len(stack)-1]
		joined, err := parent.tip.Join(top.tip)
		if err != nil {
			return err
		}
		parent.tip = joined
	}
}

func (e *Engine) stepTask(id task.ID, at timeline.History[cell.Event]) (timeline.History[cell.Event], []branch, error) {
	ts := e.tasks[id]
	s := &scheduler{engine: e, self: ts, now: at}
	if ts.next == nil {
		return at, nil, simerr.TaskFailure(id.String(), ts.activity, e.now, errors.New("task has no continuation"))
	}

	var status task.Status
	var stepErr error
	if err := guard(func() { status, stepErr = ts.next.Step(s) }); err != nil {
		stepErr = err
	}
	if stepErr == nil && status == nil {
		stepErr = errors.New("step returned no status")
	}
	if stepErr != nil {
		switch simerr.CodeOf(stepErr) {
		case simerr.CodeNonCommuting, simerr.CodeContractViolation, simerr.CodeResourceFailure:
			return at, nil, stepErr
		}
		return at, nil, simerr.TaskFailure(id.String(), ts.activity, e.now, stepErr)
	}
	e.stats.resumed++

	if err := e.suspend(ts, s, status); err != nil {
		var se *simerr.Error
		if errors.As(err, &se) {
			se.TaskID, se.ActivityID = id.String(), ts.activity
		}
		return at, nil, err
	}
	return s.now, s.spawned, nil
}

// suspend records what a task waits on after a step.
func (e *Engine) suspend(ts *taskState, s *scheduler, status task.Status) error {
	switch st := status.(type) {
	case task.Completed:
		e.complete(ts, st.Value)
	case task.Delayed:
		if st.Duration < 0 {
			return simerr.Contract("negative delay %v", st.Duration)
		}
		if st.Next == nil {
			return simerr.Contract("delay without continuation")
		}
		ts.next = st.Next
		e.push(job{time: e.now.SaturatingAdd(st.Duration), kind: jobTask, task: ts.id})
	case task.CallingTask:
		if st.Next == nil || st.Child == nil {
			return simerr.Contract("call without child or continuation")
		}
		ts.next = st.Next
		child := s.spawn(st.Span, st.Child)
		if child == nil {
			return simerr.Contract("cannot spawn child")
		}
		child.waiters = append(child.waiters, ts.id)
	case task.AwaitingCondition:
		if st.Next == nil || st.Condition == nil {
			return simerr.Contract("await without condition or continuation")
		}
		ts.next = st.Next
		c := &conditionState{id: e.nextCond, task: ts.id, condition: st.Condition, fresh: true}
		e.nextCond++
		e.conditions[c.id] = c
	case task.AwaitingTask:
		target, ok := e.tasks[st.ID]
		if !ok {
			return simerr.Contract("await unknown task %s", st.ID)
		}
		if st.Next == nil {
			return simerr.Contract("await task without continuation")
		}
		ts.next = st.Next
		if target.done {
			e.push(job{time: e.now, kind: jobTask, task: ts.id})
		} else {
			target.waiters = append(target.waiters, ts.id)
		}
	default:
		return simerr.Contract("unknown task status %T", status)
	}
	return nil
}

func (e *Engine) complete(ts *taskState, result value.Value) {
	if result == nil {
		result = value.Null{}
	}
	ts.done, ts.end, ts.result, ts.next = true, e.now, result, nil
	for _, w := range ts.waiters {
		e.push(job{time: e.now, kind: jobTask, task: w})
	}
	ts.waiters = nil
	e.stats.completed++
}

// commit settles the batch: touched cells are brought up to date so that
// conflicting effects fail here, then conditions and resources that read
// those cells are recomputed.
func (e *Engine) commit() error {
	changed := make(map[cell.ID]struct{})
	for topic := range e.touched {
		for _, id := range e.model.schema.CellsForTopic(topic) {
			changed[id] = struct{}{}
		}
	}
	e.touched = make(map[cell.TopicID]struct{})

	ids := make([]int, 0, len(changed))
	for id := range changed {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	at := e.trunk.Index()
	for _, id := range ids {
		var err error
		if perr := guard(func() { _, err = e.cells.Get(cell.ID(id), at, at) }); perr != nil {
			err = perr
		}
		if err != nil {
			if simerr.CodeOf(err) != "" {
				return err
			}
			return simerr.CellFailure(e.model.schema.CellName(cell.ID(id)), e.now, err)
		}
	}

	if err := e.updateConditions(changed); err != nil {
		return err
	}
	if err := e.updateResources(changed, false); err != nil {
		return err
	}

	e.batches++
	e.metrics.RecordBatch()
	if e.trace.Enabled() {
		e.trace.RecordBatch(trace.BatchRecord{
			Clock:      int64(e.now),
			Jobs:       e.stats.jobs,
			Resumed:    e.stats.resumed,
			Spawned:    e.stats.spawned,
			Completed:  e.stats.completed,
			Conditions: e.stats.conditions,
			Resampled:  e.stats.resampled,
		})
	}
	logrus.Debugf("[t=%v] batch %d: %d jobs, %d steps, %d spawned, %d completed, %d conditions, %d resampled",
		e.now, e.batches, e.stats.jobs, e.stats.resumed, e.stats.spawned, e.stats.completed,
		e.stats.conditions, e.stats.resampled)
	return nil
}

func intersects(deps, changed map[cell.ID]struct{}) bool {
	for id := range deps {
		if _, ok := changed[id]; ok {
			return true
		}
	}
	return false
}

func (e *Engine) updateConditions(changed map[cell.ID]struct{}) error {
	ids := make([]uint64, 0, len(e.conditions))
	for id := range e.conditions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		c := e.conditions[id]
		if !c.fresh && !intersects(c.deps, changed) {
			continue
		}
		if err := e.evaluateCondition(c); err != nil {
			ts := e.tasks[c.task]
			return fmt.Errorf("condition of %s (activity %q): %w", c.task, ts.activity, err)
		}
	}
	return nil
}

func (e *Engine) evaluateCondition(c *conditionState) error {
	q := newQuerier(e)
	var offset duration.Duration
	var ok bool
	if err := guard(func() { offset, ok = c.condition.NextSatisfied(q, true, 0, duration.Max-e.now) }); err != nil {
		return err
	}
	c.deps, c.fresh = q.deps, false
	c.generation++
	e.stats.conditions++
	if ok {
		if offset < 0 {
			return simerr.Contract("condition predicted negative offset %v", offset)
		}
		e.push(job{time: e.now.SaturatingAdd(offset), kind: jobCondition, condition: c.id, generation: c.generation})
	}
	return nil
}

func (e *Engine) updateResources(changed map[cell.ID]struct{}, all bool) error {
	for i, r := range e.resources {
		if !all && !r.expired && !intersects(r.deps, changed) {
			continue
		}
		if err := e.sampleResource(i); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) sampleResource(i int) error {
	r := e.resources[i]
	r.expired = false
	q := newQuerier(e)
	var s Sample
	var serr error
	if err := guard(func() { s, serr = r.resource.Sample(q) }); err != nil {
		serr = err
	}
	if serr == nil {
		serr = r.kind.check(s.Dynamics)
	}
	if serr != nil {
		if simerr.CodeOf(serr) != "" {
			return serr
		}
		return simerr.ResourceFailure(r.name, e.now, serr)
	}
	r.deps = q.deps
	r.builder.add(e.now, s.Dynamics)
	r.generation++
	e.stats.resampled++
	if s.Expires && s.Expiry > 0 {
		e.push(job{time: e.now.SaturatingAdd(s.Expiry), kind: jobResource, resource: i, generation: r.generation})
	}
	return nil
}

// querier reads the trunk and remembers which cells were read.
type querier struct {
	engine *Engine
	deps   map[cell.ID]struct{}
}

func newQuerier(e *Engine) *querier {
	return &querier{engine: e, deps: make(map[cell.ID]struct{})}
}

func (q *querier) Now() duration.Duration { return q.engine.now }

func (q *querier) Get(id cell.ID) any {
	q.deps[id] = struct{}{}
	at := q.engine.trunk.Index()
	v, err := q.engine.cells.Get(id, at, at)
	if err != nil {
		panic(err)
	}
	return v
}

// scheduler is the task.Scheduler for one step of one task.
type scheduler struct {
	engine  *Engine
	self    *taskState
	now     timeline.History[cell.Event]
	spawned []branch
}

func (s *scheduler) Now() duration.Duration { return s.engine.now }

func (s *scheduler) Get(id cell.ID) any {
	v, err := s.engine.cells.Get(id, s.engine.trunk.Index(), s.now.Index())
	if err != nil {
		panic(err)
	}
	return v
}

func (s *scheduler) Emit(ev cell.Event) {
	s.now = s.now.Emit(ev)
	s.engine.touched[ev.Topic] = struct{}{}
}

func (s *scheduler) Spawn(span task.Span, f task.Factory) task.ID {
	child := s.spawn(span, f)
	if child == nil {
		panic(simerr.Contract("cannot spawn child with a nil factory"))
	}
	return child.id
}

func (s *scheduler) spawn(span task.Span, f task.Factory) *taskState {
	child, err := s.engine.newTask(span, f, s.self)
	if err != nil {
		return nil
	}
	s.now = s.now.Fork()
	s.spawned = append(s.spawned, branch{tip: s.now, task: child.id})
	s.engine.stats.spawned++
	return child
}

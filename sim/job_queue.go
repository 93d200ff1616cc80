package sim

import (
	"container/heap"

	"github.com/mission-sim/mission-sim/sim/duration"
	"github.com/mission-sim/mission-sim/sim/task"
)

type jobKind uint8

const (
	jobTask jobKind = iota
	jobCondition
	jobResource
)

// jobKindPriority orders jobs due at the same instant. Lower runs first.
var jobKindPriority = map[jobKind]int{
	jobTask:      0,
	jobCondition: 1,
	jobResource:  2,
}

// job is one unit of work due at a virtual instant.
type job struct {
	time duration.Duration
	kind jobKind
	seq  uint64

	task       task.ID // jobTask
	condition  uint64  // jobCondition
	resource   int     // jobResource
	generation uint64  // jobCondition, jobResource: stale when it no longer matches
}

// jobQueue implements a priority queue with deterministic ordering.
// Ordering: time → kind priority → sequence number.
type jobQueue struct {
	jobs []job
}

func newJobQueue() *jobQueue {
	q := &jobQueue{jobs: make([]job, 0)}
	heap.Init(q)
	return q
}

func (q *jobQueue) Len() int { return len(q.jobs) }

func (q *jobQueue) Less(i, j int) bool {
	a, b := q.jobs[i], q.jobs[j]
	if a.time != b.time {
		return a.time < b.time
	}
	if pa, pb := jobKindPriority[a.kind], jobKindPriority[b.kind]; pa != pb {
		return pa < pb
	}
	return a.seq < b.seq
}

func (q *jobQueue) Swap(i, j int) { q.jobs[i], q.jobs[j] = q.jobs[j], q.jobs[i] }

func (q *jobQueue) Push(x any) { q.jobs = append(q.jobs, x.(job)) }

func (q *jobQueue) Pop() any {
	old := q.jobs
	n := len(old)
	item := old[n-1]
	q.jobs = old[:n-1]
	return item
}

func (q *jobQueue) schedule(j job) { heap.Push(q, j) }

func (q *jobQueue) popNext() job { return heap.Pop(q).(job) }

// peek returns the next job without removing it.
func (q *jobQueue) peek() (job, bool) {
	if len(q.jobs) == 0 {
		return job{}, false
	}
	return q.jobs[0], true
}

package task

import (
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
)

// registry is the single source of truth for all tasks. The pending list,
// processing set and the two terminal lists partition the full task set:
// every id lives in exactly one of them at any observable instant, matching
// the task's status field. One mutex guards everything and is held only for
// O(k) bookkeeping, never across a conversion or a callback.
//
// Cancelled tasks share the failed list and are told apart by their status.
type registry struct {
	mu         sync.Mutex
	tasks      map[string]*Task
	pending    []string
	processing map[string]struct{}
	completed  []string
	failed     []string
}

func newRegistry() *registry {
	return &registry{
		tasks:      make(map[string]*Task),
		pending:    make([]string, 0),
		processing: make(map[string]struct{}),
		completed:  make([]string, 0),
		failed:     make([]string, 0),
	}
}

// add appends a new pending task and returns its id. Never fails; safe to
// call while a run is active.
func (r *registry) add(inputPath, outputPath string, options map[string]string) string {
	id := shortuuid.New()
	t := &Task{
		ID:         id,
		InputPath:  inputPath,
		OutputPath: outputPath,
		Options:    options,
		Status:     StatusPending,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[id] = t
	r.pending = append(r.pending, id)
	return id
}

// claim moves tasks from the front of the pending list into the processing
// set, strictly in submission order, up to the free capacity left under
// maxWorkers. Capacity is computed and consumed inside the same lock
// acquisition so two claims can never overlap or overshoot the bound.
func (r *registry) claim(maxWorkers int, now time.Time) []*Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	available := maxWorkers - len(r.processing)
	if available <= 0 || len(r.pending) == 0 {
		return nil
	}
	if available > len(r.pending) {
		available = len(r.pending)
	}

	claimed := make([]*Task, 0, available)
	for i := 0; i < available; i++ {
		id := r.pending[0]
		r.pending = r.pending[1:]
		t := r.tasks[id]
		t.Status = StatusProcessing
		t.StartedAt = now
		r.processing[id] = struct{}{}
		claimed = append(claimed, t)
	}
	return claimed
}

// finish records a worker's outcome. An empty errMsg means success. The task
// must be in the processing set; finishing is a no-op otherwise, so a late
// worker can never resurrect a reset registry.
func (r *registry) finish(id, errMsg string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return
	}
	if _, ok := r.processing[id]; !ok {
		return
	}
	delete(r.processing, id)
	t.EndedAt = now
	if errMsg == "" {
		t.Status = StatusCompleted
		r.completed = append(r.completed, id)
	} else {
		t.Status = StatusFailed
		t.Error = errMsg
		r.failed = append(r.failed, id)
	}
}

// cancelPending relabels every still-pending task as cancelled in one lock
// acquisition and returns how many were moved. In-flight tasks are untouched.
func (r *registry) cancelPending(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.pending)
	for _, id := range r.pending {
		t := r.tasks[id]
		t.Status = StatusCancelled
		t.EndedAt = now
		r.failed = append(r.failed, id)
	}
	r.pending = r.pending[:0]
	return n
}

// counts returns the sizes of the live partitions.
func (r *registry) counts() (pending, processing int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending), len(r.processing)
}

// terminalCount is the number of tasks that reached a final state.
func (r *registry) terminalCount() (terminal, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.completed) + len(r.failed), len(r.tasks)
}

// get returns a copy of the task so callers never observe a partial write.
func (r *registry) get(id string) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// reset clears the whole registry. Individual tasks are never removed.
func (r *registry) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = make(map[string]*Task)
	r.pending = r.pending[:0]
	r.processing = make(map[string]struct{})
	r.completed = r.completed[:0]
	r.failed = r.failed[:0]
}

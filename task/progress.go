package task

import "time"

// TaskInfo is a point-in-time view of one task, safe to hand to callers and
// to serialize. Duration is in seconds, live for processing tasks.
type TaskInfo struct {
	ID         string  `json:"id"`
	InputPath  string  `json:"inputPath"`
	OutputPath string  `json:"outputPath"`
	Status     Status  `json:"status"`
	Error      string  `json:"error,omitempty"`
	Duration   float64 `json:"duration"`
}

// ProgressInfo aggregates the registry's current state. Cancelled tasks are
// reported inside the Failed bucket, distinguished by their status.
type ProgressInfo struct {
	Pending        []TaskInfo `json:"pending"`
	Processing     []TaskInfo `json:"processing"`
	Completed      []TaskInfo `json:"completed"`
	Failed         []TaskInfo `json:"failed"`
	Total          int        `json:"total"`
	CompletedCount int        `json:"completedCount"`
	FailedCount    int        `json:"failedCount"`
	CancelledCount int        `json:"cancelledCount"`
	Percentage     int        `json:"percentage"`
}

// Results is the terminal-state summary of a batch, meaningful once the run
// has drained.
type Results struct {
	Total       int     `json:"total"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	Cancelled   int     `json:"cancelled"`
	SuccessRate float64 `json:"successRate"`
}

func infoOf(t *Task, now time.Time) TaskInfo {
	info := TaskInfo{
		ID:         t.ID,
		InputPath:  t.InputPath,
		OutputPath: t.OutputPath,
		Status:     t.Status,
		Error:      t.Error,
	}
	switch {
	case t.StartedAt.IsZero():
	case t.EndedAt.IsZero():
		info.Duration = now.Sub(t.StartedAt).Seconds()
	default:
		info.Duration = t.EndedAt.Sub(t.StartedAt).Seconds()
	}
	return info
}

// snapshot builds a fresh aggregation under one short lock acquisition. It is
// never cached, so it cannot drift from the registry's ground truth.
func (r *registry) snapshot() ProgressInfo {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	p := ProgressInfo{
		Pending:    make([]TaskInfo, 0, len(r.pending)),
		Processing: make([]TaskInfo, 0, len(r.processing)),
		Completed:  make([]TaskInfo, 0, len(r.completed)),
		Failed:     make([]TaskInfo, 0, len(r.failed)),
		Total:      len(r.tasks),
	}
	for _, id := range r.pending {
		p.Pending = append(p.Pending, infoOf(r.tasks[id], now))
	}
	for id := range r.processing {
		p.Processing = append(p.Processing, infoOf(r.tasks[id], now))
	}
	for _, id := range r.completed {
		p.Completed = append(p.Completed, infoOf(r.tasks[id], now))
	}
	for _, id := range r.failed {
		t := r.tasks[id]
		p.Failed = append(p.Failed, infoOf(t, now))
		if t.Status == StatusCancelled {
			p.CancelledCount++
		} else {
			p.FailedCount++
		}
	}
	p.CompletedCount = len(r.completed)
	if p.Total > 0 {
		p.Percentage = (p.CompletedCount + p.FailedCount + p.CancelledCount) * 100 / p.Total
	}
	return p
}

func (r *registry) results() Results {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := Results{
		Total:     len(r.tasks),
		Completed: len(r.completed),
	}
	for _, id := range r.failed {
		if r.tasks[id].Status == StatusCancelled {
			res.Cancelled++
		} else {
			res.Failed++
		}
	}
	if res.Total > 0 {
		res.SuccessRate = float64(res.Completed) / float64(res.Total) * 100
	}
	return res
}

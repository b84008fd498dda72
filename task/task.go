package task

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Task describes one conversion job and its lifecycle state. ID, paths and
// options are immutable after creation; everything else is written only under
// the registry lock.
type Task struct {
	ID         string            `json:"id"`
	InputPath  string            `json:"inputPath"`
	OutputPath string            `json:"outputPath"`
	Options    map[string]string `json:"options,omitempty"`
	Status     Status            `json:"status"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"startedAt,omitempty"`
	EndedAt    time.Time         `json:"endedAt,omitempty"`
}

// Duration reports how long the task has been running, or how long it ran.
// Zero until the task is claimed.
func (t *Task) Duration() time.Duration {
	if t.StartedAt.IsZero() {
		return 0
	}
	if t.EndedAt.IsZero() {
		return time.Since(t.StartedAt)
	}
	return t.EndedAt.Sub(t.StartedAt)
}

// Terminal reports whether the task has reached a final state.
func (t *Task) Terminal() bool {
	switch t.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Package status tracks the state of long-running tasks for the ops API.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/radio-playlist-archiver/internal/playlist"
)

// State is the lifecycle stage of a task.
type State string

// Task states.
const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// Task is a point-in-time view of one tracked task.
type Task struct {
	Name       string     `json:"name"`
	State      State      `json:"state"`
	Progress   int        `json:"progress"`
	Message    string     `json:"message,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Tracker holds task states. It is safe for concurrent use.
type Tracker struct {
	mu    sync.RWMutex
	tasks map[string]Task
	clock playlist.Clock
}

// New creates an empty Tracker.
func New(clock playlist.Clock) *Tracker {
	return &Tracker{tasks: make(map[string]Task), clock: clock}
}

// Register adds an idle task unless one with the name already exists.
func (t *Tracker) Register(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.tasks[name]; ok {
		return
	}
	t.tasks[name] = Task{Name: name, State: StateIdle, UpdatedAt: t.clock.Now()}
}

// Start marks the task running with zero progress.
func (t *Tracker) Start(name, message string) {
	t.update(name, func(task *Task, now time.Time) {
		task.State = StateRunning
		task.Progress = 0
		task.Message = message
		task.StartedAt = &now
		task.FinishedAt = nil
	})
}

// Progress records completion percentage, clamped to 0..100.
func (t *Tracker) Progress(name string, percent int, message string) {
	t.update(name, func(task *Task, _ time.Time) {
		task.Progress = min(max(percent, 0), 100)
		if message != "" {
			task.Message = message
		}
	})
}

// Finish marks the task done.
func (t *Tracker) Finish(name, message string) {
	t.update(name, func(task *Task, now time.Time) {
		task.State = StateDone
		task.Progress = 100
		task.Message = message
		task.FinishedAt = &now
	})
}

// Fail marks the task failed with the error text.
func (t *Tracker) Fail(name string, err error) {
	t.update(name, func(task *Task, now time.Time) {
		task.State = StateFailed
		if err != nil {
			task.Message = err.Error()
		}
		task.FinishedAt = &now
	})
}

// Get returns the named task.
func (t *Tracker) Get(name string) (Task, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	task, ok := t.tasks[name]
	return task, ok
}

// Snapshot returns all tasks sorted by name.
func (t *Tracker) Snapshot() []Task {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Task, 0, len(t.tasks))
	for _, task := range t.tasks {
		out = append(out, task)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (t *Tracker) update(name string, fn func(*Task, time.Time)) {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.tasks[name]
	if !ok {
		task = Task{Name: name, State: StateIdle}
	}
	fn(&task, now)
	task.UpdatedAt = now
	t.tasks[name] = task
}

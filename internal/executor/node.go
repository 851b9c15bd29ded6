package executor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/markovbuild/internal/config"
)

// Outcome is the execution state of a task.
type Outcome int32

const (
	// Pending indicates the task is waiting for its dependencies.
	Pending Outcome = iota
	// Running indicates a worker is executing the task.
	Running
	// Executed indicates the task ran and succeeded.
	Executed
	// UpToDate indicates the task was skipped because nothing changed.
	UpToDate
	// Failed indicates the task ran and returned an error.
	Failed
	// Skipped indicates the task never ran because an upstream task
	// failed or the build was cancelled.
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "PENDING"
	case Running:
		return "RUNNING"
	case Executed:
		return "EXECUTED"
	case UpToDate:
		return "UP-TO-DATE"
	case Failed:
		return "FAILED"
	case Skipped:
		return "SKIPPED"
	}
	return "UNKNOWN"
}

// MarshalText renders the outcome by name in JSON documents.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Node is a single task in the execution graph.
type Node struct {
	ID   string
	Task *config.Task

	deps       []*Node
	dependents []*Node

	// depCount is an atomic counter for unmet dependencies.
	depCount atomic.Int32
	// state holds the node's Outcome.
	state atomic.Int32
	// settleOnce guarantees a node reaches a terminal state exactly once.
	settleOnce sync.Once

	mu       sync.Mutex
	err      error
	started  time.Time
	duration time.Duration
}

// Outcome atomically retrieves the node's state.
func (n *Node) Outcome() Outcome {
	return Outcome(n.state.Load())
}

func (n *Node) start(now time.Time) {
	n.mu.Lock()
	n.started = now
	n.mu.Unlock()
	n.state.Store(int32(Running))
}

// settle moves the node into a terminal state. It returns false when the
// node had already been settled.
func (n *Node) settle(o Outcome, err error, now time.Time) bool {
	settled := false
	n.settleOnce.Do(func() {
		n.mu.Lock()
		n.err = err
		if !n.started.IsZero() {
			n.duration = now.Sub(n.started)
		}
		n.mu.Unlock()
		n.state.Store(int32(o))
		settled = true
	})
	return settled
}

// Result is a point-in-time view of a node.
type Result struct {
	TaskID   string        `json:"id"`
	Name     string        `json:"name"`
	Outcome  Outcome       `json:"outcome"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	Err      error         `json:"-"`
}

func (n *Node) result() Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	r := Result{
		TaskID:   n.ID,
		Outcome:  n.Outcome(),
		Duration: n.duration,
		Err:      n.err,
	}
	if n.Task != nil {
		r.Name = n.Task.Name
	}
	if n.err != nil {
		r.Error = n.err.Error()
	}
	return r
}

package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/markovbuild/internal/ctxlog"
	"github.com/vk/markovbuild/internal/dag"
	"github.com/vk/markovbuild/internal/registry"
	"github.com/vk/markovbuild/internal/statestore"
)

// DefaultWorkers is the worker pool size used when Options.Workers is unset.
const DefaultWorkers = 4

// Options tunes a single execution.
type Options struct {
	Workers int
	// RerunTasks disables the up-to-date check.
	RerunTasks bool
	Properties map[string]string
	ProjectDir string
	Stdout     io.Writer
	Stderr     io.Writer
	// Env is the child process environment; nil means os.Environ().
	Env []string
}

// StateStore persists task fingerprints between builds.
type StateStore interface {
	TaskState(ctx context.Context, taskID string) (*statestore.TaskState, bool, error)
	PutTaskState(ctx context.Context, st statestore.TaskState) error
	DeleteTaskState(ctx context.Context, taskID string) error
}

// Reporter receives task lifecycle events. Calls may come from several
// workers at once.
type Reporter interface {
	TaskStarted(r Result)
	TaskFinished(r Result)
}

// Executor runs one task graph.
type Executor struct {
	registry *registry.Registry
	evalCtx  *hcl.EvalContext
	state    StateStore
	reporter Reporter
	opts     Options
	now      func() time.Time

	nodes []*Node
	wg    sync.WaitGroup
}

// New prepares an executor for the graph. state and reporter may be nil.
func New(g *dag.Graph, r *registry.Registry, evalCtx *hcl.EvalContext, opts Options, state StateStore, reporter Reporter) (*Executor, error) {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	if opts.Env == nil {
		opts.Env = os.Environ()
	}

	order, err := g.Order()
	if err != nil {
		return nil, err
	}

	e := &Executor{
		registry: r,
		evalCtx:  evalCtx,
		state:    state,
		reporter: reporter,
		opts:     opts,
		now:      time.Now,
	}
	byID := make(map[string]*Node, len(order))
	for _, id := range order {
		task, ok := g.Task(id)
		if !ok {
			return nil, fmt.Errorf("node %s has no task attached", id)
		}
		n := &Node{ID: id, Task: task}
		byID[id] = n
		e.nodes = append(e.nodes, n)
	}
	for _, n := range e.nodes {
		deps, err := g.Dependencies(n.ID)
		if err != nil {
			return nil, err
		}
		for _, depID := range deps {
			dep := byID[depID]
			n.deps = append(n.deps, dep)
			dep.dependents = append(dep.dependents, n)
		}
		n.depCount.Store(int32(len(deps)))
	}
	return e, nil
}

// Run executes the graph concurrently and returns the root-cause error if
// any task fails. It respects the cancellation signal from ctx.
func (e *Executor) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	readyChan := make(chan *Node, len(e.nodes))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rootCount := 0
	for _, n := range e.nodes {
		if n.depCount.Load() == 0 {
			readyChan <- n
			rootCount++
		}
	}
	logger.Debug("Found all root nodes.", "count", rootCount)

	e.wg.Add(len(e.nodes))

	logger.Debug("Starting worker pool.", "workers", e.opts.Workers)
	var workers sync.WaitGroup
	for i := 0; i < e.opts.Workers; i++ {
		workers.Add(1)
		go func(id int) {
			defer workers.Done()
			e.worker(runCtx, readyChan, cancel, id)
		}(i)
	}

	e.wg.Wait()
	close(readyChan)
	workers.Wait()
	logger.Debug("All nodes settled.")

	for _, n := range e.nodes {
		if n.Outcome() == Failed {
			r := n.result()
			return fmt.Errorf("execution failed for %s: %w", n.ID, r.Err)
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("build cancelled: %w", err)
	}
	return nil
}

// Snapshot returns the current state of every node in execution order.
func (e *Executor) Snapshot() []Result {
	out := make([]Result, len(e.nodes))
	for i, n := range e.nodes {
		out[i] = n.result()
	}
	return out
}

// skip settles a node as Skipped and cascades to its dependents.
func (e *Executor) skip(ctx context.Context, n *Node, reason error) {
	if !n.settle(Skipped, reason, e.now()) {
		return
	}
	e.report(n, false)
	e.wg.Done()
	e.skipDependents(ctx, n)
}

// skipDependents recursively marks all downstream nodes as skipped.
func (e *Executor) skipDependents(ctx context.Context, n *Node) {
	logger := ctxlog.FromContext(ctx)
	for _, dependent := range n.dependents {
		logger.Debug("Skipping dependent node due to upstream failure.", "nodeID", dependent.ID, "dependency", n.ID)
		e.skip(ctx, dependent, fmt.Errorf("skipped due to upstream failure of '%s'", n.ID))
	}
}

// worker is the core processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *Node, cancel context.CancelFunc, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for n := range readyChan {
		nodeCtx := ctxlog.With(ctx, "workerID", workerID, "nodeID", n.ID)
		workerLogger := ctxlog.FromContext(nodeCtx)

		if ctx.Err() != nil {
			workerLogger.Debug("Context canceled, skipping node execution.")
			e.skip(nodeCtx, n, fmt.Errorf("skipped: %w", ctx.Err()))
			continue
		}

		n.start(e.now())
		e.report(n, true)
		outcome, err := e.execute(nodeCtx, n)

		switch {
		case err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()):
			// Interrupted by another task's failure or by the user.
			workerLogger.Debug("Node interrupted.", "error", err)
			e.skip(nodeCtx, n, err)
		case err != nil:
			workerLogger.Error("Node execution failed.", "error", err)
			if n.settle(Failed, err, e.now()) {
				e.report(n, false)
				cancel()
				e.skipDependents(nodeCtx, n)
				e.wg.Done()
			}
		default:
			workerLogger.Debug("Node execution succeeded.", "outcome", outcome)
			if n.settle(outcome, nil, e.now()) {
				e.report(n, false)
				for _, dependent := range n.dependents {
					if dependent.depCount.Add(-1) == 0 {
						workerLogger.Debug("Unlocking dependent node.", "dependentID", dependent.ID)
						readyChan <- dependent
					}
				}
				e.wg.Done()
			}
		}
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

func (e *Executor) report(n *Node, started bool) {
	if e.reporter == nil {
		return
	}
	if started {
		e.reporter.TaskStarted(n.result())
		return
	}
	e.reporter.TaskFinished(n.result())
}

package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/vk/markovbuild/internal/ctxlog"
	"github.com/vk/markovbuild/internal/dag"
	"github.com/vk/markovbuild/internal/executor"
	"github.com/vk/markovbuild/internal/filelock"
	"github.com/vk/markovbuild/internal/statestore"
	"github.com/vk/markovbuild/internal/watch"
)

// ErrInvalidRequest marks errors caused by the requested task list rather
// than by a task.
var ErrInvalidRequest = errors.New("invalid task request")

// ErrBuildRunning is returned when another build holds the project lock.
var ErrBuildRunning = errors.New("another build is running in this project")

// Run executes the requested tasks and their dependencies. In continuous
// mode it then waits for input changes and runs again until ctx is done.
func (a *App) Run(ctx context.Context, tasks []string) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.", "tasks", tasks)

	if len(tasks) == 0 {
		return fmt.Errorf("%w: no tasks given", ErrInvalidRequest)
	}
	sub, err := a.graph.Select(tasks...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	order, err := sub.Order()
	if err != nil {
		return err
	}

	if a.cfg.DryRun {
		names := make([]string, len(order))
		for i, id := range order {
			t, _ := sub.Task(id)
			names[i] = t.Name
		}
		a.console.Plan(names)
		return nil
	}

	lock := filelock.New(filepath.Join(a.stateDir(), BuildLockFile))
	if err := lock.Acquire(); err != nil {
		if errors.Is(err, filelock.ErrLocked) {
			return fmt.Errorf("%w: %s", ErrBuildRunning, a.model.Project.Dir)
		}
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			a.logger.Warn("Failed to release build lock.", "error", err)
		}
	}()

	store, err := statestore.Open(ctx, a.stateDir())
	if err != nil {
		return err
	}
	defer store.Close()

	if a.statusPort > 0 {
		a.startStatusServer(ctx, a.statusPort)
		defer a.closeStatusServer(ctx)
	}

	for {
		runErr := a.runOnce(ctx, store, sub, tasks)
		if !a.cfg.Continuous || ctx.Err() != nil {
			return runErr
		}
		changed, err := a.waitForChanges(ctx, sub)
		if err != nil {
			if ctx.Err() != nil {
				a.logger.Info("Continuous build stopped.")
				return nil
			}
			return err
		}
		a.logger.Info("Change detected, rebuilding.", "paths", changed)
	}
}

// runOnce executes the selected graph a single time and records the run.
func (a *App) runOnce(ctx context.Context, store *statestore.Store, sub *dag.Graph, tasks []string) error {
	runID, err := store.BeginRun(ctx, tasks)
	if err != nil {
		return err
	}
	ctx = ctxlog.With(ctx, "run_id", runID)

	exec, err := executor.New(sub, a.registry, a.model.EvalContext, executor.Options{
		Workers:    a.workers,
		RerunTasks: a.cfg.RerunTasks,
		Properties: a.properties,
		ProjectDir: a.model.Project.Dir,
		Stdout:     a.outW,
		Stderr:     a.outW,
	}, store, a.console)
	if err != nil {
		return err
	}
	a.setCurrent(exec)

	ctxlog.FromContext(ctx).Info("Starting build.", "tasks", tasks, "workers", a.workers)
	start := time.Now()
	runErr := exec.Run(ctx)
	a.console.Summary(exec.Snapshot(), runErr, time.Since(start))

	if err := store.FinishRun(context.WithoutCancel(ctx), runID, runErr); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to record run result.", "error", err)
	}
	return runErr
}

// waitForChanges blocks until an input of a selected task or a descriptor
// file changes.
func (a *App) waitForChanges(ctx context.Context, sub *dag.Graph) ([]string, error) {
	paths := append([]string(nil), a.model.Files...)
	for _, id := range sub.Nodes() {
		t, _ := sub.Task(id)
		for _, in := range t.Inputs {
			paths = append(paths, a.model.Project.Resolve(in))
		}
	}

	w, err := watch.New(paths, watch.DefaultDebounce)
	if err != nil {
		return nil, err
	}
	defer w.Close()

	a.console.Waiting()
	return w.Wait(ctx)
}

func (a *App) setCurrent(e *executor.Executor) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = e
}

// snapshot returns the task states of the current or last run.
func (a *App) snapshot() []executor.Result {
	a.mu.Lock()
	e := a.current
	a.mu.Unlock()
	if e == nil {
		return []executor.Result{}
	}
	return e.Snapshot()
}

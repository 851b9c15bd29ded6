package executor

import (
	"context"
	"fmt"

	"github.com/vk/markovbuild/internal/ctxlog"
	"github.com/vk/markovbuild/internal/fingerprint"
	"github.com/vk/markovbuild/internal/registry"
	"github.com/vk/markovbuild/internal/statestore"
)

// execute decodes the task's arguments, checks whether it is up to date
// and otherwise runs its handler.
func (e *Executor) execute(ctx context.Context, n *Node) (Outcome, error) {
	logger := ctxlog.FromContext(ctx)
	task := n.Task

	runner, ok := e.registry.Runner(task.Type)
	if !ok {
		return Failed, fmt.Errorf("no runner registered for task type %q", task.Type)
	}
	input, err := e.registry.Decode(task, e.evalCtx)
	if err != nil {
		return Failed, err
	}

	var inputHash string
	trackState := e.state != nil && len(task.Outputs) > 0
	if trackState {
		inputHash, err = fingerprint.Paths(ctx, e.opts.ProjectDir, task.Inputs)
		if err != nil {
			return Failed, err
		}
		if !e.opts.RerunTasks {
			upToDate, err := e.upToDate(ctx, n, inputHash)
			if err != nil {
				logger.Warn("Up-to-date check failed, executing task.", "error", err)
			} else if upToDate {
				return UpToDate, nil
			}
		}
	}

	rc := &registry.RunContext{
		TaskID:     task.ID(),
		TaskName:   task.Name,
		ProjectDir: e.opts.ProjectDir,
		Properties: e.opts.Properties,
		Stdout:     e.opts.Stdout,
		Stderr:     e.opts.Stderr,
		Env:        e.opts.Env,
	}
	logger.Info("Executing task.", "task", task.Name, "type", task.Type)
	if err := runner.Fn(ctx, rc, input); err != nil {
		if trackState {
			e.forgetState(ctx, n)
		}
		return Failed, err
	}

	if trackState {
		e.recordState(ctx, n, inputHash)
	}
	return Executed, nil
}

// upToDate reports whether the recorded state of the task matches its
// current configuration, inputs and outputs.
func (e *Executor) upToDate(ctx context.Context, n *Node, inputHash string) (bool, error) {
	prev, found, err := e.state.TaskState(ctx, n.ID)
	if err != nil || !found {
		return false, err
	}
	if prev.ConfigHash != n.Task.ConfigHash || prev.InputHash != inputHash {
		return false, nil
	}
	outputHash, err := fingerprint.Paths(ctx, e.opts.ProjectDir, n.Task.Outputs)
	if err != nil {
		return false, err
	}
	return prev.OutputHash == outputHash, nil
}

func (e *Executor) recordState(ctx context.Context, n *Node, inputHash string) {
	logger := ctxlog.FromContext(ctx)
	outputHash, err := fingerprint.Paths(ctx, e.opts.ProjectDir, n.Task.Outputs)
	if err != nil {
		logger.Warn("Failed to fingerprint task outputs.", "error", err)
		return
	}
	err = e.state.PutTaskState(ctx, statestore.TaskState{
		TaskID:     n.ID,
		ConfigHash: n.Task.ConfigHash,
		InputHash:  inputHash,
		OutputHash: outputHash,
	})
	if err != nil {
		logger.Warn("Failed to record task state.", "error", err)
	}
}

// forgetState drops the recorded state of a task whose run failed, so
// partially written outputs are never taken as up to date.
func (e *Executor) forgetState(ctx context.Context, n *Node) {
	if err := e.state.DeleteTaskState(context.WithoutCancel(ctx), n.ID); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to clear task state.", "error", err)
	}
}

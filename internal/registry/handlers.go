package registry

import (
	"context"
	"io"
	"path/filepath"
	"strings"
)

// RunContext carries what a runner needs to know about the task it executes.
type RunContext struct {
	TaskID string
	// TaskName labels the task's streamed output.
	TaskName string
	// ProjectDir is the absolute project root.
	ProjectDir string
	// Properties are the invoker properties (settings file overlaid by -D).
	Properties map[string]string
	Stdout     io.Writer
	Stderr     io.Writer
	// Env is the environment handed to child processes, KEY=value form.
	Env []string
}

// Path resolves p against the project root unless it is absolute.
func (rc *RunContext) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(rc.ProjectDir, p)
}

// OutputPrefix is prepended to each line a task's child process prints,
// so output of tasks running in parallel can be told apart.
func (rc *RunContext) OutputPrefix() string {
	if rc.TaskName == "" {
		return ""
	}
	return "[" + rc.TaskName + "] "
}

// Getenv looks up key in Env. Later entries win.
func (rc *RunContext) Getenv(key string) string {
	prefix := key + "="
	for i := len(rc.Env) - 1; i >= 0; i-- {
		if v, ok := strings.CutPrefix(rc.Env[i], prefix); ok {
			return v
		}
	}
	return ""
}

// HandlerFunc executes one task. input is the value returned by the
// runner's NewInput, decoded from the task's arguments and validated.
type HandlerFunc func(ctx context.Context, rc *RunContext, input any) error

// RegisteredRunner holds the Go parts of a task type.
type RegisteredRunner struct {
	// NewInput returns a pointer to a fresh input struct. Fields preset
	// here act as defaults for omitted optional arguments.
	NewInput    func() any
	Fn          HandlerFunc
	Description string
}

package exec

import (
	"context"

	"github.com/vk/markovbuild/internal/ctxlog"
	"github.com/vk/markovbuild/internal/procexec"
	"github.com/vk/markovbuild/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the exec runner.
type Input struct {
	Command     []string          `hcl:"command" validate:"required,min=1,dive,required"`
	WorkingDir  string            `hcl:"working_dir,optional"`
	Environment map[string]string `hcl:"environment,optional"`
}

// OnRunExec runs an external command and fails on a non-zero exit.
func OnRunExec(ctx context.Context, rc *registry.RunContext, input any) error {
	in := input.(*Input)
	logger := ctxlog.FromContext(ctx)

	dir := rc.ProjectDir
	if in.WorkingDir != "" {
		dir = rc.Path(in.WorkingDir)
	}

	cmd := procexec.Command{
		Path:   in.Command[0],
		Args:   in.Command[1:],
		Dir:    dir,
		Env:    procexec.MergeEnv(rc.Env, in.Environment),
		Stdout: rc.Stdout,
		Stderr: rc.Stderr,
		Prefix: rc.OutputPrefix(),
	}
	logger.Info("Running command.", "command", cmd.String(), "dir", dir)
	return procexec.Run(ctx, cmd)
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("exec", &registry.RegisteredRunner{
		NewInput:    func() any { return new(Input) },
		Fn:          OnRunExec,
		Description: "Runs an external command such as npm.",
	})
}

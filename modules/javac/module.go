package javac

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/markovbuild/internal/ctxlog"
	"github.com/vk/markovbuild/internal/fsutil"
	"github.com/vk/markovbuild/internal/jdk"
	"github.com/vk/markovbuild/internal/procexec"
	"github.com/vk/markovbuild/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the javac runner.
type Input struct {
	SourceDir   string   `hcl:"source_dir" validate:"required"`
	Destination string   `hcl:"destination" validate:"required"`
	Classpath   []string `hcl:"classpath,optional"`
	Release     string   `hcl:"release,optional" validate:"omitempty,numeric"`
	Encoding    string   `hcl:"encoding,optional"`
	Args        []string `hcl:"args,optional"`
	// Javac overrides the compiler executable.
	Javac string `hcl:"javac,optional"`
}

// Arguments returns the compiler arguments for the given sources, without
// the executable.
func Arguments(rc *registry.RunContext, in *Input, sources []string) []string {
	args := []string{"-d", rc.Path(in.Destination)}
	if len(in.Classpath) > 0 {
		cp := make([]string, len(in.Classpath))
		for i, e := range in.Classpath {
			cp[i] = rc.Path(e)
		}
		args = append(args, "-cp", jdk.Classpath(cp))
	}
	if in.Release != "" {
		args = append(args, "--release", in.Release)
	}
	if in.Encoding != "" {
		args = append(args, "-encoding", in.Encoding)
	}
	args = append(args, in.Args...)
	return append(args, sources...)
}

// OnRunJavac compiles every .java file under source_dir into destination.
// Arguments are passed through an @argfile to stay below command-line
// length limits.
func OnRunJavac(ctx context.Context, rc *registry.RunContext, input any) error {
	in := input.(*Input)
	logger := ctxlog.FromContext(ctx)

	sources, err := fsutil.FindFilesByExtension(rc.Path(in.SourceDir), ".java")
	if err != nil {
		return fmt.Errorf("collecting sources: %w", err)
	}
	if len(sources) == 0 {
		return fmt.Errorf("no Java sources under %s", in.SourceDir)
	}
	if err := os.MkdirAll(rc.Path(in.Destination), 0o755); err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}

	argDir, err := os.MkdirTemp("", "markovbuild-javac-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(argDir)
	argFile := filepath.Join(argDir, "javac.args")
	if err := jdk.WriteArgFile(argFile, Arguments(rc, in, sources)); err != nil {
		return fmt.Errorf("writing argfile: %w", err)
	}

	cmd := procexec.Command{
		Path:   jdk.Tool(rc.Getenv("JAVA_HOME"), in.Javac, "javac"),
		Args:   []string{"@" + argFile},
		Dir:    rc.ProjectDir,
		Env:    rc.Env,
		Stdout: rc.Stdout,
		Stderr: rc.Stderr,
		Prefix: rc.OutputPrefix(),
	}
	logger.Info("Compiling Java sources.", "count", len(sources), "destination", in.Destination)
	if err := procexec.Run(ctx, cmd); err != nil {
		if procexec.ExitCode(err) > 0 {
			return errors.New("compilation failed; see compiler output")
		}
		return err
	}
	return nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("javac", &registry.RegisteredRunner{
		NewInput:    func() any { return &Input{Encoding: "UTF-8"} },
		Fn:          OnRunJavac,
		Description: "Compiles Java sources.",
	})
}

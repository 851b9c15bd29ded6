package java_exec

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vk/markovbuild/internal/ctxlog"
	"github.com/vk/markovbuild/internal/filelock"
	"github.com/vk/markovbuild/internal/jdk"
	"github.com/vk/markovbuild/internal/procexec"
	"github.com/vk/markovbuild/internal/props"
	"github.com/vk/markovbuild/internal/registry"
)

// DefaultMaxHeap is the JVM heap ceiling when max_heap is not given.
const DefaultMaxHeap = "2g"

const lockRetry = 250 * time.Millisecond

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the java_exec runner.
type Input struct {
	MainClass string   `hcl:"main_class" validate:"required"`
	Classpath []string `hcl:"classpath,optional"`
	Args      []string `hcl:"args,optional"`
	// JVMArgs may not size the heap; max_heap owns the ceiling.
	JVMArgs          []string          `hcl:"jvm_args,optional" validate:"dive,jvm_arg"`
	SystemProperties map[string]string `hcl:"system_properties,optional"`
	// ForwardProperties is the allow-list of invoker properties passed to
	// the JVM as system properties under the same names.
	ForwardProperties []string `hcl:"forward_properties,optional"`
	MaxHeap           string   `hcl:"max_heap,optional" validate:"jvm_memory"`
	WorkingDir        string   `hcl:"working_dir,optional"`
	// Java overrides the launcher executable.
	Java string `hcl:"java,optional"`
	// LockFile is held exclusively while the JVM runs.
	LockFile string `hcl:"lock_file,optional"`
}

// BuildCommand assembles the JVM command line:
//
//	java -Xmx<heap> [jvm_args] [-D static] [-D forwarded] -cp <classpath> <main> [args]
//
// Static and forwarded properties are each emitted in name order. A
// forwarded property replaces a static one of the same name.
func BuildCommand(rc *registry.RunContext, in *Input) procexec.Command {
	heap := in.MaxHeap
	if heap == "" {
		heap = DefaultMaxHeap
	}
	args := []string{"-Xmx" + heap}
	args = append(args, in.JVMArgs...)

	forwarded := props.Forward(rc.Properties, in.ForwardProperties)
	for _, name := range props.SortedKeys(in.SystemProperties) {
		if _, overridden := forwarded[name]; overridden {
			continue
		}
		args = append(args, jdk.SystemProperty(name, in.SystemProperties[name]))
	}
	for _, name := range props.SortedKeys(forwarded) {
		args = append(args, jdk.SystemProperty(name, forwarded[name]))
	}

	if len(in.Classpath) > 0 {
		cp := make([]string, len(in.Classpath))
		for i, e := range in.Classpath {
			cp[i] = rc.Path(e)
		}
		args = append(args, "-cp", jdk.Classpath(cp))
	}
	args = append(args, in.MainClass)
	args = append(args, in.Args...)

	dir := rc.ProjectDir
	if in.WorkingDir != "" {
		dir = rc.Path(in.WorkingDir)
	}
	return procexec.Command{
		Path:   jdk.Tool(rc.Getenv("JAVA_HOME"), in.Java, "java"),
		Args:   args,
		Dir:    dir,
		Env:    rc.Env,
		Stdout: rc.Stdout,
		Stderr: rc.Stderr,
		Prefix: rc.OutputPrefix(),
	}
}

// OnRunJavaExec launches the JVM and waits for it to exit.
func OnRunJavaExec(ctx context.Context, rc *registry.RunContext, input any) error {
	in := input.(*Input)
	logger := ctxlog.FromContext(ctx)

	if in.LockFile != "" {
		lock := filelock.New(rc.Path(in.LockFile))
		logger.Debug("Acquiring launch lock.", "path", lock.Path())
		if err := lock.LockContext(ctx, lockRetry); err != nil {
			return err
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				logger.Warn("Failed to release launch lock.", "error", err)
			}
		}()
	}

	cmd := BuildCommand(rc, in)
	logger.Info("Launching JVM.", "main_class", in.MainClass, "command", cmd.String())
	return procexec.Run(ctx, cmd)
}

// validateMemory implements the jvm_memory validation tag.
func validateMemory(fl validator.FieldLevel) bool {
	return jdk.ValidMemory(fl.Field().String())
}

// validateJVMArg implements the jvm_arg validation tag.
func validateJVMArg(fl validator.FieldLevel) bool {
	return !jdk.SetsMaxHeap(fl.Field().String())
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	if err := r.RegisterValidation("jvm_memory", validateMemory); err != nil {
		panic(fmt.Sprintf("registering jvm_memory validation: %v", err))
	}
	if err := r.RegisterValidation("jvm_arg", validateJVMArg); err != nil {
		panic(fmt.Sprintf("registering jvm_arg validation: %v", err))
	}
	r.RegisterRunner("java_exec", &registry.RegisteredRunner{
		NewInput:    func() any { return &Input{MaxHeap: DefaultMaxHeap} },
		Fn:          OnRunJavaExec,
		Description: "Runs a Java main class in a new JVM.",
	})
}

package cli

import (
	"io"

	"github.com/spf13/cobra"
	"github.com/vk/markovbuild/internal/app"
)

// DefaultBuildFile is the descriptor read when -f is not given.
const DefaultBuildFile = "build.hcl"

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	file      string
	settings  string
	logLevel  string
	logFormat string
}

// NewRootCommand builds the markovbuild command tree.
func NewRootCommand(outW, errW io.Writer) *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "markovbuild",
		Short: "Builds and launches the Markov AI backend and frontend",
		Long: `markovbuild reads a declarative HCL build descriptor, resolves the task
graph and runs the requested tasks with their dependencies. Tasks whose
declared inputs and outputs are unchanged are reported UP-TO-DATE.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(outW)
	root.SetErr(errW)

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.file, "file", "f", DefaultBuildFile, "build descriptor file or directory")
	pf.StringVar(&opts.settings, "settings", "", "settings file (default: "+app.DefaultSettingsFile+" next to the descriptor, if present)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error (default warn)")
	pf.StringVar(&opts.logFormat, "log-format", "", "log format: text or json (default text)")

	root.AddCommand(
		newRunCommand(opts),
		newTasksCommand(opts),
		newGraphCommand(opts),
		newHistoryCommand(opts),
		newSchemaCommand(),
	)
	return root
}

// newApp validates the invocation and loads the build descriptor. Any
// failure here happens before a task runs and is a usage error.
func (o *globalOptions) newApp(outW io.Writer, cfg app.Config) (*app.App, error) {
	cfg.BuildFile = o.file
	cfg.SettingsFile = o.settings
	cfg.LogLevel = o.logLevel
	cfg.LogFormat = o.logFormat

	validated, err := app.NewConfig(cfg)
	if err != nil {
		return nil, usageError(err)
	}
	a, err := app.NewApp(outW, validated, nil)
	if err != nil {
		return nil, usageError(err)
	}
	return a, nil
}

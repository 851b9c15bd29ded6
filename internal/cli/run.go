package cli

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/vk/markovbuild/internal/app"
	"github.com/vk/markovbuild/internal/props"
)

type runOptions struct {
	defines    []string
	rerunTasks bool
	dryRun     bool
	continuous bool
	workers    int
	statusPort int
}

func newRunCommand(global *globalOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run TASK...",
		Short: "Run tasks and their dependencies",
		Example: `  markovbuild run bootRun -D server.port=9090 -D feedbackMode=adaptive
  markovbuild run fastVerify
  markovbuild run precompute --rerun-tasks`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			properties, err := props.ParseAssignments(opts.defines)
			if err != nil {
				return usageError(err)
			}
			a, err := global.newApp(cmd.OutOrStdout(), app.Config{
				Properties: properties,
				Workers:    opts.workers,
				StatusPort: opts.statusPort,
				RerunTasks: opts.rerunTasks,
				DryRun:     opts.dryRun,
				Continuous: opts.continuous,
			})
			if err != nil {
				return err
			}
			if err := a.Run(cmd.Context(), args); err != nil {
				if errors.Is(err, app.ErrInvalidRequest) {
					return usageError(err)
				}
				return failure(err)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringArrayVarP(&opts.defines, "define", "D", nil, "invoker property name=value (repeatable)")
	f.BoolVar(&opts.rerunTasks, "rerun-tasks", false, "ignore up-to-date checks")
	f.BoolVar(&opts.dryRun, "dry-run", false, "print the tasks that would run without running them")
	f.BoolVarP(&opts.continuous, "continuous", "t", false, "rerun when task inputs change")
	f.IntVar(&opts.workers, "workers", 0, "number of tasks run in parallel (default 4)")
	f.IntVar(&opts.statusPort, "status-port", 0, "serve /health and /tasks on this port; 0 disables")
	return cmd
}

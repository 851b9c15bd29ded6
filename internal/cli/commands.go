package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vk/markovbuild/internal/app"
)

func newTasksCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List the tasks declared in the build descriptor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := global.newApp(cmd.ErrOrStderr(), app.Config{})
			if err != nil {
				return err
			}
			if err := a.ListTasks(cmd.OutOrStdout()); err != nil {
				return failure(err)
			}
			return nil
		},
	}
}

func newGraphCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the task graph in Graphviz DOT format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := global.newApp(cmd.ErrOrStderr(), app.Config{})
			if err != nil {
				return err
			}
			if err := a.WriteGraph(cmd.OutOrStdout()); err != nil {
				return failure(err)
			}
			return nil
		},
	}
}

func newHistoryCommand(global *globalOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent builds of this project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return usageError(fmt.Errorf("--limit must be positive, got %d", limit))
			}
			a, err := global.newApp(cmd.ErrOrStderr(), app.Config{})
			if err != nil {
				return err
			}
			if err := a.History(cmd.Context(), cmd.OutOrStdout(), limit); err != nil {
				return failure(err)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of builds to show")
	return cmd
}

func newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the settings file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := app.SettingsSchema()
			if err != nil {
				return failure(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

package app

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/vk/markovbuild/internal/config"
	"github.com/vk/markovbuild/internal/console"
	"github.com/vk/markovbuild/internal/ctxlog"
	"github.com/vk/markovbuild/internal/statestore"
)

const ungrouped = "Other"

// ListTasks prints the tasks grouped by their group, like `gradle tasks`.
func (a *App) ListTasks(w io.Writer) error {
	groups := make(map[string][]*config.Task)
	for _, t := range a.model.Tasks {
		g := t.Group
		if g == "" {
			g = ungrouped
		}
		groups[g] = append(groups[g], t)
	}
	names := make([]string, 0, len(groups))
	for g := range groups {
		names = append(names, g)
	}
	slices.SortFunc(names, func(x, y string) int {
		switch {
		case x == y:
			return 0
		case x == ungrouped:
			return 1
		case y == ungrouped:
			return -1
		}
		return strings.Compare(x, y)
	})

	p := a.model.Project
	if _, err := fmt.Fprintf(w, "Tasks runnable from project '%s' (%s:%s)\n", p.Name, p.Group, p.Version); err != nil {
		return err
	}
	for _, g := range names {
		tasks := groups[g]
		slices.SortFunc(tasks, func(x, y *config.Task) int { return strings.Compare(x.Name, y.Name) })

		title := strings.ToUpper(g[:1]) + g[1:] + " tasks"
		fmt.Fprintf(w, "\n%s\n%s\n", title, strings.Repeat("-", len(title)))
		tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
		for _, t := range tasks {
			desc := t.Description
			if desc == "" {
				desc = "(" + t.Type + ")"
			}
			fmt.Fprintf(tw, "%s\t- %s\n", t.Name, desc)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// WriteGraph writes the task graph in Graphviz DOT format.
func (a *App) WriteGraph(w io.Writer) error {
	return a.graph.WriteDOT(w)
}

// History prints the n most recent builds.
func (a *App) History(ctx context.Context, w io.Writer, n int) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	store, err := statestore.Open(ctx, a.stateDir())
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.RecentRuns(ctx, n)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No builds recorded.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tDURATION\tSTATUS\tTASKS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.StartedAt.Format(time.DateTime), runDuration(r), r.Status, strings.Join(r.Requested, " "))
	}
	return tw.Flush()
}

func runDuration(r statestore.Run) string {
	if r.FinishedAt.IsZero() {
		return "-"
	}
	return console.FormatDuration(r.FinishedAt.Sub(r.StartedAt))
}

// Package console prints task progress the way Gradle does: one
// "> Task :name" line per task and a build summary.
package console

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/vk/markovbuild/internal/executor"
)

// Console writes task outcome lines. It implements executor.Reporter.
type Console struct {
	mu sync.Mutex
	w  io.Writer

	bold   *color.Color
	green  *color.Color
	yellow *color.Color
	red    *color.Color
	faint  *color.Color
}

// New creates a console writing to w. Colors are used only when w is a
// terminal.
func New(w io.Writer) *Console {
	c := &Console{
		w:      w,
		bold:   color.New(color.Bold),
		green:  color.New(color.FgGreen, color.Bold),
		yellow: color.New(color.FgYellow),
		red:    color.New(color.FgRed, color.Bold),
		faint:  color.New(color.Faint),
	}
	c.SetColor(IsTerminal(w))
	return c
}

// IsTerminal reports whether w is a terminal file.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SetColor forces colored output on or off.
func (c *Console) SetColor(enabled bool) {
	for _, col := range []*color.Color{c.bold, c.green, c.yellow, c.red, c.faint} {
		if enabled {
			col.EnableColor()
		} else {
			col.DisableColor()
		}
	}
}

// TaskStarted is a no-op; the line is printed once the outcome is known.
func (c *Console) TaskStarted(executor.Result) {}

// TaskFinished prints the task line with its outcome.
func (c *Console) TaskFinished(r executor.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	line := c.bold.Sprintf("> Task :%s", r.Name)
	switch r.Outcome {
	case executor.UpToDate:
		line += " " + c.yellow.Sprint("UP-TO-DATE")
	case executor.Failed:
		line += " " + c.red.Sprint("FAILED")
	case executor.Skipped:
		line += " " + c.faint.Sprint("SKIPPED")
	}
	fmt.Fprintln(c.w, line)
}

// Plan prints the tasks a dry run would execute.
func (c *Console) Plan(names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range names {
		fmt.Fprintf(c.w, ":%s %s\n", name, c.faint.Sprint("SKIPPED"))
	}
	fmt.Fprintln(c.w)
	fmt.Fprintln(c.w, c.green.Sprint("BUILD SUCCESSFUL"))
}

// Waiting announces that a continuous build is watching for changes.
func (c *Console) Waiting() {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w)
	fmt.Fprintln(c.w, c.faint.Sprint("Waiting for changes to input files... (ctrl-c to exit)"))
}

// Summary prints the build result, its duration and outcome counts.
func (c *Console) Summary(results []executor.Result, runErr error, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	counts := make(map[executor.Outcome]int)
	for _, r := range results {
		counts[r.Outcome]++
	}

	fmt.Fprintln(c.w)
	if runErr != nil {
		fmt.Fprintln(c.w, c.red.Sprint("FAILURE: Build failed with an exception."))
		fmt.Fprintln(c.w)
		fmt.Fprintf(c.w, "* What went wrong:\n%v\n", runErr)
		fmt.Fprintln(c.w)
		fmt.Fprintf(c.w, "%s in %s\n", c.red.Sprint("BUILD FAILED"), FormatDuration(elapsed))
	} else {
		fmt.Fprintf(c.w, "%s in %s\n", c.green.Sprint("BUILD SUCCESSFUL"), FormatDuration(elapsed))
	}

	actionable := counts[executor.Executed] + counts[executor.UpToDate] + counts[executor.Failed]
	noun := "tasks"
	if actionable == 1 {
		noun = "task"
	}
	fmt.Fprintf(c.w, "%d actionable %s: %d executed, %d up-to-date", actionable, noun, counts[executor.Executed]+counts[executor.Failed], counts[executor.UpToDate])
	if n := counts[executor.Skipped]; n > 0 {
		fmt.Fprintf(c.w, ", %d skipped", n)
	}
	fmt.Fprintln(c.w)
}

// FormatDuration renders d like "1m 3s" or "450ms".
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	default:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}

// Package procexec runs external commands for tasks, streaming their output
// line by line into the build's writers.
package procexec

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	// readBuf is the streaming chunk size. Longer lines are written in
	// several chunks with the prefix only at the start of the line.
	readBuf   = 64 * 1024
	waitDelay = 2 * time.Second
)

// Command describes one external process invocation.
type Command struct {
	Path string
	Args []string
	Dir  string
	// Env is the complete child environment. Nil inherits the parent's.
	Env []string

	Stdout io.Writer
	Stderr io.Writer
	// Prefix is prepended to every streamed line.
	Prefix string
}

// String renders the command line for logs and error messages.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Path))
	for _, a := range c.Args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

// Run starts the command, streams both output pipes until they close and
// waits for exit. Cancelling ctx kills the process.
func Run(ctx context.Context, c Command) error {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env

	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	cmd.Stdout = outW
	cmd.Stderr = errW
	// Grandchildren (npm, shells) may keep the pipes open after a kill.
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "starting %s", c.Path)
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.Go(func() error { return copyLines(orDiscard(c.Stdout), outR, c.Prefix, &mu) })
	g.Go(func() error { return copyLines(orDiscard(c.Stderr), errR, c.Prefix, &mu) })

	waitErr := cmd.Wait()
	outW.Close()
	errW.Close()
	copyErr := g.Wait()

	if err := waitErr; err != nil {
		if ctx.Err() != nil {
			return errors.WithMessagef(ctx.Err(), "command %s interrupted", c.Path)
		}
		return errors.Wrapf(err, "command failed: %s", c)
	}
	if copyErr != nil {
		return errors.Wrap(copyErr, "streaming command output")
	}
	return nil
}

// MergeEnv returns base with overrides applied. Overridden keys are
// removed from base and the overrides appended in key order.
func MergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[key]; !ok {
			out = append(out, kv)
		}
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+overrides[k])
	}
	return out
}

// ExitCode extracts the child exit code from an error returned by Run, or -1.
func ExitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func copyLines(dst io.Writer, src io.Reader, prefix string, mu *sync.Mutex) error {
	r := bufio.NewReaderSize(src, readBuf)
	atLineStart := true
	for {
		chunk, readErr := r.ReadSlice('\n')
		if len(chunk) > 0 {
			mu.Lock()
			err := writeChunk(dst, chunk, prefix, atLineStart)
			mu.Unlock()
			if err != nil {
				// Keep draining so the child never blocks on a full pipe.
				_, _ = io.Copy(io.Discard, r)
				return err
			}
			atLineStart = chunk[len(chunk)-1] == '\n'
		}
		switch {
		case readErr == nil, errors.Is(readErr, bufio.ErrBufferFull):
		case errors.Is(readErr, io.EOF):
			if !atLineStart {
				mu.Lock()
				_, err := io.WriteString(dst, "\n")
				mu.Unlock()
				return err
			}
			return nil
		default:
			_, _ = io.Copy(io.Discard, r)
			return readErr
		}
	}
}

func writeChunk(dst io.Writer, chunk []byte, prefix string, atLineStart bool) error {
	if atLineStart && prefix != "" {
		if _, err := io.WriteString(dst, prefix); err != nil {
			return err
		}
	}
	_, err := dst.Write(chunk)
	return err
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\"'") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

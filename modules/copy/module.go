package copy

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/vk/markovbuild/internal/ctxlog"
	"github.com/vk/markovbuild/internal/fsutil"
	"github.com/vk/markovbuild/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the copy runner.
type Input struct {
	From string `hcl:"from" validate:"required"`
	Into string `hcl:"into" validate:"required"`
	// Include limits the copy to files whose relative path or base name
	// matches one of the globs.
	Include []string `hcl:"include,optional"`
}

// OnRunCopy copies a file or directory tree into a destination directory.
func OnRunCopy(ctx context.Context, rc *registry.RunContext, input any) error {
	in := input.(*Input)
	logger := ctxlog.FromContext(ctx)

	for _, pattern := range in.Include {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}
	}

	src, dst := rc.Path(in.From), rc.Path(in.Into)
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("copy source: %w", err)
	}
	if !info.IsDir() {
		return fsutil.CopyFile(src, filepath.Join(dst, info.Name()))
	}

	copied := 0
	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if !included(rel, in.Include) {
			return nil
		}
		copied++
		return fsutil.CopyFile(path, filepath.Join(dst, rel))
	})
	if err != nil {
		return err
	}
	logger.Info("Copied files.", "from", src, "into", dst, "count", copied)
	return nil
}

func included(rel string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	slashed := filepath.ToSlash(rel)
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, slashed); ok {
			return true
		}
		if ok, _ := filepath.Match(p, filepath.Base(rel)); ok {
			return true
		}
	}
	return false
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterRunner("copy", &registry.RegisteredRunner{
		NewInput:    func() any { return new(Input) },
		Fn:          OnRunCopy,
		Description: "Copies files into a directory, such as packaged resources.",
	})
}

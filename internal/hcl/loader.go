package hcl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/markovbuild/internal/config"
	"github.com/vk/markovbuild/internal/ctxlog"
	"github.com/vk/markovbuild/internal/fsutil"
	"github.com/vk/markovbuild/internal/schema"
	"github.com/zclconf/go-cty/cty"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct {
	// props are the invoker properties visible to descriptor functions
	// such as data_dir.
	props map[string]string
}

// NewLoader creates a new HCL descriptor loader.
func NewLoader(props map[string]string) *Loader {
	return &Loader{props: props}
}

// Load parses every descriptor file found under paths and translates the
// result into a config.Model. The project directory is the directory of the
// first path (or the path itself when it is a directory).
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	if len(paths) == 0 {
		return nil, errors.New("no build descriptor path given")
	}

	projectDir, err := projectDirOf(paths[0])
	if err != nil {
		return nil, err
	}

	files, err := l.findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .hcl files found in %v", paths)
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	parser := hclparse.NewParser()
	parsed := make([]*hcl.File, 0, len(files))
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}
		parsed = append(parsed, hclFile)
	}

	var root schema.BuildConfig
	if diags := gohcl.DecodeBody(hcl.MergeFiles(parsed), nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode build descriptor: %w", diags)
	}
	if root.Project == nil {
		return nil, errors.New("build descriptor must declare a project block")
	}

	model := &config.Model{
		Project: &config.Project{
			Name:    root.Project.Name,
			Group:   root.Project.Group,
			Version: root.Project.Version,
			Dir:     projectDir,
		},
		Files: files,
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"project": projectValue(model.Project),
			"local":   cty.EmptyObjectVal,
			"task":    cty.EmptyObjectVal,
		},
		Functions: l.functions(ctx, projectDir),
	}

	locals, err := evalLocals(root.Locals, evalCtx)
	if err != nil {
		return nil, err
	}
	model.Locals = locals
	evalCtx.Variables["local"] = objectOrEmpty(locals)

	for _, t := range root.Tasks {
		task, err := translateTask(t, evalCtx)
		if err != nil {
			return nil, err
		}
		if prev, dup := model.TaskByName(task.Name); dup {
			return nil, fmt.Errorf("duplicate task name %q: declared as %s and %s", task.Name, prev.ID(), task.ID())
		}
		model.Tasks = append(model.Tasks, task)
	}

	evalCtx.Variables["task"] = tasksValue(model)
	model.EvalContext = evalCtx

	for _, task := range model.Tasks {
		hash, err := configHash(task, evalCtx)
		if err != nil {
			return nil, err
		}
		task.ConfigHash = hash
	}

	logger.Debug("HCL loading complete.", "project", model.Project.Name, "locals", len(model.Locals), "tasks", len(model.Tasks))
	return model, nil
}

// findAllHCLFiles expands every path into the .hcl files it names. Unlike a
// search path, a missing descriptor is an error.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	var all []string
	seen := make(map[string]struct{})
	for _, path := range paths {
		found, err := fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		for _, f := range found {
			abs, err := filepath.Abs(f)
			if err != nil {
				return nil, err
			}
			if _, ok := seen[abs]; ok {
				continue
			}
			seen[abs] = struct{}{}
			all = append(all, abs)
		}
	}
	slices.Sort(all)
	return all, nil
}

func projectDirOf(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("error accessing path %s: %w", path, err)
	}
	if info.IsDir() {
		return abs, nil
	}
	return filepath.Dir(abs), nil
}

func projectValue(p *config.Project) cty.Value {
	return cty.ObjectVal(map[string]cty.Value{
		"name":    cty.StringVal(p.Name),
		"group":   cty.StringVal(p.Group),
		"version": cty.StringVal(p.Version),
		"dir":     cty.StringVal(p.Dir),
	})
}

func objectOrEmpty(attrs map[string]cty.Value) cty.Value {
	if len(attrs) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(attrs)
}

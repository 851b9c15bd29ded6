package config

import (
	"fmt"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// Model is the unified, format-agnostic representation of a build descriptor.
type Model struct {
	Project *Project
	Locals  map[string]cty.Value
	Tasks   []*Task
	// EvalContext carries project, local and task variables plus the
	// descriptor functions. Task arguments are decoded against it.
	EvalContext *hcl.EvalContext
	// Files lists the descriptor files the model was loaded from.
	Files []string
}

// Project holds the root coordinator settings shared by all tasks.
type Project struct {
	Name    string
	Group   string
	Version string
	// Dir is the absolute project root; relative task paths resolve here.
	Dir string
}

// Task is the format-agnostic representation of a `task` block.
type Task struct {
	Type        string
	Name        string
	Group       string
	Description string
	DependsOn   []string
	// Inputs and Outputs are project-relative (or absolute) paths used by
	// the up-to-date check.
	Inputs  []string
	Outputs []string
	// Arguments are the raw attribute expressions of the `arguments` block,
	// scanned for implicit task references.
	Arguments map[string]hcl.Expression
	// Body is the `arguments` block body, decoded into a runner input.
	Body hcl.Body
	// ConfigHash digests the evaluated arguments and declared paths.
	ConfigHash string
}

// ID returns the unique graph identifier of the task.
func (t *Task) ID() string {
	return TaskID(t.Type, t.Name)
}

// TaskID builds a task identifier from its type and name.
func TaskID(taskType, name string) string {
	return fmt.Sprintf("task.%s.%s", taskType, name)
}

// Resolve returns p relative to the project dir unless it is absolute.
func (p *Project) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.Dir, path)
}

// TaskByName finds a task by its bare name.
func (m *Model) TaskByName(name string) (*Task, bool) {
	for _, t := range m.Tasks {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

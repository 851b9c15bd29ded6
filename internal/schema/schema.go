// Package schema holds the gohcl decoding targets for build descriptor files.
package schema

import (
	"github.com/hashicorp/hcl/v2"
)

// TaskArgs represents the content of the 'arguments' block within a task.
// Its attributes are decoded later into the runner's input struct.
type TaskArgs struct {
	Body hcl.Body `hcl:",remain"`
}

// Locals represents a `locals` block. Attributes are evaluated by the loader.
type Locals struct {
	Body hcl.Body `hcl:",remain"`
}

// Project represents the single `project` block.
type Project struct {
	Name    string `hcl:"name,label"`
	Group   string `hcl:"group,optional"`
	Version string `hcl:"version,optional"`
}

// Task represents a `task` block: a runnable instance of a registered
// runner type.
type Task struct {
	Type        string    `hcl:"type,label"`
	Name        string    `hcl:"name,label"`
	Group       string    `hcl:"group,optional"`
	Description string    `hcl:"description,optional"`
	DependsOn   []string  `hcl:"depends_on,optional"`
	Arguments   *TaskArgs `hcl:"arguments,block"`

	// Inputs and Outputs may reference locals, so they are evaluated
	// after the locals are known.
	Inputs  hcl.Expression `hcl:"inputs,optional"`
	Outputs hcl.Expression `hcl:"outputs,optional"`
}

// BuildConfig represents the top-level structure of a build descriptor.
type BuildConfig struct {
	Project *Project  `hcl:"project,block"`
	Locals  []*Locals `hcl:"locals,block"`
	Tasks   []*Task   `hcl:"task,block"`
}

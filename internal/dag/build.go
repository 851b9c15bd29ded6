package dag

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/markovbuild/internal/config"
	"github.com/vk/markovbuild/internal/ctxlog"
)

// Build creates the task graph of a model: one node per task, then the
// explicit and implicit dependency edges. Unknown references and cycles
// are errors.
func Build(ctx context.Context, model *config.Model) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	g := New()
	for _, t := range model.Tasks {
		g.AddTask(t)
	}

	for _, t := range model.Tasks {
		if err := g.linkExplicitDeps(ctx, t); err != nil {
			return nil, err
		}
		for _, expr := range t.Arguments {
			if err := g.linkImplicitDeps(ctx, t, expr); err != nil {
				return nil, err
			}
		}
	}

	if err := g.DetectCycles(); err != nil {
		return nil, err
	}
	logger.Debug("Task graph built.", "nodes", g.Len())
	return g, nil
}

// linkExplicitDeps resolves the task's `depends_on` entries.
func (g *Graph) linkExplicitDeps(ctx context.Context, t *config.Task) error {
	logger := ctxlog.FromContext(ctx)
	for _, ref := range t.DependsOn {
		depID, err := g.Resolve(ref)
		if err != nil {
			return fmt.Errorf("task %q depends on %w", t.Name, err)
		}
		logger.Debug("Linking explicit dependency.", "from", t.ID(), "to", depID)
		if err := g.AddEdge(depID, t.ID()); err != nil {
			return fmt.Errorf("task %q: %w", t.Name, err)
		}
	}
	return nil
}

// linkImplicitDeps adds an edge for every `task.<type>.<name>` traversal
// in expr.
func (g *Graph) linkImplicitDeps(ctx context.Context, t *config.Task, expr hcl.Expression) error {
	logger := ctxlog.FromContext(ctx)
	for _, traversal := range expr.Variables() {
		if traversal.RootName() != "task" {
			continue
		}
		if len(traversal) < 3 {
			return fmt.Errorf("%s: task %q: a task reference needs the form task.<type>.<name>", traversal.SourceRange(), t.Name)
		}
		typeAttr, typeOk := traversal[1].(hcl.TraverseAttr)
		nameAttr, nameOk := traversal[2].(hcl.TraverseAttr)
		if !typeOk || !nameOk {
			continue
		}
		depID := config.TaskID(typeAttr.Name, nameAttr.Name)
		if _, ok := g.Task(depID); !ok {
			return fmt.Errorf("%s: task %q references unknown task %q", traversal.SourceRange(), t.Name, depID)
		}
		logger.Debug("Linking implicit dependency.", "from", t.ID(), "to", depID)
		if err := g.AddEdge(depID, t.ID()); err != nil {
			return fmt.Errorf("task %q: %w", t.Name, err)
		}
	}
	return nil
}

// Resolve maps a task reference to its node ID. Accepted forms are the bare
// task name, `<type>.<name>` and the full `task.<type>.<name>` ID.
func (g *Graph) Resolve(ref string) (string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	if n, ok := g.nodes[ref]; ok && n.task != nil {
		return ref, nil
	}
	if typ, name, ok := strings.Cut(ref, "."); ok {
		id := config.TaskID(typ, name)
		if n, ok := g.nodes[id]; ok && n.task != nil {
			return id, nil
		}
	}

	var matches []string
	for id, n := range g.nodes {
		if n.task != nil && n.task.Name == ref {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("unknown task %q", ref)
	default:
		return "", fmt.Errorf("ambiguous task %q: matches %v", ref, matches)
	}
}

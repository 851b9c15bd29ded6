package hcl

import (
	"fmt"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/markovbuild/internal/config"
	"github.com/vk/markovbuild/internal/fingerprint"
	"github.com/vk/markovbuild/internal/schema"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// translateTask converts the HCL-specific task schema into the agnostic model.
func translateTask(s *schema.Task, evalCtx *hcl.EvalContext) (*config.Task, error) {
	inputs, err := evalPathList(s.Inputs, evalCtx)
	if err != nil {
		return nil, fmt.Errorf("task %q: invalid inputs: %w", s.Name, err)
	}
	outputs, err := evalPathList(s.Outputs, evalCtx)
	if err != nil {
		return nil, fmt.Errorf("task %q: invalid outputs: %w", s.Name, err)
	}

	body := hcl.EmptyBody()
	if s.Arguments != nil && s.Arguments.Body != nil {
		body = s.Arguments.Body
	}
	args, err := extractBodyAttributes(body)
	if err != nil {
		return nil, fmt.Errorf("task %q: %w", s.Name, err)
	}

	return &config.Task{
		Type:        s.Type,
		Name:        s.Name,
		Group:       s.Group,
		Description: s.Description,
		DependsOn:   s.DependsOn,
		Inputs:      inputs,
		Outputs:     outputs,
		Arguments:   args,
		Body:        body,
	}, nil
}

// evalPathList evaluates an optional list-of-strings attribute.
func evalPathList(expr hcl.Expression, evalCtx *hcl.EvalContext) ([]string, error) {
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return nil, nil
	}
	list, err := convert.Convert(val, cty.List(cty.String))
	if err != nil {
		return nil, fmt.Errorf("%s: expected a list of strings: %w", expr.Range(), err)
	}
	var out []string
	if err := gocty.FromCtyValue(list, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", expr.Range(), err)
	}
	return out, nil
}

// extractBodyAttributes returns the attribute expressions of an arguments
// body. Nested blocks are not allowed.
func extractBodyAttributes(body hcl.Body) (map[string]hcl.Expression, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid arguments block: %w", diags)
	}
	exprs := make(map[string]hcl.Expression, len(attrs))
	for name, attr := range attrs {
		exprs[name] = attr.Expr
	}
	return exprs, nil
}

// tasksValue builds the `task` variable: task.<type>.<name>.outputs lists
// each task's outputs as absolute paths.
func tasksValue(model *config.Model) cty.Value {
	byType := make(map[string]map[string]cty.Value)
	for _, t := range model.Tasks {
		outs := make([]cty.Value, len(t.Outputs))
		for i, o := range t.Outputs {
			outs[i] = cty.StringVal(model.Project.Resolve(o))
		}
		outputs := cty.ListValEmpty(cty.String)
		if len(outs) > 0 {
			outputs = cty.ListVal(outs)
		}
		if byType[t.Type] == nil {
			byType[t.Type] = make(map[string]cty.Value)
		}
		byType[t.Type][t.Name] = cty.ObjectVal(map[string]cty.Value{
			"name":    cty.StringVal(t.Name),
			"outputs": outputs,
		})
	}
	types := make(map[string]cty.Value, len(byType))
	for typ, tasks := range byType {
		types[typ] = cty.ObjectVal(tasks)
	}
	return objectOrEmpty(types)
}

// configHash digests the evaluated arguments and the declared paths of a
// task, so any change to what the task would do invalidates its state.
func configHash(t *config.Task, evalCtx *hcl.EvalContext) (string, error) {
	names := make([]string, 0, len(t.Arguments))
	for name := range t.Arguments {
		names = append(names, name)
	}
	slices.Sort(names)

	parts := []string{t.Type, t.Name}
	for _, name := range names {
		val, diags := t.Arguments[name].Value(evalCtx)
		if diags.HasErrors() {
			return "", fmt.Errorf("task %q: failed to evaluate argument %q: %w", t.Name, name, diags)
		}
		raw, err := ctyjson.Marshal(val, cty.DynamicPseudoType)
		if err != nil {
			return "", fmt.Errorf("task %q: argument %q: %w", t.Name, name, err)
		}
		parts = append(parts, name, string(raw))
	}
	parts = append(parts, "inputs")
	parts = append(parts, t.Inputs...)
	parts = append(parts, "outputs")
	parts = append(parts, t.Outputs...)
	return fingerprint.Strings(parts...), nil
}

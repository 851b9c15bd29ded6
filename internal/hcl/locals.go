package hcl

import (
	"fmt"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/markovbuild/internal/schema"
	"github.com/zclconf/go-cty/cty"
)

// evalLocals evaluates all locals in declaration order. A local may only
// reference locals declared before it.
func evalLocals(blocks []*schema.Locals, evalCtx *hcl.EvalContext) (map[string]cty.Value, error) {
	var attrs []*hcl.Attribute
	declared := make(map[string]*hcl.Attribute)
	for _, b := range blocks {
		blockAttrs, diags := b.Body.JustAttributes()
		if diags.HasErrors() {
			return nil, fmt.Errorf("invalid locals block: %w", diags)
		}
		for name, attr := range blockAttrs {
			if prev, ok := declared[name]; ok {
				return nil, fmt.Errorf("duplicate local %q at %s, first declared at %s", name, attr.NameRange, prev.NameRange)
			}
			declared[name] = attr
			attrs = append(attrs, attr)
		}
	}
	slices.SortFunc(attrs, func(a, b *hcl.Attribute) int {
		if a.Range.Filename != b.Range.Filename {
			if a.Range.Filename < b.Range.Filename {
				return -1
			}
			return 1
		}
		return a.Range.Start.Byte - b.Range.Start.Byte
	})

	values := make(map[string]cty.Value, len(attrs))
	for _, attr := range attrs {
		for _, tr := range attr.Expr.Variables() {
			if tr.RootName() != "local" || len(tr) < 2 {
				continue
			}
			step, ok := tr[1].(hcl.TraverseAttr)
			if !ok {
				continue
			}
			if _, done := values[step.Name]; done {
				continue
			}
			if _, later := declared[step.Name]; later {
				return nil, fmt.Errorf("%s: local %q references local.%s before it is declared", attr.Range, attr.Name, step.Name)
			}
			return nil, fmt.Errorf("%s: local %q references undeclared local.%s", attr.Range, attr.Name, step.Name)
		}

		scope := evalCtx.NewChild()
		scope.Variables = map[string]cty.Value{"local": objectOrEmpty(values)}
		val, diags := attr.Expr.Value(scope)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to evaluate local %q: %w", attr.Name, diags)
		}
		values[attr.Name] = val
	}
	return values, nil
}

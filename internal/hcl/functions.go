package hcl

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/vk/markovbuild/internal/datapath"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// functions returns the functions available to descriptor expressions.
func (l *Loader) functions(ctx context.Context, projectDir string) map[string]function.Function {
	return map[string]function.Function{
		"path":     pathFunc,
		"data_dir": l.dataDirFunc(ctx, projectDir),
		"cache_db": l.cacheDBFunc(ctx, projectDir),
		"concat":   stdlib.ConcatFunc,
		"flatten":  stdlib.FlattenFunc,
		"format":   stdlib.FormatFunc,
		"join":     stdlib.JoinFunc,
		"lower":    stdlib.LowerFunc,
		"upper":    stdlib.UpperFunc,
	}
}

// pathFunc joins path segments with the host separator.
var pathFunc = function.New(&function.Spec{
	VarParam: &function.Parameter{Name: "parts", Type: cty.String},
	Type:     function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		if len(args) == 0 {
			return cty.UnknownVal(cty.String), errors.New("path requires at least one segment")
		}
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.AsString()
		}
		return cty.StringVal(filepath.Join(parts...)), nil
	},
})

// dataDirFunc resolves the backend data directory from the invoker
// properties and the given backend config file. A relative result is
// anchored at working_dir, the directory the backend is launched from.
func (l *Loader) dataDirFunc(ctx context.Context, projectDir string) function.Function {
	return l.backendPathFunc(projectDir, func(configFile string) string {
		return datapath.ResolveDir(ctx, l.props, configFile)
	})
}

// cacheDBFunc is dataDirFunc for the backend's sqlite cache file.
func (l *Loader) cacheDBFunc(ctx context.Context, projectDir string) function.Function {
	return l.backendPathFunc(projectDir, func(configFile string) string {
		return datapath.DBPath(ctx, l.props, configFile)
	})
}

func (l *Loader) backendPathFunc(projectDir string, resolve func(configFile string) string) function.Function {
	abs := func(base, p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "config_file", Type: cty.String},
			{Name: "working_dir", Type: cty.String},
		},
		Type: function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			p := resolve(abs(projectDir, args[0].AsString()))
			workDir := abs(projectDir, args[1].AsString())
			return cty.StringVal(abs(workDir, p)), nil
		},
	})
}

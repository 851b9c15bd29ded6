package registry

import (
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Module is the interface that all core modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds the runners available to a single application instance.
type Registry struct {
	runners  map[string]*RegisteredRunner
	validate *validator.Validate
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report argument names as written in the descriptor.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("hcl"), ",")
		if name == "" {
			return fld.Name
		}
		return name
	})
	return &Registry{
		runners:  make(map[string]*RegisteredRunner),
		validate: v,
	}
}

// RegisterRunner registers the Go implementation of a task type.
func (r *Registry) RegisterRunner(taskType string, runner *RegisteredRunner) {
	if _, exists := r.runners[taskType]; exists {
		panic(fmt.Sprintf("runner for task type '%s' already registered", taskType))
	}
	if runner.NewInput == nil || runner.Fn == nil {
		panic(fmt.Sprintf("runner for task type '%s' must set NewInput and Fn", taskType))
	}
	slog.Debug("Registering runner.", "type", taskType)
	r.runners[taskType] = runner
}

// RegisterValidation adds a custom struct validation tag usable by runner
// input structs.
func (r *Registry) RegisterValidation(tag string, fn validator.Func) error {
	return r.validate.RegisterValidation(tag, fn)
}

// Runner returns the runner registered for a task type.
func (r *Registry) Runner(taskType string) (*RegisteredRunner, bool) {
	runner, ok := r.runners[taskType]
	return runner, ok
}

// Types lists the registered task types in lexical order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.runners))
	for t := range r.runners {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

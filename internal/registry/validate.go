package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/vk/markovbuild/internal/config"
	"github.com/vk/markovbuild/internal/ctxlog"
)

// Decode decodes a task's arguments into its runner's input struct and
// validates the result.
func (r *Registry) Decode(task *config.Task, evalCtx *hcl.EvalContext) (any, error) {
	runner, ok := r.Runner(task.Type)
	if !ok {
		return nil, fmt.Errorf("task %q: unknown task type %q", task.Name, task.Type)
	}
	input := runner.NewInput()
	if diags := gohcl.DecodeBody(task.Body, evalCtx, input); diags.HasErrors() {
		return nil, fmt.Errorf("task %q: %w", task.Name, diags)
	}
	if err := r.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("task %q: %w", task.Name, describeValidation(err))
	}
	return input, nil
}

// ValidateModel checks every task against the registry before anything
// runs: the task type must be registered and its arguments must decode
// and validate.
func (r *Registry) ValidateModel(ctx context.Context, model *config.Model) error {
	logger := ctxlog.FromContext(ctx)
	var errs []string
	for _, task := range model.Tasks {
		if _, err := r.Decode(task, model.EvalContext); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		logger.Debug("Task arguments validated.", "task", task.ID())
	}
	if len(errs) > 0 {
		return fmt.Errorf("build descriptor validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("argument %q is required", fe.Field()))
		default:
			if fe.Param() != "" {
				msgs = append(msgs, fmt.Sprintf("argument %q failed %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
			} else {
				msgs = append(msgs, fmt.Sprintf("argument %q failed %s (got %v)", fe.Field(), fe.Tag(), fe.Value()))
			}
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

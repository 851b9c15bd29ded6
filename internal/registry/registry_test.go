package registry

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/markovbuild/internal/config"
	"github.com/vk/markovbuild/internal/ctxlog"
)

type echoInput struct {
	Message string `hcl:"message" validate:"required"`
	Mode    string `hcl:"mode,optional" validate:"oneof=plain loud"`
	Heap    string `hcl:"heap,optional" validate:"omitempty,heapsize"`
}

type echoModule struct{}

func (echoModule) Register(r *Registry) {
	r.RegisterRunner("echo", &RegisteredRunner{
		NewInput: func() any { return &echoInput{Mode: "plain"} },
		Fn: func(ctx context.Context, rc *RunContext, input any) error {
			_, err := io.WriteString(rc.Stdout, input.(*echoInput).Message)
			return err
		},
	})
}

func parseTask(t *testing.T, taskType, name, src string) *config.Task {
	t.Helper()
	f, diags := hclsyntax.ParseConfig([]byte(src), "test.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), diags.Error())
	return &config.Task{Type: taskType, Name: name, Body: f.Body}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New()
	echoModule{}.Register(r)
	require.NoError(t, r.RegisterValidation("heapsize", func(fl validator.FieldLevel) bool {
		return strings.HasSuffix(fl.Field().String(), "g")
	}))
	return r
}

func TestDecode_AppliesDefaultsAndValidates(t *testing.T) {
	r := newTestRegistry(t)

	input, err := r.Decode(parseTask(t, "echo", "hello", `message = "hi"`), nil)
	require.NoError(t, err)
	assert.Equal(t, &echoInput{Message: "hi", Mode: "plain"}, input)

	_, err = r.Decode(parseTask(t, "echo", "bad", `
message = "hi"
mode    = "quiet"
`), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `argument "mode" failed oneof=plain loud`)

	_, err = r.Decode(parseTask(t, "echo", "heap", `
message = "hi"
heap    = "2m"
`), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `argument "heap" failed heapsize`)

	_, err = r.Decode(parseTask(t, "echo", "empty", `message = ""`), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `argument "message" is required`)
}

func TestDecode_UnknownArgument(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Decode(parseTask(t, "echo", "x", `
message = "hi"
colour  = "red"
`), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unsupported argument")
}

func TestValidateModel_CollectsAllErrors(t *testing.T) {
	r := newTestRegistry(t)
	model := &config.Model{Tasks: []*config.Task{
		parseTask(t, "echo", "ok", `message = "hi"`),
		parseTask(t, "missing", "ghost", ``),
		parseTask(t, "echo", "nomsg", ``),
	}}
	ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := r.ValidateModel(ctx, model)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown task type "missing"`)
	assert.Contains(t, err.Error(), `task "nomsg"`)
	assert.NotContains(t, err.Error(), `task "ok"`)
}

func TestRegisterRunner(t *testing.T) {
	r := newTestRegistry(t)
	assert.Equal(t, []string{"echo"}, r.Types())
	_, ok := r.Runner("echo")
	assert.True(t, ok)

	assert.Panics(t, func() { echoModule{}.Register(r) })
	assert.Panics(t, func() { r.RegisterRunner("incomplete", &RegisteredRunner{}) })
}

func TestRunContext(t *testing.T) {
	rc := &RunContext{
		ProjectDir: "/work/markov",
		Env:        []string{"JAVA_HOME=/old", "PATH=/bin", "JAVA_HOME=/jdk"},
	}
	assert.Equal(t, "/work/markov/server", rc.Path("server"))
	assert.Equal(t, "/abs", rc.Path("/abs"))
	assert.Equal(t, "", rc.Path(""))
	assert.Equal(t, "/jdk", rc.Getenv("JAVA_HOME"))
	assert.Equal(t, "", rc.Getenv("HOME"))
	assert.Equal(t, "", rc.OutputPrefix())

	rc.TaskName = "npmBuild"
	assert.Equal(t, "[npmBuild] ", rc.OutputPrefix())
}

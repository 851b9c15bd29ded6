package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/markovbuild/internal/config"
	"github.com/vk/markovbuild/internal/ctxlog"
	"github.com/vk/markovbuild/internal/dag"
	"github.com/vk/markovbuild/internal/registry"
	"github.com/vk/markovbuild/internal/statestore"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testContext() context.Context {
	return ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// recorderModule registers a "record" runner that logs execution order and
// can fail, block until cancelled or write a file.
type recorderModule struct {
	mu       sync.Mutex
	order    []string
	prefixes map[string]string
}

type recordInput struct {
	Fail  bool   `hcl:"fail,optional"`
	Block bool   `hcl:"block,optional"`
	Write string `hcl:"write,optional"`
	From  string `hcl:"from,optional"`
}

func (m *recorderModule) Register(r *registry.Registry) {
	r.RegisterRunner("record", &registry.RegisteredRunner{
		NewInput: func() any { return new(recordInput) },
		Fn: func(ctx context.Context, rc *registry.RunContext, input any) error {
			in := input.(*recordInput)
			m.mu.Lock()
			m.order = append(m.order, rc.TaskID)
			if m.prefixes == nil {
				m.prefixes = make(map[string]string)
			}
			m.prefixes[rc.TaskID] = rc.OutputPrefix()
			m.mu.Unlock()
			switch {
			case in.Fail:
				return errors.New("boom")
			case in.Block:
				<-ctx.Done()
				return ctx.Err()
			case in.Write != "":
				content := "generated"
				if in.From != "" {
					raw, err := os.ReadFile(rc.Path(in.From))
					if err != nil {
						return err
					}
					content = string(raw)
				}
				return os.WriteFile(rc.Path(in.Write), []byte(content), 0o644)
			}
			return nil
		},
	})
}

func (m *recorderModule) ran() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

type taskSpec struct {
	name      string
	dependsOn []string
	args      string
	inputs    []string
	outputs   []string
}

func newTask(t *testing.T, s taskSpec) *config.Task {
	t.Helper()
	f, diags := hclsyntax.ParseConfig([]byte(s.args), s.name+".hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), diags.Error())
	attrs, diags := f.Body.JustAttributes()
	require.False(t, diags.HasErrors(), diags.Error())
	args := make(map[string]hcl.Expression, len(attrs))
	for k, a := range attrs {
		args[k] = a.Expr
	}
	return &config.Task{
		Type:       "record",
		Name:       s.name,
		DependsOn:  s.dependsOn,
		Inputs:     s.inputs,
		Outputs:    s.outputs,
		Arguments:  args,
		Body:       f.Body,
		ConfigHash: s.args,
	}
}

type recordingReporter struct {
	mu       sync.Mutex
	started  []string
	finished map[string]Outcome
}

func (r *recordingReporter) TaskStarted(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, res.TaskID)
}

func (r *recordingReporter) TaskFinished(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished == nil {
		r.finished = make(map[string]Outcome)
	}
	r.finished[res.TaskID] = res.Outcome
}

type harness struct {
	module   *recorderModule
	reporter *recordingReporter
	exec     *Executor
}

func newHarness(t *testing.T, opts Options, state StateStore, specs ...taskSpec) *harness {
	t.Helper()
	model := &config.Model{}
	for _, s := range specs {
		model.Tasks = append(model.Tasks, newTask(t, s))
	}
	g, err := dag.Build(testContext(), model)
	require.NoError(t, err)

	mod := &recorderModule{}
	r := registry.New()
	mod.Register(r)
	rep := &recordingReporter{}

	e, err := New(g, r, nil, opts, state, rep)
	require.NoError(t, err)
	return &harness{module: mod, reporter: rep, exec: e}
}

func outcomes(results []Result) map[string]Outcome {
	out := make(map[string]Outcome, len(results))
	for _, r := range results {
		out[r.Name] = r.Outcome
	}
	return out
}

func TestRun_RespectsDependencies(t *testing.T) {
	h := newHarness(t, Options{Workers: 3}, nil,
		taskSpec{name: "npmInstall"},
		taskSpec{name: "npmBuild", dependsOn: []string{"npmInstall"}},
		taskSpec{name: "processResources", dependsOn: []string{"npmBuild"}},
		taskSpec{name: "compileJava"},
	)

	require.NoError(t, h.exec.Run(testContext()))

	ran := h.module.ran()
	require.Len(t, ran, 4)
	pos := make(map[string]int)
	for i, id := range ran {
		pos[id] = i
	}
	assert.Less(t, pos["task.record.npmInstall"], pos["task.record.npmBuild"])
	assert.Less(t, pos["task.record.npmBuild"], pos["task.record.processResources"])
	assert.Equal(t, "[compileJava] ", h.module.prefixes["task.record.compileJava"])

	for name, o := range outcomes(h.exec.Snapshot()) {
		assert.Equal(t, Executed, o, name)
	}
	assert.Len(t, h.reporter.started, 4)
	assert.Len(t, h.reporter.finished, 4)
}

func TestRun_FailureSkipsDependents(t *testing.T) {
	h := newHarness(t, Options{Workers: 1}, nil,
		taskSpec{name: "compileJava", args: `fail = true`},
		taskSpec{name: "fastVerify", dependsOn: []string{"compileJava"}},
		taskSpec{name: "report", dependsOn: []string{"fastVerify"}},
	)

	err := h.exec.Run(testContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execution failed for task.record.compileJava")
	assert.Contains(t, err.Error(), "boom")

	got := outcomes(h.exec.Snapshot())
	assert.Equal(t, Failed, got["compileJava"])
	assert.Equal(t, Skipped, got["fastVerify"])
	assert.Equal(t, Skipped, got["report"])
	assert.Equal(t, []string{"task.record.compileJava"}, h.module.ran())

	for _, r := range h.exec.Snapshot() {
		if r.Name == "report" {
			assert.Contains(t, r.Error, "upstream failure of 'task.record.fastVerify'")
		}
	}
}

func TestRun_FailureCancelsRunningTasks(t *testing.T) {
	h := newHarness(t, Options{Workers: 2}, nil,
		taskSpec{name: "bootRun", args: `block = true`},
		taskSpec{name: "afterBoot", dependsOn: []string{"bootRun"}},
		taskSpec{name: "npmBuild", args: `fail = true`},
	)

	done := make(chan error, 1)
	go func() { done <- h.exec.Run(testContext()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "task.record.npmBuild")
		assert.NotContains(t, err.Error(), "context canceled")
	case <-time.After(10 * time.Second):
		t.Fatal("executor did not settle after a failure")
	}

	got := outcomes(h.exec.Snapshot())
	assert.Equal(t, Failed, got["npmBuild"])
	assert.Equal(t, Skipped, got["bootRun"])
	assert.Equal(t, Skipped, got["afterBoot"])
}

func TestRun_CancelledBuildSkipsEverything(t *testing.T) {
	h := newHarness(t, Options{}, nil,
		taskSpec{name: "a"},
		taskSpec{name: "b", dependsOn: []string{"a"}},
	)
	ctx, cancel := context.WithCancel(testContext())
	cancel()

	err := h.exec.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "build cancelled")

	got := outcomes(h.exec.Snapshot())
	assert.Equal(t, Skipped, got["a"])
	assert.Equal(t, Skipped, got["b"])
	assert.Empty(t, h.module.ran())
}

func TestRun_UpToDateCheck(t *testing.T) {
	dir := t.TempDir()
	store, err := statestore.Open(testContext(), filepath.Join(dir, ".markovbuild"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	src := filepath.Join(dir, "package.json")
	require.NoError(t, os.WriteFile(src, []byte(`{"v":1}`), 0o644))

	spec := taskSpec{
		name:    "npmBuild",
		args:    `write = "bundle.js"` + "\n" + `from = "package.json"`,
		inputs:  []string{"package.json"},
		outputs: []string{"bundle.js"},
	}
	unchecked := taskSpec{name: "bootRun"}

	run := func(opts Options) map[string]Outcome {
		opts.ProjectDir = dir
		h := newHarness(t, opts, store, spec, unchecked)
		require.NoError(t, h.exec.Run(testContext()))
		return outcomes(h.exec.Snapshot())
	}

	first := run(Options{})
	assert.Equal(t, Executed, first["npmBuild"])

	second := run(Options{})
	assert.Equal(t, UpToDate, second["npmBuild"])
	assert.Equal(t, Executed, second["bootRun"], "tasks without outputs always execute")

	forced := run(Options{RerunTasks: true})
	assert.Equal(t, Executed, forced["npmBuild"])

	// A changed input invalidates the recorded state.
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.WriteFile(src, []byte(`{"v":22}`), 0o644))
	require.NoError(t, os.Chtimes(src, later, later))
	assert.Equal(t, Executed, run(Options{})["npmBuild"])

	// So does a deleted output.
	require.NoError(t, os.Remove(filepath.Join(dir, "bundle.js")))
	assert.Equal(t, Executed, run(Options{})["npmBuild"])
	assert.Equal(t, UpToDate, run(Options{})["npmBuild"])
}

func TestRun_FailureForgetsRecordedState(t *testing.T) {
	dir := t.TempDir()
	store, err := statestore.Open(testContext(), filepath.Join(dir, ".markovbuild"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ok := taskSpec{name: "compileJava", args: `write = "Main.class"`, outputs: []string{"Main.class"}}
	h := newHarness(t, Options{ProjectDir: dir}, store, ok)
	require.NoError(t, h.exec.Run(testContext()))
	_, found, err := store.TaskState(testContext(), "task.record.compileJava")
	require.NoError(t, err)
	require.True(t, found)

	// Same task ID, now failing: the old fingerprint must not survive.
	broken := taskSpec{name: "compileJava", args: `fail = true`, outputs: []string{"Main.class"}}
	h = newHarness(t, Options{ProjectDir: dir}, store, broken)
	require.Error(t, h.exec.Run(testContext()))
	_, found, err = store.TaskState(testContext(), "task.record.compileJava")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRun_DecodeErrorFailsTask(t *testing.T) {
	h := newHarness(t, Options{}, nil, taskSpec{name: "bad", args: `fail = "not-a-bool"`})
	err := h.exec.Run(testContext())
	require.Error(t, err)
	assert.Equal(t, Failed, outcomes(h.exec.Snapshot())["bad"])
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "UP-TO-DATE", UpToDate.String())
	text, err := Failed.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "FAILED", string(text))
}

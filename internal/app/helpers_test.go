package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/markovbuild/internal/registry"
)

// SafeBuffer is a thread-safe buffer for capturing output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// touchModule registers a "touch" runner that writes a file and records
// which tasks ran.
type touchModule struct {
	mu  sync.Mutex
	log []string
}

type touchInput struct {
	Path    string `hcl:"path" validate:"required"`
	Content string `hcl:"content,optional"`
	Fail    bool   `hcl:"fail,optional"`
}

func (m *touchModule) Register(r *registry.Registry) {
	r.RegisterRunner("touch", &registry.RegisteredRunner{
		NewInput: func() any { return &touchInput{} },
		Fn: func(ctx context.Context, rc *registry.RunContext, input any) error {
			in := input.(*touchInput)
			m.mu.Lock()
			m.log = append(m.log, rc.TaskID)
			m.mu.Unlock()
			if in.Fail {
				return errors.New("boom")
			}
			p := rc.Path(in.Path)
			if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
				return err
			}
			return os.WriteFile(p, []byte(in.Content+rc.Properties["greeting"]), 0o644)
		},
	})
}

func (m *touchModule) ran() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.log)
}

func (m *touchModule) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = nil
}

const touchDescriptor = `
project "demo" {
  group   = "com.example"
  version = "1.0"
}

task "touch" "generate" {
  group       = "build"
  description = "Generates the source."
  inputs      = ["src"]
  outputs     = ["out/generated.txt"]
  arguments {
    path    = "out/generated.txt"
    content = "gen"
  }
}

task "touch" "assemble" {
  group      = "build"
  depends_on = ["generate"]
  outputs    = ["out/assembled.txt"]
  arguments {
    path = "out/assembled.txt"
  }
}

task "touch" "unrelated" {
  arguments {
    path = "out/unrelated.txt"
  }
}
`

// SetupAppTest writes a descriptor into a temp project and creates an App
// for it with the touch module.
func SetupAppTest(t *testing.T, descriptor string, cfg Config) (*App, *touchModule, *SafeBuffer) {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "input.txt"), []byte("v1"), 0o644))
	cfg.BuildFile = filepath.Join(dir, "build.hcl")
	require.NoError(t, os.WriteFile(cfg.BuildFile, []byte(descriptor), 0o644))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "debug"
	}

	out := &SafeBuffer{}
	mod := &touchModule{}
	a, err := NewApp(out, &cfg, nil, mod)
	require.NoError(t, err)

	t.Cleanup(func() {
		if os.Getenv("MARKOVBUILD_TEST_LOGS") == "true" {
			t.Logf("--- Full Output for %s ---\n%s", t.Name(), out.String())
		}
	})
	return a, mod, out
}

package copy

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/markovbuild/internal/ctxlog"
	"github.com/vk/markovbuild/internal/registry"
)

func testContext() context.Context {
	return ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestOnRunCopy_Tree(t *testing.T) {
	dir := t.TempDir()
	res := filepath.Join(dir, "server", "src", "main", "resources")
	write(t, filepath.Join(res, "application.properties"), "server.port=8080")
	write(t, filepath.Join(res, "static", "index.html"), "<html/>")
	write(t, filepath.Join(res, "static", "assets", "app.js"), "x")

	rc := &registry.RunContext{ProjectDir: dir}
	in := &Input{From: "server/src/main/resources", Into: "server/build/resources/main"}
	require.NoError(t, OnRunCopy(testContext(), rc, in))

	out := filepath.Join(dir, "server", "build", "resources", "main")
	for rel, want := range map[string]string{
		"application.properties": "server.port=8080",
		"static/index.html":      "<html/>",
		"static/assets/app.js":   "x",
	} {
		got, err := os.ReadFile(filepath.Join(out, filepath.FromSlash(rel)))
		require.NoError(t, err, rel)
		assert.Equal(t, want, string(got))
	}
}

func TestOnRunCopy_Include(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "in", "a.js"), "a")
	write(t, filepath.Join(dir, "in", "nested", "b.js"), "b")
	write(t, filepath.Join(dir, "in", "c.map"), "c")

	rc := &registry.RunContext{ProjectDir: dir}
	require.NoError(t, OnRunCopy(testContext(), rc, &Input{From: "in", Into: "out", Include: []string{"*.js"}}))

	assert.FileExists(t, filepath.Join(dir, "out", "a.js"))
	assert.FileExists(t, filepath.Join(dir, "out", "nested", "b.js"))
	assert.NoFileExists(t, filepath.Join(dir, "out", "c.map"))

	err := OnRunCopy(testContext(), rc, &Input{From: "in", Into: "out", Include: []string{"[bad"}})
	assert.ErrorContains(t, err, "invalid include pattern")
}

func TestOnRunCopy_SingleFileAndMissingSource(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "mrf_config.json"), "{}")
	rc := &registry.RunContext{ProjectDir: dir}

	require.NoError(t, OnRunCopy(testContext(), rc, &Input{From: "mrf_config.json", Into: "build"}))
	assert.FileExists(t, filepath.Join(dir, "build", "mrf_config.json"))

	err := OnRunCopy(testContext(), rc, &Input{From: "missing", Into: "build"})
	assert.ErrorContains(t, err, "copy source")
}

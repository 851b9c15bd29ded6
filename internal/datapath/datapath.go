// Package datapath resolves where the backend keeps its on-disk data, so
// launch tasks can guard the shared cache file.
package datapath

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/vk/markovbuild/internal/ctxlog"
)

const (
	// PropertyName is the invoker property that overrides the data directory.
	PropertyName = "markov.data.dir"
	// ConfigKey is the key read from the backend's JSON config file.
	ConfigKey = "markov_data_directory"
	// DBFile is the sqlite cache the backend keeps inside the data directory.
	DBFile = "markov_cache.db"
)

// ResolveDir returns the backend data directory. Lookup order: the
// markov.data.dir property, the markov_data_directory key of configFile, ".".
// An unreadable config file is logged and skipped.
func ResolveDir(ctx context.Context, props map[string]string, configFile string) string {
	if dir := props[PropertyName]; dir != "" {
		return dir
	}
	if configFile != "" {
		dir, err := readConfigDir(configFile)
		switch {
		case err == nil && dir != "":
			return dir
		case err != nil && !errors.Is(err, os.ErrNotExist):
			ctxlog.FromContext(ctx).Warn("Failed to read data directory from config.", "file", configFile, "error", err)
		}
	}
	return "."
}

// DBPath returns the cache database path inside the resolved data directory.
func DBPath(ctx context.Context, props map[string]string, configFile string) string {
	return filepath.Join(ResolveDir(ctx, props, configFile), DBFile)
}

func readConfigDir(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", err
	}
	field, ok := doc[ConfigKey]
	if !ok {
		return "", nil
	}
	var dir string
	if err := json.Unmarshal(field, &dir); err != nil {
		return "", err
	}
	return dir, nil
}

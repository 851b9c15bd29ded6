package config

import "context"

// Loader is the interface for a format-specific build descriptor loader.
type Loader interface {
	// Load reads the descriptor from the given paths (files or directories)
	// and translates it into the format-agnostic model.
	Load(ctx context.Context, paths ...string) (*Model, error)
}

package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/vk/markovbuild/internal/config"
	"github.com/vk/markovbuild/internal/console"
	"github.com/vk/markovbuild/internal/ctxlog"
	"github.com/vk/markovbuild/internal/dag"
	"github.com/vk/markovbuild/internal/executor"
	"github.com/vk/markovbuild/internal/hcl"
	"github.com/vk/markovbuild/internal/props"
	"github.com/vk/markovbuild/internal/registry"
)

const (
	// StateDirName holds the state database and the build lock, relative
	// to the project dir.
	StateDirName  = ".markovbuild"
	BuildLockFile = "build.lock"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW       io.Writer
	cfg        *Config
	logger     *slog.Logger
	console    *console.Console
	registry   *registry.Registry
	model      *config.Model
	graph      *dag.Graph
	properties map[string]string
	workers    int
	statusPort int

	mu         sync.Mutex
	current    *executor.Executor
	httpServer *http.Server
}

// NewApp is the constructor for the main application. It reads the
// settings file, loads and validates the build descriptor and builds the
// task graph. A nil loader selects the HCL loader.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader, modules ...registry.Module) (*App, error) {
	settingsPath, required := cfg.settingsPath()
	settings, err := LoadSettings(settingsPath, required)
	if err != nil {
		return nil, err
	}

	logger := newLogger(
		firstNonEmpty(cfg.LogLevel, settings.LogLevel, defaultLogLevel),
		firstNonEmpty(cfg.LogFormat, settings.LogFormat, defaultLogFormat),
		outW,
	)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	properties := props.Merge(settings.Properties, cfg.Properties)
	logger.Debug("Invoker properties resolved.", "count", len(properties))

	if loader == nil {
		loader = hcl.NewLoader(properties)
	}
	model, err := loader.Load(ctx, cfg.BuildFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load build descriptor: %w", err)
	}
	logger.Debug("Build descriptor loaded.", "tasks", len(model.Tasks), "files", len(model.Files))

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules), "types", reg.Types())

	if err := reg.ValidateModel(ctx, model); err != nil {
		return nil, err
	}

	graph, err := dag.Build(ctx, model)
	if err != nil {
		return nil, fmt.Errorf("failed to build task graph: %w", err)
	}
	logger.Debug("Task graph built.", "nodes", graph.Len())

	return &App{
		outW:       outW,
		cfg:        cfg,
		logger:     logger,
		console:    console.New(outW),
		registry:   reg,
		model:      model,
		graph:      graph,
		properties: properties,
		workers:    firstPositive(cfg.Workers, settings.Workers, executor.DefaultWorkers),
		statusPort: firstPositive(cfg.StatusPort, settings.StatusPort),
	}, nil
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Model returns the loaded build model.
func (a *App) Model() *config.Model {
	return a.model
}

// Properties returns the merged invoker properties.
func (a *App) Properties() map[string]string {
	return a.properties
}

func (a *App) stateDir() string {
	return filepath.Join(a.model.Project.Dir, StateDirName)
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/okra-platform/schemagen/internal/codegen"
	"github.com/okra-platform/schemagen/internal/config"
	"github.com/okra-platform/schemagen/internal/pipeline"
	"github.com/okra-platform/schemagen/internal/watch"
)

// ErrDrift is returned by --check when generated files are out of date
var ErrDrift = errors.New("generated files are out of date")

// GenerateOptions are the generate command flags
type GenerateOptions struct {
	Only  string
	Check bool
	Force bool
	Watch bool
}

// GenerateDependencies for the generate command
type GenerateDependencies struct {
	ConfigLoader   ConfigLoader
	Runner         Runner
	WatcherFactory WatcherFactory
	Output         Output
}

// ConfigLoader loads schemagen.yaml; an empty path searches upward from the working directory
type ConfigLoader interface {
	Load(path string) (*config.Config, error)
}

// Runner executes one generation
type Runner interface {
	Run(ctx context.Context, cfg *config.Config, opts pipeline.Options) (*pipeline.Result, error)
}

// WatcherFactory creates a watcher over the inputs of cfg
type WatcherFactory interface {
	NewWatcher(cfg *config.Config, onChange func(paths []string)) (Watcher, error)
}

// Watcher blocks until its context is done, calling back on changes
type Watcher interface {
	Start(ctx context.Context) error
	Close() error
}

type defaultConfigLoader struct{}

func (l *defaultConfigLoader) Load(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFromPath(path)
}

type defaultWatcherFactory struct {
	logger zerolog.Logger
}

func (f *defaultWatcherFactory) NewWatcher(cfg *config.Config, onChange func(paths []string)) (Watcher, error) {
	fw, err := watch.NewFileWatcher(f.logger,
		[]string{"*.yaml", "*.yml", "*.tmpl"},
		[]string{".*", "*~", "*.contract.yaml"},
		watch.DefaultDebounce,
		onChange,
	)
	if err != nil {
		return nil, err
	}

	dirs := []string{cfg.SchemaDir()}
	if dir := cfg.TemplateDir(); dir != "" {
		dirs = append(dirs, dir)
	}
	for _, dir := range dirs {
		if err := fw.AddDirectory(dir); err != nil {
			fw.Close()
			return nil, err
		}
	}
	if err := fw.AddFile(cfg.Path); err != nil {
		fw.Close()
		return nil, err
	}
	return fw, nil
}

// GenerateCommand renders every configured artifact
type GenerateCommand struct {
	configPath string
	deps       GenerateDependencies
}

// NewGenerateCommand creates a generate command with default dependencies
func NewGenerateCommand(logger zerolog.Logger, configPath string) *GenerateCommand {
	return &GenerateCommand{
		configPath: configPath,
		deps: GenerateDependencies{
			ConfigLoader:   &defaultConfigLoader{},
			Runner:         pipeline.New(logger),
			WatcherFactory: &defaultWatcherFactory{logger: logger},
			Output:         &defaultOutput{},
		},
	}
}

// WithDependencies allows injecting custom dependencies for testing
func (gc *GenerateCommand) WithDependencies(deps GenerateDependencies) *GenerateCommand {
	gc.deps = deps
	return gc
}

// Generate runs the generate command
func (c *Controller) Generate(ctx context.Context, opts GenerateOptions) error {
	return NewGenerateCommand(c.Logger, c.Flags.Config).Execute(ctx, opts)
}

// Execute runs one generation, then keeps regenerating on changes with --watch
func (gc *GenerateCommand) Execute(ctx context.Context, opts GenerateOptions) error {
	runOpts, err := pipelineOptions(opts)
	if err != nil {
		return err
	}

	cfg, err := gc.deps.ConfigLoader.Load(gc.configPath)
	if err != nil {
		return err
	}

	err = gc.generate(ctx, cfg, runOpts)
	if !opts.Watch {
		return err
	}
	if err != nil {
		gc.report(err)
	}
	return gc.watch(ctx, cfg, runOpts)
}

func pipelineOptions(opts GenerateOptions) (pipeline.Options, error) {
	if opts.Check && opts.Watch {
		return pipeline.Options{}, fmt.Errorf("--check cannot be combined with --watch")
	}

	runOpts := pipeline.Options{Check: opts.Check, Force: opts.Force}
	if opts.Only != "" {
		kind, ok := codegen.ParseKind(opts.Only)
		if !ok {
			names := make([]string, len(codegen.Kinds))
			for i, k := range codegen.Kinds {
				names[i] = string(k)
			}
			return pipeline.Options{}, fmt.Errorf("unknown --only value %q (expected one of %s)", opts.Only, strings.Join(names, ", "))
		}
		runOpts.Only = []codegen.Kind{kind}
	}
	return runOpts, nil
}

func (gc *GenerateCommand) generate(ctx context.Context, cfg *config.Config, opts pipeline.Options) error {
	res, err := gc.deps.Runner.Run(ctx, cfg, opts)
	if err != nil {
		return err
	}

	out := res.Output
	if opts.Check {
		if !out.Changed() {
			gc.deps.Output.Printf("✅ %d generated files are up to date\n", len(out.Unchanged))
			return nil
		}
		for _, path := range out.Drifted {
			gc.deps.Output.Printf("  would update %s\n", gc.relative(cfg, path))
		}
		return fmt.Errorf("%w: %d of %d files would change", ErrDrift, len(out.Drifted), len(res.Artifacts))
	}

	for _, path := range out.Written {
		gc.deps.Output.Printf("  wrote %s\n", gc.relative(cfg, path))
	}
	gc.deps.Output.Printf("✅ Generated %d files (%d unchanged)\n", len(out.Written), len(out.Unchanged))
	return nil
}

func (gc *GenerateCommand) watch(ctx context.Context, cfg *config.Config, opts pipeline.Options) error {
	changes := make(chan []string, 1)
	w, err := gc.deps.WatcherFactory.NewWatcher(cfg, func(paths []string) {
		select {
		case changes <- paths:
		default:
		}
	})
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Close()

	errChan := make(chan error, 1)
	go func() {
		errChan <- w.Start(ctx)
	}()
	gc.deps.Output.Printf("👀 Watching %s for changes\n", cfg.SchemaDir())

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errChan:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		case paths := <-changes:
			gc.deps.Output.Printf("🔄 %d file(s) changed, regenerating\n", len(paths))
			next, err := gc.deps.ConfigLoader.Load(cfg.Path)
			if err != nil {
				gc.report(err)
				continue
			}
			if err := gc.generate(ctx, next, opts); err != nil {
				gc.report(err)
			}
		}
	}
}

func (gc *GenerateCommand) report(err error) {
	gc.deps.Output.Printf("❌ %v\n", err)
}

func (gc *GenerateCommand) relative(cfg *config.Config, path string) string {
	if rel, err := filepath.Rel(cfg.Dir, path); err == nil {
		return filepath.ToSlash(rel)
	}
	return path
}

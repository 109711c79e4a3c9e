// Package pipeline runs a complete generation: load, resolve, compile, emit,
// enforce and write.
package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/okra-platform/schemagen/internal/codegen"
	"github.com/okra-platform/schemagen/internal/codegen/builtin"
	"github.com/okra-platform/schemagen/internal/codegen/templates"
	"github.com/okra-platform/schemagen/internal/config"
	"github.com/okra-platform/schemagen/internal/diag"
	"github.com/okra-platform/schemagen/internal/enforce"
	"github.com/okra-platform/schemagen/internal/output"
	"github.com/okra-platform/schemagen/internal/query"
	"github.com/okra-platform/schemagen/internal/resolve"
	"github.com/okra-platform/schemagen/internal/schema"
	"github.com/okra-platform/schemagen/internal/targets"
)

// Options control a single run
type Options struct {
	// Only restricts emission to these kinds; empty means every kind
	Only []codegen.Kind
	// Check renders and compares without writing
	Check bool
	// Force overwrites generated files that were edited by hand
	Force bool
	// Workers bounds parallel rendering; zero falls back to the configuration, then GOMAXPROCS
	Workers int
}

// Result reports what a run produced
type Result struct {
	// Artifacts are the rendered files in path order
	Artifacts []codegen.Artifact
	Output    *output.Result
}

// Pipeline wires the generation stages together
type Pipeline struct {
	logger     zerolog.Logger
	generators *codegen.Registry
}

// New creates a pipeline using the built-in generators
func New(logger zerolog.Logger) *Pipeline {
	return NewWithRegistry(logger, builtin.Registry())
}

// NewWithRegistry creates a pipeline using a custom generator registry
func NewWithRegistry(logger zerolog.Logger, generators *codegen.Registry) *Pipeline {
	return &Pipeline{
		logger:     logger.With().Str("component", "pipeline").Logger(),
		generators: generators,
	}
}

// Run renders every artifact and writes the ones that changed. Nothing is
// written unless every stage succeeded.
func (p *Pipeline) Run(ctx context.Context, cfg *config.Config, opts Options) (*Result, error) {
	artifacts, err := p.Render(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}

	manifest, err := output.LoadManifest(cfg.ManifestPath())
	if err != nil {
		return nil, diag.New(diag.KindOutput, cfg.ManifestPath(), "", "", "%v", err)
	}
	w := output.NewWriter(p.logger, manifest, output.Options{Check: opts.Check, Force: opts.Force})
	res, err := w.Write(artifacts)
	if err != nil {
		return nil, err
	}
	return &Result{Artifacts: artifacts, Output: res}, nil
}

// Render runs every stage except writing and returns the artifacts in path order
func (p *Pipeline) Render(ctx context.Context, cfg *config.Config, opts Options) ([]codegen.Artifact, error) {
	b, err := p.Compile(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tmpl, err := templates.Load(cfg.TemplateDir())
	if err != nil {
		return nil, err
	}
	if over := tmpl.Overridden(); len(over) > 0 {
		p.logger.Debug().Strs("templates", over).Msg("Using template overrides")
	}

	kinds, err := p.kinds(opts.Only)
	if err != nil {
		return nil, err
	}

	var artifacts []codegen.Artifact
	for _, kind := range kinds {
		gen, err := p.generators.Get(kind, tmpl)
		if err != nil {
			return nil, err
		}
		out, err := p.emit(ctx, b, gen, workers(cfg, opts))
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, out...)
	}

	sort.SliceStable(artifacts, func(i, j int) bool {
		return artifacts[i].FullPath() < artifacts[j].FullPath()
	})
	return artifacts, nil
}

// Compile runs the sequential front half of the pipeline. Each stage reads
// the previous stage's output and never modifies it.
func (p *Pipeline) Compile(ctx context.Context, cfg *config.Config) (*codegen.Build, error) {
	registry, err := targets.New(cfg)
	if err != nil {
		return nil, err
	}
	p.logger.Debug().Int("targets", len(registry.All())).Msg("Registered targets")

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ir, err := schema.Load(cfg.SchemaDir())
	if err != nil {
		return nil, err
	}
	if err := registry.Check(ir); err != nil {
		return nil, err
	}
	p.logger.Debug().Int("entities", len(ir.Entities)).Msg("Loaded schema")

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := resolve.New(p.logger, registry).Resolve(ir)
	if err != nil {
		return nil, err
	}

	catalog, err := query.NewCompiler(p.logger).Compile(res)
	if err != nil {
		return nil, err
	}
	p.logger.Debug().Int("queries", len(catalog.Queries)).Msg("Compiled queries")

	return &codegen.Build{Resolved: res, Catalog: catalog, Registry: registry, Config: cfg}, nil
}

func (p *Pipeline) kinds(only []codegen.Kind) ([]codegen.Kind, error) {
	if len(only) == 0 {
		return codegen.Kinds, nil
	}
	want := make(map[codegen.Kind]bool, len(only))
	for _, k := range only {
		if _, ok := codegen.ParseKind(string(k)); !ok {
			return nil, diag.New(diag.KindTargetConfig, "", "", "only", "unknown artifact kind %q", k)
		}
		want[k] = true
	}
	var kinds []codegen.Kind
	for _, k := range codegen.Kinds {
		if want[k] {
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}

// emit renders every task of one generator in parallel. Task errors are
// collected so one run reports all of them.
func (p *Pipeline) emit(ctx context.Context, b *codegen.Build, gen codegen.Generator, limit int) ([]codegen.Artifact, error) {
	tasks := gen.Tasks(b)
	results := make([][]codegen.Artifact, len(tasks))
	errs := make([]error, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, task := range tasks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i], errs[i] = task.Render()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var l diag.List
	var artifacts []codegen.Artifact
	for i, task := range tasks {
		if errs[i] != nil {
			l.Merge(diag.KindEmission, fmt.Errorf("%s %s for %s: %w", task.Kind, task.Owner, task.Target, errs[i]))
			continue
		}
		artifacts = append(artifacts, results[i]...)
	}
	if err := l.Err(); err != nil {
		return nil, err
	}
	p.logger.Debug().
		Str("kind", string(gen.Kind())).
		Int("tasks", len(tasks)).
		Int("artifacts", len(artifacts)).
		Msg("Rendered artifacts")

	composer, ok := gen.(codegen.Composer)
	if !ok {
		return artifacts, nil
	}
	return p.compose(ctx, b, composer, artifacts, limit)
}

// compose is the barrier for fragment-based kinds: each target is assembled
// and enforced only after all of its fragments exist
func (p *Pipeline) compose(ctx context.Context, b *codegen.Build, composer codegen.Composer, parts []codegen.Artifact, limit int) ([]codegen.Artifact, error) {
	byTarget := make(map[string][]codegen.Artifact)
	for _, a := range parts {
		byTarget[a.Target] = append(byTarget[a.Target], a)
	}
	names := make([]string, 0, len(byTarget))
	for name := range byTarget {
		names = append(names, name)
	}
	sort.Strings(names)

	enforcer := enforce.New(p.logger)
	docs := make([]codegen.Artifact, len(names))
	errs := make([]error, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			target, ok := b.Registry.Lookup(name)
			if !ok {
				errs[i] = diag.New(diag.KindEmission, "", "", "", "fragments reference unknown target %q", name)
				return nil
			}
			doc, err := composer.Compose(b, target, byTarget[name])
			if err != nil {
				errs[i] = diag.New(diag.KindEmission, "", "", "", "compose %s: %v", name, err)
				return nil
			}
			docs[i], errs[i] = doc, enforcer.Check(doc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var l diag.List
	for _, err := range errs {
		l.Merge(diag.KindEmission, err)
	}
	if err := l.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

func workers(cfg *config.Config, opts Options) int {
	switch {
	case opts.Workers > 0:
		return opts.Workers
	case cfg.Workers > 0:
		return cfg.Workers
	default:
		return runtime.GOMAXPROCS(0)
	}
}

// Package targets resolves the named output destinations declared in the
// generator configuration.
package targets

import (
	"sort"

	"github.com/okra-platform/schemagen/internal/config"
	"github.com/okra-platform/schemagen/internal/diag"
	"github.com/okra-platform/schemagen/internal/schema"
)

// Category is the kind of output a target produces
type Category string

const (
	ModelPython Category = "model-python"
	ModelTS     Category = "model-ts"
	SchemaDoc   Category = "schema-doc"
)

// Categories lists every supported category in a stable order
var Categories = []Category{ModelPython, ModelTS, SchemaDoc}

// IsModel reports whether the category renders typed model sources
func (c Category) IsModel() bool {
	return c == ModelPython || c == ModelTS
}

func knownCategory(c Category) bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}

// Target is one named output destination
type Target struct {
	Name     string
	Category Category
	// Dir is the absolute output directory
	Dir string
}

// Registry is the immutable set of targets for a run
type Registry struct {
	targets map[string]Target
	ordered []Target
}

// New builds the registry from configuration. Target names must be unique
// across every category.
func New(cfg *config.Config) (*Registry, error) {
	r := &Registry{targets: make(map[string]Target)}

	var l diag.List
	cats := make([]string, 0, len(cfg.Targets))
	for cat := range cfg.Targets {
		cats = append(cats, cat)
	}
	sort.Strings(cats)

	for _, cat := range cats {
		category := Category(cat)
		if !knownCategory(category) {
			l.Addf(diag.KindTargetConfig, cfg.Path, "", "targets."+cat, "unknown target category %q (expected model-python, model-ts or schema-doc)", cat)
			continue
		}

		names := make([]string, 0, len(cfg.Targets[cat]))
		for name := range cfg.Targets[cat] {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			if existing, dup := r.targets[name]; dup {
				l.Addf(diag.KindTargetConfig, cfg.Path, "", "targets."+cat+"."+name, "target name %q is already declared under %s", name, existing.Category)
				continue
			}
			t := Target{
				Name:     name,
				Category: category,
				Dir:      cfg.Resolve(cfg.Targets[cat][name].Output),
			}
			r.targets[name] = t
			r.ordered = append(r.ordered, t)
		}
	}

	if err := l.Err(); err != nil {
		return nil, err
	}

	sort.Slice(r.ordered, func(i, j int) bool { return r.ordered[i].Name < r.ordered[j].Name })
	return r, nil
}

// Check verifies every target referenced by an entity is registered
func (r *Registry) Check(ir *schema.IR) error {
	var l diag.List
	for _, e := range ir.Entities {
		seen := make(map[string]bool)
		for _, name := range e.Targets {
			if seen[name] {
				l.Addf(diag.KindValidation, e.File, e.Name, "targets", "target %q is listed more than once", name)
				continue
			}
			seen[name] = true
			if _, ok := r.targets[name]; !ok {
				l.Addf(diag.KindValidation, e.File, e.Name, "targets", "unknown target %q", name)
			}
		}
	}
	return l.Err()
}

// Lookup returns the target with the given name
func (r *Registry) Lookup(name string) (Target, bool) {
	t, ok := r.targets[name]
	return t, ok
}

// All returns every target ordered by name
func (r *Registry) All() []Target {
	out := make([]Target, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// ByCategory returns the targets of one category ordered by name
func (r *Registry) ByCategory(c Category) []Target {
	var out []Target
	for _, t := range r.ordered {
		if t.Category == c {
			out = append(out, t)
		}
	}
	return out
}

// Subscribers returns the names of entities that opt into target, in IR order
func (r *Registry) Subscribers(ir *schema.IR, target string) []string {
	var names []string
	for _, e := range ir.Entities {
		if e.HasTarget(target) {
			names = append(names, e.Name)
		}
	}
	return names
}

// Package resolve links entities to each other, injects the default CRUD
// operations and enforces authorization coverage.
package resolve

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/okra-platform/schemagen/internal/diag"
	"github.com/okra-platform/schemagen/internal/schema"
	"github.com/okra-platform/schemagen/internal/targets"
)

// Entity is a schema entity with its resolved operations and relationships
type Entity struct {
	*schema.Entity

	Singular string
	Plural   string

	Operations []Operation
	// Inputs are the synthesized create/update input objects
	Inputs []schema.InputType
	// Connection names the paged list type, or is empty when the default list operation was removed
	Connection string

	// Embeds lists entities used as attribute types, sorted
	Embeds []string
	// References lists entities whose keys are held by attributes, sorted
	References []string
}

// Operation returns the resolved operation with the given name
func (e *Entity) Operation(name string) (Operation, bool) {
	for _, op := range e.Operations {
		if op.Name == name {
			return op, true
		}
	}
	return Operation{}, false
}

// Resolved is the IR annotated with operations and emission order
type Resolved struct {
	IR *schema.IR
	// Entities in IR (name) order
	Entities []*Entity
	// Order lists entity names dependencies first
	Order []string
	// Cycles are the back edges tolerated while ordering
	Cycles []Edge

	byName map[string]*Entity
}

// Entity returns the resolved entity with the given name
func (r *Resolved) Entity(name string) (*Entity, bool) {
	e, ok := r.byName[name]
	return e, ok
}

// Ordered returns the entities in emission order
func (r *Resolved) Ordered() []*Entity {
	out := make([]*Entity, 0, len(r.Order))
	for _, name := range r.Order {
		out = append(out, r.byName[name])
	}
	return out
}

// Resolver links the IR against the target registry
type Resolver struct {
	logger   zerolog.Logger
	registry *targets.Registry
}

// New creates a resolver
func New(logger zerolog.Logger, registry *targets.Registry) *Resolver {
	return &Resolver{
		logger:   logger.With().Str("component", "resolver").Logger(),
		registry: registry,
	}
}

// Resolve builds the reference graph, then merges operations and checks
// authorization. Reference errors stop resolution before operations are merged.
func (r *Resolver) Resolve(ir *schema.IR) (*Resolved, error) {
	res := &Resolved{
		IR:     ir,
		byName: make(map[string]*Entity, len(ir.Entities)),
	}
	for _, e := range ir.Entities {
		re := &Entity{
			Entity:   e,
			Singular: Singular(e.Name),
			Plural:   Plural(e.Name),
		}
		res.Entities = append(res.Entities, re)
		res.byName[e.Name] = re
	}

	if err := r.link(res); err != nil {
		return nil, err
	}

	var l diag.List
	for _, re := range res.Entities {
		re.Operations = mergeOperations(re.Entity)
		re.Inputs = crudInputs(re.Entity, re.Operations)
		for _, op := range re.Operations {
			if op.Default && op.Action == schema.ActionList {
				re.Connection = ConnectionName(re.Name)
			}
		}
		checkOperations(re, &l)
	}
	if err := l.Err(); err != nil {
		return nil, err
	}

	r.logger.Debug().
		Int("entities", len(res.Entities)).
		Strs("order", res.Order).
		Msg("Resolved entity references")
	return res, nil
}

// link builds the reference graph and emission order
func (r *Resolver) link(res *Resolved) error {
	names := make([]string, 0, len(res.Entities))
	for _, e := range res.Entities {
		names = append(names, e.Name)
	}
	g := NewGraph(names)

	var l diag.List
	for _, re := range res.Entities {
		embeds := map[string]bool{}
		refs := map[string]bool{}
		for _, a := range re.Attributes {
			field := "attributes." + a.Name
			if a.References != "" {
				target, ok := res.byName[a.References]
				switch {
				case !ok:
					l.Addf(diag.KindReference, re.File, re.Name, field, "references undeclared entity %q", a.References)
				case !target.IsStorage():
					l.Addf(diag.KindReference, re.File, re.Name, field, "references %q, which has no key", a.References)
				default:
					refs[a.References] = true
					g.AddEdge(re.Name, a.References)
				}
			}

			if a.Type.IsZero() || a.Type.IsPrimitive() {
				continue
			}
			embedded, ok := res.byName[a.Type.Name]
			if !ok {
				l.Addf(diag.KindReference, re.File, re.Name, field, "embeds undeclared entity %q", a.Type.Name)
				continue
			}
			if embedded.Name != re.Name {
				embeds[embedded.Name] = true
				g.AddEdge(re.Name, embedded.Name)
			}
			r.checkShared(&l, re.Entity, embedded.Entity, field)
		}

		for _, def := range re.Entity.Operations {
			if def.Returns.IsZero() || def.Returns.IsPrimitive() {
				continue
			}
			if returned, ok := res.byName[def.Returns.Name]; ok {
				r.checkShared(&l, re.Entity, returned.Entity, "operations."+def.Name+".returns")
			}
		}

		re.Embeds = sortedKeys(embeds)
		re.References = sortedKeys(refs)
	}
	if err := l.Err(); err != nil {
		return err
	}

	res.Order, res.Cycles = g.Order()
	for _, c := range res.Cycles {
		r.logger.Debug().Str("from", c.From).Str("to", c.To).Msg("Tolerating reference cycle")
	}
	return nil
}

// checkShared reports a used entity that is missing from one of the user's targets,
// since the generated artifact for that target would name an undefined type
func (r *Resolver) checkShared(l *diag.List, user, used *schema.Entity, field string) {
	if user.Name == used.Name {
		return
	}
	for _, t := range user.Targets {
		if _, ok := r.registry.Lookup(t); !ok {
			continue
		}
		if !used.HasTarget(t) {
			l.Addf(diag.KindReference, user.File, user.Name, field, "uses %q, which is not generated for target %q", used.Name, t)
		}
	}
}

// checkOperations enforces authorization coverage and unique field names
func checkOperations(re *Entity, l *diag.List) {
	fields := make(map[string]string)
	replaced := make(map[string]string)
	for _, def := range re.Entity.Operations {
		if def.Replaces != "" {
			replaced[def.Replaces] = def.Name
		}
	}
	for _, def := range re.Entity.Operations {
		if by, ok := replaced[def.Name]; ok {
			l.Addf(diag.KindValidation, re.File, re.Name, "operations."+def.Name, "operation %q is redeclared but also replaced by %q", def.Name, by)
		}
	}

	for i := range re.Operations {
		op := &re.Operations[i]
		op.Groups = dedupe(op.Groups)
		if len(op.Groups) == 0 {
			op.Groups = dedupe(re.Authorization[op.Name])
		}
		if len(op.Groups) == 0 {
			l.Add((&diag.AuthorizationCoverageError{File: re.File, Entity: re.Name, Operation: op.Name}).Diagnostic())
		}

		if other, dup := fields[op.Field]; dup {
			l.Addf(diag.KindValidation, re.File, re.Name, "operations."+op.Name, "operations %q and %q both expose field %q", other, op.Name, op.Field)
			continue
		}
		fields[op.Field] = op.Name
	}

	// Authorization entries must name an operation, a custom query or a default
	for name := range re.Authorization {
		if schema.IsDefaultOperation(name) {
			continue
		}
		if _, ok := re.Operation(name); ok {
			continue
		}
		if hasQuery(re.Entity, name) {
			continue
		}
		l.Addf(diag.KindValidation, re.File, re.Name, "authorization."+name, "authorization entry %q matches no operation or custom query", name)
	}
}

func hasQuery(e *schema.Entity, name string) bool {
	for _, q := range e.CustomQueries {
		if q.Name == name {
			return true
		}
	}
	return false
}

func dedupe(groups []string) []string {
	seen := make(map[string]bool, len(groups))
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		if g == "" || seen[g] {
			continue
		}
		seen[g] = true
		out = append(out, g)
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

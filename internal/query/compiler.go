// Package query compiles custom query definitions into signatures, derived
// result types and resolver contracts.
package query

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/okra-platform/schemagen/internal/diag"
	"github.com/okra-platform/schemagen/internal/resolve"
	"github.com/okra-platform/schemagen/internal/schema"
)

// Field is one field of a synthesized result type
type Field struct {
	Name        string
	Type        schema.TypeRef
	Description string
	// Enrichment is set for computed fields
	Enrichment *Enrichment
}

// Enrichment is a resolved computed field
type Enrichment struct {
	schema.Enrichment
	Type schema.TypeRef
	// Table is the storage entity the value is read from
	Table string
}

// Type is a result type synthesized for an aggregation query
type Type struct {
	Name   string
	Base   string
	Fields []Field
}

// Field returns the named field
func (t *Type) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Query is a compiled custom query
type Query struct {
	Name        string
	Entity      string
	File        string
	Kind        schema.QueryKind
	Field       string
	Description string
	Args        []schema.InputField
	// Returns is the declared type with aggregation bases swapped for the synthesized type
	Returns schema.TypeRef
	// Declared is the return type as written in the source
	Declared    schema.TypeRef
	Groups      []string
	Enrichments []Enrichment
	// Synthesized is set for aggregation queries
	Synthesized *Type
}

// Catalog holds every compiled query
type Catalog struct {
	// Queries ordered by name
	Queries []*Query

	byEntity map[string][]*Query
	byName   map[string]*Query
}

// ForEntity returns the queries declared by an entity, ordered by name
func (c *Catalog) ForEntity(entity string) []*Query {
	return c.byEntity[entity]
}

// Lookup returns the query with the given name
func (c *Catalog) Lookup(name string) (*Query, bool) {
	q, ok := c.byName[name]
	return q, ok
}

// Compiler compiles custom queries against a resolved IR
type Compiler struct {
	logger zerolog.Logger
}

// NewCompiler creates a query compiler
func NewCompiler(logger zerolog.Logger) *Compiler {
	return &Compiler{logger: logger.With().Str("component", "query-compiler").Logger()}
}

// FieldName is the GraphQL field a custom query is exposed as
func FieldName(query string) string {
	r, size := utf8.DecodeRuneInString(query)
	if r == utf8.RuneError {
		return query
	}
	return string(unicode.ToLower(r)) + query[size:]
}

// Compile resolves every custom query. Reference problems are reported on
// their own before any type synthesis or authorization check runs.
func (c *Compiler) Compile(res *resolve.Resolved) (*Catalog, error) {
	if err := checkReferences(res); err != nil {
		return nil, err
	}

	cat := &Catalog{
		byEntity: make(map[string][]*Query),
		byName:   make(map[string]*Query),
	}

	var l diag.List
	opFields := make(map[string]string)
	for _, e := range res.Entities {
		for _, op := range e.Operations {
			opFields[op.Field] = "operation " + e.Name + "." + op.Name
		}
	}

	typeNames := make(map[string]bool)
	for _, e := range res.Entities {
		typeNames[e.Name] = true
		if e.Connection != "" {
			typeNames[e.Connection] = true
		}
		for _, in := range e.Inputs {
			typeNames[in.Name] = true
		}
	}
	for _, it := range res.IR.InputTypes {
		typeNames[it.Name] = true
	}

	for _, e := range res.Entities {
		for _, def := range e.CustomQueries {
			q := compileQuery(res, e, def, &l)
			for _, op := range e.Operations {
				if strings.EqualFold(op.Name, q.Name) {
					l.Addf(diag.KindValidation, e.File, e.Name, "customQueries."+q.Name, "custom query %q has the same name as operation %q", q.Name, op.Name)
				}
			}
			if by, dup := opFields[q.Field]; dup {
				l.Addf(diag.KindValidation, e.File, e.Name, "customQueries."+q.Name, "query field %q collides with %s", q.Field, by)
			} else {
				opFields[q.Field] = "query " + e.Name + "." + q.Name
			}
			if q.Synthesized != nil && typeNames[q.Synthesized.Name] {
				l.Addf(diag.KindValidation, e.File, e.Name, "customQueries."+q.Name, "synthesized type %q collides with an existing type", q.Synthesized.Name)
			}
			cat.Queries = append(cat.Queries, q)
			cat.byName[q.Name] = q
			cat.byEntity[e.Name] = append(cat.byEntity[e.Name], q)
		}
	}

	if err := l.Err(); err != nil {
		return nil, err
	}

	sort.Slice(cat.Queries, func(i, j int) bool { return cat.Queries[i].Name < cat.Queries[j].Name })
	for name := range cat.byEntity {
		qs := cat.byEntity[name]
		sort.Slice(qs, func(i, j int) bool { return qs[i].Name < qs[j].Name })
	}

	c.logger.Debug().Int("queries", len(cat.Queries)).Msg("Compiled custom queries")
	return cat, nil
}

// checkReferences validates names that point at other entities: unique query
// names, enrichment sources and the fields they read
func checkReferences(res *resolve.Resolved) error {
	var l diag.List
	owners := make(map[string]*resolve.Entity)
	for _, e := range res.Entities {
		for _, q := range e.CustomQueries {
			field := "customQueries." + q.Name
			if first, dup := owners[q.Name]; dup {
				l.Addf(diag.KindReference, e.File, e.Name, field, "custom query name %q is already declared by %s", q.Name, first.Name)
			} else {
				owners[q.Name] = e
			}

			if q.Kind == schema.QueryAggregation {
				if _, ok := res.Entity(q.Returns.Name); !ok && !q.Returns.IsZero() {
					l.Addf(diag.KindReference, e.File, e.Name, field+".returns", "aggregation must return an entity, got %s", q.Returns)
				}
			}
			if !q.Returns.IsZero() && !q.Returns.IsPrimitive() {
				if base, ok := res.Entity(q.Returns.Name); ok {
					for _, t := range e.Targets {
						if !base.HasTarget(t) {
							l.Addf(diag.KindReference, e.File, e.Name, field+".returns", "uses %q, which is not generated for target %q", base.Name, t)
						}
					}
				}
			}

			for _, en := range q.Enrichments {
				ef := field + ".enrichments." + en.Field
				src, ok := res.Entity(en.Source)
				if !ok {
					l.Addf(diag.KindReference, e.File, e.Name, ef+".source", "enrichment source %q is not a declared entity", en.Source)
					continue
				}
				if en.Kind == schema.EnrichmentLookup && en.SourceField != "" {
					if _, ok := src.Attribute(en.SourceField); !ok {
						l.Addf(diag.KindReference, e.File, e.Name, ef+".sourceField", "source %q has no attribute %q", en.Source, en.SourceField)
					}
				}
				if en.On != "" {
					if _, ok := src.Attribute(en.On); !ok {
						l.Addf(diag.KindReference, e.File, e.Name, ef+".on", "source %q has no attribute %q", en.Source, en.On)
					}
				}
			}
		}
	}
	return l.Err()
}

func compileQuery(res *resolve.Resolved, e *resolve.Entity, def schema.CustomQuery, l *diag.List) *Query {
	field := "customQueries." + def.Name
	q := &Query{
		Name:        def.Name,
		Entity:      e.Name,
		File:        e.File,
		Kind:        def.Kind,
		Field:       FieldName(def.Name),
		Description: def.Description,
		Args:        def.Input,
		Returns:     def.Returns,
		Declared:    def.Returns,
		Groups:      dedupe(def.Groups),
	}
	if len(q.Groups) == 0 {
		q.Groups = dedupe(e.Authorization[def.Name])
	}
	if len(q.Groups) == 0 {
		l.Add((&diag.AuthorizationCoverageError{File: e.File, Entity: e.Name, Operation: def.Name}).Diagnostic())
	}

	if def.Kind != schema.QueryAggregation {
		return q
	}

	base, _ := res.Entity(def.Returns.Name)
	synth := &Type{Name: def.Name, Base: base.Name}
	taken := make(map[string]bool)
	for _, a := range base.Attributes {
		synth.Fields = append(synth.Fields, Field{Name: a.Name, Type: a.Type, Description: a.Description})
		taken[a.Name] = true
	}

	for _, en := range def.Enrichments {
		ef := field + ".enrichments." + en.Field
		if taken[en.Field] {
			l.Addf(diag.KindValidation, e.File, e.Name, ef, "enrichment %q shadows an existing field of %s", en.Field, synth.Name)
			continue
		}
		taken[en.Field] = true

		src, _ := res.Entity(en.Source)
		resolved := Enrichment{Enrichment: en, Table: src.Name}
		switch en.Kind {
		case schema.EnrichmentCount:
			resolved.Type = schema.TypeRef{Name: "Int", NonNull: true}
			if resolved.On == "" {
				resolved.On = joinAttribute(base, src)
			}
		case schema.EnrichmentLookup:
			attr, _ := src.Attribute(en.SourceField)
			resolved.Type = attr.Type
			if resolved.On == "" {
				resolved.On = joinAttribute(base, src)
			}
		}
		q.Enrichments = append(q.Enrichments, resolved)
		synth.Fields = append(synth.Fields, Field{
			Name:        en.Field,
			Type:        resolved.Type,
			Description: describe(resolved),
		})
	}
	for i := range q.Enrichments {
		for j := range synth.Fields {
			if synth.Fields[j].Name == q.Enrichments[i].Field {
				synth.Fields[j].Enrichment = &q.Enrichments[i]
			}
		}
	}

	// Every enrichment must surface in the result type
	for _, en := range q.Enrichments {
		f, ok := synth.Field(en.Field)
		if !ok || f.Type != en.Type {
			l.Addf(diag.KindEmission, e.File, e.Name, field, "synthesized type %s does not account for enrichment %q", synth.Name, en.Field)
		}
	}

	q.Synthesized = synth
	q.Returns = schema.TypeRef{
		Name:        synth.Name,
		List:        def.Returns.List,
		NonNull:     def.Returns.NonNull,
		ElemNonNull: def.Returns.ElemNonNull,
	}
	return q
}

// joinAttribute is the source attribute matched against the base entity's
// partition key when no explicit join was declared
func joinAttribute(base, src *resolve.Entity) string {
	if base.Keys.Partition == "" {
		return ""
	}
	if _, ok := src.Attribute(base.Keys.Partition); ok {
		return base.Keys.Partition
	}
	return ""
}

func describe(en Enrichment) string {
	switch en.Kind {
	case schema.EnrichmentCount:
		if en.On != "" {
			return fmt.Sprintf("Number of %s items matching %s", en.Source, en.On)
		}
		return fmt.Sprintf("Number of related %s items", en.Source)
	default:
		return fmt.Sprintf("%s.%s of the related item", en.Source, en.SourceField)
	}
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

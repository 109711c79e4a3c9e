// Package typescript renders interface models for model-ts targets.
package typescript

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-openapi/inflect"

	"github.com/okra-platform/schemagen/internal/codegen"
	"github.com/okra-platform/schemagen/internal/codegen/templates"
	"github.com/okra-platform/schemagen/internal/codegen/writer"
	"github.com/okra-platform/schemagen/internal/resolve"
	"github.com/okra-platform/schemagen/internal/schema"
	"github.com/okra-platform/schemagen/internal/targets"
)

var identifier = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Generator generates TypeScript modules
type Generator struct {
	tmpl *templates.Set
}

// NewGenerator creates a new TypeScript model generator
func NewGenerator(tmpl *templates.Set) *Generator {
	return &Generator{tmpl: tmpl}
}

// Kind returns the artifact kind
func (g *Generator) Kind() codegen.Kind {
	return codegen.KindModelTS
}

// ModuleName returns the module an entity's types live in, without extension
func ModuleName(entity string) string {
	return inflect.Dasherize(inflect.Underscore(entity))
}

// Tasks renders one module per entity per target plus each target's index.ts
func (g *Generator) Tasks(b *codegen.Build) []codegen.Task {
	var tasks []codegen.Task
	for _, t := range b.Registry.ByCategory(targets.ModelTS) {
		target := t
		for _, e := range b.Targeted(target.Name) {
			entity := e
			tasks = append(tasks, codegen.Task{
				Kind:   codegen.KindModelTS,
				Target: target.Name,
				Owner:  entity.Name,
				Render: func() ([]codegen.Artifact, error) {
					a, err := g.renderModule(b, target, entity)
					return []codegen.Artifact{a}, err
				},
			})
		}
		tasks = append(tasks, codegen.Task{
			Kind:   codegen.KindModelTS,
			Target: target.Name,
			Owner:  "index",
			Render: func() ([]codegen.Artifact, error) {
				a, err := g.renderIndex(b, target)
				return []codegen.Artifact{a}, err
			},
		})
	}
	return tasks
}

type module struct {
	Header  string
	Imports []exportLine
	Types   []iface
	Consts  []constant
}

type exportLine struct {
	Names  string
	Module string
}

type iface struct {
	Doc    string
	Name   string
	Fields []field
}

type field struct {
	Doc      string
	Name     string
	Optional bool
	Type     string
}

type constant struct {
	Name  string
	Value string
}

func (g *Generator) renderModule(b *codegen.Build, t targets.Target, e *resolve.Entity) (codegen.Artifact, error) {
	m := module{Header: codegen.Header}

	entityType := iface{Name: e.Name, Doc: comment(e.Description)}
	for _, a := range e.Attributes {
		entityType.Fields = append(entityType.Fields, newField(a.Name, a.Type, a.Description))
	}
	m.Types = append(m.Types, entityType)

	imports := map[string]bool{}
	for _, name := range e.Embeds {
		imports[name] = true
	}
	for _, q := range b.Catalog.ForEntity(e.Name) {
		if q.Synthesized == nil {
			continue
		}
		if base, ok := b.Resolved.Entity(q.Synthesized.Base); ok {
			for _, name := range base.Embeds {
				imports[name] = true
			}
		}
		synth := iface{Name: q.Synthesized.Name, Doc: comment(q.Description)}
		for _, f := range q.Synthesized.Fields {
			synth.Fields = append(synth.Fields, newField(f.Name, f.Type, f.Description))
		}
		m.Types = append(m.Types, synth)
	}
	delete(imports, e.Name)

	names := make([]string, 0, len(imports))
	for name := range imports {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m.Imports = append(m.Imports, exportLine{Names: name, Module: ModuleName(name)})
	}

	if e.IsStorage() {
		m.Consts = []constant{
			{Name: e.Name + "Keys", Value: keysLiteral(e.Keys)},
			{Name: e.Name + "Indexes", Value: indexesLiteral(e.Indexes)},
		}
	}

	content, err := g.tmpl.Execute(templates.TypeScriptModel, m)
	if err != nil {
		return codegen.Artifact{}, fmt.Errorf("typescript model %s for %s: %w", e.Name, t.Name, err)
	}
	return codegen.Artifact{
		Kind:    codegen.KindModelTS,
		Target:  t.Name,
		Owner:   e.Name,
		Dir:     t.Dir,
		Path:    ModuleName(e.Name) + ".ts",
		Content: content,
	}, nil
}

type index struct {
	Header string
	Types  []exportLine
	Values []exportLine
}

func (g *Generator) renderIndex(b *codegen.Build, t targets.Target) (codegen.Artifact, error) {
	idx := index{Header: codegen.Header}
	for _, e := range b.Targeted(t.Name) {
		names := []string{e.Name}
		for _, q := range b.Catalog.ForEntity(e.Name) {
			if q.Synthesized != nil {
				names = append(names, q.Synthesized.Name)
			}
		}
		mod := ModuleName(e.Name)
		idx.Types = append(idx.Types, exportLine{Names: strings.Join(names, ", "), Module: mod})
		if e.IsStorage() {
			idx.Values = append(idx.Values, exportLine{Names: e.Name + "Keys, " + e.Name + "Indexes", Module: mod})
		}
	}

	content, err := g.tmpl.Execute(templates.TypeScriptIndex, idx)
	if err != nil {
		return codegen.Artifact{}, fmt.Errorf("typescript index for %s: %w", t.Name, err)
	}
	return codegen.Artifact{
		Kind:    codegen.KindModelTS,
		Target:  t.Name,
		Owner:   "index",
		Dir:     t.Dir,
		Path:    "index.ts",
		Content: content,
	}, nil
}

func newField(name string, t schema.TypeRef, doc string) field {
	return field{
		Doc:      comment(doc),
		Name:     propertyName(name),
		Optional: !t.NonNull,
		Type:     mapToTSType(t),
	}
}

// mapToTSType maps a schema type to a TypeScript type; nullable values admit null
func mapToTSType(t schema.TypeRef) string {
	s := scalarType(t.Name)
	if t.List {
		if t.ElemNonNull {
			s += "[]"
		} else {
			s = "(" + s + " | null)[]"
		}
	}
	if !t.NonNull {
		s += " | null"
	}
	return s
}

func scalarType(name string) string {
	switch name {
	case "Int", "Float", "AWSTimestamp":
		return "number"
	case "Boolean":
		return "boolean"
	default:
		if schema.IsPrimitive(name) {
			return "string"
		}
		return name
	}
}

func propertyName(name string) string {
	if identifier.MatchString(name) {
		return name
	}
	return strconv.Quote(name)
}

func keysLiteral(k schema.Keys) string {
	parts := []string{"partition: " + strconv.Quote(k.Partition)}
	if k.Sort != "" {
		parts = append(parts, "sort: "+strconv.Quote(k.Sort))
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

func indexesLiteral(indexes []schema.Index) string {
	if len(indexes) == 0 {
		return "{}"
	}
	w := writer.NewWriter("  ", "//")
	w.WriteLine("{")
	w.Indent()
	for _, idx := range indexes {
		parts := []string{"partition: " + strconv.Quote(idx.Partition)}
		if idx.Sort != "" {
			parts = append(parts, "sort: "+strconv.Quote(idx.Sort))
		}
		parts = append(parts, "projection: "+strconv.Quote(idx.Projection))
		if len(idx.NonKeyAttributes) > 0 {
			quoted := make([]string, len(idx.NonKeyAttributes))
			for i, a := range idx.NonKeyAttributes {
				quoted[i] = strconv.Quote(a)
			}
			parts = append(parts, "nonKeyAttributes: ["+strings.Join(quoted, ", ")+"]")
		}
		w.WriteLinef("%s: { %s },", propertyName(idx.Name), strings.Join(parts, ", "))
	}
	w.Dedent()
	w.Write("}")
	return w.String()
}

// comment flattens a description for a single-line JSDoc block
func comment(doc string) string {
	doc = strings.Join(strings.Fields(doc), " ")
	return strings.ReplaceAll(doc, "*/", "*\\/")
}

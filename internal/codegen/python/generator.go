// Package python renders dataclass models for model-python targets.
package python

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-openapi/inflect"

	"github.com/okra-platform/schemagen/internal/codegen"
	"github.com/okra-platform/schemagen/internal/codegen/templates"
	"github.com/okra-platform/schemagen/internal/query"
	"github.com/okra-platform/schemagen/internal/resolve"
	"github.com/okra-platform/schemagen/internal/schema"
	"github.com/okra-platform/schemagen/internal/targets"
)

// Generator generates Python dataclass modules
type Generator struct {
	tmpl *templates.Set
}

// NewGenerator creates a new Python model generator
func NewGenerator(tmpl *templates.Set) *Generator {
	return &Generator{tmpl: tmpl}
}

// Kind returns the artifact kind
func (g *Generator) Kind() codegen.Kind {
	return codegen.KindModelPython
}

// ModuleName returns the module an entity's classes live in
func ModuleName(entity string) string {
	return inflect.Underscore(entity)
}

// Tasks renders one module per entity per target plus each target's __init__.py
func (g *Generator) Tasks(b *codegen.Build) []codegen.Task {
	var tasks []codegen.Task
	for _, t := range b.Registry.ByCategory(targets.ModelPython) {
		target := t
		for _, e := range b.Targeted(target.Name) {
			entity := e
			tasks = append(tasks, codegen.Task{
				Kind:   codegen.KindModelPython,
				Target: target.Name,
				Owner:  entity.Name,
				Render: func() ([]codegen.Artifact, error) {
					a, err := g.renderModule(b, target, entity)
					return []codegen.Artifact{a}, err
				},
			})
		}
		tasks = append(tasks, codegen.Task{
			Kind:   codegen.KindModelPython,
			Target: target.Name,
			Owner:  "__init__",
			Render: func() ([]codegen.Artifact, error) {
				a, err := g.renderInit(b, target)
				return []codegen.Artifact{a}, err
			},
		})
	}
	return tasks
}

type module struct {
	Header  string
	Typing  string
	Imports []importLine
	Classes []class
}

type importLine struct {
	Module string
	Names  string
}

type class struct {
	Name   string
	Doc    string
	Fields []field
	Meta   []string
}

type field struct {
	Name    string
	Type    string
	Default string
}

func (g *Generator) renderModule(b *codegen.Build, t targets.Target, e *resolve.Entity) (codegen.Artifact, error) {
	m := module{Header: codegen.Header}

	entityClass := class{
		Name:   e.Name,
		Doc:    docstring(e.Description),
		Fields: fields(attributeFields(e.Attributes)),
	}
	if e.IsStorage() {
		entityClass.Meta = []string{
			"__keys__: ClassVar[dict] = " + keysLiteral(e.Keys),
			"__indexes__: ClassVar[dict] = " + indexesLiteral(e.Indexes),
		}
	}
	m.Classes = append(m.Classes, entityClass)

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
		doc := q.Description
		if doc == "" {
			doc = "Result of the " + q.Name + " query"
		}
		m.Classes = append(m.Classes, class{
			Name:   q.Synthesized.Name,
			Doc:    docstring(doc),
			Fields: fields(synthesizedFields(q.Synthesized)),
		})
	}
	delete(imports, e.Name)

	names := make([]string, 0, len(imports))
	for name := range imports {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m.Imports = append(m.Imports, importLine{Module: ModuleName(name), Names: name})
	}
	m.Typing = typingImports(m.Classes, len(m.Imports) > 0)

	content, err := g.tmpl.Execute(templates.PythonModel, m)
	if err != nil {
		return codegen.Artifact{}, fmt.Errorf("python model %s for %s: %w", e.Name, t.Name, err)
	}
	return codegen.Artifact{
		Kind:    codegen.KindModelPython,
		Target:  t.Name,
		Owner:   e.Name,
		Dir:     t.Dir,
		Path:    ModuleName(e.Name) + ".py",
		Content: content,
	}, nil
}

type initModule struct {
	Header  string
	Imports []importLine
	Names   []string
}

func (g *Generator) renderInit(b *codegen.Build, t targets.Target) (codegen.Artifact, error) {
	m := initModule{Header: codegen.Header}
	for _, e := range b.Targeted(t.Name) {
		names := []string{e.Name}
		for _, q := range b.Catalog.ForEntity(e.Name) {
			if q.Synthesized != nil {
				names = append(names, q.Synthesized.Name)
			}
		}
		m.Imports = append(m.Imports, importLine{Module: ModuleName(e.Name), Names: strings.Join(names, ", ")})
		m.Names = append(m.Names, names...)
	}

	content, err := g.tmpl.Execute(templates.PythonInit, m)
	if err != nil {
		return codegen.Artifact{}, fmt.Errorf("python package for %s: %w", t.Name, err)
	}
	return codegen.Artifact{
		Kind:    codegen.KindModelPython,
		Target:  t.Name,
		Owner:   "__init__",
		Dir:     t.Dir,
		Path:    "__init__.py",
		Content: content,
	}, nil
}

type typedField struct {
	Name string
	Type schema.TypeRef
}

func attributeFields(attrs []schema.Attribute) []typedField {
	out := make([]typedField, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, typedField{Name: a.Name, Type: a.Type})
	}
	return out
}

func synthesizedFields(t *query.Type) []typedField {
	out := make([]typedField, 0, len(t.Fields))
	for _, f := range t.Fields {
		out = append(out, typedField{Name: f.Name, Type: f.Type})
	}
	return out
}

// fields orders required fields before optional ones, as dataclasses require
func fields(in []typedField) []field {
	var required, optional []field
	for _, f := range in {
		if f.Type.NonNull {
			required = append(required, field{Name: attrName(f.Name), Type: mapToPythonType(f.Type)})
			continue
		}
		optional = append(optional, field{Name: attrName(f.Name), Type: mapToPythonType(f.Type), Default: "None"})
	}
	return append(required, optional...)
}

var keywords = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true,
	"assert": true, "async": true, "await": true, "break": true, "class": true,
	"continue": true, "def": true, "del": true, "elif": true, "else": true,
	"except": true, "finally": true, "for": true, "from": true, "global": true,
	"if": true, "import": true, "in": true, "is": true, "lambda": true,
	"nonlocal": true, "not": true, "or": true, "pass": true, "raise": true,
	"return": true, "try": true, "while": true, "with": true, "yield": true,
}

// attrName suffixes Python keywords with an underscore
func attrName(name string) string {
	if keywords[name] {
		return name + "_"
	}
	return name
}

// mapToPythonType maps a schema type to a Python annotation
func mapToPythonType(t schema.TypeRef) string {
	s := scalarType(t.Name)
	if t.List {
		if !t.ElemNonNull {
			s = "Optional[" + s + "]"
		}
		s = "List[" + s + "]"
	}
	if !t.NonNull {
		s = "Optional[" + s + "]"
	}
	return s
}

func scalarType(name string) string {
	switch name {
	case "Int", "AWSTimestamp":
		return "int"
	case "Float":
		return "float"
	case "Boolean":
		return "bool"
	default:
		if schema.IsPrimitive(name) {
			return "str"
		}
		return name
	}
}

// typingImports lists the typing names a module uses. Sibling models are
// imported for type checking only so embedding cycles stay importable.
func typingImports(classes []class, siblings bool) string {
	var needClassVar, needList, needOptional bool
	for _, c := range classes {
		if len(c.Meta) > 0 {
			needClassVar = true
		}
		for _, f := range c.Fields {
			needList = needList || strings.Contains(f.Type, "List[")
			needOptional = needOptional || strings.Contains(f.Type, "Optional[")
		}
	}
	var names []string
	if needClassVar {
		names = append(names, "ClassVar")
	}
	if needList {
		names = append(names, "List")
	}
	if needOptional {
		names = append(names, "Optional")
	}
	if siblings {
		names = append(names, "TYPE_CHECKING")
	}
	return strings.Join(names, ", ")
}

func keysLiteral(k schema.Keys) string {
	parts := []string{fmt.Sprintf("%q: %q", "partition", k.Partition)}
	if k.Sort != "" {
		parts = append(parts, fmt.Sprintf("%q: %q", "sort", k.Sort))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func indexesLiteral(indexes []schema.Index) string {
	if len(indexes) == 0 {
		return "{}"
	}
	var sb strings.Builder
	sb.WriteString("{\n")
	for _, idx := range indexes {
		parts := []string{fmt.Sprintf("%q: %q", "partition", idx.Partition)}
		if idx.Sort != "" {
			parts = append(parts, fmt.Sprintf("%q: %q", "sort", idx.Sort))
		}
		parts = append(parts, fmt.Sprintf("%q: %q", "projection", idx.Projection))
		if len(idx.NonKeyAttributes) > 0 {
			quoted := make([]string, len(idx.NonKeyAttributes))
			for i, a := range idx.NonKeyAttributes {
				quoted[i] = fmt.Sprintf("%q", a)
			}
			parts = append(parts, fmt.Sprintf("%q: [%s]", "nonKeyAttributes", strings.Join(quoted, ", ")))
		}
		fmt.Fprintf(&sb, "        %q: {%s},\n", idx.Name, strings.Join(parts, ", "))
	}
	sb.WriteString("    }")
	return sb.String()
}

func docstring(doc string) string {
	doc = strings.Join(strings.Fields(doc), " ")
	doc = strings.ReplaceAll(doc, `\`, `\\`)
	if strings.HasSuffix(doc, `"`) {
		doc = doc[:len(doc)-1] + `\"`
	}
	return strings.ReplaceAll(doc, `"""`, `\"\"\"`)
}

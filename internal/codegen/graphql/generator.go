// Package graphql renders per-entity schema fragments and composes them into
// one AppSync schema document per schema-doc target.
package graphql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/okra-platform/schemagen/internal/codegen"
	"github.com/okra-platform/schemagen/internal/codegen/templates"
	"github.com/okra-platform/schemagen/internal/codegen/writer"
	"github.com/okra-platform/schemagen/internal/query"
	"github.com/okra-platform/schemagen/internal/resolve"
	"github.com/okra-platform/schemagen/internal/schema"
	"github.com/okra-platform/schemagen/internal/targets"
)

// FileName is the composed document written into each schema-doc target directory
const FileName = "schema.graphql"

// Generator generates GraphQL schema documents
type Generator struct {
	tmpl *templates.Set
}

// NewGenerator creates a new schema document generator
func NewGenerator(tmpl *templates.Set) *Generator {
	return &Generator{tmpl: tmpl}
}

// Kind returns the artifact kind
func (g *Generator) Kind() codegen.Kind {
	return codegen.KindSchemaDoc
}

// Tasks renders one fragment per entity per schema-doc target
func (g *Generator) Tasks(b *codegen.Build) []codegen.Task {
	var tasks []codegen.Task
	for _, t := range b.Registry.ByCategory(targets.SchemaDoc) {
		target := t
		for _, e := range b.Targeted(target.Name) {
			entity := e
			tasks = append(tasks, codegen.Task{
				Kind:   codegen.KindSchemaDoc,
				Target: target.Name,
				Owner:  entity.Name,
				Render: func() ([]codegen.Artifact, error) {
					f, err := g.Fragment(b, entity)
					if err != nil {
						return nil, fmt.Errorf("schema fragment %s for %s: %w", entity.Name, target.Name, err)
					}
					return []codegen.Artifact{{
						Kind:   codegen.KindSchemaDoc,
						Target: target.Name,
						Owner:  entity.Name,
						Dir:    target.Dir,
						Part:   f,
					}}, nil
				},
			})
		}
	}
	return tasks
}

type typeView struct {
	Doc     string
	Keyword string
	Name    string
	Fields  []fieldView
}

type fieldView struct {
	Doc  string
	Name string
	Type string
}

type rootFieldView struct {
	Doc    string
	Name   string
	Args   string
	Type   string
	Groups string
}

// Fragment renders the types and root fields an entity contributes
func (g *Generator) Fragment(b *codegen.Build, e *resolve.Entity) (*Fragment, error) {
	f := &Fragment{Entity: e.Name}
	inputs := map[string]bool{}

	entityType := typeView{Doc: description(e.Description), Keyword: "type", Name: e.Name}
	for _, a := range e.Attributes {
		entityType.Fields = append(entityType.Fields, fieldView{Doc: description(a.Description), Name: a.Name, Type: a.Type.String()})
	}
	if err := g.addBlock(f, entityType); err != nil {
		return nil, err
	}

	for _, it := range e.Inputs {
		if err := g.addBlock(f, inputView(it)); err != nil {
			return nil, err
		}
	}

	if e.Connection != "" {
		conn := typeView{
			Doc:     description("A page of " + e.Name),
			Keyword: "type",
			Name:    e.Connection,
			Fields: []fieldView{
				{Name: "items", Type: "[" + e.Name + "!]!"},
				{Name: "nextToken", Type: "String"},
			},
		}
		if err := g.addBlock(f, conn); err != nil {
			return nil, err
		}
	}

	queries := b.Catalog.ForEntity(e.Name)
	for _, q := range queries {
		if q.Synthesized == nil {
			continue
		}
		if err := g.addBlock(f, synthesizedView(q)); err != nil {
			return nil, err
		}
	}

	for _, op := range e.Operations {
		root := RootQuery
		if op.Type == schema.OperationMutation {
			root = RootMutation
		}
		collectInputs(b.Resolved.IR, op.Args, inputs)
		text, err := g.rootField(op.Description, op.Field, op.Args, op.Returns, op.Groups)
		if err != nil {
			return nil, err
		}
		f.Fields = append(f.Fields, Field{Root: root, Name: op.Field, Owner: e.Name, Source: op.Name, Groups: op.Groups, Text: text})
	}
	for _, q := range queries {
		collectInputs(b.Resolved.IR, q.Args, inputs)
		text, err := g.rootField(q.Description, q.Field, q.Args, q.Returns, q.Groups)
		if err != nil {
			return nil, err
		}
		f.Fields = append(f.Fields, Field{Root: RootQuery, Name: q.Field, Owner: e.Name, Source: q.Name, Groups: q.Groups, Text: text})
	}

	f.Inputs = sortedSet(inputs)
	return f, nil
}

func (g *Generator) addBlock(f *Fragment, v typeView) error {
	text, err := g.tmpl.Execute(templates.GraphQLType, v)
	if err != nil {
		return err
	}
	f.Types = append(f.Types, Block{Name: v.Name, Text: string(text)})
	return nil
}

func (g *Generator) rootField(doc, name string, args []schema.InputField, returns schema.TypeRef, groups []string) (string, error) {
	quoted := make([]string, len(groups))
	for i, group := range groups {
		quoted[i] = strconv.Quote(group)
	}
	text, err := g.tmpl.Execute(templates.GraphQLField, rootFieldView{
		Doc:    description(doc),
		Name:   name,
		Args:   renderArgs(args),
		Type:   returns.String(),
		Groups: strings.Join(quoted, ", "),
	})
	if err != nil {
		return "", err
	}
	return string(text), nil
}

// Compose assembles the fragments for one target into its schema document.
// Fragments follow reference order; declared input types follow by name.
func (g *Generator) Compose(b *codegen.Build, target targets.Target, parts []codegen.Artifact) (codegen.Artifact, error) {
	byOwner := make(map[string]*Fragment, len(parts))
	for _, p := range parts {
		f, ok := p.Part.(*Fragment)
		if !ok {
			return codegen.Artifact{}, fmt.Errorf("unexpected %T in schema fragments for %s", p.Part, target.Name)
		}
		byOwner[f.Entity] = f
	}

	doc := &Document{Target: target.Name}
	w := writer.NewWriter("  ", "#")
	w.WriteComment(codegen.Header)
	w.WriteComment("Target: " + target.Name)

	var ordered []*Fragment
	inputs := map[string]bool{}
	for _, e := range b.Targeted(target.Name) {
		f, ok := byOwner[e.Name]
		if !ok {
			continue
		}
		ordered = append(ordered, f)
		for _, block := range f.Types {
			w.BlankLine()
			w.WriteText(block.Text)
			doc.Types = append(doc.Types, Origin{Name: block.Name, Owner: f.Entity})
		}
		for _, name := range f.Inputs {
			inputs[name] = true
		}
	}

	for _, name := range inputClosure(b.Resolved.IR, inputs) {
		it, _ := b.Resolved.IR.InputType(name)
		text, err := g.tmpl.Execute(templates.GraphQLType, inputView(*it))
		if err != nil {
			return codegen.Artifact{}, fmt.Errorf("input type %s for %s: %w", name, target.Name, err)
		}
		w.BlankLine()
		w.WriteText(string(text))
		doc.Types = append(doc.Types, Origin{Name: name, Owner: it.Owner})
	}

	for _, root := range []Root{RootQuery, RootMutation} {
		var fields []Field
		for _, f := range ordered {
			for _, field := range f.Fields {
				if field.Root == root {
					fields = append(fields, field)
				}
			}
		}
		if len(fields) == 0 {
			continue
		}
		w.BlankLine()
		w.WriteBlock("type "+string(root)+" {", "}", func() {
			for _, field := range fields {
				w.WriteText(field.Text)
				doc.Fields = append(doc.Fields, Origin{Root: root, Name: field.Name, Owner: field.Owner})
			}
		})
	}

	doc.Content = w.Bytes()
	return codegen.Artifact{
		Kind:    codegen.KindSchemaDoc,
		Target:  target.Name,
		Owner:   target.Name,
		Dir:     target.Dir,
		Path:    FileName,
		Content: doc.Content,
		Part:    doc,
	}, nil
}

func inputView(it schema.InputType) typeView {
	v := typeView{Doc: description(it.Description), Keyword: "input", Name: it.Name}
	for _, f := range it.Fields {
		v.Fields = append(v.Fields, fieldView{Doc: description(f.Description), Name: f.Name, Type: f.Type.String()})
	}
	return v
}

func synthesizedView(q *query.Query) typeView {
	v := typeView{Doc: description(q.Description), Keyword: "type", Name: q.Synthesized.Name}
	for _, f := range q.Synthesized.Fields {
		v.Fields = append(v.Fields, fieldView{Doc: description(f.Description), Name: f.Name, Type: f.Type.String()})
	}
	return v
}

func renderArgs(args []schema.InputField) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		arg := a.Name + ": " + a.Type.String()
		if d := description(a.Description); d != "" {
			arg = d + " " + arg
		}
		parts = append(parts, arg)
	}
	return strings.Join(parts, ", ")
}

func collectInputs(ir *schema.IR, args []schema.InputField, into map[string]bool) {
	for _, a := range args {
		if _, ok := ir.InputType(a.Type.Name); ok {
			into[a.Type.Name] = true
		}
	}
}

// inputClosure adds the input types referenced by fields of the given ones
func inputClosure(ir *schema.IR, roots map[string]bool) []string {
	seen := make(map[string]bool, len(roots))
	queue := sortedSet(roots)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if seen[name] {
			continue
		}
		it, ok := ir.InputType(name)
		if !ok {
			continue
		}
		seen[name] = true
		for _, f := range it.Fields {
			if _, ok := ir.InputType(f.Type.Name); ok && !seen[f.Type.Name] {
				queue = append(queue, f.Type.Name)
			}
		}
	}
	return sortedSet(seen)
}

// description renders a GraphQL string description, or "" when there is none
func description(doc string) string {
	doc = strings.Join(strings.Fields(doc), " ")
	if doc == "" {
		return ""
	}
	return strconv.Quote(doc)
}

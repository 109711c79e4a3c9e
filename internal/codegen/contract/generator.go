// Package contract renders the resolver contract for every entity operation
// and custom query: the request and response shape a hand-written handler
// must accept and return.
package contract

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/okra-platform/schemagen/internal/codegen"
	"github.com/okra-platform/schemagen/internal/query"
	"github.com/okra-platform/schemagen/internal/resolve"
	"github.com/okra-platform/schemagen/internal/schema"
)

// Data source kinds
const (
	DataSourceDynamoDB = "AMAZON_DYNAMODB"
	DataSourceLambda   = "AWS_LAMBDA"
)

// HandlerExternal marks contracts whose business logic is implemented outside the generator
const HandlerExternal = "external"

// Contract is the resolver contract for one root field
type Contract struct {
	Entity        string       `yaml:"entity"`
	Operation     string       `yaml:"operation"`
	Field         string       `yaml:"field"`
	Type          string       `yaml:"type"`
	Action        string       `yaml:"action,omitempty"`
	Description   string       `yaml:"description,omitempty"`
	Authorization []string     `yaml:"authorization"`
	DataSource    DataSource   `yaml:"dataSource"`
	Request       []Argument   `yaml:"request"`
	Response      Response     `yaml:"response"`
	Enrichments   []Enrichment `yaml:"enrichments,omitempty"`
	Handler       string       `yaml:"handler"`
}

// DataSource describes where the resolver reads and writes
type DataSource struct {
	Kind      string `yaml:"kind"`
	Table     string `yaml:"table,omitempty"`
	Keys      *Keys  `yaml:"keys,omitempty"`
	Operation string `yaml:"dynamodbOperation,omitempty"`
}

// Keys names the table keys a storage resolver addresses
type Keys struct {
	Partition string `yaml:"partition"`
	Sort      string `yaml:"sort,omitempty"`
}

// Argument is one request argument or nested input field
type Argument struct {
	Name        string     `yaml:"name"`
	Type        string     `yaml:"type"`
	Description string     `yaml:"description,omitempty"`
	Fields      []Argument `yaml:"fields,omitempty"`
}

// Response is the shape the resolver returns
type Response struct {
	Type   string     `yaml:"type"`
	Fields []Argument `yaml:"fields,omitempty"`
}

// Enrichment documents how a computed field is filled
type Enrichment struct {
	Field       string `yaml:"field"`
	Kind        string `yaml:"kind"`
	Type        string `yaml:"type"`
	Source      string `yaml:"source"`
	Table       string `yaml:"table"`
	SourceField string `yaml:"sourceField,omitempty"`
	On          string `yaml:"on,omitempty"`
}

var dynamoOperations = map[schema.Action]string{
	schema.ActionCreate: "PutItem",
	schema.ActionUpdate: "UpdateItem",
	schema.ActionDelete: "DeleteItem",
	schema.ActionGet:    "GetItem",
	schema.ActionList:   "Scan",
}

// Generator generates resolver contracts
type Generator struct{}

// NewGenerator creates a new resolver contract generator
func NewGenerator() *Generator {
	return &Generator{}
}

// Kind returns the artifact kind
func (g *Generator) Kind() codegen.Kind {
	return codegen.KindContract
}

// FileName returns the contract path for an operation or query of an entity
func FileName(entity, name string) string {
	return entity + "/" + name + ".contract.yaml"
}

// Tasks renders one contract per entity operation and per custom query
func (g *Generator) Tasks(b *codegen.Build) []codegen.Task {
	dir := b.Config.Resolve(b.Config.Infrastructure.Resolvers)
	var tasks []codegen.Task
	for _, e := range b.Resolved.Ordered() {
		entity := e
		for _, op := range entity.Operations {
			operation := op
			tasks = append(tasks, g.task(dir, entity.Name, operation.Name, func() Contract {
				return ForOperation(b, entity, operation)
			}))
		}
		for _, q := range b.Catalog.ForEntity(entity.Name) {
			compiled := q
			tasks = append(tasks, g.task(dir, entity.Name, compiled.Name, func() Contract {
				return ForQuery(b, entity, compiled)
			}))
		}
	}
	return tasks
}

func (g *Generator) task(dir, entity, name string, build func() Contract) codegen.Task {
	owner := entity + "." + name
	return codegen.Task{
		Kind:  codegen.KindContract,
		Owner: owner,
		Render: func() ([]codegen.Artifact, error) {
			content, err := Encode(build())
			if err != nil {
				return nil, fmt.Errorf("resolver contract %s: %w", owner, err)
			}
			return []codegen.Artifact{{
				Kind:    codegen.KindContract,
				Owner:   owner,
				Dir:     dir,
				Path:    FileName(entity, name),
				Content: content,
			}}, nil
		},
	}
}

// ForOperation builds the contract for a resolved entity operation
func ForOperation(b *codegen.Build, e *resolve.Entity, op resolve.Operation) Contract {
	c := Contract{
		Entity:        e.Name,
		Operation:     op.Name,
		Field:         op.Field,
		Type:          rootType(op.Type),
		Action:        string(op.Action),
		Description:   op.Description,
		Authorization: op.Groups,
		Request:       arguments(b, e, op.Args),
		Response:      response(b, op.Returns),
		Handler:       HandlerExternal,
	}

	ddbOp, storage := dynamoOperations[op.Action]
	if e.IsStorage() && storage {
		c.DataSource = DataSource{
			Kind:      DataSourceDynamoDB,
			Table:     b.Config.Infrastructure.TablePrefix + e.Name,
			Keys:      &Keys{Partition: e.Keys.Partition, Sort: e.Keys.Sort},
			Operation: ddbOp,
		}
	} else {
		c.DataSource = DataSource{Kind: DataSourceLambda}
	}
	return c
}

// ForQuery builds the contract for a compiled custom query
func ForQuery(b *codegen.Build, e *resolve.Entity, q *query.Query) Contract {
	c := Contract{
		Entity:        e.Name,
		Operation:     q.Name,
		Field:         q.Field,
		Type:          rootType(schema.OperationQuery),
		Action:        string(q.Kind),
		Description:   q.Description,
		Authorization: q.Groups,
		DataSource:    DataSource{Kind: DataSourceLambda},
		Request:       arguments(b, e, q.Args),
		Handler:       HandlerExternal,
	}

	if q.Synthesized != nil {
		c.Response = Response{Type: q.Returns.String()}
		for _, f := range q.Synthesized.Fields {
			c.Response.Fields = append(c.Response.Fields, Argument{Name: f.Name, Type: f.Type.String(), Description: f.Description})
		}
		prefix := b.Config.Infrastructure.TablePrefix
		c.DataSource.Table = prefix + q.Synthesized.Base
		for _, en := range q.Enrichments {
			c.Enrichments = append(c.Enrichments, Enrichment{
				Field:       en.Field,
				Kind:        string(en.Kind),
				Type:        en.Type.String(),
				Source:      en.Source,
				Table:       prefix + en.Table,
				SourceField: en.SourceField,
				On:          en.On,
			})
		}
		return c
	}
	c.Response = response(b, q.Returns)
	return c
}

func rootType(t schema.OperationType) string {
	if t == schema.OperationMutation {
		return "Mutation"
	}
	return "Query"
}

func arguments(b *codegen.Build, e *resolve.Entity, args []schema.InputField) []Argument {
	out := make([]Argument, 0, len(args))
	for _, a := range args {
		arg := Argument{Name: a.Name, Type: a.Type.String(), Description: a.Description}
		if fields, ok := inputFields(b, e, a.Type.Name); ok {
			arg.Fields = fields
		}
		out = append(out, arg)
	}
	return out
}

func inputFields(b *codegen.Build, e *resolve.Entity, name string) ([]Argument, bool) {
	var fields []schema.InputField
	found := false
	for _, in := range e.Inputs {
		if in.Name == name {
			fields, found = in.Fields, true
		}
	}
	if !found {
		if it, ok := b.Resolved.IR.InputType(name); ok {
			fields, found = it.Fields, true
		}
	}
	if !found {
		return nil, false
	}
	out := make([]Argument, 0, len(fields))
	for _, f := range fields {
		out = append(out, Argument{Name: f.Name, Type: f.Type.String(), Description: f.Description})
	}
	return out, true
}

func response(b *codegen.Build, returns schema.TypeRef) Response {
	r := Response{Type: returns.String()}
	if ent, ok := b.Resolved.Entity(returns.Name); ok {
		r.Fields = attributeFields(ent)
		return r
	}
	for _, ent := range b.Resolved.Entities {
		if ent.Connection != "" && ent.Connection == returns.Name {
			r.Fields = []Argument{
				{Name: "items", Type: "[" + ent.Name + "!]!"},
				{Name: "nextToken", Type: "String"},
			}
		}
	}
	return r
}

func attributeFields(e *resolve.Entity) []Argument {
	out := make([]Argument, 0, len(e.Attributes))
	for _, a := range e.Attributes {
		out = append(out, Argument{Name: a.Name, Type: a.Type.String(), Description: a.Description})
	}
	return out
}

// Encode renders a contract as YAML behind the generated-file header
func Encode(c Contract) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# " + codegen.Header + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("failed to encode contract: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode contract: %w", err)
	}
	return buf.Bytes(), nil
}

package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/okra-platform/schemagen/internal/diag"
)

// entitySource mirrors one entity file as written on disk
type entitySource struct {
	Kind          string              `yaml:"kind"`
	Name          string              `yaml:"name"`
	Description   string              `yaml:"description"`
	Attributes    []attributeSource   `yaml:"attributes"`
	Keys          keysSource          `yaml:"keys"`
	Indexes       []indexSource       `yaml:"indexes"`
	Targets       []string            `yaml:"targets"`
	Authorization map[string][]string `yaml:"authorization"`
	Operations    []operationSource   `yaml:"operations"`
	InputTypes    []inputTypeSource   `yaml:"inputTypes"`
	CustomQueries []customQuerySource `yaml:"customQueries"`
}

type attributeSource struct {
	Name        string   `yaml:"name"`
	Type        typeExpr `yaml:"type"`
	Required    bool     `yaml:"required"`
	Description string   `yaml:"description"`
	References  string   `yaml:"references"`
}

type keysSource struct {
	Partition string `yaml:"partition"`
	Sort      string `yaml:"sort"`
}

type indexSource struct {
	Name             string   `yaml:"name"`
	Partition        string   `yaml:"partition"`
	Sort             string   `yaml:"sort"`
	Projection       string   `yaml:"projection"`
	NonKeyAttributes []string `yaml:"nonKeyAttributes"`
}

type operationSource struct {
	Name          string   `yaml:"name"`
	Type          string   `yaml:"type"`
	Action        string   `yaml:"action"`
	Field         string   `yaml:"field"`
	Replaces      string   `yaml:"replaces"`
	Description   string   `yaml:"description"`
	Input         inputMap `yaml:"input"`
	Returns       typeExpr `yaml:"returns"`
	Authorization []string `yaml:"authorization"`
}

type inputTypeSource struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Fields      []attributeSource `yaml:"fields"`
}

type customQuerySource struct {
	Name          string             `yaml:"name"`
	Kind          string             `yaml:"kind"`
	Description   string             `yaml:"description"`
	Input         inputMap           `yaml:"input"`
	Returns       typeExpr           `yaml:"returns"`
	Authorization []string           `yaml:"authorization"`
	Enrichments   []enrichmentSource `yaml:"enrichments"`
}

type enrichmentSource struct {
	Field       string `yaml:"field"`
	Kind        string `yaml:"kind"`
	Source      string `yaml:"source"`
	SourceField string `yaml:"sourceField"`
	On          string `yaml:"on"`
}

// typeExpr accepts `String!` as a scalar and the unquoted `[Orgs]` flow
// sequence form, which YAML would otherwise decode as a list
type typeExpr struct {
	Raw string
}

func (t *typeExpr) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		t.Raw = node.Value
		return nil
	case yaml.SequenceNode:
		if len(node.Content) != 1 || node.Content[0].Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: list type must name exactly one element type", node.Line)
		}
		t.Raw = "[" + node.Content[0].Value + "]"
		return nil
	default:
		return fmt.Errorf("line %d: type must be a string", node.Line)
	}
}

type inputFieldSource struct {
	Name        string
	Type        typeExpr
	Required    bool
	Description string
}

// inputMap is an ordered `field: {type, description}` mapping; a bare type
// string is accepted as the value
type inputMap []inputFieldSource

func (m *inputMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: input must be a mapping of field names", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		field := inputFieldSource{Name: key.Value}
		switch value.Kind {
		case yaml.ScalarNode, yaml.SequenceNode:
			if err := value.Decode(&field.Type); err != nil {
				return err
			}
		case yaml.MappingNode:
			var def struct {
				Type        typeExpr `yaml:"type"`
				Required    bool     `yaml:"required"`
				Description string   `yaml:"description"`
			}
			if err := value.Decode(&def); err != nil {
				return err
			}
			field.Type = def.Type
			field.Required = def.Required
			field.Description = def.Description
		default:
			return fmt.Errorf("line %d: input %q must be a type or a mapping", value.Line, key.Value)
		}
		*m = append(*m, field)
	}
	return nil
}

// Parse decodes a single entity source file. Structural problems inside an
// otherwise well-formed file are returned as diagnostics alongside the entity.
func Parse(file string, data []byte) (*Entity, error) {
	var src entitySource
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&src); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, diag.New(diag.KindParse, file, "", "", "file is empty")
		}
		return nil, diag.New(diag.KindParse, file, "", "", "failed to parse entity: %v", err)
	}

	var l diag.List
	e := convertEntity(file, &src, &l)
	return e, l.Err()
}

func convertEntity(file string, src *entitySource, l *diag.List) *Entity {
	e := &Entity{
		Name:          src.Name,
		Kind:          EntityKind(src.Kind),
		Description:   src.Description,
		Keys:          Keys{Partition: src.Keys.Partition, Sort: src.Keys.Sort},
		Targets:       src.Targets,
		Authorization: src.Authorization,
		File:          file,
	}
	if e.Authorization == nil {
		e.Authorization = map[string][]string{}
	}

	for _, a := range src.Attributes {
		attr := Attribute{
			Name:        a.Name,
			Description: a.Description,
			References:  a.References,
		}
		attr.Type = parseType(l, file, e.Name, "attributes."+a.Name, a.Type)
		if a.Required {
			attr.Type.NonNull = true
		}
		e.Attributes = append(e.Attributes, attr)
	}

	for _, idx := range src.Indexes {
		e.Indexes = append(e.Indexes, Index{
			Name:             idx.Name,
			Partition:        idx.Partition,
			Sort:             idx.Sort,
			Projection:       idx.Projection,
			NonKeyAttributes: idx.NonKeyAttributes,
		})
	}

	for _, op := range src.Operations {
		field := "operations." + op.Name
		def := OperationDef{
			Name:        op.Name,
			Type:        OperationType(op.Type),
			Action:      Action(op.Action),
			Field:       op.Field,
			Replaces:    op.Replaces,
			Description: op.Description,
			Input:       convertInput(l, file, e.Name, field, op.Input),
			Returns:     parseType(l, file, e.Name, field+".returns", op.Returns),
			Groups:      op.Authorization,
		}
		if def.Action == "" {
			def.Action = ActionCustom
			if IsDefaultOperation(op.Name) {
				def.Action = Action(op.Name)
			}
		}
		if def.Type == "" {
			switch def.Action {
			case ActionGet, ActionList:
				def.Type = OperationQuery
			case ActionCreate, ActionUpdate, ActionDelete:
				def.Type = OperationMutation
			}
		}
		e.Operations = append(e.Operations, def)
	}

	for _, it := range src.InputTypes {
		in := InputType{Name: it.Name, Description: it.Description, Owner: e.Name}
		for _, f := range it.Fields {
			t := parseType(l, file, e.Name, "inputTypes."+it.Name+"."+f.Name, f.Type)
			if f.Required {
				t.NonNull = true
			}
			in.Fields = append(in.Fields, InputField{Name: f.Name, Type: t, Description: f.Description})
		}
		e.InputTypes = append(e.InputTypes, in)
	}

	for _, q := range src.CustomQueries {
		field := "customQueries." + q.Name
		cq := CustomQuery{
			Name:        q.Name,
			Kind:        QueryKind(q.Kind),
			Description: q.Description,
			Input:       convertInput(l, file, e.Name, field, q.Input),
			Returns:     parseType(l, file, e.Name, field+".returns", q.Returns),
			Groups:      q.Authorization,
		}
		for _, en := range q.Enrichments {
			cq.Enrichments = append(cq.Enrichments, Enrichment{
				Field:       en.Field,
				Kind:        EnrichmentKind(en.Kind),
				Source:      en.Source,
				SourceField: en.SourceField,
				On:          en.On,
			})
		}
		e.CustomQueries = append(e.CustomQueries, cq)
	}

	if l.Len() == 0 {
		validateEntity(e, l)
	}
	return e
}

func convertInput(l *diag.List, file, entity, field string, in inputMap) []InputField {
	var fields []InputField
	for _, f := range in {
		t := parseType(l, file, entity, field+".input."+f.Name, f.Type)
		if f.Required {
			t.NonNull = true
		}
		fields = append(fields, InputField{Name: f.Name, Type: t, Description: f.Description})
	}
	return fields
}

// parseType records a parse diagnostic for malformed expressions; an absent
// expression yields the zero TypeRef so required-ness is checked by validation
func parseType(l *diag.List, file, entity, field string, expr typeExpr) TypeRef {
	if expr.Raw == "" {
		return TypeRef{}
	}
	t, err := ParseTypeRef(expr.Raw)
	if err != nil {
		l.Addf(diag.KindParse, file, entity, field, "%v", err)
		return TypeRef{}
	}
	return t
}

package resolve

import (
	"github.com/go-openapi/inflect"

	"github.com/okra-platform/schemagen/internal/schema"
)

// Operation is a fully resolved API operation on an entity
type Operation struct {
	Entity      string
	Name        string
	Type        schema.OperationType
	Action      schema.Action
	Field       string
	Description string
	Args        []schema.InputField
	Returns     schema.TypeRef
	Groups      []string
	// Default is set for injected CRUD operations
	Default bool
}

// Singular returns the singular form used in generated field and type names
func Singular(name string) string {
	s := inflect.Singularize(name)
	if s == "" {
		return name
	}
	return s
}

// Plural returns the plural form used by list operations
func Plural(name string) string {
	p := inflect.Pluralize(Singular(name))
	if p == "" {
		return name
	}
	return p
}

// ConnectionName is the paged result type returned by the default list operation
func ConnectionName(entity string) string {
	return entity + "Connection"
}

// CreateInputName is the input object taken by the default create operation
func CreateInputName(entity string) string {
	return "Create" + Singular(entity) + "Input"
}

// UpdateInputName is the input object taken by the default update operation
func UpdateInputName(entity string) string {
	return "Update" + Singular(entity) + "Input"
}

// FieldName derives the GraphQL field for an operation name on an entity
func FieldName(entity, op string) string {
	if op == string(schema.ActionList) {
		return op + Plural(entity)
	}
	return op + Singular(entity)
}

func keyArgs(e *schema.Entity) []schema.InputField {
	var args []schema.InputField
	for _, a := range e.KeyAttributes() {
		args = append(args, schema.InputField{Name: a.Name, Type: a.Type.Required(), Description: a.Description})
	}
	return args
}

// defaultOperation builds the injected CRUD operation for action
func defaultOperation(e *schema.Entity, action schema.Action) Operation {
	op := Operation{
		Entity:  e.Name,
		Name:    string(action),
		Action:  action,
		Field:   FieldName(e.Name, string(action)),
		Default: true,
	}
	entityType := schema.TypeRef{Name: e.Name}

	switch action {
	case schema.ActionCreate:
		op.Type = schema.OperationMutation
		op.Args = []schema.InputField{{Name: "input", Type: schema.TypeRef{Name: CreateInputName(e.Name), NonNull: true}}}
		op.Returns = entityType
		op.Description = "Creates a " + Singular(e.Name)
	case schema.ActionUpdate:
		op.Type = schema.OperationMutation
		op.Args = []schema.InputField{{Name: "input", Type: schema.TypeRef{Name: UpdateInputName(e.Name), NonNull: true}}}
		op.Returns = entityType
		op.Description = "Updates a " + Singular(e.Name)
	case schema.ActionDelete:
		op.Type = schema.OperationMutation
		op.Args = keyArgs(e)
		op.Returns = entityType
		op.Description = "Deletes a " + Singular(e.Name)
	case schema.ActionGet:
		op.Type = schema.OperationQuery
		op.Args = keyArgs(e)
		op.Returns = entityType
		op.Description = "Fetches a " + Singular(e.Name) + " by key"
	case schema.ActionList:
		op.Type = schema.OperationQuery
		op.Args = []schema.InputField{
			{Name: "limit", Type: schema.TypeRef{Name: "Int"}},
			{Name: "nextToken", Type: schema.TypeRef{Name: "String"}},
		}
		op.Returns = schema.TypeRef{Name: ConnectionName(e.Name), NonNull: true}
		op.Description = "Lists " + Plural(e.Name)
	}
	return op
}

// explicitOperation converts a declared operation, replacing any default of
// the same name in full
func explicitOperation(e *schema.Entity, def schema.OperationDef) Operation {
	field := def.Field
	if field == "" {
		field = FieldName(e.Name, def.Name)
	}
	return Operation{
		Entity:      e.Name,
		Name:        def.Name,
		Type:        def.Type,
		Action:      def.Action,
		Field:       field,
		Description: def.Description,
		Args:        def.Input,
		Returns:     def.Returns,
		Groups:      def.Groups,
	}
}

// mergeOperations returns the surviving defaults in canonical order followed
// by explicit additions in declaration order. An explicit operation named
// after a default takes the default's slot.
func mergeOperations(e *schema.Entity) []Operation {
	explicit := make(map[string]schema.OperationDef, len(e.Operations))
	removed := make(map[string]bool)
	for _, def := range e.Operations {
		explicit[def.Name] = def
		if def.Replaces != "" {
			removed[def.Replaces] = true
		}
	}

	var ops []Operation
	if e.IsStorage() {
		for _, action := range schema.DefaultOperations {
			name := string(action)
			if def, ok := explicit[name]; ok {
				ops = append(ops, explicitOperation(e, def))
				continue
			}
			if removed[name] {
				continue
			}
			ops = append(ops, defaultOperation(e, action))
		}
	}

	for _, def := range e.Operations {
		if e.IsStorage() && schema.IsDefaultOperation(def.Name) {
			continue
		}
		ops = append(ops, explicitOperation(e, def))
	}
	return ops
}

// crudInputs synthesizes the input objects taken by surviving default
// create and update operations. Only scalar attributes are accepted as input.
func crudInputs(e *schema.Entity, ops []Operation) []schema.InputType {
	var inputs []schema.InputType
	for _, op := range ops {
		if !op.Default {
			continue
		}
		switch op.Action {
		case schema.ActionCreate:
			in := schema.InputType{Name: CreateInputName(e.Name), Description: "Input for " + op.Field, Owner: e.Name}
			for _, a := range e.Attributes {
				if a.Type.IsPrimitive() {
					in.Fields = append(in.Fields, schema.InputField{Name: a.Name, Type: a.Type, Description: a.Description})
				}
			}
			inputs = append(inputs, in)
		case schema.ActionUpdate:
			in := schema.InputType{Name: UpdateInputName(e.Name), Description: "Input for " + op.Field, Owner: e.Name}
			for _, a := range e.Attributes {
				if !a.Type.IsPrimitive() {
					continue
				}
				t := a.Type.Optional()
				if e.IsKey(a.Name) {
					t = a.Type.Required()
				}
				in.Fields = append(in.Fields, schema.InputField{Name: a.Name, Type: t, Description: a.Description})
			}
			inputs = append(inputs, in)
		}
	}
	return inputs
}

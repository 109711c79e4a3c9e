package schema

import "sort"

// EntityKind distinguishes table-backed entities from handler-backed ones
type EntityKind string

const (
	KindStorage       EntityKind = "storage"
	KindComputeBacked EntityKind = "compute-backed"
)

// OperationType is the GraphQL root an operation is exposed on
type OperationType string

const (
	OperationQuery    OperationType = "query"
	OperationMutation OperationType = "mutation"
)

// Action is the storage action an operation maps to
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionGet    Action = "get"
	ActionList   Action = "list"
	ActionCustom Action = "custom"
)

// DefaultOperations lists the CRUD operations injected for storage entities, in canonical order
var DefaultOperations = []Action{ActionCreate, ActionUpdate, ActionDelete, ActionGet, ActionList}

// IsDefaultOperation reports whether name is one of the injected CRUD operation names
func IsDefaultOperation(name string) bool {
	for _, a := range DefaultOperations {
		if string(a) == name {
			return true
		}
	}
	return false
}

// QueryKind classifies custom queries
type QueryKind string

const (
	QueryAggregation QueryKind = "aggregation"
	QueryCustom      QueryKind = "custom"
)

// EnrichmentKind is how a computed field is derived
type EnrichmentKind string

const (
	EnrichmentCount  EnrichmentKind = "count"
	EnrichmentLookup EnrichmentKind = "lookup"
)

// IR is the validated, in-memory model of every schema source
type IR struct {
	// Entities ordered by name
	Entities   []*Entity
	InputTypes []*InputType

	byName map[string]*Entity
	inputs map[string]*InputType
}

// NewIR builds an IR from entities, ordering them by name. Duplicate names
// keep the first occurrence; the loader reports duplicates before this point.
func NewIR(entities []*Entity) *IR {
	ir := &IR{
		byName: make(map[string]*Entity, len(entities)),
		inputs: make(map[string]*InputType),
	}
	for _, e := range entities {
		if _, dup := ir.byName[e.Name]; dup {
			continue
		}
		ir.byName[e.Name] = e
		ir.Entities = append(ir.Entities, e)
		for i := range e.InputTypes {
			it := &e.InputTypes[i]
			if _, dup := ir.inputs[it.Name]; dup {
				continue
			}
			ir.inputs[it.Name] = it
			ir.InputTypes = append(ir.InputTypes, it)
		}
	}
	sort.Slice(ir.Entities, func(i, j int) bool { return ir.Entities[i].Name < ir.Entities[j].Name })
	sort.Slice(ir.InputTypes, func(i, j int) bool { return ir.InputTypes[i].Name < ir.InputTypes[j].Name })
	return ir
}

// Entity returns the entity with the given name
func (ir *IR) Entity(name string) (*Entity, bool) {
	e, ok := ir.byName[name]
	return e, ok
}

// InputType returns the declared input type with the given name
func (ir *IR) InputType(name string) (*InputType, bool) {
	it, ok := ir.inputs[name]
	return it, ok
}

// Entity is one declarative table/API resource
type Entity struct {
	Name          string
	Kind          EntityKind
	Description   string
	Attributes    []Attribute
	Keys          Keys
	Indexes       []Index
	Targets       []string
	Authorization map[string][]string
	Operations    []OperationDef
	InputTypes    []InputType
	CustomQueries []CustomQuery

	// File is the source file the entity was loaded from
	File string
}

// IsStorage reports whether the entity is backed by a table
func (e *Entity) IsStorage() bool {
	return e.Kind == KindStorage
}

// Attribute returns the attribute with the given name
func (e *Entity) Attribute(name string) (Attribute, bool) {
	for _, a := range e.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// KeyAttributes returns the partition key followed by the sort key, if any
func (e *Entity) KeyAttributes() []Attribute {
	var keys []Attribute
	for _, name := range []string{e.Keys.Partition, e.Keys.Sort} {
		if name == "" {
			continue
		}
		if a, ok := e.Attribute(name); ok {
			keys = append(keys, a)
		}
	}
	return keys
}

// IsKey reports whether the attribute is part of the primary key
func (e *Entity) IsKey(name string) bool {
	return name != "" && (name == e.Keys.Partition || name == e.Keys.Sort)
}

// HasTarget reports whether the entity opts into the named target
func (e *Entity) HasTarget(target string) bool {
	for _, t := range e.Targets {
		if t == target {
			return true
		}
	}
	return false
}

// Attribute is a field on an entity
type Attribute struct {
	Name        string
	Type        TypeRef
	Description string
	// References names the entity whose key this attribute holds
	References string
}

// Keys names the primary key attributes
type Keys struct {
	Partition string
	Sort      string
}

// Index is a secondary access path
type Index struct {
	Name             string
	Partition        string
	Sort             string
	Projection       string
	NonKeyAttributes []string
}

// OperationDef is an explicitly declared operation override or addition
type OperationDef struct {
	Name        string
	Type        OperationType
	Action      Action
	Field       string
	Replaces    string
	Description string
	Input       []InputField
	Returns     TypeRef
	Groups      []string
}

// InputField is a typed argument or input-object field
type InputField struct {
	Name        string
	Type        TypeRef
	Description string
}

// InputType is a declared composite input type
type InputType struct {
	Name        string
	Description string
	Fields      []InputField

	// Owner is the entity whose source file declared the type
	Owner string
}

// CustomQuery is a non-CRUD query such as an aggregation
type CustomQuery struct {
	Name        string
	Kind        QueryKind
	Description string
	Input       []InputField
	Returns     TypeRef
	Enrichments []Enrichment
	Groups      []string
}

// Enrichment is a computed field added to an aggregation result
type Enrichment struct {
	Field       string
	Kind        EnrichmentKind
	Source      string
	SourceField string
	// On is the source attribute joined against the base entity's partition key
	On string
}

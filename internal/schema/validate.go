package schema

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/okra-platform/schemagen/internal/diag"
)

// validateEntity runs the checks that need nothing beyond the entity itself
func validateEntity(e *Entity, l *diag.List) {
	file, name := e.File, e.Name

	if e.Name == "" {
		l.Addf(diag.KindValidation, file, "", "name", "entity name is required")
	}
	switch e.Kind {
	case KindStorage, KindComputeBacked:
	case "":
		l.Addf(diag.KindValidation, file, name, "kind", "entity kind is required (storage or compute-backed)")
	default:
		l.Addf(diag.KindValidation, file, name, "kind", "unknown entity kind %q (expected storage or compute-backed)", e.Kind)
	}

	if len(e.Attributes) == 0 {
		l.Addf(diag.KindValidation, file, name, "attributes", "entity declares no attributes")
	}
	seen := make(map[string]bool)
	for _, a := range e.Attributes {
		field := "attributes." + a.Name
		if a.Name == "" {
			l.Addf(diag.KindValidation, file, name, "attributes", "attribute name is required")
			continue
		}
		if seen[a.Name] {
			l.Addf(diag.KindValidation, file, name, field, "duplicate attribute name %q", a.Name)
		}
		seen[a.Name] = true
		if a.Type.IsZero() {
			l.Addf(diag.KindValidation, file, name, field, "attribute type is required")
		}
	}

	switch e.Kind {
	case KindStorage:
		validateKeys(e, l)
		validateIndexes(e, l)
	case KindComputeBacked:
		if e.Keys.Partition != "" || e.Keys.Sort != "" {
			l.Addf(diag.KindValidation, file, name, "keys", "compute-backed entities cannot declare keys")
		}
		if len(e.Indexes) > 0 {
			l.Addf(diag.KindValidation, file, name, "indexes", "compute-backed entities cannot declare indexes")
		}
	}

	validateOperations(e, l)
	validateInputTypes(e, l)
	validateCustomQueries(e, l)
}

func validateKeys(e *Entity, l *diag.List) {
	if e.Keys.Partition == "" {
		l.Addf(diag.KindValidation, e.File, e.Name, "keys.partition", "storage entity requires a partition key")
	} else {
		checkKeyAttribute(e, l, "keys.partition", e.Keys.Partition)
	}
	if e.Keys.Sort != "" {
		if e.Keys.Sort == e.Keys.Partition {
			l.Addf(diag.KindValidation, e.File, e.Name, "keys.sort", "sort key must differ from the partition key")
		} else {
			checkKeyAttribute(e, l, "keys.sort", e.Keys.Sort)
		}
	}

	// Keys are always present on stored items
	for i := range e.Attributes {
		if e.IsKey(e.Attributes[i].Name) {
			e.Attributes[i].Type.NonNull = true
		}
	}
}

func checkKeyAttribute(e *Entity, l *diag.List, field, attr string) {
	a, ok := e.Attribute(attr)
	if !ok {
		l.Addf(diag.KindValidation, e.File, e.Name, field, "key attribute %q is not declared", attr)
		return
	}
	if a.Type.IsZero() {
		return
	}
	if a.Type.List || KeyScalar(a.Type.Name) == "" {
		l.Addf(diag.KindValidation, e.File, e.Name, field, "key attribute %q must be a string or number scalar, got %s", attr, a.Type)
	}
}

func validateIndexes(e *Entity, l *diag.List) {
	projections := types.ProjectionType("").Values()
	seen := make(map[string]bool)
	for _, idx := range e.Indexes {
		field := "indexes." + idx.Name
		if idx.Name == "" {
			l.Addf(diag.KindValidation, e.File, e.Name, "indexes", "index name is required")
			continue
		}
		if seen[idx.Name] {
			l.Addf(diag.KindValidation, e.File, e.Name, field, "duplicate index name %q", idx.Name)
		}
		seen[idx.Name] = true

		if idx.Partition == "" {
			l.Addf(diag.KindValidation, e.File, e.Name, field+".partition", "index requires a partition key")
		} else {
			checkKeyAttribute(e, l, field+".partition", idx.Partition)
		}
		if idx.Sort != "" {
			checkKeyAttribute(e, l, field+".sort", idx.Sort)
		}

		if idx.Projection == "" {
			l.Addf(diag.KindValidation, e.File, e.Name, field+".projection", "index projection is required (one of %s)", joinProjections(projections))
		} else if !slices.Contains(projections, types.ProjectionType(idx.Projection)) {
			l.Addf(diag.KindValidation, e.File, e.Name, field+".projection", "unknown projection %q (one of %s)", idx.Projection, joinProjections(projections))
		}

		if len(idx.NonKeyAttributes) > 0 && types.ProjectionType(idx.Projection) != types.ProjectionTypeInclude {
			l.Addf(diag.KindValidation, e.File, e.Name, field+".nonKeyAttributes", "nonKeyAttributes require projection %s", types.ProjectionTypeInclude)
		}
		for _, attr := range idx.NonKeyAttributes {
			if _, ok := e.Attribute(attr); !ok {
				l.Addf(diag.KindValidation, e.File, e.Name, field+".nonKeyAttributes", "attribute %q is not declared", attr)
			}
		}
	}
}

func joinProjections(values []types.ProjectionType) string {
	names := make([]string, len(values))
	for i, v := range values {
		names[i] = string(v)
	}
	return strings.Join(names, ", ")
}

func validateOperations(e *Entity, l *diag.List) {
	seen := make(map[string]bool)
	for _, op := range e.Operations {
		field := "operations." + op.Name
		if op.Name == "" {
			l.Addf(diag.KindValidation, e.File, e.Name, "operations", "operation name is required")
			continue
		}
		if seen[op.Name] {
			l.Addf(diag.KindValidation, e.File, e.Name, field, "duplicate operation name %q", op.Name)
		}
		seen[op.Name] = true

		switch op.Type {
		case OperationQuery, OperationMutation:
		case "":
			l.Addf(diag.KindValidation, e.File, e.Name, field+".type", "operation type is required for %s operations (query or mutation)", op.Action)
		default:
			l.Addf(diag.KindValidation, e.File, e.Name, field+".type", "unknown operation type %q (expected query or mutation)", op.Type)
		}

		switch op.Action {
		case ActionCreate, ActionUpdate, ActionDelete, ActionGet, ActionList:
			if !e.IsStorage() {
				l.Addf(diag.KindValidation, e.File, e.Name, field+".action", "storage action %q requires a storage entity", op.Action)
			}
		case ActionCustom:
		default:
			l.Addf(diag.KindValidation, e.File, e.Name, field+".action", "unknown action %q", op.Action)
		}

		if op.Replaces != "" {
			if !e.IsStorage() {
				l.Addf(diag.KindValidation, e.File, e.Name, field+".replaces", "only storage entities have default operations to replace")
			} else if !IsDefaultOperation(op.Replaces) {
				l.Addf(diag.KindValidation, e.File, e.Name, field+".replaces", "%q is not a default operation", op.Replaces)
			} else if op.Replaces == op.Name {
				l.Addf(diag.KindValidation, e.File, e.Name, field+".replaces", "operation cannot replace itself; redeclaring %q already replaces the default", op.Name)
			}
		}

		if op.Returns.IsZero() {
			l.Addf(diag.KindValidation, e.File, e.Name, field+".returns", "operation return type is required")
		}
		checkInputNames(e, l, field+".input", op.Input)
	}
}

func validateInputTypes(e *Entity, l *diag.List) {
	seen := make(map[string]bool)
	for _, it := range e.InputTypes {
		field := "inputTypes." + it.Name
		if it.Name == "" {
			l.Addf(diag.KindValidation, e.File, e.Name, "inputTypes", "input type name is required")
			continue
		}
		if seen[it.Name] {
			l.Addf(diag.KindValidation, e.File, e.Name, field, "duplicate input type name %q", it.Name)
		}
		seen[it.Name] = true
		if len(it.Fields) == 0 {
			l.Addf(diag.KindValidation, e.File, e.Name, field, "input type declares no fields")
		}
		checkInputNames(e, l, field, it.Fields)
	}
}

func checkInputNames(e *Entity, l *diag.List, field string, fields []InputField) {
	seen := make(map[string]bool)
	for _, f := range fields {
		if f.Name == "" {
			l.Addf(diag.KindValidation, e.File, e.Name, field, "field name is required")
			continue
		}
		if seen[f.Name] {
			l.Addf(diag.KindValidation, e.File, e.Name, field+"."+f.Name, "duplicate field name %q", f.Name)
		}
		seen[f.Name] = true
		if f.Type.IsZero() {
			l.Addf(diag.KindValidation, e.File, e.Name, field+"."+f.Name, "field type is required")
		}
	}
}

func validateCustomQueries(e *Entity, l *diag.List) {
	for _, q := range e.CustomQueries {
		field := "customQueries." + q.Name
		if q.Name == "" {
			l.Addf(diag.KindValidation, e.File, e.Name, "customQueries", "custom query name is required")
			continue
		}

		switch q.Kind {
		case QueryAggregation, QueryCustom:
		case "":
			l.Addf(diag.KindValidation, e.File, e.Name, field+".kind", "custom query kind is required (aggregation or custom)")
		default:
			l.Addf(diag.KindValidation, e.File, e.Name, field+".kind", "unknown custom query kind %q (expected aggregation or custom)", q.Kind)
		}

		if q.Returns.IsZero() {
			l.Addf(diag.KindValidation, e.File, e.Name, field+".returns", "custom query return type is required")
		}
		checkInputNames(e, l, field+".input", q.Input)

		if len(q.Enrichments) > 0 && q.Kind != QueryAggregation {
			l.Addf(diag.KindValidation, e.File, e.Name, field+".enrichments", "enrichments are only allowed on aggregation queries")
		}
		for i, en := range q.Enrichments {
			ef := fmt.Sprintf("%s.enrichments[%d]", field, i)
			if en.Field != "" {
				ef = field + ".enrichments." + en.Field
			} else {
				l.Addf(diag.KindValidation, e.File, e.Name, ef, "enrichment field name is required")
			}
			if en.Source == "" {
				l.Addf(diag.KindValidation, e.File, e.Name, ef+".source", "enrichment source entity is required")
			}
			switch en.Kind {
			case EnrichmentCount:
				if en.SourceField != "" {
					l.Addf(diag.KindValidation, e.File, e.Name, ef+".sourceField", "count enrichments do not take a sourceField")
				}
			case EnrichmentLookup:
				if en.SourceField == "" {
					l.Addf(diag.KindValidation, e.File, e.Name, ef+".sourceField", "lookup enrichments require a sourceField")
				}
			case "":
				l.Addf(diag.KindValidation, e.File, e.Name, ef+".kind", "enrichment kind is required (count or lookup)")
			default:
				l.Addf(diag.KindValidation, e.File, e.Name, ef+".kind", "unknown enrichment kind %q (expected count or lookup)", en.Kind)
			}
		}
	}
}

// validateTypes checks every type reference against the whole IR. Entity
// names are valid in output positions; input types only in input positions.
func validateTypes(ir *IR, l *diag.List) {
	for _, e := range ir.Entities {
		for _, a := range e.Attributes {
			if a.Type.IsZero() || a.Type.IsPrimitive() {
				continue
			}
			if _, ok := ir.Entity(a.Type.Name); !ok {
				l.Addf(diag.KindValidation, e.File, e.Name, "attributes."+a.Name, "attribute references undeclared type %q", a.Type.Name)
			}
		}
		for _, op := range e.Operations {
			field := "operations." + op.Name
			checkInputTypes(ir, l, e, field+".input", op.Input)
			checkOutputType(ir, l, e, field+".returns", op.Returns)
		}
		for _, it := range e.InputTypes {
			checkInputTypes(ir, l, e, "inputTypes."+it.Name, it.Fields)
		}
		for _, q := range e.CustomQueries {
			field := "customQueries." + q.Name
			checkInputTypes(ir, l, e, field+".input", q.Input)
			checkOutputType(ir, l, e, field+".returns", q.Returns)
		}
	}
}

func checkInputTypes(ir *IR, l *diag.List, e *Entity, field string, fields []InputField) {
	for _, f := range fields {
		if f.Type.IsZero() || f.Type.IsPrimitive() {
			continue
		}
		if _, ok := ir.InputType(f.Type.Name); ok {
			continue
		}
		if _, ok := ir.Entity(f.Type.Name); ok {
			l.Addf(diag.KindValidation, e.File, e.Name, field+"."+f.Name, "entity type %q cannot be used as an input; declare an input type", f.Type.Name)
			continue
		}
		l.Addf(diag.KindValidation, e.File, e.Name, field+"."+f.Name, "input references undeclared type %q", f.Type.Name)
	}
}

func checkOutputType(ir *IR, l *diag.List, e *Entity, field string, t TypeRef) {
	if t.IsZero() || t.IsPrimitive() {
		return
	}
	if _, ok := ir.Entity(t.Name); ok {
		return
	}
	if _, ok := ir.InputType(t.Name); ok {
		l.Addf(diag.KindValidation, e.File, e.Name, field, "input type %q cannot be returned", t.Name)
		return
	}
	l.Addf(diag.KindValidation, e.File, e.Name, field, "return type %q is not declared", t.Name)
}

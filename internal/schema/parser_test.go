package schema

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okra-platform/schemagen/internal/diag"
)

const usersYAML = `kind: storage
name: Users
description: Application users
attributes:
  - {name: userId, type: ID}
  - {name: orgId, type: ID, required: true, references: Orgs}
  - {name: email, type: AWSEmail}
  - {name: tags, type: [String]}
  - {name: createdAt, type: AWSDateTime}
keys: {partition: userId, sort: createdAt}
indexes:
  - {name: byOrg, partition: orgId, sort: createdAt, projection: ALL}
  - {name: byEmail, partition: email, projection: INCLUDE, nonKeyAttributes: [tags]}
targets: [model-py, schema-main]
authorization:
  create: [Admins]
operations:
  - name: archive
    type: mutation
    replaces: delete
    action: update
    input:
      userId: {type: ID!, description: Key of the user}
      reason: String
    returns: Users
    authorization: [Admins]
  - name: get
    returns: Users
customQueries:
  - name: UsersByTag
    kind: custom
    input: {tag: String!}
    returns: [Users]
`

func diagnostics(t *testing.T, err error) []diag.Diagnostic {
	t.Helper()
	var de *diag.Error
	require.True(t, errors.As(err, &de), "expected *diag.Error, got %v", err)
	return de.Diagnostics
}

func hasDiagnostic(ds []diag.Diagnostic, kind diag.Kind, field, contains string) bool {
	for _, d := range ds {
		if d.Kind == kind && d.Field == field && strings.Contains(d.Message, contains) {
			return true
		}
	}
	return false
}

func TestParse_FullEntity(t *testing.T) {
	// Test: A complete storage entity decodes into the typed model
	e, err := Parse("users.yaml", []byte(usersYAML))
	require.NoError(t, err)
	require.NotNil(t, e)

	assert.Equal(t, "Users", e.Name)
	assert.Equal(t, KindStorage, e.Kind)
	assert.Equal(t, "users.yaml", e.File)
	require.Len(t, e.Attributes, 5)

	// Keys are coerced to non-null, required marks non-null
	assert.Equal(t, "ID!", e.Attributes[0].Type.String())
	assert.Equal(t, "ID!", e.Attributes[1].Type.String())
	assert.Equal(t, "Orgs", e.Attributes[1].References)
	assert.Equal(t, "AWSEmail", e.Attributes[2].Type.String())
	assert.Equal(t, "[String]", e.Attributes[3].Type.String())
	assert.Equal(t, "AWSDateTime!", e.Attributes[4].Type.String())

	assert.Equal(t, Keys{Partition: "userId", Sort: "createdAt"}, e.Keys)
	require.Len(t, e.Indexes, 2)
	assert.Equal(t, []string{"tags"}, e.Indexes[1].NonKeyAttributes)
	assert.Equal(t, []string{"model-py", "schema-main"}, e.Targets)

	require.Len(t, e.Operations, 2)
	archive := e.Operations[0]
	assert.Equal(t, OperationMutation, archive.Type)
	assert.Equal(t, ActionUpdate, archive.Action)
	assert.Equal(t, "delete", archive.Replaces)
	assert.Equal(t, []string{"Admins"}, archive.Groups)
	require.Len(t, archive.Input, 2)
	assert.Equal(t, "userId", archive.Input[0].Name)
	assert.Equal(t, "ID!", archive.Input[0].Type.String())
	assert.Equal(t, "Key of the user", archive.Input[0].Description)
	assert.Equal(t, "reason", archive.Input[1].Name)
	assert.Equal(t, "String", archive.Input[1].Type.String())

	// Default-named operations infer their action and type
	get := e.Operations[1]
	assert.Equal(t, ActionGet, get.Action)
	assert.Equal(t, OperationQuery, get.Type)

	require.Len(t, e.CustomQueries, 1)
	assert.Equal(t, "[Users]", e.CustomQueries[0].Returns.String())
	assert.Equal(t, "String!", e.CustomQueries[0].Input[0].Type.String())
}

func TestParse_SyntaxErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "empty file", content: "", want: "file is empty"},
		{name: "not yaml", content: "kind: [storage\n", want: "failed to parse entity"},
		{name: "unknown field", content: "kind: storage\nname: X\ncolour: red\n", want: "failed to parse entity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Parse("bad.yaml", []byte(tt.content))
			assert.Nil(t, e)
			require.Error(t, err)
			assert.ErrorIs(t, err, diag.ErrParse)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_BadTypeExpressionIsParseError(t *testing.T) {
	// Test: A malformed type expression is reported as a parse error scoped to the attribute
	src := `kind: storage
name: Things
attributes:
  - {name: id, type: ID}
  - {name: broken, type: "[String"}
keys: {partition: id}
`
	e, err := Parse("things.yaml", []byte(src))
	require.NotNil(t, e)
	ds := diagnostics(t, err)
	assert.True(t, hasDiagnostic(ds, diag.KindParse, "attributes.broken", "unterminated list"))
	// Validation is skipped while the file has parse errors
	assert.NotErrorIs(t, err, diag.ErrValidation)
}

func TestParse_ValidationBatchesEveryProblem(t *testing.T) {
	// Test: All structural problems in one file are reported together
	src := `kind: storage
name: Broken
attributes:
  - {name: id, type: ID}
  - {name: id, type: String}
  - {name: flag, type: Boolean}
  - {name: note, type: String}
indexes:
  - {name: byFlag, partition: flag, projection: EVERYTHING}
  - {name: byNote, partition: note, projection: ALL, nonKeyAttributes: [id]}
operations:
  - name: archive
    replaces: remove
    returns: Broken
  - name: archive
    type: query
customQueries:
  - name: Stats
    kind: custom
    returns: Int
    enrichments:
      - {field: total, kind: count, source: Other}
  - name: Agg
    kind: aggregation
    returns: "[Broken]"
    enrichments:
      - {field: owner, kind: lookup, source: Other}
      - {field: odd, kind: sum, source: Other}
`
	_, err := Parse("broken.yaml", []byte(src))
	ds := diagnostics(t, err)

	for _, want := range []struct{ field, msg string }{
		{"keys.partition", "requires a partition key"},
		{"attributes.id", "duplicate attribute name"},
		{"indexes.byFlag.partition", "must be a string or number scalar"},
		{"indexes.byFlag.projection", "unknown projection"},
		{"indexes.byNote.nonKeyAttributes", "require projection INCLUDE"},
		{"operations.archive.type", "operation type is required"},
		{"operations.archive.replaces", "is not a default operation"},
		{"operations.archive", "duplicate operation name"},
		{"operations.archive.returns", "return type is required"},
		{"customQueries.Stats.enrichments", "only allowed on aggregation"},
		{"customQueries.Agg.enrichments.owner.sourceField", "require a sourceField"},
		{"customQueries.Agg.enrichments.odd.kind", "unknown enrichment kind"},
	} {
		assert.True(t, hasDiagnostic(ds, diag.KindValidation, want.field, want.msg), "missing %s: %s", want.field, want.msg)
	}
}

func TestParse_ComputeBackedRejectsStorageShape(t *testing.T) {
	// Test: Compute-backed entities cannot declare keys, indexes or storage actions
	src := `kind: compute-backed
name: Reports
attributes:
  - {name: id, type: ID}
keys: {partition: id}
indexes:
  - {name: byId, partition: id, projection: ALL}
operations:
  - name: get
    returns: Reports
  - name: run
    type: mutation
    returns: Reports
`
	e, err := Parse("reports.yaml", []byte(src))
	require.NotNil(t, e)
	ds := diagnostics(t, err)
	assert.True(t, hasDiagnostic(ds, diag.KindValidation, "keys", "cannot declare keys"))
	assert.True(t, hasDiagnostic(ds, diag.KindValidation, "indexes", "cannot declare indexes"))
	assert.True(t, hasDiagnostic(ds, diag.KindValidation, "operations.get.action", "requires a storage entity"))
	assert.False(t, hasDiagnostic(ds, diag.KindValidation, "operations.run.action", ""))
}

func TestParse_MissingKindAndName(t *testing.T) {
	// Test: Kind and name are required
	_, err := Parse("anon.yaml", []byte("attributes: []\n"))
	ds := diagnostics(t, err)
	assert.True(t, hasDiagnostic(ds, diag.KindValidation, "name", "entity name is required"))
	assert.True(t, hasDiagnostic(ds, diag.KindValidation, "kind", "entity kind is required"))
	assert.True(t, hasDiagnostic(ds, diag.KindValidation, "attributes", "entity declares no attributes"))
}

func TestParse_EmptyAttributes(t *testing.T) {
	// Test: An entity must declare at least one attribute
	for _, src := range []string{
		"kind: compute-backed\nname: Empty\n",
		"kind: compute-backed\nname: Empty\nattributes: []\n",
	} {
		_, err := Parse("empty.yaml", []byte(src))
		ds := diagnostics(t, err)
		assert.True(t, hasDiagnostic(ds, diag.KindValidation, "attributes", "entity declares no attributes"), src)
	}
}

package query

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okra-platform/schemagen/internal/config"
	"github.com/okra-platform/schemagen/internal/diag"
	"github.com/okra-platform/schemagen/internal/resolve"
	"github.com/okra-platform/schemagen/internal/schema"
	"github.com/okra-platform/schemagen/internal/targets"
)

func crudGroups() map[string][]string {
	return map[string][]string{
		"create": {"Admins"}, "update": {"Admins"}, "delete": {"Admins"},
		"get": {"Admins"}, "list": {"Admins"},
	}
}

func orgs(queries ...schema.CustomQuery) *schema.Entity {
	return &schema.Entity{
		Name: "Orgs",
		Kind: schema.KindStorage,
		File: "orgs.yaml",
		Attributes: []schema.Attribute{
			{Name: "orgId", Type: schema.MustParseTypeRef("ID!")},
			{Name: "name", Type: schema.MustParseTypeRef("String!")},
		},
		Keys:          schema.Keys{Partition: "orgId"},
		Targets:       []string{"schema-main"},
		Authorization: crudGroups(),
		CustomQueries: queries,
	}
}

func memberships() *schema.Entity {
	return &schema.Entity{
		Name: "Memberships",
		Kind: schema.KindStorage,
		File: "memberships.yaml",
		Attributes: []schema.Attribute{
			{Name: "membershipId", Type: schema.MustParseTypeRef("ID!")},
			{Name: "orgId", Type: schema.MustParseTypeRef("ID!"), References: "Orgs"},
			{Name: "role", Type: schema.MustParseTypeRef("String!")},
			{Name: "joinedAt", Type: schema.MustParseTypeRef("AWSDateTime")},
		},
		Keys:          schema.Keys{Partition: "membershipId"},
		Targets:       []string{"schema-main"},
		Authorization: crudGroups(),
	}
}

func orgsWithDetails() schema.CustomQuery {
	return schema.CustomQuery{
		Name:    "OrgsWithDetails",
		Kind:    schema.QueryAggregation,
		Input:   []schema.InputField{{Name: "orgId", Type: schema.MustParseTypeRef("ID!")}},
		Returns: schema.MustParseTypeRef("[Orgs]"),
		Groups:  []string{"Admins"},
		Enrichments: []schema.Enrichment{
			{Field: "memberCount", Kind: schema.EnrichmentCount, Source: "Memberships", On: "orgId"},
			{Field: "ownerRole", Kind: schema.EnrichmentLookup, Source: "Memberships", SourceField: "role"},
		},
	}
}

func compile(t *testing.T, entities ...*schema.Entity) (*Catalog, error) {
	t.Helper()
	reg, err := targets.New(&config.Config{
		Dir: "/p", Path: "/p/schemagen.yaml",
		Targets: map[string]map[string]config.TargetConfig{"schema-doc": {"schema-main": {Output: "./main"}}},
	})
	require.NoError(t, err)
	res, err := resolve.New(zerolog.Nop(), reg).Resolve(schema.NewIR(entities))
	require.NoError(t, err)
	return NewCompiler(zerolog.Nop()).Compile(res)
}

func TestCompile_AggregationSynthesizesType(t *testing.T) {
	// Test: Base fields plus memberCount Int! and ownerRole String! form the synthesized type
	cat, err := compile(t, orgs(orgsWithDetails()), memberships())
	require.NoError(t, err)

	q, ok := cat.Lookup("OrgsWithDetails")
	require.True(t, ok)
	assert.Equal(t, "orgsWithDetails", q.Field)
	assert.Equal(t, "Orgs", q.Entity)
	assert.Equal(t, "[OrgsWithDetails]", q.Returns.String())
	assert.Equal(t, "[Orgs]", q.Declared.String())
	assert.Equal(t, []string{"Admins"}, q.Groups)

	require.NotNil(t, q.Synthesized)
	assert.Equal(t, "OrgsWithDetails", q.Synthesized.Name)
	assert.Equal(t, "Orgs", q.Synthesized.Base)

	var got []string
	for _, f := range q.Synthesized.Fields {
		got = append(got, f.Name+": "+f.Type.String())
	}
	assert.Equal(t, []string{"orgId: ID!", "name: String!", "memberCount: Int!", "ownerRole: String!"}, got)

	count, _ := q.Synthesized.Field("memberCount")
	require.NotNil(t, count.Enrichment)
	assert.Equal(t, "orgId", count.Enrichment.On)
	assert.Equal(t, "Memberships", count.Enrichment.Table)

	// Lookup joins default to the base partition key when the source carries it
	lookup, _ := q.Synthesized.Field("ownerRole")
	require.NotNil(t, lookup.Enrichment)
	assert.Equal(t, "orgId", lookup.Enrichment.On)

	assert.Len(t, cat.ForEntity("Orgs"), 1)
	assert.Empty(t, cat.ForEntity("Memberships"))
}

func TestCompile_LookupInheritsExactType(t *testing.T) {
	// Test: A lookup of a nullable source field stays nullable
	q := orgsWithDetails()
	q.Enrichments = []schema.Enrichment{{Field: "joined", Kind: schema.EnrichmentLookup, Source: "Memberships", SourceField: "joinedAt"}}
	cat, err := compile(t, orgs(q), memberships())
	require.NoError(t, err)

	compiled, _ := cat.Lookup("OrgsWithDetails")
	f, ok := compiled.Synthesized.Field("joined")
	require.True(t, ok)
	assert.Equal(t, "AWSDateTime", f.Type.String())
}

func TestCompile_ReferenceErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(q *schema.CustomQuery)
		want   string
	}{
		{
			name:   "unknown enrichment source",
			mutate: func(q *schema.CustomQuery) { q.Enrichments[0].Source = "Ghosts" },
			want:   `enrichment source "Ghosts" is not a declared entity`,
		},
		{
			name:   "unknown lookup field",
			mutate: func(q *schema.CustomQuery) { q.Enrichments[1].SourceField = "title" },
			want:   `source "Memberships" has no attribute "title"`,
		},
		{
			name:   "unknown join attribute",
			mutate: func(q *schema.CustomQuery) { q.Enrichments[0].On = "teamId" },
			want:   `source "Memberships" has no attribute "teamId"`,
		},
		{
			name:   "aggregation over a scalar",
			mutate: func(q *schema.CustomQuery) { q.Returns = schema.MustParseTypeRef("Int") },
			want:   "aggregation must return an entity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := orgsWithDetails()
			tt.mutate(&q)
			_, err := compile(t, orgs(q), memberships())
			require.Error(t, err)
			assert.ErrorIs(t, err, diag.ErrReference)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCompile_DuplicateQueryNamesAcrossEntities(t *testing.T) {
	// Test: Custom query names are globally unique
	m := memberships()
	m.CustomQueries = []schema.CustomQuery{{Name: "OrgsWithDetails", Kind: schema.QueryCustom, Returns: schema.MustParseTypeRef("Int"), Groups: []string{"Admins"}}}

	_, err := compile(t, orgs(orgsWithDetails()), m)
	require.Error(t, err)
	assert.ErrorIs(t, err, diag.ErrReference)
	assert.Contains(t, err.Error(), `custom query name "OrgsWithDetails" is already declared by Memberships`)
}

func TestCompile_ShadowedEnrichment(t *testing.T) {
	// Test: Enrichments may not reuse a base field name
	q := orgsWithDetails()
	q.Enrichments[0].Field = "name"
	_, err := compile(t, orgs(q), memberships())
	require.Error(t, err)
	assert.ErrorIs(t, err, diag.ErrValidation)
	assert.Contains(t, err.Error(), `enrichment "name" shadows an existing field`)
}

func TestCompile_AuthorizationFromMapOrFatal(t *testing.T) {
	// Test: Groups fall back to the entity map and a query without any is fatal
	q := orgsWithDetails()
	q.Groups = nil
	o := orgs(q)
	o.Authorization["OrgsWithDetails"] = []string{"Auditors"}

	cat, err := compile(t, o, memberships())
	require.NoError(t, err)
	compiled, _ := cat.Lookup("OrgsWithDetails")
	assert.Equal(t, []string{"Auditors"}, compiled.Groups)

	delete(o.Authorization, "OrgsWithDetails")
	_, err = compile(t, orgs(q), memberships())
	require.Error(t, err)
	var ace *diag.AuthorizationCoverageError
	require.True(t, errors.As(err, &ace))
	assert.Equal(t, "OrgsWithDetails", ace.Operation)
	assert.Equal(t, "Orgs", ace.Entity)
}

func TestCompile_FieldCollisionWithOperation(t *testing.T) {
	// Test: A query field that matches an operation field is rejected
	_, err := compile(t, orgs(schema.CustomQuery{
		Name: "GetOrg", Kind: schema.QueryCustom, Returns: schema.MustParseTypeRef("Orgs"), Groups: []string{"Admins"},
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `query field "getOrg" collides with operation Orgs.get`)
}

func TestCompile_FieldCollisionBetweenQueries(t *testing.T) {
	// Test: Two queries whose names differ only in the first letter share a root field and are rejected
	_, err := compile(t, orgs(
		schema.CustomQuery{Name: "Foo", Kind: schema.QueryCustom, Returns: schema.MustParseTypeRef("Int"), Groups: []string{"Admins"}},
		schema.CustomQuery{Name: "foo", Kind: schema.QueryCustom, Returns: schema.MustParseTypeRef("Int"), Groups: []string{"Admins"}},
	))
	require.Error(t, err)
	assert.ErrorIs(t, err, diag.ErrValidation)
	assert.Contains(t, err.Error(), `query field "foo" collides with query Orgs.Foo`)
}

func TestCompile_CustomQueryKeepsDeclaredReturn(t *testing.T) {
	// Test: Non-aggregation queries keep their declared signature
	cat, err := compile(t, orgs(schema.CustomQuery{
		Name: "OrgCount", Kind: schema.QueryCustom, Returns: schema.MustParseTypeRef("Int!"), Groups: []string{"Admins"},
	}))
	require.NoError(t, err)
	q, _ := cat.Lookup("OrgCount")
	assert.Nil(t, q.Synthesized)
	assert.Equal(t, "Int!", q.Returns.String())
	assert.Equal(t, "orgCount", q.Field)
}

func TestCompile_NameCollisionWithOperation(t *testing.T) {
	// Test: A query named like an operation of its entity is rejected since both own a contract file
	_, err := compile(t, orgs(schema.CustomQuery{
		Name: "List", Kind: schema.QueryCustom, Returns: schema.MustParseTypeRef("Int"), Groups: []string{"Admins"},
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, diag.ErrValidation)
	assert.Contains(t, err.Error(), `custom query "List" has the same name as operation "list"`)
}

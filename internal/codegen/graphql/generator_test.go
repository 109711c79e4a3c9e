package graphql

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okra-platform/schemagen/internal/codegen"
	"github.com/okra-platform/schemagen/internal/codegen/templates"
	"github.com/okra-platform/schemagen/internal/targets"
	"github.com/okra-platform/schemagen/internal/testutil"
)

func compose(t *testing.T, b *codegen.Build) map[string]codegen.Artifact {
	t.Helper()
	g := NewGenerator(templates.MustLoad())

	parts := map[string][]codegen.Artifact{}
	for _, task := range g.Tasks(b) {
		artifacts, err := task.Render()
		require.NoError(t, err)
		parts[task.Target] = append(parts[task.Target], artifacts...)
	}

	out := map[string]codegen.Artifact{}
	for _, target := range b.Registry.ByCategory(targets.SchemaDoc) {
		doc, err := g.Compose(b, target, parts[target.Name])
		require.NoError(t, err)
		out[target.Name] = doc
	}
	return out
}

func TestCompose_PartnerOnlySeesItsEntities(t *testing.T) {
	// Test: A target's document holds only the entities that opt into it
	dir := t.TempDir()
	docs := compose(t, testutil.NewBuild(t, testutil.Config(t, dir), testutil.Sources()))

	partner := docs["schema-partner"]
	assert.Equal(t, filepath.Join(dir, "gen", "graphql", "partner"), partner.Dir)
	assert.Equal(t, FileName, partner.Path)

	want := `# Code generated by schemagen. DO NOT EDIT.
# Target: schema-partner

type Widgets {
  widgetId: ID!
  label: String
  weight: Float
}

"Input for createWidget"
input CreateWidgetInput {
  widgetId: ID!
  label: String
  weight: Float
}

"Input for updateWidget"
input UpdateWidgetInput {
  widgetId: ID!
  label: String
  weight: Float
}

"A page of Widgets"
type WidgetsConnection {
  items: [Widgets!]!
  nextToken: String
}

type Query {
  "Fetches a Widget by key"
  getWidget(widgetId: ID!): Widgets @aws_auth(cognito_groups: ["Admins", "Members"])
  "Lists Widgets"
  listWidgets(limit: Int, nextToken: String): WidgetsConnection! @aws_auth(cognito_groups: ["Admins", "Members"])
}

type Mutation {
  "Creates a Widget"
  createWidget(input: CreateWidgetInput!): Widgets @aws_auth(cognito_groups: ["Admins"])
  "Updates a Widget"
  updateWidget(input: UpdateWidgetInput!): Widgets @aws_auth(cognito_groups: ["Admins"])
  "Deletes a Widget"
  deleteWidget(widgetId: ID!): Widgets @aws_auth(cognito_groups: ["Admins"])
}
`
	assert.Equal(t, want, string(partner.Content))

	doc, ok := partner.Part.(*Document)
	require.True(t, ok)
	for _, f := range doc.Fields {
		assert.Equal(t, "Widgets", f.Owner)
	}
	assert.Len(t, doc.Fields, 5)
}

func TestCompose_MainDocument(t *testing.T) {
	// Test: The main document holds every entity, overrides and custom queries
	docs := compose(t, testutil.NewBuild(t, testutil.Config(t, t.TempDir()), testutil.Sources()))
	main := string(docs["schema-main"].Content)

	for _, name := range []string{"Address", "Orgs", "Memberships", "Reports", "Users", "Widgets"} {
		assert.Contains(t, main, "\ntype "+name+" {\n")
	}
	// Reference order: embedded and referenced entities come first
	assert.Less(t, strings.Index(main, "type Address {"), strings.Index(main, "type Users {"))
	assert.Less(t, strings.Index(main, "type Orgs {"), strings.Index(main, "type Memberships {"))

	// archive replaces the default delete
	assert.Contains(t, main, `  "Archive a user"
  archiveUser("Key of the user" userId: ID!, reason: String): Users @aws_auth(cognito_groups: ["Admins"])
`)
	assert.NotContains(t, main, "deleteUser(")

	assert.Contains(t, main, `"Organisations with membership details"
type OrgsWithDetails {
  orgId: ID!
  name: String!
  createdAt: AWSDateTime
  "Number of Memberships items matching orgId"
  memberCount: Int!
  "Memberships.role of the related item"
  ownerRole: String!
}`)
	assert.Contains(t, main, `  orgsWithDetails("Organisation" orgId: ID!): [OrgsWithDetails] @aws_auth(cognito_groups: ["Admins"])`)

	// Declared input types follow the entity types
	assert.Contains(t, main, `"Inclusive time window"
input DateRange {
  from: AWSDateTime!
  to: AWSDateTime
}`)
	assert.Contains(t, main, `  runReport(range: DateRange!): Reports @aws_auth(cognito_groups: ["Analysts"])`)
	assert.NotContains(t, string(docs["schema-partner"].Content), "DateRange")

	// Every root field is annotated
	doc := docs["schema-main"].Part.(*Document)
	assert.Equal(t, len(doc.Fields), strings.Count(main, "@aws_auth("))
}

func TestFragment_CollectsInputs(t *testing.T) {
	// Test: A fragment lists the declared input types its fields use
	b := testutil.NewBuild(t, testutil.Config(t, t.TempDir()), testutil.Sources())
	reports, ok := b.Resolved.Entity("Reports")
	require.True(t, ok)

	f, err := NewGenerator(templates.MustLoad()).Fragment(b, reports)
	require.NoError(t, err)
	assert.Equal(t, []string{"DateRange"}, f.Inputs)
	require.Len(t, f.Fields, 1)
	assert.Equal(t, RootMutation, f.Fields[0].Root)
	assert.Equal(t, "run", f.Fields[0].Source)
	// Compute-backed entities get no CRUD inputs or connection
	require.Len(t, f.Types, 1)
	assert.Equal(t, "Reports", f.Types[0].Name)
}

func TestCompose_Deterministic(t *testing.T) {
	// Test: Fragment arrival order does not change the composed document
	b := testutil.NewBuild(t, testutil.Config(t, t.TempDir()), testutil.Sources())
	g := NewGenerator(templates.MustLoad())
	target, ok := b.Registry.Lookup("schema-main")
	require.True(t, ok)

	var parts []codegen.Artifact
	for _, task := range g.Tasks(b) {
		if task.Target != target.Name {
			continue
		}
		artifacts, err := task.Render()
		require.NoError(t, err)
		parts = append(parts, artifacts...)
	}

	first, err := g.Compose(b, target, parts)
	require.NoError(t, err)
	reversed := make([]codegen.Artifact, len(parts))
	for i, p := range parts {
		reversed[len(parts)-1-i] = p
	}
	second, err := g.Compose(b, target, reversed)
	require.NoError(t, err)
	assert.Equal(t, string(first.Content), string(second.Content))
}

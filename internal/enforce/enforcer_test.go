package enforce

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okra-platform/schemagen/internal/codegen"
	"github.com/okra-platform/schemagen/internal/codegen/graphql"
	"github.com/okra-platform/schemagen/internal/codegen/templates"
	"github.com/okra-platform/schemagen/internal/diag"
	"github.com/okra-platform/schemagen/internal/testutil"
)

func composed(t *testing.T, tmpl *templates.Set, target string) codegen.Artifact {
	t.Helper()
	b := testutil.NewBuild(t, testutil.Config(t, t.TempDir()), testutil.Sources())
	g := graphql.NewGenerator(tmpl)

	var parts []codegen.Artifact
	for _, task := range g.Tasks(b) {
		if task.Target != target {
			continue
		}
		artifacts, err := task.Render()
		require.NoError(t, err)
		parts = append(parts, artifacts...)
	}
	tgt, ok := b.Registry.Lookup(target)
	require.True(t, ok)
	a, err := g.Compose(b, tgt, parts)
	require.NoError(t, err)
	return a
}

func overrideField(t *testing.T, body string) *templates.Set {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, templates.GraphQLField), []byte(body), 0644))
	tmpl, err := templates.Load(dir)
	require.NoError(t, err)
	return tmpl
}

func diagnostics(t *testing.T, err error) []diag.Diagnostic {
	t.Helper()
	var de *diag.Error
	require.True(t, errors.As(err, &de), "expected *diag.Error, got %v", err)
	return de.Diagnostics
}

func TestCheck_GeneratedDocumentsPass(t *testing.T) {
	// Test: Documents composed from valid schemas pass every check
	e := New(zerolog.Nop())
	for _, target := range []string{"schema-main", "schema-partner"} {
		assert.NoError(t, e.Check(composed(t, templates.MustLoad(), target)), target)
	}
}

func TestCheck_MissingDirectiveReportsEveryField(t *testing.T) {
	// Test: A template that drops the auth directive fails on every root field at once
	tmpl := overrideField(t, "{{ .Name }}{{ if .Args }}({{ .Args }}){{ end }}: {{ .Type }}\n")
	a := composed(t, tmpl, "schema-partner")

	err := New(zerolog.Nop()).Check(a)
	require.Error(t, err)
	assert.ErrorIs(t, err, diag.ErrAuthorizationCoverage)

	ds := diagnostics(t, err)
	var fields []string
	for _, d := range ds {
		assert.Equal(t, diag.KindAuthorization, d.Kind)
		assert.Equal(t, "Widgets", d.Entity)
		assert.Equal(t, a.FullPath(), d.File)
		fields = append(fields, d.Field)
	}
	assert.ElementsMatch(t, []string{
		"Query.getWidget", "Query.listWidgets",
		"Mutation.createWidget", "Mutation.updateWidget", "Mutation.deleteWidget",
	}, fields)

	var ace *diag.AuthorizationCoverageError
	require.True(t, errors.As(err, &ace))
	assert.Equal(t, "Widgets", ace.Entity)
}

func TestCheck_EmptyGroupList(t *testing.T) {
	// Test: An auth directive with no groups counts as missing
	tmpl := overrideField(t, `{{ .Name }}{{ if .Args }}({{ .Args }}){{ end }}: {{ .Type }} @aws_auth(cognito_groups: [""])
`)
	err := New(zerolog.Nop()).Check(composed(t, tmpl, "schema-partner"))
	require.Error(t, err)
	assert.Len(t, diagnostics(t, err), 5)
}

func TestCheck_DuplicateContributions(t *testing.T) {
	// Test: Two entities contributing the same root field or type are both named
	content := `type Query {
  ping: String @aws_auth(cognito_groups: ["Admins"])
}
`
	a := codegen.Artifact{
		Dir:  "/out",
		Path: graphql.FileName,
		Part: &graphql.Document{
			Target:  "schema-main",
			Content: []byte(content),
			Fields: []graphql.Origin{
				{Root: graphql.RootQuery, Name: "ping", Owner: "Alpha"},
				{Root: graphql.RootQuery, Name: "ping", Owner: "Beta"},
			},
			Types: []graphql.Origin{
				{Name: "Status", Owner: "Alpha"},
				{Name: "Status", Owner: "Beta"},
			},
		},
	}

	err := New(zerolog.Nop()).Check(a)
	require.Error(t, err)
	assert.ErrorIs(t, err, diag.ErrValidation)
	assert.Contains(t, err.Error(), "field Query.ping is contributed by both Alpha and Beta")
	assert.Contains(t, err.Error(), "type Status is contributed by both Alpha and Beta")
}

func TestCheck_InvalidSchema(t *testing.T) {
	// Test: A document naming an undeclared type fails schema loading
	a := codegen.Artifact{
		Dir:  "/out",
		Path: graphql.FileName,
		Part: &graphql.Document{
			Target: "schema-main",
			Content: []byte(`type Query {
  ping: Missing @aws_auth(cognito_groups: ["Admins"])
}
`),
			Fields: []graphql.Origin{{Root: graphql.RootQuery, Name: "ping", Owner: "Alpha"}},
		},
	}

	err := New(zerolog.Nop()).Check(a)
	require.Error(t, err)
	assert.ErrorIs(t, err, diag.ErrEmission)
	assert.Contains(t, err.Error(), "not a valid schema")
}

func TestCheck_RequiresDocument(t *testing.T) {
	// Test: Artifacts without a composed document are rejected
	err := New(zerolog.Nop()).Check(codegen.Artifact{Target: "schema-main", Dir: "/out", Path: graphql.FileName})
	require.Error(t, err)
	assert.ErrorIs(t, err, diag.ErrEmission)
}

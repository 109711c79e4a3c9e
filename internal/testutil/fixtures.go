// Package testutil builds generator inputs from inline schema sources
package testutil

import (
	"sort"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/okra-platform/schemagen/internal/codegen"
	"github.com/okra-platform/schemagen/internal/config"
	"github.com/okra-platform/schemagen/internal/diag"
	"github.com/okra-platform/schemagen/internal/query"
	"github.com/okra-platform/schemagen/internal/resolve"
	"github.com/okra-platform/schemagen/internal/schema"
	"github.com/okra-platform/schemagen/internal/targets"
)

const allGroups = `authorization:
  create: [Admins]
  update: [Admins]
  delete: [Admins]
  get: [Admins, Members]
  list: [Admins, Members]
`

// Address is a compute-backed entity embedded by Users
const Address = `kind: compute-backed
name: Address
description: Postal address
attributes:
  - {name: street, type: String}
  - {name: city, type: String, required: true}
targets: [model-py, model-ts, schema-main]
`

// Orgs owns the OrgsWithDetails aggregation
const Orgs = `kind: storage
name: Orgs
attributes:
  - {name: orgId, type: ID}
  - {name: name, type: String, required: true}
  - {name: createdAt, type: AWSDateTime}
keys: {partition: orgId}
targets: [model-py, model-ts, schema-main]
` + allGroups + `  OrgsWithDetails: [Admins]
customQueries:
  - name: OrgsWithDetails
    kind: aggregation
    description: Organisations with membership details
    input: {orgId: {type: ID!, description: Organisation}}
    returns: "[Orgs]"
    enrichments:
      - {field: memberCount, kind: count, source: Memberships, on: orgId}
      - {field: ownerRole, kind: lookup, source: Memberships, sourceField: role}
`

// Memberships joins users to orgs
const Memberships = `kind: storage
name: Memberships
attributes:
  - {name: orgId, type: ID, references: Orgs}
  - {name: userId, type: ID}
  - {name: role, type: String, required: true}
keys: {partition: orgId, sort: userId}
indexes:
  - {name: byUser, partition: userId, projection: KEYS_ONLY}
targets: [model-py, model-ts, schema-main]
` + allGroups

// Users replaces the default delete with an archive mutation
const Users = `kind: storage
name: Users
description: Application users
attributes:
  - {name: userId, type: ID}
  - {name: orgId, type: ID, required: true, references: Orgs}
  - {name: email, type: AWSEmail}
  - {name: address, type: Address}
  - {name: tags, type: "[String!]"}
  - {name: createdAt, type: AWSDateTime}
keys: {partition: userId, sort: createdAt}
indexes:
  - {name: byOrg, partition: orgId, sort: createdAt, projection: ALL}
  - {name: byEmail, partition: email, projection: INCLUDE, nonKeyAttributes: [tags]}
targets: [model-py, model-ts, schema-main]
authorization:
  create: [Admins]
  update: [Admins]
  get: [Admins, Members]
  list: [Admins]
operations:
  - name: archive
    type: mutation
    replaces: delete
    action: update
    description: Archive a user
    input:
      userId: {type: ID!, description: Key of the user}
      reason: String
    returns: Users
    authorization: [Admins]
`

// Widgets is the only entity exposed to the partner schema
const Widgets = `kind: storage
name: Widgets
attributes:
  - {name: widgetId, type: ID}
  - {name: label, type: String}
  - {name: weight, type: Float}
keys: {partition: widgetId}
targets: [model-py, model-ts, schema-main, schema-partner]
` + allGroups

// Reports is a compute-backed entity with a declared input type
const Reports = `kind: compute-backed
name: Reports
attributes:
  - {name: reportId, type: ID!}
  - {name: total, type: Int}
  - {name: ready, type: Boolean, required: true}
targets: [model-ts, schema-main]
inputTypes:
  - name: DateRange
    description: Inclusive time window
    fields:
      - {name: from, type: AWSDateTime, required: true}
      - {name: to, type: AWSDateTime}
operations:
  - name: run
    type: mutation
    input: {range: DateRange!}
    returns: Reports
    authorization: [Analysts]
`

// Sources returns the standard fixture project keyed by file name
func Sources() map[string]string {
	return map[string]string{
		"address.yaml":     Address,
		"orgs.yaml":        Orgs,
		"memberships.yaml": Memberships,
		"users.yaml":       Users,
		"widgets.yaml":     Widgets,
		"reports.yaml":     Reports,
	}
}

// ConfigYAML is a schemagen.yaml matching the fixture targets
const ConfigYAML = `version: "1"
schemaRoot: ./schema
manifest: .schemagen-manifest.json
infrastructure:
  tables: ./infra/tables
  resolvers: ./infra/resolvers
  tablePrefix: app-
targets:
  model-python:
    model-py: {output: ./gen/python}
  model-ts:
    model-ts: {output: ./gen/ts}
  schema-doc:
    schema-main: {output: ./gen/graphql/main}
    schema-partner: {output: ./gen/graphql/partner}
`

// Config returns the fixture configuration anchored at dir
func Config(t *testing.T, dir string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(ConfigYAML), dir+"/"+config.FileName)
	require.NoError(t, err)
	return cfg
}

// Compile runs every stage up to query compilation without failing the test
func Compile(cfg *config.Config, sources map[string]string) (*codegen.Build, error) {
	registry, err := targets.New(cfg)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	var l diag.List
	var entities []*schema.Entity
	for _, name := range names {
		e, err := schema.Parse(name, []byte(sources[name]))
		l.Merge(diag.KindParse, err)
		if e != nil {
			entities = append(entities, e)
		}
	}
	ir, err := schema.Build(entities, &l)
	if err != nil {
		return nil, err
	}
	if err := registry.Check(ir); err != nil {
		return nil, err
	}

	res, err := resolve.New(zerolog.Nop(), registry).Resolve(ir)
	if err != nil {
		return nil, err
	}
	catalog, err := query.NewCompiler(zerolog.Nop()).Compile(res)
	if err != nil {
		return nil, err
	}
	return &codegen.Build{Resolved: res, Catalog: catalog, Registry: registry, Config: cfg}, nil
}

// NewBuild is Compile for sources that are expected to be valid
func NewBuild(t *testing.T, cfg *config.Config, sources map[string]string) *codegen.Build {
	t.Helper()
	b, err := Compile(cfg, sources)
	require.NoError(t, err)
	return b
}

package table

import (
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okra-platform/schemagen/internal/codegen"
	"github.com/okra-platform/schemagen/internal/testutil"
)

func TestGenerator_OnePerStorageEntity(t *testing.T) {
	// Test: Compute-backed entities get no table and files land in the tables directory
	dir := t.TempDir()
	b := testutil.NewBuild(t, testutil.Config(t, dir), testutil.Sources())

	var paths []string
	for _, task := range NewGenerator().Tasks(b) {
		artifacts, err := task.Render()
		require.NoError(t, err)
		require.Len(t, artifacts, 1)
		assert.Equal(t, codegen.KindTable, artifacts[0].Kind)
		assert.Equal(t, filepath.Join(dir, "infra", "tables"), artifacts[0].Dir)
		paths = append(paths, artifacts[0].Path)
	}
	assert.Equal(t, []string{"Orgs.table.json", "Memberships.table.json", "Users.table.json", "Widgets.table.json"}, paths)
}

func TestRender_SimpleTable(t *testing.T) {
	// Test: A partition-only table renders as a CloudFormation resource
	b := testutil.NewBuild(t, testutil.Config(t, t.TempDir()), testutil.Sources())
	widgets, ok := b.Resolved.Entity("Widgets")
	require.True(t, ok)

	content, err := Render(b.Config.Infrastructure, widgets)
	require.NoError(t, err)

	want := `{
  "AWSTemplateFormatVersion": "2010-09-09",
  "Description": "Widgets table. Code generated by schemagen. DO NOT EDIT.",
  "Resources": {
    "WidgetsTable": {
      "Type": "AWS::DynamoDB::Table",
      "Properties": {
        "TableName": "app-Widgets",
        "BillingMode": "PAY_PER_REQUEST",
        "AttributeDefinitions": [
          {
            "AttributeName": "widgetId",
            "AttributeType": "S"
          }
        ],
        "KeySchema": [
          {
            "AttributeName": "widgetId",
            "KeyType": "HASH"
          }
        ]
      }
    }
  }
}
`
	assert.Equal(t, want, string(content))
}

func TestCreateTableInput_IndexesAndKeys(t *testing.T) {
	// Test: Every key and index attribute is defined once, sorted, with its scalar kind
	b := testutil.NewBuild(t, testutil.Config(t, t.TempDir()), testutil.Sources())
	users, ok := b.Resolved.Entity("Users")
	require.True(t, ok)

	in := CreateTableInput(b.Config.Infrastructure, users)
	assert.Equal(t, "app-Users", aws.ToString(in.TableName))
	assert.Equal(t, types.BillingModePayPerRequest, in.BillingMode)
	assert.Nil(t, in.ProvisionedThroughput)

	var defs []string
	for _, ad := range in.AttributeDefinitions {
		defs = append(defs, aws.ToString(ad.AttributeName)+":"+string(ad.AttributeType))
	}
	assert.Equal(t, []string{"createdAt:S", "email:S", "orgId:S", "userId:S"}, defs)

	require.Len(t, in.KeySchema, 2)
	assert.Equal(t, types.KeyTypeHash, in.KeySchema[0].KeyType)
	assert.Equal(t, "createdAt", aws.ToString(in.KeySchema[1].AttributeName))
	assert.Equal(t, types.KeyTypeRange, in.KeySchema[1].KeyType)

	require.Len(t, in.GlobalSecondaryIndexes, 2)
	byEmail := in.GlobalSecondaryIndexes[1]
	assert.Equal(t, "byEmail", aws.ToString(byEmail.IndexName))
	assert.Equal(t, types.ProjectionTypeInclude, byEmail.Projection.ProjectionType)
	assert.Equal(t, []string{"tags"}, byEmail.Projection.NonKeyAttributes)
	assert.Len(t, byEmail.KeySchema, 1)
}

func TestCreateTableInput_Provisioned(t *testing.T) {
	// Test: PROVISIONED billing adds default capacity to the table and its indexes
	b := testutil.NewBuild(t, testutil.Config(t, t.TempDir()), testutil.Sources())
	memberships, ok := b.Resolved.Entity("Memberships")
	require.True(t, ok)

	infra := b.Config.Infrastructure
	infra.BillingMode = string(types.BillingModeProvisioned)
	in := CreateTableInput(infra, memberships)

	require.NotNil(t, in.ProvisionedThroughput)
	assert.Equal(t, DefaultReadCapacity, aws.ToInt64(in.ProvisionedThroughput.ReadCapacityUnits))
	require.Len(t, in.GlobalSecondaryIndexes, 1)
	require.NotNil(t, in.GlobalSecondaryIndexes[0].ProvisionedThroughput)
	assert.Equal(t, DefaultWriteCapacity, aws.ToInt64(in.GlobalSecondaryIndexes[0].ProvisionedThroughput.WriteCapacityUnits))

	content, err := Render(infra, memberships)
	require.NoError(t, err)
	assert.Contains(t, string(content), `"ReadCapacityUnits": 5`)
	assert.Contains(t, string(content), `"ProjectionType": "KEYS_ONLY"`)
}

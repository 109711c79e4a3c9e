// Package table renders one CloudFormation DynamoDB table definition per
// storage entity.
package table

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/okra-platform/schemagen/internal/codegen"
	"github.com/okra-platform/schemagen/internal/config"
	"github.com/okra-platform/schemagen/internal/resolve"
	"github.com/okra-platform/schemagen/internal/schema"
)

// Default capacity for PROVISIONED tables and their indexes
const (
	DefaultReadCapacity  int64 = 5
	DefaultWriteCapacity int64 = 5
)

// Generator generates table definitions
type Generator struct{}

// NewGenerator creates a new table definition generator
func NewGenerator() *Generator {
	return &Generator{}
}

// Kind returns the artifact kind
func (g *Generator) Kind() codegen.Kind {
	return codegen.KindTable
}

// FileName returns the definition file for an entity
func FileName(entity string) string {
	return entity + ".table.json"
}

// Tasks renders one definition per storage entity, in emission order
func (g *Generator) Tasks(b *codegen.Build) []codegen.Task {
	var tasks []codegen.Task
	dir := b.Config.Resolve(b.Config.Infrastructure.Tables)
	for _, e := range b.Resolved.Ordered() {
		if !e.IsStorage() {
			continue
		}
		entity := e
		tasks = append(tasks, codegen.Task{
			Kind:  codegen.KindTable,
			Owner: entity.Name,
			Render: func() ([]codegen.Artifact, error) {
				content, err := Render(b.Config.Infrastructure, entity)
				if err != nil {
					return nil, fmt.Errorf("table definition for %s: %w", entity.Name, err)
				}
				return []codegen.Artifact{{
					Kind:    codegen.KindTable,
					Owner:   entity.Name,
					Dir:     dir,
					Path:    FileName(entity.Name),
					Content: content,
				}}, nil
			},
		})
	}
	return tasks
}

// CreateTableInput derives the table request for a storage entity
func CreateTableInput(infra config.InfrastructureConfig, e *resolve.Entity) *dynamodb.CreateTableInput {
	in := &dynamodb.CreateTableInput{
		TableName:   aws.String(infra.TablePrefix + e.Name),
		BillingMode: types.BillingMode(infra.BillingMode),
		KeySchema:   keySchema(e.Keys.Partition, e.Keys.Sort),
	}

	keyAttrs := map[string]bool{}
	addKeys := func(names ...string) {
		for _, n := range names {
			if n != "" {
				keyAttrs[n] = true
			}
		}
	}
	addKeys(e.Keys.Partition, e.Keys.Sort)

	provisioned := in.BillingMode == types.BillingModeProvisioned
	if provisioned {
		in.ProvisionedThroughput = defaultThroughput()
	}

	for _, idx := range e.Indexes {
		gsi := types.GlobalSecondaryIndex{
			IndexName: aws.String(idx.Name),
			KeySchema: keySchema(idx.Partition, idx.Sort),
			Projection: &types.Projection{
				ProjectionType: types.ProjectionType(idx.Projection),
			},
		}
		if len(idx.NonKeyAttributes) > 0 {
			gsi.Projection.NonKeyAttributes = append([]string(nil), idx.NonKeyAttributes...)
		}
		if provisioned {
			gsi.ProvisionedThroughput = defaultThroughput()
		}
		in.GlobalSecondaryIndexes = append(in.GlobalSecondaryIndexes, gsi)
		addKeys(idx.Partition, idx.Sort)
	}

	names := make([]string, 0, len(keyAttrs))
	for n := range keyAttrs {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		a, _ := e.Attribute(n)
		in.AttributeDefinitions = append(in.AttributeDefinitions, types.AttributeDefinition{
			AttributeName: aws.String(n),
			AttributeType: types.ScalarAttributeType(schema.KeyScalar(a.Type.Name)),
		})
	}
	return in
}

func keySchema(partition, sort string) []types.KeySchemaElement {
	ks := []types.KeySchemaElement{{AttributeName: aws.String(partition), KeyType: types.KeyTypeHash}}
	if sort != "" {
		ks = append(ks, types.KeySchemaElement{AttributeName: aws.String(sort), KeyType: types.KeyTypeRange})
	}
	return ks
}

func defaultThroughput() *types.ProvisionedThroughput {
	return &types.ProvisionedThroughput{
		ReadCapacityUnits:  aws.Int64(DefaultReadCapacity),
		WriteCapacityUnits: aws.Int64(DefaultWriteCapacity),
	}
}

// Template is a CloudFormation document holding a single table resource
type Template struct {
	AWSTemplateFormatVersion string              `json:"AWSTemplateFormatVersion"`
	Description              string              `json:"Description"`
	Resources                map[string]Resource `json:"Resources"`
}

// Resource is one CloudFormation resource
type Resource struct {
	Type       string          `json:"Type"`
	Properties TableProperties `json:"Properties"`
}

// TableProperties are the AWS::DynamoDB::Table properties
type TableProperties struct {
	TableName              string                 `json:"TableName"`
	BillingMode            string                 `json:"BillingMode"`
	AttributeDefinitions   []AttributeDefinition  `json:"AttributeDefinitions"`
	KeySchema              []KeySchema            `json:"KeySchema"`
	GlobalSecondaryIndexes []GlobalSecondaryIndex `json:"GlobalSecondaryIndexes,omitempty"`
	ProvisionedThroughput  *ProvisionedThroughput `json:"ProvisionedThroughput,omitempty"`
}

// AttributeDefinition captures a key attribute definition
type AttributeDefinition struct {
	AttributeName string `json:"AttributeName"`
	AttributeType string `json:"AttributeType"`
}

// KeySchema captures a key schema element
type KeySchema struct {
	AttributeName string `json:"AttributeName"`
	KeyType       string `json:"KeyType"`
}

// Projection captures projection settings for indexes
type Projection struct {
	ProjectionType   string   `json:"ProjectionType"`
	NonKeyAttributes []string `json:"NonKeyAttributes,omitempty"`
}

// GlobalSecondaryIndex captures a GSI definition
type GlobalSecondaryIndex struct {
	IndexName             string                 `json:"IndexName"`
	KeySchema             []KeySchema            `json:"KeySchema"`
	Projection            Projection             `json:"Projection"`
	ProvisionedThroughput *ProvisionedThroughput `json:"ProvisionedThroughput,omitempty"`
}

// ProvisionedThroughput captures provisioned capacity
type ProvisionedThroughput struct {
	ReadCapacityUnits  int64 `json:"ReadCapacityUnits"`
	WriteCapacityUnits int64 `json:"WriteCapacityUnits"`
}

// ResourceName is the logical id of an entity's table
func ResourceName(entity string) string {
	return entity + "Table"
}

// Render encodes the table definition for a storage entity
func Render(infra config.InfrastructureConfig, e *resolve.Entity) ([]byte, error) {
	in := CreateTableInput(infra, e)
	tmpl := Template{
		AWSTemplateFormatVersion: "2010-09-09",
		Description:              fmt.Sprintf("%s table. %s", e.Name, codegen.Header),
		Resources: map[string]Resource{
			ResourceName(e.Name): {Type: "AWS::DynamoDB::Table", Properties: properties(in)},
		},
	}

	data, err := json.MarshalIndent(tmpl, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func properties(in *dynamodb.CreateTableInput) TableProperties {
	p := TableProperties{
		TableName:             aws.ToString(in.TableName),
		BillingMode:           string(in.BillingMode),
		KeySchema:             keySchemaProps(in.KeySchema),
		ProvisionedThroughput: throughputProps(in.ProvisionedThroughput),
	}
	for _, ad := range in.AttributeDefinitions {
		p.AttributeDefinitions = append(p.AttributeDefinitions, AttributeDefinition{
			AttributeName: aws.ToString(ad.AttributeName),
			AttributeType: string(ad.AttributeType),
		})
	}
	for _, gsi := range in.GlobalSecondaryIndexes {
		idx := GlobalSecondaryIndex{
			IndexName:             aws.ToString(gsi.IndexName),
			KeySchema:             keySchemaProps(gsi.KeySchema),
			ProvisionedThroughput: throughputProps(gsi.ProvisionedThroughput),
		}
		if gsi.Projection != nil {
			idx.Projection = Projection{
				ProjectionType:   string(gsi.Projection.ProjectionType),
				NonKeyAttributes: gsi.Projection.NonKeyAttributes,
			}
		}
		p.GlobalSecondaryIndexes = append(p.GlobalSecondaryIndexes, idx)
	}
	return p
}

func keySchemaProps(ks []types.KeySchemaElement) []KeySchema {
	out := make([]KeySchema, 0, len(ks))
	for _, k := range ks {
		out = append(out, KeySchema{AttributeName: aws.ToString(k.AttributeName), KeyType: string(k.KeyType)})
	}
	return out
}

func throughputProps(pt *types.ProvisionedThroughput) *ProvisionedThroughput {
	if pt == nil {
		return nil
	}
	return &ProvisionedThroughput{
		ReadCapacityUnits:  aws.ToInt64(pt.ReadCapacityUnits),
		WriteCapacityUnits: aws.ToInt64(pt.WriteCapacityUnits),
	}
}

// Package enforce checks every composed schema document before anything is
// written: no name is contributed twice, every root field carries caller
// groups, and the document loads as a schema.
package enforce

import (
	"fmt"

	"github.com/rs/zerolog"
	gqlparser "github.com/vektah/gqlparser/v2"
	gqlast "github.com/vektah/gqlparser/v2/ast"
	"github.com/wundergraph/graphql-go-tools/v2/pkg/ast"
	"github.com/wundergraph/graphql-go-tools/v2/pkg/astparser"

	"github.com/okra-platform/schemagen/internal/codegen"
	"github.com/okra-platform/schemagen/internal/codegen/graphql"
	"github.com/okra-platform/schemagen/internal/diag"
)

// AuthDirective is the directive carrying a root field's caller groups
const AuthDirective = "aws_auth"

// AuthArgument is the AuthDirective argument listing the groups
const AuthArgument = "cognito_groups"

// prelude declares the AppSync scalars and directives; it only exists for validation
const prelude = `scalar AWSDate
scalar AWSTime
scalar AWSDateTime
scalar AWSTimestamp
scalar AWSEmail
scalar AWSJSON
scalar AWSURL
scalar AWSPhone
scalar AWSIPAddress

directive @aws_auth(cognito_groups: [String]) on FIELD_DEFINITION | OBJECT
directive @aws_cognito_user_pools(cognito_groups: [String]) on FIELD_DEFINITION | OBJECT
directive @aws_api_key on FIELD_DEFINITION | OBJECT
directive @aws_iam on FIELD_DEFINITION | OBJECT
directive @aws_subscribe(mutations: [String]) on FIELD_DEFINITION
`

// Enforcer verifies composed schema documents
type Enforcer struct {
	logger zerolog.Logger
}

// New creates an enforcer
func New(logger zerolog.Logger) *Enforcer {
	return &Enforcer{logger: logger.With().Str("component", "enforcer").Logger()}
}

// Check verifies one composed schema-doc artifact and reports every offender together
func (e *Enforcer) Check(a codegen.Artifact) error {
	file := a.FullPath()
	doc, ok := a.Part.(*graphql.Document)
	if !ok {
		return diag.New(diag.KindEmission, file, "", "", "artifact for target %s carries no composed document", a.Target)
	}

	var l diag.List
	checkDuplicates(file, doc, &l)
	checkAuthorization(file, doc, &l)
	// Loading needs a consistent document; skip it when names already collide
	if l.Len() == 0 {
		checkSchema(file, doc, &l)
	}

	e.logger.Debug().
		Str("target", doc.Target).
		Int("fields", len(doc.Fields)).
		Int("problems", l.Len()).
		Msg("Checked schema document")
	return l.Err()
}

func checkDuplicates(file string, doc *graphql.Document, l *diag.List) {
	fields := make(map[string]string, len(doc.Fields))
	for _, f := range doc.Fields {
		key := string(f.Root) + "." + f.Name
		first, dup := fields[key]
		if !dup {
			fields[key] = f.Owner
			continue
		}
		if first == f.Owner {
			l.Addf(diag.KindValidation, file, f.Owner, key, "field %s is declared twice", key)
		} else {
			l.Addf(diag.KindValidation, file, f.Owner, key, "field %s is contributed by both %s and %s", key, first, f.Owner)
		}
	}

	types := make(map[string]string, len(doc.Types))
	for _, t := range doc.Types {
		first, dup := types[t.Name]
		if !dup {
			types[t.Name] = t.Owner
			continue
		}
		l.Addf(diag.KindValidation, file, t.Owner, t.Name, "type %s is contributed by both %s and %s", t.Name, first, t.Owner)
	}
}

// checkAuthorization re-parses the document text so that the check covers
// what will be written, not what the fragments claimed
func checkAuthorization(file string, doc *graphql.Document, l *diag.List) {
	parsed, report := astparser.ParseGraphqlDocumentBytes(doc.Content)
	if report.HasErrors() {
		l.Addf(diag.KindEmission, file, "", "", "failed to parse composed document: %v", report)
		return
	}

	owners := make(map[string]string, len(doc.Fields))
	for _, f := range doc.Fields {
		owners[string(f.Root)+"."+f.Name] = f.Owner
	}

	for i := range parsed.RootNodes {
		node := parsed.RootNodes[i]
		var def ast.ObjectTypeDefinition
		switch node.Kind {
		case ast.NodeKindObjectTypeDefinition:
			def = parsed.ObjectTypeDefinitions[node.Ref]
		case ast.NodeKindObjectTypeExtension:
			def = parsed.ObjectTypeExtensions[node.Ref].ObjectTypeDefinition
		default:
			continue
		}

		root := parsed.Input.ByteSliceString(def.Name)
		if root != string(graphql.RootQuery) && root != string(graphql.RootMutation) {
			continue
		}
		for _, fieldRef := range def.FieldsDefinition.Refs {
			fieldDef := parsed.FieldDefinitions[fieldRef]
			name := parsed.Input.ByteSliceString(fieldDef.Name)
			if len(authGroups(&parsed, fieldDef.Directives)) > 0 {
				continue
			}
			key := root + "." + name
			owner := owners[key]
			l.Add(diag.Diagnostic{
				Kind:    diag.KindAuthorization,
				File:    file,
				Entity:  owner,
				Field:   key,
				Message: fmt.Sprintf("field has no @%s(%s: [...]) groups", AuthDirective, AuthArgument),
				Cause:   &diag.AuthorizationCoverageError{File: file, Entity: owner, Operation: name},
			})
		}
	}
}

// authGroups returns the non-empty groups listed by the auth directive
func authGroups(doc *ast.Document, directives ast.DirectiveList) []string {
	var groups []string
	for _, ref := range directives.Refs {
		directive := doc.Directives[ref]
		if doc.Input.ByteSliceString(directive.Name) != AuthDirective {
			continue
		}
		for _, argRef := range directive.Arguments.Refs {
			if doc.Input.ByteSliceString(doc.Arguments[argRef].Name) != AuthArgument {
				continue
			}
			for _, g := range parseValues(doc, doc.ArgumentValue(argRef)) {
				if g != "" {
					groups = append(groups, g)
				}
			}
		}
	}
	return groups
}

func parseValues(doc *ast.Document, value ast.Value) []string {
	switch value.Kind {
	case ast.ValueKindString:
		return []string{doc.StringValueContentString(value.Ref)}
	case ast.ValueKindList:
		var out []string
		for _, ref := range doc.ListValues[value.Ref].Refs {
			out = append(out, parseValues(doc, doc.Values[ref])...)
		}
		return out
	}
	return nil
}

func checkSchema(file string, doc *graphql.Document, l *diag.List) {
	_, err := gqlparser.LoadSchema(
		&gqlast.Source{Name: "appsync.graphql", Input: prelude, BuiltIn: true},
		&gqlast.Source{Name: file, Input: string(doc.Content)},
	)
	if err != nil {
		l.Addf(diag.KindEmission, file, "", "", "composed document is not a valid schema: %v", err)
	}
}

package graphql

import "sort"

// Root names a GraphQL root operation type
type Root string

const (
	RootQuery    Root = "Query"
	RootMutation Root = "Mutation"
)

// Block is one rendered type or input definition
type Block struct {
	Name string
	Text string
}

// Field is one rendered root field
type Field struct {
	Root Root
	Name string
	// Owner is the entity that declared the operation or query
	Owner string
	// Source is the operation or custom query name
	Source string
	Groups []string
	Text   string
}

// Fragment is the part of a schema document contributed by one entity
type Fragment struct {
	Entity string
	Types  []Block
	// Inputs lists the declared input types referenced by the entity's fields
	Inputs []string
	Fields []Field
}

// Origin records which entity contributed a name to a composed document
type Origin struct {
	Root  Root
	Name  string
	Owner string
}

// Document is a composed per-target schema with the origin of every name in it
type Document struct {
	Target  string
	Content []byte
	Fields  []Origin
	// Types lists every defined type name with its contributing entity
	Types []Origin
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

package codegen

import (
	"path/filepath"

	"github.com/okra-platform/schemagen/internal/config"
	"github.com/okra-platform/schemagen/internal/query"
	"github.com/okra-platform/schemagen/internal/resolve"
	"github.com/okra-platform/schemagen/internal/targets"
)

// Header marks every generated file that has a comment syntax
const Header = "Code generated by schemagen. DO NOT EDIT."

// Kind identifies an artifact family; it doubles as the --only filter value
type Kind string

const (
	KindModelPython Kind = "model-python"
	KindModelTS     Kind = "model-ts"
	KindSchemaDoc   Kind = "schema-doc"
	KindTable       Kind = "table-definition"
	KindContract    Kind = "resolver-contract"
)

// Kinds lists every artifact kind in a stable order
var Kinds = []Kind{KindModelPython, KindModelTS, KindSchemaDoc, KindTable, KindContract}

// ParseKind validates a --only value
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Build is the finalized, read-only input shared by every generator
type Build struct {
	Resolved *resolve.Resolved
	Catalog  *query.Catalog
	Registry *targets.Registry
	Config   *config.Config
}

// Targeted returns the resolved entities that opt into target, in emission order
func (b *Build) Targeted(target string) []*resolve.Entity {
	var out []*resolve.Entity
	for _, e := range b.Resolved.Ordered() {
		if e.HasTarget(target) {
			out = append(out, e)
		}
	}
	return out
}

// Artifact is one rendered output file, or a fragment awaiting composition
type Artifact struct {
	Kind   Kind
	Target string
	// Owner is the entity or query the artifact was rendered for
	Owner string
	// Dir is the absolute base directory and Path the slash-separated file path under it
	Dir     string
	Path    string
	Content []byte

	// Part carries a generator-specific fragment consumed by Compose; fragments are never written
	Part any
}

// FullPath returns the absolute file path
func (a Artifact) FullPath() string {
	return filepath.Join(a.Dir, filepath.FromSlash(a.Path))
}

// Task is one independent unit of rendering work. Tasks only read the Build.
type Task struct {
	Kind   Kind
	Target string
	Owner  string
	Render func() ([]Artifact, error)
}

// Generator is implemented by every output kind
type Generator interface {
	// Kind returns the artifact kind the generator produces
	Kind() Kind

	// Tasks splits the work for one build into independent render calls
	Tasks(b *Build) []Task
}

// Composer is implemented by generators whose tasks return fragments that are
// assembled per target once every task for that target has finished
type Composer interface {
	Compose(b *Build, target targets.Target, parts []Artifact) (Artifact, error)
}

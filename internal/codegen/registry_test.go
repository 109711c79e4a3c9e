package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okra-platform/schemagen/internal/codegen/templates"
)

// mockGenerator is a test generator
type mockGenerator struct {
	kind Kind
}

func (m *mockGenerator) Kind() Kind {
	return m.kind
}

func (m *mockGenerator) Tasks(b *Build) []Task {
	return nil
}

func TestRegistry_NewRegistry(t *testing.T) {
	// Test: New registry is empty by default
	r := NewRegistry()
	assert.NotNil(t, r)
	assert.Empty(t, r.Kinds())
}

func TestRegistry_Register(t *testing.T) {
	// Test: A registered factory receives the template set
	r := NewRegistry()
	var got *templates.Set
	r.Register(KindSchemaDoc, func(tmpl *templates.Set) Generator {
		got = tmpl
		return &mockGenerator{kind: KindSchemaDoc}
	})

	set := templates.MustLoad()
	gen, err := r.Get(KindSchemaDoc, set)
	require.NoError(t, err)
	assert.Equal(t, KindSchemaDoc, gen.Kind())
	assert.Same(t, set, got)
}

func TestRegistry_UnsupportedKind(t *testing.T) {
	// Test: Error for an unregistered kind
	r := NewRegistry()

	gen, err := r.Get("unknown", nil)
	assert.Error(t, err)
	assert.Nil(t, gen)
	assert.Contains(t, err.Error(), "unsupported artifact kind: unknown")
}

func TestRegistry_Kinds(t *testing.T) {
	// Test: Registered kinds are listed sorted
	r := NewRegistry()
	for _, k := range []Kind{KindTable, KindModelPython, KindContract} {
		kind := k
		r.Register(kind, func(*templates.Set) Generator { return &mockGenerator{kind: kind} })
	}
	assert.Equal(t, []Kind{KindModelPython, KindContract, KindTable}, r.Kinds())
}

func TestParseKind(t *testing.T) {
	// Test: Only known artifact kinds are accepted as filters
	k, ok := ParseKind("table-definition")
	assert.True(t, ok)
	assert.Equal(t, KindTable, k)

	_, ok = ParseKind("go")
	assert.False(t, ok)
}

package writer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_BasicWriting(t *testing.T) {
	// Test: Basic write operations
	w := NewWriter("  ", "#")

	w.Write("hello")
	w.Write(" world")

	assert.Equal(t, "hello world", w.String())
}

func TestWriter_Indentation(t *testing.T) {
	// Test: Proper indentation handling
	w := NewWriter("  ", "#")

	w.WriteLine("type Query {")
	w.Indent()
	w.WriteLine("getUser(id: ID!): Users")
	w.Dedent()
	w.WriteLine("}")

	assert.Equal(t, "type Query {\n  getUser(id: ID!): Users\n}\n", w.String())
}

func TestWriter_BlankLine(t *testing.T) {
	// Test: BlankLine prevents multiple blank lines
	w := NewWriter("\t", "#")

	w.BlankLine() // nothing written yet
	w.WriteLine("line1")
	w.BlankLine()
	w.WriteLine("line2")
	w.BlankLine()
	w.BlankLine()
	w.WriteLine("line3")

	lines := strings.Split(w.String(), "\n")
	require.Len(t, lines, 6) // line1, blank, line2, blank, line3, empty
	assert.Equal(t, "line1", lines[0])
	assert.Equal(t, "", lines[1])
	assert.Equal(t, "line2", lines[2])
	assert.Equal(t, "", lines[3])
	assert.Equal(t, "line3", lines[4])
}

func TestWriter_WriteBlock(t *testing.T) {
	// Test: WriteBlock indents its content
	w := NewWriter("  ", "#")

	w.WriteBlock("type Mutation {", "}", func() {
		w.WriteLine("createUser(input: CreateUserInput!): Users")
	})

	assert.Equal(t, "type Mutation {\n  createUser(input: CreateUserInput!): Users\n}\n", w.String())
}

func TestWriter_WriteText(t *testing.T) {
	// Test: Pre-rendered text is re-indented line by line, blank lines stay bare
	w := NewWriter("  ", "#")

	w.Indent()
	w.WriteText("\"Fetches a user\"\ngetUser(id: ID!): Users\n\nlistUsers: UsersConnection!\n\n")
	w.WriteText("")

	assert.Equal(t, "  \"Fetches a user\"\n  getUser(id: ID!): Users\n\n  listUsers: UsersConnection!\n", w.String())
}

func TestWriter_Comments(t *testing.T) {
	// Test: Comments use the configured marker
	hash := NewWriter("  ", "#")
	hash.WriteComment("Code generated by schemagen. DO NOT EDIT.")
	hash.WriteComment("")
	hash.WriteMultilineComment([]string{"Line 1", "Line 2"})
	assert.Equal(t, "# Code generated by schemagen. DO NOT EDIT.\n#\n# Line 1\n# Line 2\n", hash.String())

	slash := NewWriter("  ", "//")
	slash.WriteDocComment("Spans\n  multiple lines\n")
	assert.Equal(t, "// Spans\n// multiple lines\n", slash.String())
}

func TestWriter_DocCommentEmpty(t *testing.T) {
	// Test: Empty doc comment produces no output
	w := NewWriter("  ", "#")

	w.WriteDocComment("")
	w.WriteLine("scalar AWSDate")

	assert.Equal(t, "scalar AWSDate\n", w.String())
}

func TestWriter_Reset(t *testing.T) {
	// Test: Reset clears writer state
	w := NewWriter("\t", "#")

	w.WriteLine("some content")
	w.Indent()
	w.Indent()
	assert.Equal(t, 2, w.IndentLevel())

	w.Reset()

	assert.Equal(t, "", w.String())
	assert.Equal(t, 0, w.IndentLevel())

	w.WriteLinef("new %s", "content")
	assert.Equal(t, []byte("new content\n"), w.Bytes())
}

func TestWriter_IndentDedentBounds(t *testing.T) {
	// Test: Dedent doesn't go below zero
	w := NewWriter("\t", "#")

	w.Dedent()
	assert.Equal(t, 0, w.IndentLevel())

	w.Indent()
	assert.Equal(t, 1, w.IndentLevel())
	w.Dedent()
	assert.Equal(t, 0, w.IndentLevel())
}

package schema

import (
	"fmt"
	"strings"
)

// Primitives are the scalar type names every schema may use
var Primitives = map[string]bool{
	"ID":           true,
	"String":       true,
	"Int":          true,
	"Float":        true,
	"Boolean":      true,
	"AWSDate":      true,
	"AWSTime":      true,
	"AWSDateTime":  true,
	"AWSTimestamp": true,
	"AWSEmail":     true,
	"AWSJSON":      true,
	"AWSURL":       true,
	"AWSPhone":     true,
	"AWSIPAddress": true,
}

// IsPrimitive reports whether name is a built-in scalar
func IsPrimitive(name string) bool {
	return Primitives[name]
}

// KeyScalar returns the DynamoDB key attribute kind ("S" or "N") for a
// primitive, or "" when the type cannot be used in a key
func KeyScalar(name string) string {
	switch name {
	case "Int", "Float", "AWSTimestamp":
		return "N"
	case "ID", "String", "AWSDate", "AWSTime", "AWSDateTime", "AWSEmail", "AWSURL", "AWSPhone", "AWSIPAddress":
		return "S"
	default:
		return ""
	}
}

// TypeRef is a parsed type expression such as `String!` or `[Orgs!]`
type TypeRef struct {
	Name        string
	List        bool
	NonNull     bool
	ElemNonNull bool
}

// ParseTypeRef parses a type expression
func ParseTypeRef(expr string) (TypeRef, error) {
	s := strings.TrimSpace(expr)
	if s == "" {
		return TypeRef{}, fmt.Errorf("empty type expression")
	}

	var t TypeRef
	if strings.HasSuffix(s, "!") {
		t.NonNull = true
		s = strings.TrimSpace(strings.TrimSuffix(s, "!"))
	}

	if strings.HasPrefix(s, "[") {
		if !strings.HasSuffix(s, "]") {
			return TypeRef{}, fmt.Errorf("unterminated list in type %q", expr)
		}
		t.List = true
		s = strings.TrimSpace(s[1 : len(s)-1])
		if strings.HasSuffix(s, "!") {
			t.ElemNonNull = true
			s = strings.TrimSpace(strings.TrimSuffix(s, "!"))
		}
	}

	if !isIdentifier(s) {
		return TypeRef{}, fmt.Errorf("invalid type name in %q", expr)
	}
	t.Name = s
	return t, nil
}

// MustParseTypeRef is ParseTypeRef for literals known to be valid
func MustParseTypeRef(expr string) TypeRef {
	t, err := ParseTypeRef(expr)
	if err != nil {
		panic(err)
	}
	return t
}

// String renders the type in GraphQL notation
func (t TypeRef) String() string {
	if t.Name == "" {
		return ""
	}
	s := t.Name
	if t.List {
		if t.ElemNonNull {
			s += "!"
		}
		s = "[" + s + "]"
	}
	if t.NonNull {
		s += "!"
	}
	return s
}

// IsZero reports whether no type was given
func (t TypeRef) IsZero() bool {
	return t.Name == ""
}

// Required returns a copy marked non-null
func (t TypeRef) Required() TypeRef {
	t.NonNull = true
	return t
}

// Optional returns a copy with the outer non-null marker removed
func (t TypeRef) Optional() TypeRef {
	t.NonNull = false
	return t
}

// IsPrimitive reports whether the named (element) type is a scalar
func (t TypeRef) IsPrimitive() bool {
	return IsPrimitive(t.Name)
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

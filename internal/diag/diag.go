// Package diag holds the structured diagnostics produced by every pipeline stage.
package diag

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies a diagnostic by the stage that produced it
type Kind string

const (
	KindParse         Kind = "parse"
	KindValidation    Kind = "validation"
	KindReference     Kind = "reference"
	KindAuthorization Kind = "authorization"
	KindTargetConfig  Kind = "target-config"
	KindEmission      Kind = "emission"
	KindOutput        Kind = "output"
)

var (
	ErrParse                 = errors.New("parse error")
	ErrValidation            = errors.New("validation error")
	ErrReference             = errors.New("reference resolution error")
	ErrAuthorizationCoverage = errors.New("authorization coverage error")
	ErrTargetConfig          = errors.New("target configuration error")
	ErrEmission              = errors.New("emission error")
	ErrOutput                = errors.New("output error")
)

var sentinels = map[Kind]error{
	KindParse:         ErrParse,
	KindValidation:    ErrValidation,
	KindReference:     ErrReference,
	KindAuthorization: ErrAuthorizationCoverage,
	KindTargetConfig:  ErrTargetConfig,
	KindEmission:      ErrEmission,
	KindOutput:        ErrOutput,
}

// Diagnostic is a single file/field scoped problem
type Diagnostic struct {
	Kind    Kind   `json:"kind"`
	File    string `json:"file,omitempty"`
	Entity  string `json:"entity,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

// Error renders the diagnostic as "file: entity.field: [kind] message"
func (d Diagnostic) Error() string {
	var b strings.Builder
	if d.File != "" {
		b.WriteString(d.File)
		b.WriteString(": ")
	}
	scope := d.Entity
	if d.Field != "" {
		if scope != "" {
			scope += "."
		}
		scope += d.Field
	}
	if scope != "" {
		b.WriteString(scope)
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, "[%s] %s", d.Kind, d.Message)
	return b.String()
}

// List collects diagnostics across files so a single run reports everything it can
type List struct {
	items []Diagnostic
}

// Add appends a diagnostic
func (l *List) Add(d Diagnostic) {
	l.items = append(l.items, d)
}

// Addf appends a diagnostic with a formatted message
func (l *List) Addf(kind Kind, file, entity, field, format string, args ...any) {
	l.Add(Diagnostic{
		Kind:    kind,
		File:    file,
		Entity:  entity,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	})
}

// Merge appends every diagnostic carried by err. Errors that are not
// diagnostics are recorded under the fallback kind.
func (l *List) Merge(fallback Kind, err error) {
	if err == nil {
		return
	}
	var de *Error
	if errors.As(err, &de) {
		l.items = append(l.items, de.Diagnostics...)
		return
	}
	l.Add(Diagnostic{Kind: fallback, Message: err.Error(), Cause: err})
}

// Len returns the number of collected diagnostics
func (l *List) Len() int {
	return len(l.items)
}

// Err returns nil when nothing was collected, otherwise an *Error with the
// diagnostics in a stable order
func (l *List) Err() error {
	if len(l.items) == 0 {
		return nil
	}
	items := make([]Diagnostic, len(l.items))
	copy(items, l.items)
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Entity != b.Entity {
			return a.Entity < b.Entity
		}
		return a.Field < b.Field
	})
	return &Error{Diagnostics: items}
}

// Error is a batch of diagnostics returned by a failed stage
type Error struct {
	Diagnostics []Diagnostic
}

func (e *Error) Error() string {
	if len(e.Diagnostics) == 1 {
		return e.Diagnostics[0].Error()
	}
	lines := make([]string, 0, len(e.Diagnostics)+1)
	lines = append(lines, fmt.Sprintf("%d problems found:", len(e.Diagnostics)))
	for _, d := range e.Diagnostics {
		lines = append(lines, "  "+d.Error())
	}
	return strings.Join(lines, "\n")
}

// Is matches the sentinel of any contained diagnostic kind
func (e *Error) Is(target error) bool {
	for _, d := range e.Diagnostics {
		if sentinels[d.Kind] == target {
			return true
		}
	}
	return false
}

// Unwrap exposes typed causes to errors.As
func (e *Error) Unwrap() []error {
	var causes []error
	for _, d := range e.Diagnostics {
		if d.Cause != nil {
			causes = append(causes, d.Cause)
		}
	}
	return causes
}

// Kinds returns the distinct kinds in the batch, sorted
func (e *Error) Kinds() []Kind {
	seen := make(map[Kind]bool)
	var kinds []Kind
	for _, d := range e.Diagnostics {
		if !seen[d.Kind] {
			seen[d.Kind] = true
			kinds = append(kinds, d.Kind)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// New returns an *Error holding a single diagnostic
func New(kind Kind, file, entity, field, format string, args ...any) error {
	var l List
	l.Addf(kind, file, entity, field, format, args...)
	return l.Err()
}

// AuthorizationCoverageError reports an operation that declares no caller groups
type AuthorizationCoverageError struct {
	File      string
	Entity    string
	Operation string
}

func (e *AuthorizationCoverageError) Error() string {
	return fmt.Sprintf("operation %q on entity %q has no authorization groups", e.Operation, e.Entity)
}

// Is matches ErrAuthorizationCoverage
func (e *AuthorizationCoverageError) Is(target error) bool {
	return target == ErrAuthorizationCoverage
}

// Diagnostic converts the error into its diagnostic form
func (e *AuthorizationCoverageError) Diagnostic() Diagnostic {
	return Diagnostic{
		Kind:    KindAuthorization,
		File:    e.File,
		Entity:  e.Entity,
		Field:   e.Operation,
		Message: "operation declares no authorization groups",
		Cause:   e,
	}
}

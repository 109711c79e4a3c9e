// Package templates holds the text templates every emitter renders through.
// Built-in templates are embedded; a directory may override them file by file.
package templates

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/okra-platform/schemagen/internal/diag"
)

//go:embed *.tmpl
var builtin embed.FS

// Template names
const (
	PythonModel     = "python_model.py.tmpl"
	PythonInit      = "python_init.py.tmpl"
	TypeScriptModel = "typescript_model.ts.tmpl"
	TypeScriptIndex = "typescript_index.ts.tmpl"
	GraphQLType     = "graphql_type.graphql.tmpl"
	GraphQLField    = "graphql_field.graphql.tmpl"
)

// Set is an immutable collection of parsed templates
type Set struct {
	templates  map[string]*template.Template
	overridden []string
}

// Funcs are available to every template
var Funcs = template.FuncMap{
	"join":  strings.Join,
	"quote": strconv.Quote,
	"lower": strings.ToLower,
}

// Load parses the built-in templates, replacing any that have a same-named
// file in overrideDir. An empty overrideDir uses the built-ins only.
func Load(overrideDir string) (*Set, error) {
	entries, err := fs.ReadDir(builtin, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to list builtin templates: %w", err)
	}

	s := &Set{templates: make(map[string]*template.Template, len(entries))}
	var l diag.List
	for _, entry := range entries {
		name := entry.Name()
		source := "builtin:" + name
		data, err := builtin.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read builtin template %s: %w", name, err)
		}

		if overrideDir != "" {
			path := filepath.Join(overrideDir, name)
			override, err := os.ReadFile(path)
			switch {
			case err == nil:
				data = override
				source = path
				s.overridden = append(s.overridden, name)
			case !errors.Is(err, fs.ErrNotExist):
				l.Addf(diag.KindEmission, path, "", "", "failed to read template override: %v", err)
				continue
			}
		}

		t, err := template.New(name).Funcs(Funcs).Option("missingkey=error").Parse(string(data))
		if err != nil {
			l.Addf(diag.KindEmission, source, "", "", "failed to parse template: %v", err)
			continue
		}
		s.templates[name] = t
	}

	if err := l.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

// MustLoad returns the built-in set
func MustLoad() *Set {
	s, err := Load("")
	if err != nil {
		panic(err)
	}
	return s
}

// Execute renders the named template
func (s *Set) Execute(name string, data any) ([]byte, error) {
	t, ok := s.templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// Names returns every template name, sorted
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Overridden returns the names replaced from the override directory
func (s *Set) Overridden() []string {
	return append([]string(nil), s.overridden...)
}

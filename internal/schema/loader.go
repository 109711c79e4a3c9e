package schema

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/okra-platform/schemagen/internal/diag"
)

// Load parses every entity file under root into an IR. Diagnostics from all
// files are batched; the IR is only returned when nothing was reported.
func Load(root string) (*IR, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("schema root %s is not a directory", root)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if IsSchemaFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk schema root: %w", err)
	}

	var l diag.List
	var entities []*Entity
	for _, path := range files {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		data, err := os.ReadFile(path)
		if err != nil {
			l.Addf(diag.KindParse, rel, "", "", "failed to read file: %v", err)
			continue
		}

		e, err := Parse(rel, data)
		l.Merge(diag.KindParse, err)
		if e != nil {
			entities = append(entities, e)
		}
	}

	return Build(entities, &l)
}

// Build runs the cross-file checks over already parsed entities and returns
// the IR, or every diagnostic collected so far plus the new ones
func Build(entities []*Entity, l *diag.List) (*IR, error) {
	if l == nil {
		l = &diag.List{}
	}

	owners := make(map[string]*Entity)
	inputOwners := make(map[string]*Entity)
	for _, e := range entities {
		if e.Name != "" {
			if first, dup := owners[e.Name]; dup {
				l.Addf(diag.KindValidation, e.File, e.Name, "name", "duplicate entity name %q (first declared in %s)", e.Name, first.File)
			} else {
				owners[e.Name] = e
			}
		}
		for _, it := range e.InputTypes {
			if it.Name == "" {
				continue
			}
			if IsPrimitive(it.Name) {
				l.Addf(diag.KindValidation, e.File, e.Name, "inputTypes."+it.Name, "input type %q shadows a built-in scalar", it.Name)
			}
			if first, dup := inputOwners[it.Name]; dup && first != e {
				l.Addf(diag.KindValidation, e.File, e.Name, "inputTypes."+it.Name, "duplicate input type name %q (first declared in %s)", it.Name, first.File)
			} else if !dup {
				inputOwners[it.Name] = e
			}
		}
		if IsPrimitive(e.Name) {
			l.Addf(diag.KindValidation, e.File, e.Name, "name", "entity name %q shadows a built-in scalar", e.Name)
		}
	}
	for name, e := range inputOwners {
		if _, clash := owners[name]; clash {
			l.Addf(diag.KindValidation, e.File, e.Name, "inputTypes."+name, "input type %q collides with an entity name", name)
		}
	}

	ir := NewIR(entities)
	validateTypes(ir, l)

	if err := l.Err(); err != nil {
		return nil, err
	}
	return ir, nil
}

// IsSchemaFile reports whether path looks like an entity source file
func IsSchemaFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

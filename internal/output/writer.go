// Package output writes rendered artifacts to disk. Files are only touched
// when their content changes, and generated files edited by hand are never
// overwritten without --force.
package output

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/okra-platform/schemagen/internal/codegen"
	"github.com/okra-platform/schemagen/internal/diag"
)

// Options control how artifacts are written
type Options struct {
	// Force overwrites generated files that were edited by hand
	Force bool
	// Check compares without writing anything
	Check bool
}

// Result summarizes a write
type Result struct {
	// Written lists the files created or updated
	Written []string
	// Unchanged lists files whose content already matched
	Unchanged []string
	// Drifted lists, in check mode, the files that would be written
	Drifted []string
	// ManifestWritten reports whether the manifest file changed
	ManifestWritten bool
}

// Changed reports whether anything was or would be written
func (r *Result) Changed() bool {
	return len(r.Written) > 0 || len(r.Drifted) > 0
}

// Writer compares artifacts against disk and writes the differences
type Writer struct {
	logger   zerolog.Logger
	manifest *Manifest
	opts     Options
}

// NewWriter creates a writer that records hashes in manifest
func NewWriter(logger zerolog.Logger, manifest *Manifest, opts Options) *Writer {
	return &Writer{
		logger:   logger.With().Str("component", "writer").Logger(),
		manifest: manifest,
		opts:     opts,
	}
}

type planned struct {
	artifact codegen.Artifact
	path     string
	write    bool
}

// Write plans every artifact first and only writes once nothing in the plan
// conflicts. An I/O error partway through leaves earlier files in place.
func (w *Writer) Write(artifacts []codegen.Artifact) (*Result, error) {
	plan, err := w.plan(artifacts)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, p := range plan {
		switch {
		case !p.write:
			res.Unchanged = append(res.Unchanged, p.path)
		case w.opts.Check:
			res.Drifted = append(res.Drifted, p.path)
		}
	}
	if w.opts.Check {
		w.logger.Info().
			Int("drifted", len(res.Drifted)).
			Int("unchanged", len(res.Unchanged)).
			Msg("Checked generated files")
		return res, nil
	}

	for _, p := range plan {
		if p.write {
			if err := writeFile(p.path, p.artifact.Content); err != nil {
				return res, diag.New(diag.KindOutput, p.path, "", "", "%v", err)
			}
			res.Written = append(res.Written, p.path)
			w.logger.Debug().Str("path", p.path).Msg("Wrote file")
		}
		w.manifest.Record(p.path, p.artifact.Content)
	}

	wrote, err := w.manifest.Save()
	if err != nil {
		return res, diag.New(diag.KindOutput, w.manifest.Path(), "", "", "%v", err)
	}
	res.ManifestWritten = wrote

	w.logger.Info().
		Int("written", len(res.Written)).
		Int("unchanged", len(res.Unchanged)).
		Msg("Wrote generated files")
	return res, nil
}

func (w *Writer) plan(artifacts []codegen.Artifact) ([]planned, error) {
	var l diag.List
	seen := make(map[string]codegen.Artifact, len(artifacts))
	plan := make([]planned, 0, len(artifacts))

	for _, a := range artifacts {
		path := a.FullPath()
		if first, dup := seen[path]; dup {
			l.Addf(diag.KindOutput, path, a.Owner, "", "generated by both %s %s and %s %s", first.Kind, first.Owner, a.Kind, a.Owner)
			continue
		}
		seen[path] = a

		existing, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			plan = append(plan, planned{artifact: a, path: path, write: true})
			continue
		case err != nil:
			l.Addf(diag.KindOutput, path, a.Owner, "", "failed to read existing file: %v", err)
			continue
		}

		if bytes.Equal(existing, a.Content) {
			plan = append(plan, planned{artifact: a, path: path})
			continue
		}

		if !w.opts.Force {
			recorded, tracked := w.manifest.Lookup(path)
			switch {
			case !tracked:
				l.Addf(diag.KindOutput, path, a.Owner, "", "file exists but was not generated by schemagen; rerun with --force to overwrite")
				continue
			case recorded != Hash(existing):
				l.Addf(diag.KindOutput, path, a.Owner, "", "file was edited after generation; rerun with --force to overwrite")
				continue
			}
		}
		plan = append(plan, planned{artifact: a, path: path, write: true})
	}

	if err := l.Err(); err != nil {
		return nil, err
	}
	sort.Slice(plan, func(i, j int) bool { return plan[i].path < plan[j].path })
	return plan, nil
}

func writeFile(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

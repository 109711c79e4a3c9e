package output

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ManifestVersion is the manifest format written by this generator
const ManifestVersion = 1

// Manifest maps every generated file to the hash of the bytes last written to it
type Manifest struct {
	Version int `json:"version"`
	// Files is keyed by slash-separated path relative to the manifest directory
	Files map[string]string `json:"files"`

	path string
	raw  []byte
}

// Hash returns the manifest digest for content
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// LoadManifest reads the manifest at path; a missing file yields an empty manifest
func LoadManifest(path string) (*Manifest, error) {
	m := &Manifest{Version: ManifestVersion, Files: map[string]string{}, path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if m.Version != ManifestVersion {
		return nil, fmt.Errorf("unsupported manifest version %d in %s", m.Version, path)
	}
	if m.Files == nil {
		m.Files = map[string]string{}
	}
	m.raw = data
	return m, nil
}

// Path returns the manifest file location
func (m *Manifest) Path() string {
	return m.path
}

// Key converts an absolute file path into its manifest key
func (m *Manifest) Key(path string) string {
	rel, err := filepath.Rel(filepath.Dir(m.path), path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// Lookup returns the recorded hash for an absolute file path
func (m *Manifest) Lookup(path string) (string, bool) {
	h, ok := m.Files[m.Key(path)]
	return h, ok
}

// Record stores the hash of the content generated for an absolute file path
func (m *Manifest) Record(path string, content []byte) {
	m.Files[m.Key(path)] = Hash(content)
}

// Encode renders the manifest deterministically
func (m *Manifest) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Save writes the manifest when its encoding changed and reports whether it wrote
func (m *Manifest) Save() (bool, error) {
	data, err := m.Encode()
	if err != nil {
		return false, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if bytes.Equal(data, m.raw) {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return false, fmt.Errorf("failed to create manifest directory: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0644); err != nil {
		return false, fmt.Errorf("failed to write manifest: %w", err)
	}
	m.raw = data
	return true, nil
}

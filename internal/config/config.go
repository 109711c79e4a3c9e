package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/okra-platform/schemagen/internal/diag"
)

// FileName is the generator configuration file searched for by Load
const FileName = "schemagen.yaml"

// SupportedVersion is the only configuration format version this generator understands
const SupportedVersion = "1"

// Config represents the schemagen.yaml configuration file
type Config struct {
	Version        string                             `yaml:"version" validate:"required"`
	SchemaRoot     string                             `yaml:"schemaRoot" validate:"required"`
	Templates      string                             `yaml:"templates,omitempty"`
	Manifest       string                             `yaml:"manifest" validate:"required"`
	Workers        int                                `yaml:"workers,omitempty" validate:"gte=0"`
	Infrastructure InfrastructureConfig               `yaml:"infrastructure"`
	Targets        map[string]map[string]TargetConfig `yaml:"targets" validate:"required,dive,dive"`

	// Dir is the directory holding the configuration file; relative paths resolve against it
	Dir string `yaml:"-"`
	// Path is the configuration file that was loaded
	Path string `yaml:"-"`
}

// InfrastructureConfig configures the shared storage artifacts
type InfrastructureConfig struct {
	Tables      string `yaml:"tables" validate:"required"`
	Resolvers   string `yaml:"resolvers" validate:"required"`
	TablePrefix string `yaml:"tablePrefix,omitempty"`
	BillingMode string `yaml:"billingMode" validate:"oneof=PAY_PER_REQUEST PROVISIONED"`
}

// TargetConfig is one named output destination
type TargetConfig struct {
	Output string `yaml:"output" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load loads schemagen.yaml from the current directory or a parent directory
func Load() (*Config, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	return loadFromDir(dir)
}

// LoadFromPath loads the configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	cfg, err := Parse(data, abs)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes and validates configuration bytes. path is used for
// diagnostics and to anchor relative paths.
func Parse(data []byte, path string) (*Config, error) {
	// The version is checked before the rest of the document is interpreted,
	// so an unsupported format never gets a best-effort decode.
	var header struct {
		Version string `yaml:"version"`
	}
	if err := yaml.Unmarshal(data, &header); err != nil {
		return nil, diag.New(diag.KindTargetConfig, path, "", "", "failed to parse config file: %v", err)
	}
	version := strings.TrimSpace(header.Version)
	if version == "" {
		return nil, diag.New(diag.KindTargetConfig, path, "", "version", "config version is required (supported: %q)", SupportedVersion)
	}
	if version != SupportedVersion {
		return nil, diag.New(diag.KindTargetConfig, path, "", "version", "unsupported config version %q (supported: %q)", version, SupportedVersion)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, diag.New(diag.KindTargetConfig, path, "", "", "failed to parse config file: %v", err)
	}

	cfg.Path = path
	cfg.Dir = filepath.Dir(path)
	applyDefaults(&cfg)

	if err := validate.Struct(&cfg); err != nil {
		return nil, validationDiagnostics(path, err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.SchemaRoot == "" {
		cfg.SchemaRoot = "./schema"
	}
	if cfg.Manifest == "" {
		cfg.Manifest = ".schemagen-manifest.json"
	}
	if cfg.Infrastructure.Tables == "" {
		cfg.Infrastructure.Tables = "./infra/tables"
	}
	if cfg.Infrastructure.Resolvers == "" {
		cfg.Infrastructure.Resolvers = "./infra/resolvers"
	}
	if cfg.Infrastructure.BillingMode == "" {
		cfg.Infrastructure.BillingMode = "PAY_PER_REQUEST"
	}
}

func validationDiagnostics(path string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return diag.New(diag.KindTargetConfig, path, "", "", "invalid config: %v", err)
	}

	var l diag.List
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		switch fe.Tag() {
		case "required":
			l.Addf(diag.KindTargetConfig, path, "", field, "is required")
		case "oneof":
			l.Addf(diag.KindTargetConfig, path, "", field, "must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
		default:
			l.Addf(diag.KindTargetConfig, path, "", field, "failed %q validation", fe.Tag())
		}
	}
	return l.Err()
}

// Resolve anchors a configured path at the configuration directory
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// SchemaDir returns the absolute schema root
func (c *Config) SchemaDir() string {
	return c.Resolve(c.SchemaRoot)
}

// TemplateDir returns the template override directory, or "" if none is configured
func (c *Config) TemplateDir() string {
	return c.Resolve(c.Templates)
}

// ManifestPath returns the absolute manifest path
func (c *Config) ManifestPath() string {
	return c.Resolve(c.Manifest)
}

// loadFromDir searches for schemagen.yaml in the given directory and its parents
func loadFromDir(startDir string) (*Config, error) {
	dir := startDir
	for {
		configPath := filepath.Join(dir, FileName)
		if _, err := os.Stat(configPath); err == nil {
			return LoadFromPath(configPath)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root directory
			break
		}
		dir = parent
	}

	return nil, fmt.Errorf("no %s found in %s or any parent directory", FileName, startDir)
}

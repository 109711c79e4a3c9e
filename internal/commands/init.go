package commands

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/go-openapi/inflect"

	"github.com/okra-platform/schemagen/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

// Model language choices offered by init
const (
	ModelsBoth       = "both"
	ModelsPython     = "python"
	ModelsTypeScript = "typescript"
)

var entityName = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*$`)

type InitOptions struct {
	Dir    string
	Entity string
	Models string
}

type FileSystem interface {
	Stat(name string) (os.FileInfo, error)
	MkdirAll(path string, perm os.FileMode) error
	WriteFile(name string, data []byte, perm os.FileMode) error
}

type osFileSystem struct{}

func (fs *osFileSystem) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

func (fs *osFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (fs *osFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

type InitCommand struct {
	filesystem  FileSystem
	templatesFS fs.FS
	output      Output
	// For testing: if set, skip prompting
	testOptions *InitOptions
}

func NewInitCommand() *InitCommand {
	return &InitCommand{
		filesystem:  &osFileSystem{},
		templatesFS: templatesFS,
		output:      &defaultOutput{},
	}
}

func (c *Controller) Init(ctx context.Context) error {
	cmd := NewInitCommand()
	return cmd.Run(ctx)
}

func (ic *InitCommand) Run(ctx context.Context) error {
	return ic.RunWithOptions(ctx)
}

func (ic *InitCommand) RunWithOptions(ctx context.Context, opts ...tea.ProgramOption) error {
	var options *InitOptions
	var err error

	// For testing: use provided options instead of prompting
	if ic.testOptions != nil {
		options = ic.testOptions
	} else {
		options, err = ic.promptInitOptions(opts...)
		if err != nil {
			return fmt.Errorf("failed to get init options: %w", err)
		}
	}

	if err := validateEntityName(options.Entity); err != nil {
		return err
	}
	dir := options.Dir
	if dir == "" {
		dir = "."
	}

	configPath := filepath.Join(dir, config.FileName)
	if _, err := ic.filesystem.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists", configPath)
	}

	data := scaffoldData(options)
	files := []struct {
		template string
		path     string
	}{
		{template: "schemagen.yaml.tmpl", path: configPath},
		{template: "entity.yaml.tmpl", path: filepath.Join(dir, "schema", inflect.Underscore(options.Entity)+".yaml")},
	}

	for _, f := range files {
		content, err := ic.render(f.template, data)
		if err != nil {
			return fmt.Errorf("failed to render %s: %w", f.template, err)
		}
		if err := ic.filesystem.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		if err := ic.filesystem.WriteFile(f.path, content, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.path, err)
		}
		ic.output.Printf("  created %s\n", f.path)
	}

	ic.output.Printf("✅ Created schemagen project in %s; run `schemagen generate` next\n", dir)
	return nil
}

type scaffold struct {
	Entity     string
	Key        string
	Python     bool
	TypeScript bool
	Targets    []string
}

func scaffoldData(options *InitOptions) scaffold {
	singular := inflect.Singularize(options.Entity)
	s := scaffold{
		Entity:     options.Entity,
		Key:        strings.ToLower(singular[:1]) + singular[1:] + "Id",
		Python:     options.Models != ModelsTypeScript,
		TypeScript: options.Models != ModelsPython,
	}
	if s.Python {
		s.Targets = append(s.Targets, "model-py")
	}
	if s.TypeScript {
		s.Targets = append(s.Targets, "model-ts")
	}
	s.Targets = append(s.Targets, "schema-main")
	return s
}

func (ic *InitCommand) render(name string, data scaffold) ([]byte, error) {
	src, err := fs.ReadFile(ic.templatesFS, "templates/"+name)
	if err != nil {
		return nil, err
	}
	t, err := template.New(name).Funcs(template.FuncMap{"join": strings.Join}).Parse(string(src))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func validateEntityName(s string) error {
	if s == "" {
		return errors.New("entity name cannot be empty")
	}
	if !entityName.MatchString(s) {
		return fmt.Errorf("entity name %q must start with an upper-case letter and contain only letters and digits", s)
	}
	return nil
}

func (ic *InitCommand) promptInitOptions(opts ...tea.ProgramOption) (*InitOptions, error) {
	options := &InitOptions{Dir: ".", Entity: "Widgets", Models: ModelsBoth}

	form := ic.createInitForm(options)

	if len(opts) > 0 {
		// For testing: run with provided options
		program := tea.NewProgram(form, opts...)
		if _, err := program.Run(); err != nil {
			return nil, err
		}
	} else {
		if err := form.Run(); err != nil {
			return nil, err
		}
	}

	return options, nil
}

func (ic *InitCommand) createInitForm(options *InitOptions) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Project directory").
				Description("Where schemagen.yaml is created").
				Value(&options.Dir).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("directory cannot be empty")
					}
					if _, err := ic.filesystem.Stat(filepath.Join(s, config.FileName)); err == nil {
						return fmt.Errorf("%s already contains %s", s, config.FileName)
					}
					return nil
				}),

			huh.NewInput().
				Title("First entity").
				Description("Plural entity name, e.g. Widgets").
				Value(&options.Entity).
				Validate(validateEntityName),

			huh.NewSelect[string]().
				Title("Model languages").
				Description("Typed models to generate").
				Options(
					huh.NewOption("Python and TypeScript", ModelsBoth),
					huh.NewOption("Python", ModelsPython),
					huh.NewOption("TypeScript", ModelsTypeScript),
				).
				Value(&options.Models),
		),
	)
}

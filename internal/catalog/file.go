package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/phase"
)

// DefinitionsFile is the conventional name of the phase definition catalog
// inside a catalog directory.
const DefinitionsFile = "phases.toml"

// TemplatesDir holds one timeline template per file (.toml, .yaml or .yml).
const TemplatesDir = "templates"

// definitionsDoc is the on-disk shape of phases.toml.
type definitionsDoc struct {
	Phases []phase.Definition `toml:"phases"`
}

// templateDoc is the on-disk shape of a template file. Active defaults to
// true when omitted.
type templateDoc struct {
	ID          string                `toml:"id" yaml:"id"`
	Name        string                `toml:"name" yaml:"name"`
	Description string                `toml:"description" yaml:"description"`
	Active      *bool                 `toml:"active" yaml:"active"`
	Phases      []phase.TemplateEntry `toml:"phases" yaml:"phases"`
}

func (d templateDoc) template() phase.Template {
	active := true
	if d.Active != nil {
		active = *d.Active
	}
	return phase.Template{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		IsActive:    active,
		Entries:     d.Phases,
	}
}

// FileSource reads definitions and templates from a catalog directory:
//
//	<dir>/phases.toml
//	<dir>/templates/<name>.toml|.yaml|.yml
//
// Files are re-read on every call; pair it with a Cache.
type FileSource struct {
	Dir string
}

// ListDefinitions parses phases.toml. A missing file yields an empty catalog.
func (f FileSource) ListDefinitions(_ context.Context) ([]phase.Definition, error) {
	path := filepath.Join(f.Dir, DefinitionsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", DefinitionsFile, err)
	}

	var doc definitionsDoc
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", DefinitionsFile, err)
	}
	for i, d := range doc.Phases {
		if d.ID == "" || d.Name == "" {
			return nil, fmt.Errorf("parsing %s: phase #%d: id and name are required", DefinitionsFile, i+1)
		}
	}
	return doc.Phases, nil
}

// Templates parses every template file, sorted by file name.
func (f FileSource) Templates(_ context.Context) ([]phase.Template, error) {
	dir := filepath.Join(f.Dir, TemplatesDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading templates directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !IsCatalogFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	templates := make([]phase.Template, 0, len(names))
	for _, name := range names {
		t, err := ParseTemplateFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		templates = append(templates, t)
	}
	return templates, nil
}

// Template returns the template with the given id.
func (f FileSource) Template(ctx context.Context, id string) (phase.Template, error) {
	all, err := f.Templates(ctx)
	if err != nil {
		return phase.Template{}, err
	}
	for _, t := range all {
		if t.ID == id {
			return t, nil
		}
	}
	return phase.Template{}, phase.BadRequest(phase.ErrInvalidTemplateID, id)
}

// IsCatalogFile reports whether name has a catalog file extension.
func IsCatalogFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".toml", ".yaml", ".yml":
		return true
	}
	return false
}

// ParseTemplateFile reads one timeline template file. The format follows the
// file extension.
func ParseTemplateFile(path string) (phase.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return phase.Template{}, err
	}

	var doc templateDoc
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &doc)
	default:
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return phase.Template{}, err
	}
	if doc.ID == "" {
		return phase.Template{}, fmt.Errorf("template id is required")
	}
	for i, e := range doc.Phases {
		if e.PhaseID == "" {
			return phase.Template{}, fmt.Errorf("phase #%d: phase_id is required", i+1)
		}
	}
	return doc.template(), nil
}

// Package templates loads SOP stage templates from YAML files.
package templates

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/straye-as/pipeline-api/internal/domain"
	"gopkg.in/yaml.v3"
)

// ErrTemplateNotFound is returned for an unknown template name
var ErrTemplateNotFound = errors.New("stage template not found")

// StageSpec is one stage of a template with its seeded tasks and notes
type StageSpec struct {
	Name  string   `yaml:"name"`
	Tasks []string `yaml:"tasks"`
	Notes []string `yaml:"notes"`
}

// Template is a named SOP pipeline
type Template struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	AppliesTo   []string    `yaml:"appliesTo"`
	Stages      []StageSpec `yaml:"stages"`
}

// Validate checks the template and its stage names
func (t Template) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("template: name is required")
	}
	if len(t.Stages) == 0 {
		return fmt.Errorf("template %s: %w", t.Name, domain.ErrEmptyPipeline)
	}
	for _, target := range t.AppliesTo {
		if !domain.EntityType(target).IsValid() {
			return fmt.Errorf("template %s: unknown target %q", t.Name, target)
		}
	}
	_, err := domain.NewStagePipeline(t.StageNames())
	if err != nil {
		return fmt.Errorf("template %s: %w", t.Name, err)
	}
	return nil
}

// StageNames returns the trimmed stage names in order
func (t Template) StageNames() []string {
	names := make([]string, len(t.Stages))
	for i, s := range t.Stages {
		names[i] = strings.TrimSpace(s.Name)
	}
	return names
}

// Supports reports whether the template may be applied to the entity type.
// A template without targets applies to both.
func (t Template) Supports(entity domain.EntityType) bool {
	if len(t.AppliesTo) == 0 {
		return true
	}
	for _, target := range t.AppliesTo {
		if domain.EntityType(target) == entity {
			return true
		}
	}
	return false
}

// Pipeline builds a fresh pipeline seeded with the template's tasks and notes
func (t Template) Pipeline() (domain.StagePipeline, error) {
	p, err := domain.NewStagePipeline(t.StageNames())
	if err != nil {
		return domain.StagePipeline{}, err
	}
	for _, s := range t.Stages {
		name := strings.TrimSpace(s.Name)
		for _, task := range s.Tasks {
			if err := p.AddTask(name, task); err != nil {
				return domain.StagePipeline{}, err
			}
		}
		for _, note := range s.Notes {
			if err := p.AddNote(name, note); err != nil {
				return domain.StagePipeline{}, err
			}
		}
	}
	return p, nil
}

// Parse decodes and validates a single template payload
func Parse(data []byte) (Template, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Template{}, fmt.Errorf("template: payload is empty")
	}
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Template{}, fmt.Errorf("template: decode: %w", err)
	}
	t.Name = strings.TrimSpace(t.Name)
	if err := t.Validate(); err != nil {
		return Template{}, err
	}
	return t, nil
}

// Registry holds the loaded templates by name
type Registry struct {
	byName map[string]Template
}

// NewRegistry builds a registry from already parsed templates
func NewRegistry(list ...Template) (*Registry, error) {
	r := &Registry{byName: make(map[string]Template, len(list))}
	for _, t := range list {
		key := strings.ToLower(t.Name)
		if _, dup := r.byName[key]; dup {
			return nil, fmt.Errorf("template %s: defined twice", t.Name)
		}
		r.byName[key] = t
	}
	return r, nil
}

// LoadDir scans a directory for *.yaml templates.
// A missing directory yields an empty registry.
func LoadDir(dir string) (*Registry, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return NewRegistry()
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewRegistry()
		}
		return nil, fmt.Errorf("template: read %s: %w", trimmed, err)
	}

	var list []Template
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		path := filepath.Join(trimmed, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("template: read %s: %w", path, err)
		}
		t, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		list = append(list, t)
	}
	return NewRegistry(list...)
}

// Get looks up a template by name, ignoring case
func (r *Registry) Get(name string) (Template, error) {
	t, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return t, nil
}

// List returns every template sorted by name
func (r *Registry) List() []Template {
	out := make([]Template, 0, len(r.byName))
	for _, t := range r.byName {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func isYAMLFile(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}

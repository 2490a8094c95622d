// SPDX-License-Identifier: Apache-2.0

// Package plantemplate loads named step-plan templates from YAML and
// carries the built-in default plan. Templates are linted at load time so a
// bad file fails service startup instead of the first thread that uses it.
package plantemplate

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/adiadia/agent-progress/internal/domain"
	"github.com/adiadia/agent-progress/internal/orchestration"
	"github.com/adiadia/agent-progress/internal/validation"
)

// DefaultName is the registry entry used when a thread names no template.
const DefaultName = "default"

type TemplateStep struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Kind         string   `yaml:"kind"`
	Dependencies []string `yaml:"dependencies,omitempty"`
}

type Template struct {
	Name  string         `yaml:"name"`
	Steps []TemplateStep `yaml:"steps"`
}

type templatesFile struct {
	Templates []Template `yaml:"templates"`
}

// Plan materializes the template into fresh pending steps, in template
// order. Each call returns new step values; plans are never shared.
func (t Template) Plan() []domain.Step {
	steps := make([]domain.Step, 0, len(t.Steps))
	for _, ts := range t.Steps {
		steps = append(steps, orchestration.NewStep(ts.ID, ts.Name, domain.StepKind(ts.Kind), ts.Dependencies))
	}
	return steps
}

// Lint validates the materialized plan: per-step field checks plus the
// dependency graph pass (duplicates, unknown references, cycles).
func (t Template) Lint() error {
	if t.Name == "" {
		return validation.ValidationErrors{{
			Field:    "name",
			Code:     validation.CodeRequired,
			Message:  "template name is required",
			Severity: validation.SeverityError,
		}}
	}
	if len(t.Steps) == 0 {
		return validation.ValidationErrors{{
			Field:    "steps",
			Code:     validation.CodeRequired,
			Message:  "template needs at least one step",
			Severity: validation.SeverityError,
		}}
	}
	steps := t.Plan()
	if err := validation.ValidateSteps(steps).OrNil(); err != nil {
		return err
	}
	return orchestration.ValidateDependencies(steps)
}

// Default returns the built-in four-step plan: analyze, plan, execute,
// complete, each depending on the previous one.
func Default() Template {
	return Template{
		Name: DefaultName,
		Steps: []TemplateStep{
			{ID: "analyze", Name: "Analyze request", Kind: string(domain.KindAnalysis)},
			{ID: "plan", Name: "Plan execution", Kind: string(domain.KindPlanning), Dependencies: []string{"analyze"}},
			{ID: "execute", Name: "Execute plan", Kind: string(domain.KindExecution), Dependencies: []string{"plan"}},
			{ID: "complete", Name: "Finalize results", Kind: string(domain.KindCompletion), Dependencies: []string{"execute"}},
		},
	}
}

// Registry holds the loaded templates keyed by name. The built-in default
// is always present; a file entry named "default" overrides it.
type Registry struct {
	templates map[string]Template
}

// Builtin returns a registry carrying only the built-in default template.
func Builtin() *Registry {
	return &Registry{templates: map[string]Template{DefaultName: Default()}}
}

// Load reads a template file. An empty path or a missing file is not an
// error; the registry then carries only the built-in default.
func Load(path string) (*Registry, error) {
	reg := Builtin()
	if path == "" {
		return reg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return reg, nil
		}
		return nil, fmt.Errorf("read plan templates: %w", err)
	}

	var file templatesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse plan templates: %w", err)
	}

	for _, tpl := range file.Templates {
		if err := tpl.Lint(); err != nil {
			return nil, fmt.Errorf("template %q: %w", tpl.Name, err)
		}
		if _, dup := reg.templates[tpl.Name]; dup && tpl.Name != DefaultName {
			return nil, fmt.Errorf("template %q: declared twice", tpl.Name)
		}
		reg.templates[tpl.Name] = tpl
	}
	return reg, nil
}

// Get resolves a template by name; the empty name means the default.
func (r *Registry) Get(name string) (Template, bool) {
	if name == "" {
		name = DefaultName
	}
	tpl, ok := r.templates[name]
	return tpl, ok
}

// Names lists the registered template names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

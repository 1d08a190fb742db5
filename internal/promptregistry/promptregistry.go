// Package promptregistry loads task prompt definitions (template, output
// schema, grounding preference, provider preference) from YAML files at
// startup into a process-wide, read-only registry (C3).
package promptregistry

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Prompt is one task type's registered definition. A task with no matching
// entry gets a synthetic Prompt (empty template, no schema) rather than
// failing — the provider is still invoked.
type Prompt struct {
	TaskType           string         `yaml:"taskType"`
	Template           string         `yaml:"template"`
	OutputSchema       map[string]any `yaml:"outputSchema,omitempty"`
	OutputSchemaName   string         `yaml:"outputSchemaName,omitempty"`
	GroundingTools     bool           `yaml:"groundingTools"`
	ProviderPreference string         `yaml:"providerPreference,omitempty"`
	FieldVocabulary    []string       `yaml:"fieldVocabulary,omitempty"`
}

// HasOutputSchema reports whether this prompt declares a structured output
// schema.
func (p Prompt) HasOutputSchema() bool {
	return len(p.OutputSchema) > 0
}

// Registry is a read-only, process-wide map of task type to Prompt, loaded
// once at startup and never mutated afterward.
type Registry struct {
	mu      sync.RWMutex
	prompts map[string]Prompt
}

// New returns an empty Registry; call Load to populate it from a directory
// of YAML files.
func New() *Registry {
	return &Registry{prompts: make(map[string]Prompt)}
}

// Load reads every *.yaml/*.yml file in dir and registers its Prompt,
// keyed by TaskType. Intended to run once at startup; Registry is read-only
// thereafter.
func (r *Registry) Load(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read prompt directory %s: %w", dir, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read prompt file %s: %w", entry.Name(), err)
		}

		var prompt Prompt
		if err := yaml.Unmarshal(data, &prompt); err != nil {
			return fmt.Errorf("parse prompt file %s: %w", entry.Name(), err)
		}
		if prompt.TaskType == "" {
			return fmt.Errorf("prompt file %s missing taskType", entry.Name())
		}

		r.prompts[prompt.TaskType] = prompt
	}

	return nil
}

// Register adds or replaces one prompt directly, for programmatic setup
// (tests, or task types defined in code rather than YAML).
func (r *Registry) Register(p Prompt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts[p.TaskType] = p
}

// Resolve returns the registered Prompt for taskType, or a synthetic empty
// prompt if none is registered — the provider is still invoked with an
// empty template rather than failing the task.
func (r *Registry) Resolve(taskType string) Prompt {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.prompts[taskType]; ok {
		return p
	}
	return Prompt{TaskType: taskType}
}

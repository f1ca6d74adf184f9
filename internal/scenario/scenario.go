// Package scenario provides the role-play scenario catalog for
// dialogue mode. Scenarios are defined in an embedded YAML file so the
// scripted opening lines can be reviewed and translated without
// touching code.
package scenario

import (
	_ "embed"
	"fmt"

	"github.com/goccy/go-yaml"
)

//go:embed scenarios.yaml
var catalogYAML []byte

// Scenario is one named role-play context. The AI plays Role; the
// opening line for the learner's language is delivered verbatim when a
// conversation starts.
type Scenario struct {
	ID           string            `yaml:"id"`
	Role         string            `yaml:"role"`
	Setting      string            `yaml:"setting"`
	OpeningLines map[string]string `yaml:"opening_lines"`
}

// Catalog is the loaded set of scenarios.
type Catalog struct {
	scenarios map[string]Scenario
	defaultID string
}

// Load parses the embedded catalog.
func Load() (*Catalog, error) {
	var doc struct {
		Default   string     `yaml:"default"`
		Scenarios []Scenario `yaml:"scenarios"`
	}
	if err := yaml.Unmarshal(catalogYAML, &doc); err != nil {
		return nil, fmt.Errorf("parse scenario catalog: %w", err)
	}
	c := &Catalog{
		scenarios: make(map[string]Scenario, len(doc.Scenarios)),
		defaultID: doc.Default,
	}
	for _, s := range doc.Scenarios {
		c.scenarios[s.ID] = s
	}
	if _, ok := c.scenarios[c.defaultID]; !ok {
		return nil, fmt.Errorf("scenario catalog: default %q not defined", c.defaultID)
	}
	return c, nil
}

// Get returns the scenario for id, falling back to the default when id
// is empty or unknown. Unknown IDs are a client-side concern and must
// not break the conversation.
func (c *Catalog) Get(id string) Scenario {
	if s, ok := c.scenarios[id]; ok {
		return s
	}
	return c.scenarios[c.defaultID]
}

// OpeningLine returns the scripted opener for a learning language,
// falling back to the en-US line when the language has no translation.
func (s Scenario) OpeningLine(languageCode string) string {
	if line, ok := s.OpeningLines[languageCode]; ok {
		return line
	}
	return s.OpeningLines["en-US"]
}

// PromptContext renders the scenario as LLM prompt context.
func (s Scenario) PromptContext() string {
	return fmt.Sprintf("Role-play scenario: you are %s. Setting: %s. Stay in character.", s.Role, s.Setting)
}

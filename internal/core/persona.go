package core

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed personas.yaml
var defaultPersonas []byte

type Persona struct {
	Name         string `yaml:"name"`
	Instructions string `yaml:"instructions"`
}

type PersonaCatalog struct {
	Personas map[string]Persona `yaml:"personas"`
}

// LoadPersonas reads the catalogue at path, or the built-in one when path
// is empty.
func LoadPersonas(path string) (*PersonaCatalog, error) {
	data := defaultPersonas
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read persona file %s: %w", path, err)
		}
		data = b
	}
	return parsePersonas(data)
}

func parsePersonas(data []byte) (*PersonaCatalog, error) {
	var catalog PersonaCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse personas: %w", err)
	}
	if len(catalog.Personas) == 0 {
		return nil, fmt.Errorf("persona catalogue is empty")
	}
	for key, p := range catalog.Personas {
		if strings.TrimSpace(p.Instructions) == "" {
			return nil, fmt.Errorf("persona %q has no instructions", key)
		}
	}
	return &catalog, nil
}

func (c *PersonaCatalog) Get(key string) (Persona, error) {
	p, ok := c.Personas[key]
	if !ok {
		return Persona{}, fmt.Errorf("unknown persona %q (available: %s)", key, strings.Join(c.Keys(), ", "))
	}
	return p, nil
}

func (c *PersonaCatalog) Keys() []string {
	keys := make([]string, 0, len(c.Personas))
	for k := range c.Personas {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

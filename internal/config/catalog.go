// Package config loads the gallery catalog: the theme and the style,
// composition and model pools the batch generator samples from.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"frameart/internal/domain/jsoncfg"
)

// Catalog is the gallery configuration. JSON files parse too, since JSON is
// valid YAML.
type Catalog struct {
	Theme        string   `yaml:"theme" json:"theme"`
	Styles       []string `yaml:"styles" json:"styles"`
	Compositions []string `yaml:"compositions" json:"compositions"`
	Models       []string `yaml:"models" json:"models"`
	Count        int      `yaml:"count" json:"count"`
	Output       string   `yaml:"output" json:"output"`
}

const (
	DefaultCount  = 10
	DefaultOutput = "./gallery"
)

// DefaultCatalog is used when no catalog file is configured.
func DefaultCatalog() Catalog {
	return Catalog{
		Theme: jsoncfg.DefaultTheme,
		Styles: []string{
			"photorealistic, golden hour light",
			"impressionist oil painting",
			"soft watercolour wash",
			"vintage film photograph",
			"Japanese woodblock print",
			"moody fine-art photography",
		},
		Compositions: []string{
			"wide panoramic landscape",
			"low angle looking up",
			"aerial view",
			"intimate close-up with shallow depth of field",
			"rule of thirds with strong leading lines",
		},
		Models: []string{"gpt-image-1"},
		Count:  DefaultCount,
		Output: DefaultOutput,
	}
}

// LoadCatalog reads path and fills unset fields from DefaultCatalog. An empty
// path returns the defaults.
func LoadCatalog(path string) (Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes YAML or JSON catalog bytes.
func ParseCatalog(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

func (c *Catalog) applyDefaults() {
	def := DefaultCatalog()
	c.Theme = strings.TrimSpace(c.Theme)
	if c.Theme == "" {
		c.Theme = def.Theme
	}
	c.Styles = compact(c.Styles)
	if len(c.Styles) == 0 {
		c.Styles = def.Styles
	}
	c.Compositions = compact(c.Compositions)
	if len(c.Compositions) == 0 {
		c.Compositions = def.Compositions
	}
	c.Models = compact(c.Models)
	if len(c.Models) == 0 {
		c.Models = def.Models
	}
	if c.Count == 0 {
		c.Count = def.Count
	}
	if strings.TrimSpace(c.Output) == "" {
		c.Output = def.Output
	}
}

// Validate rejects catalogs the gallery cannot run.
func (c Catalog) Validate() error {
	if c.Count < 0 {
		return fmt.Errorf("catalog count must not be negative, got %d", c.Count)
	}
	if len(c.Styles) == 0 || len(c.Compositions) == 0 || len(c.Models) == 0 {
		return errors.New("catalog needs at least one style, composition and model")
	}
	return nil
}

func compact(items []string) []string {
	out := items[:0:0]
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

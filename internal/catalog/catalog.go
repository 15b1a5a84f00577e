// Package catalog loads the zones and signs the game draws from.
package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/verte-zerg/learnsignals/internal/model"
)

//go:embed default.yaml
var defaultCatalog []byte

type fileZone struct {
	Name        string       `yaml:"name" validate:"required"`
	Description string       `yaml:"description"`
	MinTier     string       `yaml:"min_tier"`
	MaxTier     string       `yaml:"max_tier"`
	Signs       []model.Sign `yaml:"signs" validate:"min=2,dive"`
}

type file struct {
	Zones []fileZone `yaml:"zones" validate:"min=1,dive"`
}

// Catalog is an ordered list of zones.
type Catalog struct {
	Zones []model.Zone
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	c, err := Parse(defaultCatalog)
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded catalog: %w", err)
	}
	return c, nil
}

// Load reads a catalog from a YAML file. An empty path means Default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, err
	}
	if err := model.ValidateStruct(f); err != nil {
		return nil, err
	}
	zones := make([]model.Zone, 0, len(f.Zones))
	for i, fz := range f.Zones {
		z, err := buildZone(fz)
		if err != nil {
			return nil, fmt.Errorf("zone %d (%s): %w", i, fz.Name, err)
		}
		zones = append(zones, z)
	}
	return &Catalog{Zones: zones}, nil
}

func buildZone(fz fileZone) (model.Zone, error) {
	bounds := model.DefaultZoneBounds
	if fz.MinTier != "" {
		t, err := model.ParseTier(fz.MinTier)
		if err != nil {
			return model.Zone{}, err
		}
		bounds.Min = t
	}
	if fz.MaxTier != "" {
		t, err := model.ParseTier(fz.MaxTier)
		if err != nil {
			return model.Zone{}, err
		}
		bounds.Max = t
	}
	if !bounds.Valid() {
		return model.Zone{}, fmt.Errorf("min_tier %s is above max_tier %s", bounds.Min, bounds.Max)
	}
	seen := make(map[string]struct{}, len(fz.Signs))
	for _, s := range fz.Signs {
		key := strings.ToLower(s.Name)
		if _, ok := seen[key]; ok {
			return model.Zone{}, fmt.Errorf("duplicate sign %q", s.Name)
		}
		seen[key] = struct{}{}
	}
	return model.Zone{
		Name:        fz.Name,
		Description: fz.Description,
		Bounds:      bounds,
		Signs:       append([]model.Sign(nil), fz.Signs...),
	}, nil
}

// Limit returns a catalog with at most n zones. n <= 0 keeps every zone.
func (c *Catalog) Limit(n int) *Catalog {
	if n <= 0 || n >= len(c.Zones) {
		return c
	}
	return &Catalog{Zones: c.Zones[:n]}
}

// Zone returns zone i.
func (c *Catalog) Zone(i int) (model.Zone, bool) {
	if i < 0 || i >= len(c.Zones) {
		return model.Zone{}, false
	}
	return c.Zones[i], true
}

// Len returns the number of zones.
func (c *Catalog) Len() int { return len(c.Zones) }

// Find looks a sign up by name in every zone.
func (c *Catalog) Find(name string) (model.Sign, bool) {
	for _, z := range c.Zones {
		for _, s := range z.Signs {
			if strings.EqualFold(s.Name, name) {
				return s, true
			}
		}
	}
	return model.Sign{}, false
}

// SignCount returns the number of distinct sign names.
func (c *Catalog) SignCount() int {
	seen := make(map[string]struct{})
	for _, z := range c.Zones {
		for _, s := range z.Signs {
			seen[strings.ToLower(s.Name)] = struct{}{}
		}
	}
	return len(seen)
}

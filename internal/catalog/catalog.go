package catalog

import (
	"errors"
	"fmt"
	"slices"

	"github.com/manash/prodstudio/pkg/models"
)

var (
	ErrDuplicateID = errors.New("duplicate preset id")
	ErrEmptyID     = errors.New("preset id cannot be empty")
)

// DefaultVersion identifies the built-in preset set.
const DefaultVersion = "2025.1"

// Catalog is a read-only registry of presets per category.
type Catalog struct {
	version string
	entries map[models.Category][]models.Preset
	index   map[models.Category]map[string]int
}

func New(version string, entries map[models.Category][]models.Preset) (*Catalog, error) {
	c := &Catalog{
		version: version,
		entries: make(map[models.Category][]models.Preset, len(entries)),
		index:   make(map[models.Category]map[string]int, len(entries)),
	}

	for cat, presets := range entries {
		if !cat.IsValid() {
			return nil, fmt.Errorf("%w: %s", models.ErrUnknownCategory, cat)
		}
		idx := make(map[string]int, len(presets))
		for i, p := range presets {
			if p.ID == "" {
				return nil, fmt.Errorf("%w in %s", ErrEmptyID, cat)
			}
			if _, ok := idx[p.ID]; ok {
				return nil, fmt.Errorf("%w: %s/%s", ErrDuplicateID, cat, p.ID)
			}
			idx[p.ID] = i
		}
		c.entries[cat] = slices.Clone(presets)
		c.index[cat] = idx
	}

	return c, nil
}

func (c *Catalog) Version() string {
	return c.version
}

// List returns the presets of a category in catalog order. The slice is a copy.
func (c *Catalog) List(cat models.Category) []models.Preset {
	return slices.Clone(c.entries[cat])
}

func (c *Catalog) Lookup(cat models.Category, id string) (models.Preset, bool) {
	i, ok := c.index[cat][id]
	if !ok {
		return models.Preset{}, false
	}
	return c.entries[cat][i], true
}

// Filter keeps the catalog entries whose id appears in ids. Output follows
// catalog order; unknown and repeated ids have no effect.
func (c *Catalog) Filter(cat models.Category, ids []string) []models.Preset {
	if len(ids) == 0 {
		return []models.Preset{}
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	out := []models.Preset{}
	for _, p := range c.entries[cat] {
		if _, ok := wanted[p.ID]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Unknown returns the ids that are not in the category, in input order.
func (c *Catalog) Unknown(cat models.Category, ids []string) []string {
	var out []string
	for _, id := range ids {
		if _, ok := c.index[cat][id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func (c *Catalog) Len() int {
	n := 0
	for _, presets := range c.entries {
		n += len(presets)
	}
	return n
}

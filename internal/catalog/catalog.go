// Package catalog holds the immutable table of discoverable creatures.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xtding233/reef-engine/internal/gacha"
	"github.com/xtding233/reef-engine/internal/state"
)

//go:embed creatures.yaml
var defaultYAML []byte

var ErrInvalidCatalog = errors.New("invalid creature catalog")

// CreatureDef is one catalog entry. Never mutated after load.
type CreatureDef struct {
	ID     string       `yaml:"id"`
	Name   string       `yaml:"name"`
	Pool   string       `yaml:"pool"`
	Rarity gacha.Rarity `yaml:"rarity"`
}

type file struct {
	Creatures []CreatureDef `yaml:"creatures"`
}

// Catalog is safe for concurrent use; it is read-only after Parse.
type Catalog struct {
	entries []CreatureDef
	byID    map[string]int
}

// Default parses the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultYAML)
}

// LoadFile reads a catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates YAML catalog data.
func Parse(b []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	c := &Catalog{byID: make(map[string]int, len(f.Creatures))}
	var errs []string
	for i, d := range f.Creatures {
		switch {
		case d.ID == "":
			errs = append(errs, fmt.Sprintf("creatures[%d]: id is required", i))
			continue
		case !state.IsPool(d.Pool):
			errs = append(errs, fmt.Sprintf("%s: unknown pool %q", d.ID, d.Pool))
		case !d.Rarity.Valid():
			errs = append(errs, fmt.Sprintf("%s: unknown rarity %q", d.ID, d.Rarity))
		}
		if _, dup := c.byID[d.ID]; dup {
			errs = append(errs, fmt.Sprintf("%s: duplicate id", d.ID))
			continue
		}
		c.byID[d.ID] = len(c.entries)
		c.entries = append(c.entries, d)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCatalog, strings.Join(errs, "; "))
	}
	return c, nil
}

// Len returns the number of entries.
func (c *Catalog) Len() int { return len(c.entries) }

// Lookup finds an entry by id.
func (c *Catalog) Lookup(id string) (CreatureDef, bool) {
	i, ok := c.byID[id]
	if !ok {
		return CreatureDef{}, false
	}
	return c.entries[i], true
}

// Candidates returns every entry matching (pool, rarity) exactly.
func (c *Catalog) Candidates(pool string, r gacha.Rarity) []CreatureDef {
	var out []CreatureDef
	for _, d := range c.entries {
		if d.Pool == pool && d.Rarity == r {
			out = append(out, d)
		}
	}
	return out
}

// Select picks uniformly among the matching entries. ok is false when
// nothing matches; the roll is then wasted.
func (c *Catalog) Select(pool string, r gacha.Rarity, rng gacha.RandomSource) (CreatureDef, bool) {
	matches := c.Candidates(pool, r)
	if len(matches) == 0 {
		return CreatureDef{}, false
	}
	if rng == nil {
		rng = gacha.DefaultRNG()
	}
	return matches[rng.IntN(len(matches))], true
}

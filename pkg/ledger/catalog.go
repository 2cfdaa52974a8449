package ledger

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultSpots is the catalog the parking lot shipped with.
var DefaultSpots = []string{"A1", "A2", "A3", "B1", "B2", "B3", "C1", "C2"}

// Catalog is the ordered, immutable set of bookable spot ids.
//
// The order is the presentation order of [Ledger.QueryAll] and the scan
// order of [Ledger.QuickBook].
type Catalog struct {
	ids   []string
	index map[string]struct{}
}

// NewCatalog builds a catalog from ids in the given order.
// Ids are trimmed; empty or duplicate ids are rejected.
func NewCatalog(ids ...string) (*Catalog, error) {
	if len(ids) == 0 {
		return nil, ErrCatalogEmpty
	}

	c := &Catalog{
		ids:   make([]string, 0, len(ids)),
		index: make(map[string]struct{}, len(ids)),
	}

	for i, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			return nil, fmt.Errorf("%w: spot %d is empty", ErrCatalogInvalid, i)
		}

		if _, dup := c.index[id]; dup {
			return nil, fmt.Errorf("%w: duplicate spot %q", ErrCatalogInvalid, id)
		}

		c.index[id] = struct{}{}
		c.ids = append(c.ids, id)
	}

	return c, nil
}

// DefaultCatalog returns a catalog of [DefaultSpots].
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultSpots...)
	if err != nil {
		panic(err)
	}

	return c
}

// LoadCatalogYAML reads a catalog document of the form
//
//	spots:
//	  - A1
//	  - A2
func LoadCatalogYAML(r io.Reader) (*Catalog, error) {
	var doc struct {
		Spots []string `yaml:"spots"`
	}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	err := dec.Decode(&doc)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: yaml: %w", ErrCatalogInvalid, err)
	}

	return NewCatalog(doc.Spots...)
}

// Contains reports whether spot is a valid id.
func (c *Catalog) Contains(spot string) bool {
	_, ok := c.index[spot]

	return ok
}

// Spots returns the ids in catalog order. The slice is a copy.
func (c *Catalog) Spots() []string {
	return slices.Clone(c.ids)
}

// Len returns the number of spots.
func (c *Catalog) Len() int {
	return len(c.ids)
}

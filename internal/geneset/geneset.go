// Package geneset holds the gene-set data model consumed by the enrichment
// summarisation pipeline, plus readers for the common on-disk formats.
//
// A GeneSet is immutable once constructed: accessors hand out copies so that
// the similarity, network and text stages can share one snapshot safely.
package geneset

import (
	"fmt"
	"sort"
	"strings"
)

// Meta carries the descriptive attributes of a gene-set.
type Meta struct {
	Collection       string `json:"collection,omitempty" yaml:"collection"`
	ShortDescription string `json:"short_description,omitempty" yaml:"short_description"`
	Description      string `json:"description,omitempty" yaml:"description"`
}

// GeneSet is a named set of gene identifiers with metadata.
type GeneSet struct {
	id    string
	genes []string
	meta  Meta
}

// New builds a GeneSet. Gene identifiers are trimmed, deduplicated and sorted;
// blank identifiers are dropped. An empty id is rejected, an empty gene list is
// not (the similarity stage decides whether that is acceptable).
func New(id string, genes []string, meta Meta) (GeneSet, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return GeneSet{}, fmt.Errorf("%w: gene-set id is empty", ErrInvalidInput)
	}

	seen := make(map[string]struct{}, len(genes))
	out := make([]string, 0, len(genes))
	for _, g := range genes {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	sort.Strings(out)

	meta.Collection = strings.TrimSpace(meta.Collection)
	meta.ShortDescription = strings.TrimSpace(meta.ShortDescription)
	meta.Description = strings.TrimSpace(meta.Description)

	return GeneSet{id: id, genes: out, meta: meta}, nil
}

// MustNew is New for fixtures and literals; it panics on error.
func MustNew(id string, genes []string, meta Meta) GeneSet {
	gs, err := New(id, genes, meta)
	if err != nil {
		panic(err)
	}
	return gs
}

// ID returns the unique gene-set name.
func (g GeneSet) ID() string { return g.id }

// Genes returns a copy of the sorted gene identifiers.
func (g GeneSet) Genes() []string { return append([]string(nil), g.genes...) }

// Size returns the number of distinct genes.
func (g GeneSet) Size() int { return len(g.genes) }

// Meta returns the descriptive metadata.
func (g GeneSet) Meta() Meta { return g.meta }

// Collection returns the collection/category label.
func (g GeneSet) Collection() string { return g.meta.Collection }

// ShortDescription returns the short description, if any.
func (g GeneSet) ShortDescription() string { return g.meta.ShortDescription }

// Description returns the full description, if any.
func (g GeneSet) Description() string { return g.meta.Description }

// Contains reports whether gene is a member.
func (g GeneSet) Contains(gene string) bool {
	i := sort.SearchStrings(g.genes, gene)
	return i < len(g.genes) && g.genes[i] == gene
}

// Collection is an ordered, id-indexed group of gene-sets. Insertion order is
// preserved by Sets and IDs.
type Collection struct {
	sets  []GeneSet
	index map[string]int
}

// NewCollection indexes sets by id. Duplicate ids are rejected.
func NewCollection(sets ...GeneSet) (*Collection, error) {
	c := &Collection{
		sets:  make([]GeneSet, 0, len(sets)),
		index: make(map[string]int, len(sets)),
	}
	for _, gs := range sets {
		if gs.id == "" {
			return nil, fmt.Errorf("%w: gene-set without id", ErrInvalidInput)
		}
		if _, dup := c.index[gs.id]; dup {
			return nil, fmt.Errorf("%w: duplicate gene-set id %q", ErrInvalidInput, gs.id)
		}
		c.index[gs.id] = len(c.sets)
		c.sets = append(c.sets, gs)
	}
	return c, nil
}

// Len returns the number of gene-sets.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.sets)
}

// Get returns the gene-set with the given id.
func (c *Collection) Get(id string) (GeneSet, bool) {
	if c == nil {
		return GeneSet{}, false
	}
	i, ok := c.index[id]
	if !ok {
		return GeneSet{}, false
	}
	return c.sets[i], true
}

// Sets returns the gene-sets in insertion order.
func (c *Collection) Sets() []GeneSet {
	if c == nil {
		return nil
	}
	return append([]GeneSet(nil), c.sets...)
}

// IDs returns gene-set ids in insertion order.
func (c *Collection) IDs() []string {
	if c == nil {
		return nil
	}
	ids := make([]string, len(c.sets))
	for i, gs := range c.sets {
		ids[i] = gs.id
	}
	return ids
}

// Metadata returns an id → GeneSet mapping for metadata lookups.
func (c *Collection) Metadata() map[string]GeneSet {
	out := make(map[string]GeneSet, c.Len())
	if c == nil {
		return out
	}
	for _, gs := range c.sets {
		out[gs.id] = gs
	}
	return out
}

// Subset restricts the collection to ids, keeping the collection's order.
// Unknown ids are returned in missing rather than failing, since enrichment
// results often mention sets absent from the loaded reference database.
func (c *Collection) Subset(ids []string) (sub *Collection, missing []string) {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := c.Get(id); !ok {
			missing = append(missing, id)
			continue
		}
		want[id] = struct{}{}
	}

	kept := make([]GeneSet, 0, len(want))
	for _, gs := range c.Sets() {
		if _, ok := want[gs.id]; ok {
			kept = append(kept, gs)
		}
	}
	sub, _ = NewCollection(kept...)
	sort.Strings(missing)
	return sub, missing
}

package geneset

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlFile is the on-disk layout for hand-curated gene-set files:
//
//	collection: CUSTOM
//	sets:
//	  - id: MY_SET
//	    short_description: immune signalling
//	    genes: [IL6, STAT3]
type yamlFile struct {
	Collection string    `yaml:"collection"`
	Sets       []yamlSet `yaml:"sets"`
}

type yamlSet struct {
	ID               string   `yaml:"id"`
	Collection       string   `yaml:"collection"`
	ShortDescription string   `yaml:"short_description"`
	Description      string   `yaml:"description"`
	Genes            []string `yaml:"genes"`
}

// LoadYAML reads a YAML gene-set file from disk.
func LoadYAML(path string) (*Collection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c, err := ReadYAML(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return c, nil
}

// ReadYAML decodes a YAML gene-set document. A per-set collection overrides the
// file-level one.
func ReadYAML(r io.Reader) (*Collection, error) {
	var doc yamlFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return NewCollection()
		}
		return nil, err
	}

	sets := make([]GeneSet, 0, len(doc.Sets))
	for i, s := range doc.Sets {
		collection := s.Collection
		if collection == "" {
			collection = doc.Collection
		}
		gs, err := New(s.ID, s.Genes, Meta{
			Collection:       collection,
			ShortDescription: s.ShortDescription,
			Description:      s.Description,
		})
		if err != nil {
			return nil, fmt.Errorf("set %d: %w", i+1, err)
		}
		sets = append(sets, gs)
	}
	return NewCollection(sets...)
}

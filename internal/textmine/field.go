package textmine

import (
	"fmt"
	"strings"

	"github.com/hurttlocker/enrichnet/internal/geneset"
)

// Field selects which gene-set text is mined.
type Field string

const (
	// FieldName mines the gene-set identifier, split on separators.
	FieldName Field = "name"
	// FieldShortDescription mines the short description.
	FieldShortDescription Field = "short_description"
)

// ParseField parses a field name.
func ParseField(s string) (Field, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "name", "id":
		return FieldName, nil
	case "short_description", "shortdescription", "description", "desc":
		return FieldShortDescription, nil
	default:
		return "", fmt.Errorf("%w: %q (expected name or short_description)", geneset.ErrUnknownField, s)
	}
}

func (f Field) valid() bool {
	return f == FieldName || f == FieldShortDescription
}

// text returns the field value of gs. With stripPrefix the collection prefix of
// MSigDB-style names (HALLMARK_, GOBP_, KEGG_...) is dropped.
func (f Field) text(gs geneset.GeneSet, stripPrefix bool) string {
	switch f {
	case FieldShortDescription:
		return gs.ShortDescription()
	default:
		name := gs.ID()
		if stripPrefix {
			if idx := strings.IndexByte(name, '_'); idx > 0 && idx < len(name)-1 {
				name = name[idx+1:]
			}
		}
		return name
	}
}

package similarity

import (
	"encoding/csv"
	"io"
	"strconv"
)

// WriteEdges writes edges as a tab-separated table with a set_a/set_b/weight
// header, in the order given.
func WriteEdges(w io.Writer, edges []Edge) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write([]string{"set_a", "set_b", "weight"}); err != nil {
		return err
	}
	for _, e := range edges {
		if err := cw.Write([]string{e.A, e.B, strconv.FormatFloat(e.Weight, 'g', -1, 64)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

package geneset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// LoadStatistics reads an id → value table from a CSV or TSV file (by
// extension). The first row is a header. Extra columns are ignored; rows with an
// unparseable value fail the load.
func LoadStatistics(path string) (map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	comma := ','
	if strings.ToLower(filepath.Ext(path)) == ".tsv" {
		comma = '\t'
	}
	stats, err := ReadStatistics(f, comma)
	if err != nil {
		return nil, fmt.Errorf("parsing statistics %s: %w", path, err)
	}
	return stats, nil
}

// ReadStatistics parses a two-column id/value table with a header row.
func ReadStatistics(r io.Reader, comma rune) (map[string]float64, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	stats := make(map[string]float64)
	if len(records) < 2 {
		return stats, nil
	}

	for i, row := range records[1:] {
		if len(row) < 2 {
			return nil, fmt.Errorf("%w: row %d: expected id and value", ErrInvalidInput, i+2)
		}
		id := strings.TrimSpace(row[0])
		if id == "" {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil || !IsFinite(v) {
			return nil, fmt.Errorf("%w: row %d: invalid value %q", ErrInvalidInput, i+2, row[1])
		}
		stats[id] = v
	}
	return stats, nil
}

// IsFinite reports whether v is neither NaN nor an infinity.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// CheckStatistics rejects a table holding NaN or an infinity. what names the
// table in the error.
func CheckStatistics(what string, stats map[string]float64) error {
	var bad []string
	for id, v := range stats {
		if !IsFinite(v) {
			bad = append(bad, id)
		}
	}
	if len(bad) == 0 {
		return nil
	}
	sort.Strings(bad)
	return fmt.Errorf("%w: %s for %q is %v, values must be finite", ErrInvalidInput, what, bad[0], stats[bad[0]])
}

// ReadIDList reads one identifier per line, ignoring blanks and '#' comments.
// A tab or comma ends the identifier, so the first column of a results table
// can be fed in directly.
func ReadIDList(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if idx := strings.IndexAny(line, "\t,"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if line != "" {
			ids = append(ids, line)
		}
	}
	return ids, nil
}

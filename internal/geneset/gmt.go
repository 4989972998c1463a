package geneset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// GMTOptions controls how GMT files are interpreted.
type GMTOptions struct {
	// Collection labels every set read. When empty the label is derived from the
	// name prefix before the first underscore (HALLMARK_APOPTOSIS → HALLMARK).
	Collection string
}

// LoadGMT reads a GMT file from disk.
func LoadGMT(path string, opts GMTOptions) (*Collection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c, err := ReadGMT(f, opts)
	if err != nil {
		return nil, fmt.Errorf("parsing GMT %s: %w", path, err)
	}
	return c, nil
}

// ReadGMT parses the tab-separated GMT format: one set per line,
// name<TAB>description<TAB>gene1<TAB>gene2...
// Blank lines and lines starting with '#' are skipped. The description column
// becomes the short description; "na" and URLs are treated as absent.
func ReadGMT(r io.Reader, opts GMTOptions) (*Collection, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var sets []GeneSet
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			return nil, fmt.Errorf("%w: line %d: expected name, description and at least one gene", ErrInvalidInput, lineNo)
		}

		name := strings.TrimSpace(fields[0])
		collection := opts.Collection
		if collection == "" {
			collection = namePrefix(name)
		}

		gs, err := New(name, fields[2:], Meta{
			Collection:       collection,
			ShortDescription: gmtDescription(fields[1]),
		})
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		sets = append(sets, gs)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return NewCollection(sets...)
}

// WriteGMT writes sets in GMT format.
func WriteGMT(w io.Writer, sets []GeneSet) error {
	bw := bufio.NewWriter(w)
	for _, gs := range sets {
		desc := gs.ShortDescription()
		if desc == "" {
			desc = "na"
		}
		cols := append([]string{gs.ID(), desc}, gs.genes...)
		if _, err := bw.WriteString(strings.Join(cols, "\t") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func gmtDescription(raw string) string {
	d := strings.TrimSpace(raw)
	lower := strings.ToLower(d)
	if lower == "na" || lower == "n/a" || strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return ""
	}
	return d
}

func namePrefix(name string) string {
	if idx := strings.IndexByte(name, '_'); idx > 0 {
		return name[:idx]
	}
	return ""
}

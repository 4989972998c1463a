package geneset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Load reads a collection, choosing the format by extension: .yaml and .yml
// are hand-curated YAML files, everything else is GMT.
func Load(path string, opts GMTOptions) (*Collection, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(path)
	default:
		return LoadGMT(path, opts)
	}
}

// LoadIDList reads one gene-set id per line from path.
func LoadIDList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ids, err := ReadIDList(f)
	if err != nil {
		return nil, fmt.Errorf("parsing id list %s: %w", path, err)
	}
	return ids, nil
}

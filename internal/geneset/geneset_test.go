package geneset

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestNewNormalizesGenes(t *testing.T) {
	gs, err := New("  SET_A ", []string{"g2", " g1", "g2", "", "g3 "}, Meta{Collection: " GO "})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if gs.ID() != "SET_A" {
		t.Fatalf("expected trimmed id, got %q", gs.ID())
	}
	if want := []string{"g1", "g2", "g3"}; !reflect.DeepEqual(gs.Genes(), want) {
		t.Fatalf("genes = %v, want %v", gs.Genes(), want)
	}
	if gs.Collection() != "GO" {
		t.Fatalf("collection = %q", gs.Collection())
	}
	if !gs.Contains("g2") || gs.Contains("g9") {
		t.Fatal("Contains returned wrong membership")
	}
}

func TestGenesReturnsCopy(t *testing.T) {
	gs := MustNew("A", []string{"g1", "g2"}, Meta{})
	genes := gs.Genes()
	genes[0] = "mutated"
	if gs.Genes()[0] != "g1" {
		t.Fatal("gene-set was mutated through Genes()")
	}
}

func TestNewRejectsEmptyID(t *testing.T) {
	if _, err := New(" ", []string{"g1"}, Meta{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCollectionRejectsDuplicates(t *testing.T) {
	a := MustNew("A", []string{"g1"}, Meta{})
	if _, err := NewCollection(a, a); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for duplicate id, got %v", err)
	}
}

func TestCollectionSubset(t *testing.T) {
	c, err := NewCollection(
		MustNew("A", []string{"g1"}, Meta{}),
		MustNew("B", []string{"g2"}, Meta{}),
		MustNew("C", []string{"g3"}, Meta{}),
	)
	if err != nil {
		t.Fatalf("NewCollection: %v", err)
	}

	sub, missing := c.Subset([]string{"C", "A", "Z"})
	if want := []string{"A", "C"}; !reflect.DeepEqual(sub.IDs(), want) {
		t.Fatalf("subset ids = %v, want %v", sub.IDs(), want)
	}
	if !reflect.DeepEqual(missing, []string{"Z"}) {
		t.Fatalf("missing = %v", missing)
	}
	if _, ok := sub.Metadata()["C"]; !ok {
		t.Fatal("expected C in subset metadata")
	}
}

func TestReadGMT(t *testing.T) {
	input := strings.Join([]string{
		"# comment",
		"HALLMARK_APOPTOSIS\thttp://www.gsea-msigdb.org/x\tCASP3\tBAX\tCASP3",
		"",
		"GOBP_IMMUNE_RESPONSE\timmune response\tIL6\tSTAT3",
	}, "\n")

	c, err := ReadGMT(strings.NewReader(input), GMTOptions{})
	if err != nil {
		t.Fatalf("ReadGMT: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 sets, got %d", c.Len())
	}

	apoptosis, _ := c.Get("HALLMARK_APOPTOSIS")
	if apoptosis.Size() != 2 {
		t.Fatalf("expected deduplicated genes, got %v", apoptosis.Genes())
	}
	if apoptosis.Collection() != "HALLMARK" {
		t.Fatalf("collection = %q", apoptosis.Collection())
	}
	if apoptosis.ShortDescription() != "" {
		t.Fatalf("URL description should be dropped, got %q", apoptosis.ShortDescription())
	}

	immune, _ := c.Get("GOBP_IMMUNE_RESPONSE")
	if immune.ShortDescription() != "immune response" {
		t.Fatalf("short description = %q", immune.ShortDescription())
	}
}

func TestReadGMTRejectsShortLine(t *testing.T) {
	_, err := ReadGMT(strings.NewReader("ONLY_NAME\tdesc\n"), GMTOptions{})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestWriteGMTRoundTrip(t *testing.T) {
	sets := []GeneSet{
		MustNew("A", []string{"g2", "g1"}, Meta{ShortDescription: "first"}),
		MustNew("B", []string{"g3"}, Meta{}),
	}
	var buf bytes.Buffer
	if err := WriteGMT(&buf, sets); err != nil {
		t.Fatalf("WriteGMT: %v", err)
	}
	c, err := ReadGMT(&buf, GMTOptions{Collection: "CUSTOM"})
	if err != nil {
		t.Fatalf("ReadGMT: %v", err)
	}
	a, _ := c.Get("A")
	if !reflect.DeepEqual(a.Genes(), []string{"g1", "g2"}) || a.ShortDescription() != "first" {
		t.Fatalf("unexpected round trip result: %v %q", a.Genes(), a.ShortDescription())
	}
	b, _ := c.Get("B")
	if b.Collection() != "CUSTOM" || b.ShortDescription() != "" {
		t.Fatalf("unexpected B metadata: %+v", b.Meta())
	}
}

func TestReadYAML(t *testing.T) {
	doc := `
collection: CUSTOM
sets:
  - id: IMMUNE
    short_description: immune signalling
    genes: [IL6, STAT3, IL6]
  - id: CYCLE
    collection: REACTOME
    genes: [CDK1]
`
	c, err := ReadYAML(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ReadYAML: %v", err)
	}
	immune, ok := c.Get("IMMUNE")
	if !ok || immune.Size() != 2 || immune.Collection() != "CUSTOM" {
		t.Fatalf("unexpected IMMUNE: %+v %v", immune.Meta(), immune.Genes())
	}
	cycle, _ := c.Get("CYCLE")
	if cycle.Collection() != "REACTOME" {
		t.Fatalf("per-set collection not applied: %q", cycle.Collection())
	}
}

func TestReadStatistics(t *testing.T) {
	input := "id\tnes\nA\t1.5\nB\t-2\n\t3\n"
	stats, err := ReadStatistics(strings.NewReader(input), '\t')
	if err != nil {
		t.Fatalf("ReadStatistics: %v", err)
	}
	want := map[string]float64{"A": 1.5, "B": -2}
	if !reflect.DeepEqual(stats, want) {
		t.Fatalf("stats = %v, want %v", stats, want)
	}

	if _, err := ReadStatistics(strings.NewReader("id,v\nA,abc\n"), ','); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad value, got %v", err)
	}
}

func TestReadStatisticsRejectsNonFinite(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"nan", "NaN"},
		{"positive infinity", "Inf"},
		{"negative infinity", "-Inf"},
		{"spelled infinity", "+infinity"},
		{"overflow", "1e400"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := "id,v\nA,1\nB," + tt.value + "\n"
			if _, err := ReadStatistics(strings.NewReader(input), ','); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("value %q: got %v, want ErrInvalidInput", tt.value, err)
			}
		})
	}
}

func TestCheckStatistics(t *testing.T) {
	tests := []struct {
		name    string
		stats   map[string]float64
		wantErr bool
	}{
		{"nil", nil, false},
		{"finite", map[string]float64{"A": 1, "B": -3.5, "C": 0}, false},
		{"nan", map[string]float64{"A": 1, "B": math.NaN()}, true},
		{"positive infinity", map[string]float64{"A": math.Inf(1)}, true},
		{"negative infinity", map[string]float64{"A": 2, "B": math.Inf(-1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckStatistics("set statistic", tt.stats)
			if tt.wantErr != (err != nil) {
				t.Fatalf("CheckStatistics(%v) = %v, wantErr %v", tt.stats, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("error %v does not wrap ErrInvalidInput", err)
			}
		})
	}
}

func TestReadIDList(t *testing.T) {
	ids, err := ReadIDList(strings.NewReader("# significant\nA\n\nB\t0.01\nC,0.2\n"))
	if err != nil {
		t.Fatalf("ReadIDList: %v", err)
	}
	if want := []string{"A", "B", "C"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
}

func TestLoadByExtension(t *testing.T) {
	dir := t.TempDir()
	gmtPath := filepath.Join(dir, "sets.gmt")
	yamlPath := filepath.Join(dir, "sets.yml")
	idsPath := filepath.Join(dir, "significant.txt")
	files := map[string]string{
		gmtPath:  "HALLMARK_HYPOXIA\tna\tG1\tG2\n",
		yamlPath: "sets:\n  - id: CUSTOM_SET\n    genes: [G1]\n",
		idsPath:  "HALLMARK_HYPOXIA\n",
	}
	for path, body := range files {
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}

	gmt, err := Load(gmtPath, GMTOptions{})
	if err != nil {
		t.Fatalf("Load gmt: %v", err)
	}
	if gs, ok := gmt.Get("HALLMARK_HYPOXIA"); !ok || gs.Collection() != "HALLMARK" {
		t.Fatalf("unexpected GMT collection: %v", gmt.IDs())
	}

	y, err := Load(yamlPath, GMTOptions{})
	if err != nil {
		t.Fatalf("Load yaml: %v", err)
	}
	if _, ok := y.Get("CUSTOM_SET"); !ok {
		t.Fatalf("unexpected YAML collection: %v", y.IDs())
	}

	ids, err := LoadIDList(idsPath)
	if err != nil || !reflect.DeepEqual(ids, []string{"HALLMARK_HYPOXIA"}) {
		t.Fatalf("LoadIDList = %v, %v", ids, err)
	}

	if _, err := Load(filepath.Join(dir, "absent.gmt"), GMTOptions{}); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

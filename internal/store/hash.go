package store

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/hurttlocker/enrichnet/internal/pipeline"
)

// HashAnalysis computes SHA-256 over everything a run's outputs depend on:
// the options, the term corpus digest, the canonical edge list, the node and
// gene statistics and the missing ids. Two runs with the same fingerprint
// produced the same stored rows.
func HashAnalysis(res *pipeline.Result) string {
	h := sha256.New()
	opts, _ := json.Marshal(res.Options)
	h.Write(opts)
	h.Write([]byte{0}) // separator
	fmt.Fprintf(h, "corpus\t%s\n", res.CorpusDigest)
	h.Write([]byte{0})
	if res.Graph != nil {
		for _, e := range res.Graph.Edges() {
			fmt.Fprintf(h, "%s\t%s\t%g\n", e.A, e.B, e.Weight)
		}
		h.Write([]byte{0})
		for _, n := range res.Graph.Nodes() {
			if n.HasStatistic {
				fmt.Fprintf(h, "%s\t%g\n", n.ID, n.Statistic)
			}
		}
	}
	h.Write([]byte{0})
	genes := make([]string, 0, len(res.GeneStats))
	for gene := range res.GeneStats {
		genes = append(genes, gene)
	}
	sort.Strings(genes)
	for _, gene := range genes {
		fmt.Fprintf(h, "%s\t%g\n", gene, res.GeneStats[gene])
	}
	h.Write([]byte{0})
	for _, id := range res.Missing {
		fmt.Fprintf(h, "%s\n", id)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// SaveOrReuse returns the stored analysis with res's fingerprint when one
// exists, and saves res otherwise. reused reports which happened.
func SaveOrReuse(ctx context.Context, st Store, label string, res *pipeline.Result) (a *Analysis, reused bool, err error) {
	if res == nil {
		return nil, false, fmt.Errorf("save analysis: nil result")
	}
	existing, err := st.FindByFingerprint(ctx, HashAnalysis(res))
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, true, nil
	}
	a, err = st.SaveAnalysis(ctx, label, res)
	if err != nil {
		return nil, false, err
	}
	return a, false, nil
}

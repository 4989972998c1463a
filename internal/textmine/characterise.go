// Package textmine characterises gene-set clusters by the terms that best
// distinguish their names or descriptions from the whole candidate collection.
//
// A term's weight in a cluster is its frequency in the cluster's concatenated
// text multiplied by a smoothed inverse document frequency, log(1 + N/(1+df)),
// where every candidate gene-set contributes one document.
package textmine

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hurttlocker/enrichnet/internal/cluster"
	"github.com/hurttlocker/enrichnet/internal/geneset"
)

// DefaultTopN is the number of terms returned per cluster by default.
const DefaultTopN = 10

// TermScore is a weighted term of one cluster.
type TermScore struct {
	Term    string  `json:"term"`
	Weight  float64 `json:"weight"`
	Count   int     `json:"count"`
	DocFreq int     `json:"doc_freq"`
}

// Option configures a Characteriser.
type Option func(*Characteriser)

// WithLemmatizer replaces the English dictionary lemmatizer.
func WithLemmatizer(l Lemmatizer) Option {
	return func(c *Characteriser) { c.lemma = l }
}

// WithStopWords adds stop words to the built-in list.
func WithStopWords(words ...string) Option {
	return func(c *Characteriser) { c.extraStop = append(c.extraStop, words...) }
}

// WithNamePrefixStripping drops the collection prefix of MSigDB-style names
// (HALLMARK_, GOBP_, ...) when mining the name field.
func WithNamePrefixStripping(enabled bool) Option {
	return func(c *Characteriser) { c.stripPrefix = enabled }
}

// WithWorkers bounds how many clusters are characterised concurrently.
func WithWorkers(n int) Option {
	return func(c *Characteriser) { c.workers = n }
}

// Characteriser extracts top terms per cluster. It is safe for concurrent use.
type Characteriser struct {
	lemma       Lemmatizer
	extraStop   []string
	stripPrefix bool
	workers     int
	tokenizer   *Tokenizer
}

// New builds a Characteriser. Without WithLemmatizer the English dictionary
// lemmatizer is loaded.
func New(opts ...Option) (*Characteriser, error) {
	c := &Characteriser{}
	for _, opt := range opts {
		opt(c)
	}
	if c.lemma == nil {
		l, err := EnglishLemmatizer()
		if err != nil {
			return nil, fmt.Errorf("loading lemmatizer: %w", err)
		}
		c.lemma = l
	}
	if c.workers <= 0 {
		c.workers = runtime.GOMAXPROCS(0)
	}
	c.tokenizer = NewTokenizer(append(DefaultStopWords(), c.extraStop...), c.lemma)
	return c, nil
}

// Tokenizer exposes the configured tokenizer.
func (c *Characteriser) Tokenizer() *Tokenizer { return c.tokenizer }

// Characterise returns, per cluster index, at most topN terms sorted by weight
// descending and then alphabetically. sets is the full candidate collection
// and defines the document-frequency corpus.
func (c *Characteriser) Characterise(ctx context.Context, sets []geneset.GeneSet, clusters []cluster.Cluster, field Field, topN int) (map[int][]TermScore, error) {
	if !field.valid() {
		return nil, fmt.Errorf("%w: %q", geneset.ErrUnknownField, field)
	}
	if topN <= 0 {
		return nil, fmt.Errorf("%w: topN must be positive, got %d", geneset.ErrInvalidInput, topN)
	}

	corpus := c.buildCorpus(sets, field)

	results := make([][]TermScore, len(clusters))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, cl := range clusters {
		i, cl := i, cl
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			terms, err := c.characteriseOne(corpus, cl, field, topN)
			if err != nil {
				return err
			}
			results[i] = terms
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[int][]TermScore, len(clusters))
	for i, cl := range clusters {
		out[cl.Index] = results[i]
	}
	return out, nil
}

type corpus struct {
	n      int
	df     map[string]int
	tokens map[string][]string
}

func (c *Characteriser) buildCorpus(sets []geneset.GeneSet, field Field) *corpus {
	cp := &corpus{
		n:      len(sets),
		df:     make(map[string]int),
		tokens: make(map[string][]string, len(sets)),
	}
	for _, gs := range sets {
		toks := c.tokenizer.Tokens(field.text(gs, c.stripPrefix))
		cp.tokens[gs.ID()] = toks

		seen := make(map[string]struct{}, len(toks))
		for _, tok := range toks {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			cp.df[tok]++
		}
	}
	return cp
}

func (cp *corpus) idf(term string) float64 {
	return math.Log(1 + float64(cp.n)/float64(1+cp.df[term]))
}

func (c *Characteriser) characteriseOne(cp *corpus, cl cluster.Cluster, field Field, topN int) ([]TermScore, error) {
	tf := make(map[string]int)
	resolved := 0
	for _, id := range cl.Members {
		toks, ok := cp.tokens[id]
		if !ok {
			continue
		}
		resolved++
		for _, tok := range toks {
			tf[tok]++
		}
	}
	if resolved == 0 {
		return nil, fmt.Errorf("%w: cluster %d (%s)", geneset.ErrEmptyCluster, cl.Index, strings.Join(cl.Members, ", "))
	}

	terms := make([]TermScore, 0, len(tf))
	for term, count := range tf {
		terms = append(terms, TermScore{
			Term:    term,
			Weight:  float64(count) * cp.idf(term),
			Count:   count,
			DocFreq: cp.df[term],
		})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Weight != terms[j].Weight {
			return terms[i].Weight > terms[j].Weight
		}
		return terms[i].Term < terms[j].Term
	})
	if len(terms) > topN {
		terms = terms[:topN]
	}
	return terms, nil
}

package pipeline

import (
	"fmt"
	"strings"

	"github.com/hurttlocker/enrichnet/internal/geneset"
	"github.com/hurttlocker/enrichnet/internal/similarity"
	"github.com/hurttlocker/enrichnet/internal/textmine"
)

// Request is the JSON form of an analysis used by the HTTP and MCP surfaces.
// Unset option fields keep the caller's defaults.
type Request struct {
	GMT         string             `json:"gmt,omitempty"`
	SetsPath    string             `json:"sets_path,omitempty"`
	Collection  string             `json:"collection,omitempty"`
	Significant []string           `json:"significant,omitempty"`
	SetStats    map[string]float64 `json:"set_stats,omitempty"`
	GeneStats   map[string]float64 `json:"gene_stats,omitempty"`

	Method          *string  `json:"method,omitempty"`
	Threshold       *float64 `json:"threshold,omitempty"`
	Algorithm       *string  `json:"algorithm,omitempty"`
	Seed            *int64   `json:"seed,omitempty"`
	MinWeight       *float64 `json:"min_weight,omitempty"`
	MinSize         *int     `json:"min_size,omitempty"`
	TextField       *string  `json:"text_field,omitempty"`
	TopN            *int     `json:"top_n,omitempty"`
	StripNamePrefix *bool    `json:"strip_name_prefix,omitempty"`

	Label string `json:"label,omitempty"`
	Save  bool   `json:"save,omitempty"`
}

// Input loads the gene-set collection named by the request. Inline GMT text
// wins over SetsPath; SetsPath is honoured only when allowPaths is set.
func (r Request) Input(allowPaths bool) (Input, error) {
	gmtOpts := geneset.GMTOptions{Collection: r.Collection}

	var (
		sets *geneset.Collection
		err  error
	)
	switch {
	case strings.TrimSpace(r.GMT) != "":
		sets, err = geneset.ReadGMT(strings.NewReader(r.GMT), gmtOpts)
	case strings.TrimSpace(r.SetsPath) != "" && allowPaths:
		sets, err = geneset.Load(r.SetsPath, gmtOpts)
	case strings.TrimSpace(r.SetsPath) != "":
		return Input{}, fmt.Errorf("%w: sets_path is not accepted here, send gmt", geneset.ErrInvalidInput)
	default:
		return Input{}, fmt.Errorf("%w: gmt or sets_path is required", geneset.ErrInvalidInput)
	}
	if err != nil {
		return Input{}, err
	}
	if err := checkStatistics(r.SetStats, r.GeneStats); err != nil {
		return Input{}, err
	}

	return Input{
		Sets:        sets,
		Significant: r.Significant,
		SetStats:    r.SetStats,
		GeneStats:   r.GeneStats,
	}, nil
}

// Options applies the request's overrides to base and validates the result.
func (r Request) Options(base Options) (Options, error) {
	opts := base
	if r.Method != nil {
		m, err := similarity.ParseMethod(*r.Method)
		if err != nil {
			return opts, err
		}
		opts.Method = m
	}
	if r.Threshold != nil {
		opts.Threshold = *r.Threshold
	}
	if r.Algorithm != nil {
		opts.Algorithm = strings.ToLower(strings.TrimSpace(*r.Algorithm))
	}
	if r.Seed != nil {
		opts.Seed = *r.Seed
	}
	if r.MinWeight != nil {
		opts.MinWeight = *r.MinWeight
	}
	if r.MinSize != nil {
		opts.MinSize = *r.MinSize
	}
	if r.TextField != nil {
		f, err := textmine.ParseField(*r.TextField)
		if err != nil {
			return opts, err
		}
		opts.TextField = f
	}
	if r.TopN != nil {
		opts.TopN = *r.TopN
	}
	if r.StripNamePrefix != nil {
		opts.StripNamePrefix = *r.StripNamePrefix
	}
	return opts, opts.Validate()
}

package topics

import (
	"fmt"
	"time"

	"github.com/Aleph-Alpha/lexgraph/v1/clustering"
	"github.com/Aleph-Alpha/lexgraph/v1/hdbscan"
	"github.com/Aleph-Alpha/lexgraph/v1/reduction"
	"github.com/Aleph-Alpha/lexgraph/v1/runstore"
)

// KeywordParams configure keyword extraction.
type KeywordParams struct {
	// NgramMax is the longest n-gram considered. Default: 2
	NgramMax int `yaml:"ngram_max" json:"ngram_max"`

	// MinDF drops terms found in fewer documents than this. Default: 2
	MinDF int `yaml:"min_df" json:"min_df"`

	// MaxDF drops terms found in more than this fraction of documents.
	// Default: 0.95
	MaxDF float64 `yaml:"max_df" json:"max_df"`

	// TopN is the number of keywords kept per topic. Default: 10
	TopN int `yaml:"top_n" json:"top_n"`

	// LabelWords is the number of leading keywords joined into the label.
	// Default: 3
	LabelWords int `yaml:"label_words" json:"label_words"`

	// StopWords are dropped in addition to the built-in list.
	StopWords []string `yaml:"stop_words" json:"stop_words,omitempty"`
}

func (p KeywordParams) withDefaults() KeywordParams {
	if p.NgramMax <= 0 {
		p.NgramMax = 2
	}
	if p.MinDF <= 0 {
		p.MinDF = 2
	}
	if p.MaxDF <= 0 || p.MaxDF > 1 {
		p.MaxDF = 0.95
	}
	if p.TopN <= 0 {
		p.TopN = 10
	}
	if p.LabelWords <= 0 {
		p.LabelWords = 3
	}
	return p
}

// Config configures the topic overlay.
type Config struct {
	Encoder    string           `yaml:"encoder"`
	Projection reduction.Params `yaml:"projection"`
	Layout     reduction.Params `yaml:"layout"`
	Density    hdbscan.Params   `yaml:"density"`
	Keywords   KeywordParams    `yaml:"keywords"`

	LockLease   time.Duration `yaml:"lock_lease"`
	RetainRuns  int           `yaml:"retain_runs"`
	DefaultTopK int           `yaml:"default_top_k"`
}

// DefaultConfig returns a shallower projection than the density family with
// density parameters to match.
func DefaultConfig() Config {
	projection := reduction.DefaultParams(3)
	projection.Neighbors = 10
	projection.MinDist = 0
	return Config{
		Projection:  projection,
		Layout:      reduction.DefaultParams(2),
		Density:     hdbscan.Params{MinClusterSize: 5, MinSamples: 3},
		LockLease:   30 * time.Minute,
		RetainRuns:  10,
		DefaultTopK: 5,
	}
}

// engineConfig is the clustering configuration of the topic family.
func (c Config) engineConfig() clustering.Config {
	return clustering.Config{
		Family:      runstore.FamilyTopic,
		Encoder:     c.Encoder,
		Projection:  c.Projection,
		Layout:      c.Layout,
		Density:     c.Density,
		LockLease:   c.LockLease,
		RetainRuns:  c.RetainRuns,
		DefaultTopK: c.DefaultTopK,
	}
}

// Validate checks the keyword parameters.
func (c Config) Validate() error {
	k := c.Keywords.withDefaults()
	if k.NgramMax > 5 {
		return fmt.Errorf("topics: ngram_max %d is larger than 5", k.NgramMax)
	}
	return nil
}

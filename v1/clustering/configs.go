package clustering

import (
	"fmt"
	"time"

	"github.com/Aleph-Alpha/lexgraph/v1/hdbscan"
	"github.com/Aleph-Alpha/lexgraph/v1/reduction"
	"github.com/Aleph-Alpha/lexgraph/v1/runstore"
)

// AlgorithmUMAPHDBSCAN is the name recorded on runs of this engine.
const AlgorithmUMAPHDBSCAN = "umap+hdbscan"

// Config configures one engine. Each algorithm family gets its own engine and
// its own config.
type Config struct {
	Family runstore.Family `yaml:"family"`

	// Encoder selects the document vectors that are clustered.
	Encoder string `yaml:"encoder"`

	// Projection is the intermediate projection clustered by Density.
	Projection reduction.Params `yaml:"projection"`

	// Layout is the separate 2-D projection used for display.
	Layout reduction.Params `yaml:"layout"`

	Density hdbscan.Params `yaml:"density"`

	// MinDocuments is the smallest corpus a run accepts. It never drops
	// below Density.MinClusterSize or 3.
	MinDocuments int `yaml:"min_documents"`

	// LockLease is how long a run may go without renewing its family lock
	// before another worker may take over. Default: 30m
	LockLease time.Duration `yaml:"lock_lease"`

	// RetainRuns is the number of finished runs kept by the retention pass
	// after each activation. Zero keeps everything.
	RetainRuns int `yaml:"retain_runs"`

	// DefaultTopK applies to graph reads asking for no neighbors count.
	// Default: 5
	DefaultTopK int `yaml:"default_top_k"`
}

// DefaultDensityConfig returns the configuration of the density family.
func DefaultDensityConfig() Config {
	projection := reduction.DefaultParams(5)
	projection.MinDist = 0
	return Config{
		Family:      runstore.FamilyDensity,
		Projection:  projection,
		Layout:      reduction.DefaultParams(2),
		Density:     hdbscan.Params{MinClusterSize: 5},
		LockLease:   30 * time.Minute,
		RetainRuns:  10,
		DefaultTopK: 5,
	}
}

func (c Config) withDefaults() Config {
	if c.Projection.Components == 0 {
		c.Projection.Components = 5
	}
	c.Projection = c.Projection.WithDefaults()
	c.Layout.Components = 2
	c.Layout = c.Layout.WithDefaults()
	c.Density = c.Density.WithDefaults()
	if c.MinDocuments < c.Density.MinClusterSize {
		c.MinDocuments = c.Density.MinClusterSize
	}
	if c.MinDocuments < 3 {
		c.MinDocuments = 3
	}
	if c.LockLease <= 0 {
		c.LockLease = 30 * time.Minute
	}
	if c.DefaultTopK <= 0 {
		c.DefaultTopK = 5
	}
	return c
}

// Validate checks the configuration after defaults are applied.
func (c Config) Validate() error {
	if !c.Family.Valid() {
		return fmt.Errorf("clustering: unknown family %q", c.Family)
	}
	if c.Encoder == "" {
		return fmt.Errorf("clustering: encoder is required")
	}
	if err := c.Projection.Validate(); err != nil {
		return fmt.Errorf("clustering: projection: %w", err)
	}
	if err := c.Layout.Validate(); err != nil {
		return fmt.Errorf("clustering: layout: %w", err)
	}
	return nil
}

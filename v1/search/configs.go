package search

// Weights are the signed contributions of metadata signals.
type Weights struct {
	LegalAreaMatch    float64 `yaml:"legal_area_match"`
	LegalAreaMismatch float64 `yaml:"legal_area_mismatch"`
	DocumentTypeMatch float64 `yaml:"document_type_match"`

	// TemporalProximity is the boost for identical reference dates; it decays
	// linearly to zero at TemporalWindowDays.
	TemporalProximity  float64 `yaml:"temporal_proximity"`
	TemporalWindowDays float64 `yaml:"temporal_window_days"`

	// TemporalDistance applies when reference dates are more than
	// TemporalDistanceYears apart.
	TemporalDistance      float64 `yaml:"temporal_distance"`
	TemporalDistanceYears float64 `yaml:"temporal_distance_years"`

	// PartyOverlap is multiplied by the Jaccard index of the party sets.
	PartyOverlap float64 `yaml:"party_overlap"`

	// PenaltyCap bounds the magnitude of the summed penalties. Zero disables the cap.
	PenaltyCap float64 `yaml:"penalty_cap"`
}

// Config configures the search service.
type Config struct {
	// DefaultEncoder is used when a query names none.
	DefaultEncoder string `yaml:"default_encoder"`

	// DefaultTopN applies when Query.TopN is not positive.
	// Default: 10
	DefaultTopN int `yaml:"default_top_n"`

	// OverFetch multiplies TopN when fetching candidates from the vector
	// store, so that metadata signals can reorder beyond the first TopN.
	// Default: 4
	OverFetch int `yaml:"over_fetch"`

	Weights Weights `yaml:"weights"`
}

// DefaultWeights returns the weights used when none are configured.
func DefaultWeights() Weights {
	return Weights{
		LegalAreaMatch:        0.10,
		LegalAreaMismatch:     -0.15,
		DocumentTypeMatch:     0.05,
		TemporalProximity:     0.05,
		TemporalWindowDays:    365,
		TemporalDistance:      -0.05,
		TemporalDistanceYears: 5,
		PartyOverlap:          0.10,
		PenaltyCap:            0.25,
	}
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		DefaultTopN: 10,
		OverFetch:   4,
		Weights:     DefaultWeights(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DefaultTopN <= 0 {
		c.DefaultTopN = d.DefaultTopN
	}
	if c.OverFetch <= 0 {
		c.OverFetch = d.OverFetch
	}
	if c.Weights == (Weights{}) {
		c.Weights = d.Weights
	}
	return c
}

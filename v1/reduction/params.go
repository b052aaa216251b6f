package reduction

import (
	"errors"
	"fmt"
)

// ErrTooFewPoints is returned when the input cannot form a neighbor graph.
var ErrTooFewPoints = errors.New("reduction: too few points")

// Params configure one projection.
type Params struct {
	// Components is the target dimensionality.
	Components int `yaml:"components" json:"components"`

	// Neighbors is the size of the local neighborhood. Clamped to n-1.
	// Default: 15
	Neighbors int `yaml:"neighbors" json:"neighbors"`

	// MinDist is the minimum distance between embedded points.
	// Default: 0.1
	MinDist float64 `yaml:"min_dist" json:"min_dist"`

	// Spread is the scale of embedded points.
	// Default: 1.0
	Spread float64 `yaml:"spread" json:"spread"`

	// Epochs of SGD. Default: 200
	Epochs int `yaml:"epochs" json:"epochs"`

	// LearningRate is the initial SGD step. Default: 1.0
	LearningRate float64 `yaml:"learning_rate" json:"learning_rate"`

	// NegativeSampleRate is the number of negative samples per positive one.
	// Default: 5
	NegativeSampleRate int `yaml:"negative_sample_rate" json:"negative_sample_rate"`

	Seed int64 `yaml:"seed" json:"seed"`
}

// DefaultParams returns defaults for a projection to components dimensions.
func DefaultParams(components int) Params {
	return Params{
		Components:         components,
		Neighbors:          15,
		MinDist:            0.1,
		Spread:             1.0,
		Epochs:             200,
		LearningRate:       1.0,
		NegativeSampleRate: 5,
		Seed:               42,
	}
}

// WithDefaults fills unset fields with their defaults.
func (p Params) WithDefaults() Params {
	d := DefaultParams(p.Components)
	if p.Neighbors <= 0 {
		p.Neighbors = d.Neighbors
	}
	if p.Spread <= 0 {
		p.Spread = d.Spread
	}
	if p.MinDist < 0 {
		p.MinDist = d.MinDist
	}
	if p.Epochs <= 0 {
		p.Epochs = d.Epochs
	}
	if p.LearningRate <= 0 {
		p.LearningRate = d.LearningRate
	}
	if p.NegativeSampleRate <= 0 {
		p.NegativeSampleRate = d.NegativeSampleRate
	}
	return p
}

// Validate checks p after defaults are applied.
func (p Params) Validate() error {
	if p.Components < 1 {
		return fmt.Errorf("reduction: components must be positive, got %d", p.Components)
	}
	if p.MinDist > p.Spread {
		return fmt.Errorf("reduction: min_dist %.3f must not exceed spread %.3f", p.MinDist, p.Spread)
	}
	return nil
}

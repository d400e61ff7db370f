package resolver

import "github.com/vetledger/vetledger/internal/platform/apperr"

// Weights configures the relative importance of each sub-score. Fixed at
// open; never reloaded at runtime.
type Weights struct {
	Name    float64
	Species float64
	Route   float64
	Dose    float64
}

// DefaultWeights returns the standard scoring weights.
func DefaultWeights() Weights {
	return Weights{Name: 0.40, Species: 0.25, Route: 0.20, Dose: 0.15}
}

// Normalized validates the weights and scales them to sum to 1. Negative
// weights and an all-zero set are rejected.
func (w Weights) Normalized() (Weights, error) {
	if w.Name < 0 || w.Species < 0 || w.Route < 0 || w.Dose < 0 {
		return Weights{}, apperr.New(apperr.InvalidInput, "scoring weights must be non-negative")
	}
	sum := w.Name + w.Species + w.Route + w.Dose
	if sum == 0 {
		return Weights{}, apperr.New(apperr.InvalidInput, "scoring weights sum to zero")
	}
	return Weights{
		Name:    w.Name / sum,
		Species: w.Species / sum,
		Route:   w.Route / sum,
		Dose:    w.Dose / sum,
	}, nil
}

// Package scoring estimates whether text was written by a human. The AI
// detector is treated as an opaque oracle; stylometry is computed locally.
package scoring

import (
	"context"
	"math"

	"github.com/stake-plus/trustink/src/config"
)

const (
	ConfidenceHigh        = "high"
	ConfidenceMedium      = "medium"
	ConfidenceLow         = "low"
	ConfidenceUnavailable = "unavailable"
)

// Score is one oracle verdict. Probabilities are in [0,1].
type Score struct {
	HumanProbability float64 `json:"human_probability"`
	AIProbability    float64 `json:"ai_probability"`
	Confidence       string  `json:"confidence"`
	Source           string  `json:"source"`
}

// Oracle scores text for AI authorship. Implementations must honor ctx.
type Oracle interface {
	Score(ctx context.Context, text string) (Score, error)
	Name() string
}

// New returns the oracle selected by cfg.
func New(cfg config.OracleConfig) Oracle {
	if cfg.Provider == config.OracleHTTP {
		return NewHTTPOracle(cfg)
	}
	return HeuristicOracle{}
}

// Unavailable is the placeholder recorded when the oracle could not answer.
func Unavailable() Score {
	return Score{Confidence: ConfidenceUnavailable, Source: ConfidenceUnavailable}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

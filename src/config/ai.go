package config

import (
	"fmt"
	"time"
)

const (
	OracleHTTP      = "http"
	OracleHeuristic = "heuristic"
)

// OracleConfig selects the AI-detection scoring backend
type OracleConfig struct {
	Provider      string        `yaml:"provider"`
	URL           string        `yaml:"url"`
	Token         string        `yaml:"token"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxInputChars int           `yaml:"maxInputChars" split_words:"true"`
	Attempts      int           `yaml:"attempts"`
}

func defaultOracle() OracleConfig {
	return OracleConfig{
		Provider:      OracleHeuristic,
		URL:           "https://api-inference.huggingface.co/models/roberta-base-openai-detector",
		Timeout:       12 * time.Second,
		MaxInputChars: 1500,
		Attempts:      1,
	}
}

func (o OracleConfig) validate() error {
	switch o.Provider {
	case OracleHeuristic:
	case OracleHTTP:
		if o.URL == "" {
			return fmt.Errorf("oracle url required for provider %q", o.Provider)
		}
	default:
		return fmt.Errorf("unknown oracle provider %q", o.Provider)
	}
	if o.Timeout <= 0 {
		return fmt.Errorf("oracle timeout must be positive")
	}
	return nil
}

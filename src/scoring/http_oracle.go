package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stake-plus/trustink/src/config"
	"github.com/stake-plus/trustink/src/webclient"
)

const detectorSource = "roberta-openai-detector"

// HTTPOracle calls a hosted text-classification model that labels input
// "Real" (human) or "Fake" (machine), in the Hugging Face inference format.
type HTTPOracle struct {
	url        string
	token      string
	maxChars   int
	attempts   int
	retryDelay time.Duration
	httpClient *http.Client
}

func NewHTTPOracle(cfg config.OracleConfig) *HTTPOracle {
	return &HTTPOracle{
		url:        cfg.URL,
		token:      cfg.Token,
		maxChars:   cfg.MaxInputChars,
		attempts:   cfg.Attempts,
		retryDelay: time.Second,
		httpClient: webclient.NewDefault(cfg.Timeout),
	}
}

func (o *HTTPOracle) Name() string { return detectorSource }

type labelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func (o *HTTPOracle) Score(ctx context.Context, text string) (Score, error) {
	headers := map[string]string{}
	if o.token != "" {
		headers["Authorization"] = "Bearer " + o.token
	}
	payload := map[string]string{"inputs": truncate(text, o.maxChars)}

	status, body, err := webclient.DoWithRetry(ctx, o.attempts, o.retryDelay, func() (int, []byte, error) {
		return webclient.PostJSON(ctx, o.httpClient, o.url, headers, payload)
	})
	if err != nil {
		return Score{}, fmt.Errorf("detector request: %w", err)
	}
	if status != http.StatusOK {
		return Score{}, fmt.Errorf("detector returned %d", status)
	}
	return parseDetector(body)
}

// parseDetector accepts both [[{label,score}]] and [{label,score}].
func parseDetector(body []byte) (Score, error) {
	var results []labelScore
	var nested [][]labelScore
	if err := json.Unmarshal(body, &nested); err == nil && len(nested) > 0 {
		results = nested[0]
	} else if err := json.Unmarshal(body, &results); err != nil {
		return Score{}, fmt.Errorf("decode detector response: %w", err)
	}

	var human, ai *float64
	for i := range results {
		switch results[i].Label {
		case "Real":
			human = &results[i].Score
		case "Fake":
			ai = &results[i].Score
		}
	}
	if human == nil || ai == nil {
		return Score{}, fmt.Errorf("detector response missing Real/Fake labels")
	}

	top := max(*human, *ai)
	conf := ConfidenceLow
	switch {
	case top > 0.85:
		conf = ConfidenceHigh
	case top > 0.65:
		conf = ConfidenceMedium
	}
	return Score{
		HumanProbability: round(clamp01(*human), 3),
		AIProbability:    round(clamp01(*ai), 3),
		Confidence:       conf,
		Source:           detectorSource,
	}, nil
}

// truncate cuts text to at most n runes; n <= 0 disables the cut.
func truncate(text string, n int) string {
	if n <= 0 {
		return text
	}
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n])
}

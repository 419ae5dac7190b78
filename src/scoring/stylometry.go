package scoring

import (
	"strings"
	"unicode/utf8"

	"github.com/stake-plus/trustink/src/types"
)

// Stylometry computes writing-style features and a [0,1] style score.
// It is pure and deterministic.
func Stylometry(text string) (types.StylometryFeatures, float64) {
	words := strings.Fields(text)
	sentences := splitSentences(text)

	var letters int
	for _, w := range words {
		letters += utf8.RuneCountInString(w)
	}
	avgWord := ratio(float64(letters), len(words))
	avgSentence := ratio(float64(len(words)), len(sentences))
	richness := vocabularyRichness(words)

	var punct int
	for _, r := range text {
		if strings.ContainsRune(".,!?;:—\"'", r) {
			punct++
		}
	}
	density := ratio(float64(punct), utf8.RuneCountInString(text))

	score := 0.5
	if avgWord > 3 && avgWord < 8 {
		score += 0.12
	}
	if avgSentence > 10 && avgSentence < 30 {
		score += 0.12
	}
	if richness > 0.4 {
		score += 0.14
	}
	if density > 0.02 {
		score += 0.08
	}
	score = max(0.1, min(0.99, score))

	return types.StylometryFeatures{
		WordCount:          len(words),
		SentenceCount:      len(sentences),
		VocabularyRichness: round(richness, 3),
		AvgWordLength:      round(avgWord, 2),
		AvgSentenceLength:  round(avgSentence, 2),
	}, round(score, 3)
}

// splitSentences splits on runs of . ! ? and drops empty fragments.
func splitSentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	out := parts[:0]
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func vocabularyRichness(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		seen[strings.ToLower(w)] = struct{}{}
	}
	return float64(len(seen)) / float64(len(words))
}

func ratio(n float64, d int) float64 {
	return n / float64(max(d, 1))
}

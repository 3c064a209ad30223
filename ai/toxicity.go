package ai

import (
	"context"
	"math"
	"strings"
)

// DefaultLexicon holds the weights of the built-in logistic model (English and French).
var DefaultLexicon = map[string]float64{
	"idiot":      4.0,
	"idiots":     4.0,
	"loser":      4.0,
	"losers":     4.0,
	"moron":      4.0,
	"cretin":     4.0,
	"crétin":     4.0,
	"naze":       4.0,
	"pourriture": 4.0,
	"connard":    4.0,
	"shutup":     4.0,
	"fuck":       4.0,
	"fck":        4.0,
	"shit":       3.0,
	"stupid":     3.0,
	"dumb":       3.0,
	"pathetic":   2.5,
	"trash":      2.0,
	"ugly":       2.0,
	"hate":       2.0,
	"mourir":     2.0,
	"die":        1.5,
	"kill":       0.5,
}

const defaultBias = -2.5

// Scorer is a logistic model over token features.
type Scorer struct {
	vectorizer *Vectorizer
	weights    map[string]float64
	bias       float64
}

func NewScorer(vectorizer *Vectorizer, lexicon map[string]float64, bias float64) *Scorer {
	weights := make(map[string]float64, len(lexicon))
	for word, w := range lexicon {
		weights[strings.ToLower(word)] = w
	}
	return &Scorer{vectorizer: vectorizer, weights: weights, bias: bias}
}

// NewDefaultScorer uses DefaultLexicon and reads at most 256 tokens per message.
func NewDefaultScorer() *Scorer {
	return NewScorer(NewVectorizer(256), DefaultLexicon, defaultBias)
}

// Score returns the probability that text is toxic.
func (s *Scorer) Score(ctx context.Context, text string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	z := s.bias
	for token, value := range s.vectorizer.Features(text) {
		z += s.weights[token] * value
	}
	return 1 / (1 + math.Exp(-z)), nil
}

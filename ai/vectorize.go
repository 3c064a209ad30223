package ai

import (
	"strings"
	"unicode"
)

// Vectorizer turns chat text into a bag of normalised tokens.
type Vectorizer struct {
	maxTokens int
}

// NewVectorizer bounds the number of tokens read from one message.
func NewVectorizer(maxTokens int) *Vectorizer {
	return &Vectorizer{maxTokens: maxTokens}
}

// Features returns token presence for text. Leet digits are folded back to
// letters so that "1diot" and "idiot" share a feature.
func (v *Vectorizer) Features(text string) map[string]float64 {
	words := strings.Fields(strings.ToLower(text))
	if v.maxTokens > 0 && len(words) > v.maxTokens {
		words = words[:v.maxTokens]
	}
	features := make(map[string]float64, len(words))
	for _, w := range words {
		if token := foldToken(w); token != "" {
			// Short chat messages work better with binary features than counts.
			features[token] = 1.0
		}
	}
	return features
}

func foldToken(word string) string {
	var b strings.Builder
	for _, r := range word {
		switch r {
		case '4', '@':
			r = 'a'
		case '3':
			r = 'e'
		case '1', '!', '|':
			r = 'i'
		case '0':
			r = 'o'
		case '5', '$':
			r = 's'
		}
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

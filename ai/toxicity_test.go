package ai

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type testCase struct {
	Text     string
	IsToxic  bool
	Category string
}

const threshold = 0.8

func TestScorer_Dataset(t *testing.T) {
	req := require.New(t)
	scorer := NewDefaultScorer()
	ctx := context.Background()

	for _, tc := range generateDataset() {
		score, err := scorer.Score(ctx, tc.Text)
		req.NoError(err)
		req.Equal(tc.IsToxic, score >= threshold, "[%s] %q scored %.4f", tc.Category, tc.Text, score)
	}
}

func TestScorer_HonoursContext(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDefaultScorer().Score(ctx, "anything")
	req.ErrorIs(err, context.Canceled)
}

func TestVectorizer_FoldsLeet(t *testing.T) {
	req := require.New(t)
	features := NewVectorizer(3).Features("Y0u 1diot, l0ser! ignored")
	req.Equal(map[string]float64{"you": 1, "idiot": 1, "loseri": 1}, features)
}

func generateDataset() []testCase {
	var cases []testCase

	// Course vocabulary that looks like threats
	for _, kw := range []string{"kill", "terminate", "abort", "execute", "panic"} {
		cases = append(cases, testCase{
			Text:     fmt.Sprintf("I need to %s the worker process before the lab deadline.", kw),
			Category: "Tech_Safe",
		})
	}

	for _, p := range []string{"idiot", "loser", "naze", "pourriture", "crétin", "moron"} {
		cases = append(cases, testCase{
			Text:     fmt.Sprintf("You are such a %s, go away.", p),
			IsToxic:  true,
			Category: "Toxic_Direct",
		})
	}

	for _, g := range []string{"Hello", "Good morning", "Thanks for the help", "See you in office hours"} {
		cases = append(cases, testCase{
			Text:     fmt.Sprintf("%s! The slides for lesson 3 are online.", g),
			Category: "Social_Safe",
		})
	}

	for _, l := range []string{"1diot", "l0ser", "f*ck", "m0r0n"} {
		cases = append(cases, testCase{
			Text:     fmt.Sprintf("Hey you %s, nobody reads your answers.", l),
			IsToxic:  true,
			Category: "Toxic_Leet",
		})
	}
	return cases
}

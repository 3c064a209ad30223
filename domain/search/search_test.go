package search

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	req := require.New(t)

	q := Parse("Dijkstra heap --from @alice --lang EN --limit 5")

	req.Equal("dijkstra heap", q.Terms)
	req.Equal("alice", q.Sender)
	req.Equal("en", q.Language)
	req.Equal(5, q.Limit)
	req.False(q.Empty())
}

func TestParse_FlagsOnly(t *testing.T) {
	req := require.New(t)

	q := Parse("--from bob")
	req.Empty(q.Terms)
	req.Equal("bob", q.Sender)
	req.False(q.Empty())

	req.True(Parse("   ").Empty())
}

func TestParse_UnknownFlagIsATerm(t *testing.T) {
	req := require.New(t)

	q := Parse("sorting --stable merge --limit x")

	req.Equal("sorting --stable merge", q.Terms)
	req.Zero(q.Limit)
}

package projection

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTimeline_InOrder(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("algorithms")

	for seq := int64(1); seq <= 3; seq++ {
		added, gap := timeline.Apply(Entry{Seq: seq, SenderID: "alice"})
		req.True(added)
		req.False(gap)
	}

	req.Equal(int64(3), timeline.LastSeq())
	req.Len(timeline.Entries(), 3)
}

func TestTimeline_GapThenFill(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("algorithms")
	timeline.Seek(10)

	// Given seq 13 arrives before 11 and 12
	added, gap := timeline.Apply(Entry{Seq: 13})
	req.True(added)
	req.True(gap)
	req.Equal(int64(10), timeline.LastSeq())

	// When the sync fills the hole
	timeline.Apply(Entry{Seq: 11})
	_, gap = timeline.Apply(Entry{Seq: 12})

	// Then the timeline is contiguous again
	req.False(gap)
	req.Equal(int64(13), timeline.LastSeq())
	entries := timeline.Entries()
	req.Equal(int64(11), entries[0].Seq)
	req.Equal(int64(13), entries[2].Seq)
}

func TestTimeline_Duplicates(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("algorithms")
	timeline.Seek(5)

	added, _ := timeline.Apply(Entry{Seq: 4})
	req.False(added)

	added, _ = timeline.Apply(Entry{Seq: 6, Text: "first"})
	req.True(added)
	added, _ = timeline.Apply(Entry{Seq: 6, Text: "again"})
	req.False(added)
	req.Equal("first", timeline.Entries()[0].Text)
}

func TestTimeline_Delete(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("algorithms")
	timeline.Apply(Entry{Seq: 1, Text: "oops"})

	req.True(timeline.Delete(1))
	req.False(timeline.Delete(2))

	entry := timeline.Entries()[0]
	req.True(entry.Deleted)
	req.Empty(entry.Text)
}

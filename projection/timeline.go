// Package projection keeps the client side view of a room timeline.
// Entries are ordered by room sequence and deduplicated; a hole in the
// sequence is reported so the caller can ask for a room:sync.
package projection

import (
	"sort"

	"campus-chat/domain/chat"
)

type Entry struct {
	Seq       int64
	MessageID string
	SenderID  string
	Text      string
	Deleted   bool
}

type Timeline struct {
	Room    chat.RoomID
	lastSeq int64
	entries map[int64]Entry
}

func NewTimeline(room chat.RoomID) *Timeline {
	return &Timeline{Room: room, entries: make(map[int64]Entry)}
}

// Seek marks every sequence up to seq as already seen, typically the last
// sequence of the room at join time.
func (t *Timeline) Seek(seq int64) {
	if seq > t.lastSeq {
		t.lastSeq = seq
		t.advance()
	}
}

// Apply records an entry. It returns false for a duplicate. gap is true when
// entries are still missing after the highest contiguous sequence.
func (t *Timeline) Apply(e Entry) (added bool, gap bool) {
	if e.Seq <= 0 || t.seen(e.Seq) {
		return false, t.hasGap()
	}
	t.entries[e.Seq] = e
	t.advance()
	return true, t.hasGap()
}

// Delete marks an entry as removed, keeping its place in the sequence.
func (t *Timeline) Delete(seq int64) bool {
	e, ok := t.entries[seq]
	if !ok {
		return false
	}
	e.Deleted = true
	e.Text = ""
	t.entries[seq] = e
	return true
}

// LastSeq is the highest sequence with no hole before it.
func (t *Timeline) LastSeq() int64 {
	return t.lastSeq
}

// Entries returns the known entries in sequence order.
func (t *Timeline) Entries() []Entry {
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (t *Timeline) seen(seq int64) bool {
	_, ok := t.entries[seq]
	return ok || seq <= t.lastSeq
}

func (t *Timeline) advance() {
	for {
		if _, ok := t.entries[t.lastSeq+1]; !ok {
			return
		}
		t.lastSeq++
	}
}

func (t *Timeline) hasGap() bool {
	for seq := range t.entries {
		if seq > t.lastSeq {
			return true
		}
	}
	return false
}

package moderation

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"campus-chat/domain/chat"
	"campus-chat/errors"
)

const (
	RuleBlacklist = "blacklist"
	RuleSpam      = "spam"
	RuleRateLimit = "rate_limit"
	RuleSlowMode  = "slow_mode"
	RuleToxicity  = "toxicity"
)

// Violation describes a deterministic rule hit. Strike tells whether the
// sender is escalated along the sanction ladder for it.
type Violation struct {
	Rule   string
	Words  []string
	Strike bool
	Err    error
}

type sample struct {
	at          time.Time
	fingerprint string
}

// RuleEngine runs the synchronous checks of one room. It is owned by the
// room worker and is not safe for concurrent use.
type RuleEngine struct {
	log          *slog.Logger
	global       *Moderator
	room         *Moderator
	settings     chat.ModerationSettings
	censoredChar rune
	window       time.Duration
	history      map[string][]sample
}

// NewRuleEngine wires the shared dictionary with the room blacklist.
func NewRuleEngine(log *slog.Logger, global *Moderator, settings chat.ModerationSettings, censoredChar rune) (*RuleEngine, error) {
	r := &RuleEngine{
		log:          log,
		global:       global,
		censoredChar: censoredChar,
		window:       time.Minute,
		history:      make(map[string][]sample),
	}
	if err := r.Reconfigure(settings); err != nil {
		return nil, err
	}
	return r, nil
}

// Reconfigure rebuilds the room blacklist after a settings change.
func (r *RuleEngine) Reconfigure(settings chat.ModerationSettings) error {
	room, err := NewModerator(settings.WordBlacklist, r.censoredChar, r.log)
	if err != nil {
		return fmt.Errorf("building room blacklist: %w", err)
	}
	r.room = room
	r.settings = settings
	return nil
}

// Check evaluates a send. It never mutates the engine: accepted messages
// are recorded separately through Record.
func (r *RuleEngine) Check(userID, text string, lastMessageAt *time.Time, slowMode time.Duration, now time.Time) *Violation {
	if slowMode > 0 && lastMessageAt != nil {
		if wait := lastMessageAt.Add(slowMode).Sub(now); wait > 0 {
			return &Violation{Rule: RuleSlowMode, Err: errors.RateLimit(RuleSlowMode, wait)}
		}
	}

	recent := r.recent(userID, now)
	if limit := r.settings.MaxMessagesPerMinute; limit > 0 && len(recent) >= limit {
		wait := recent[0].at.Add(r.window).Sub(now)
		return &Violation{Rule: RuleRateLimit, Err: errors.RateLimit(RuleRateLimit, wait)}
	}

	if v := r.CheckContent(text); v != nil {
		return v
	}

	if threshold := r.settings.SpamThreshold; threshold > 0 {
		fp := fingerprint(text)
		duplicates := 0
		for _, s := range recent {
			if s.fingerprint == fp {
				duplicates++
			}
		}
		if duplicates >= threshold {
			return &Violation{
				Rule:   RuleSpam,
				Strike: true,
				Err:    errors.ModerationBlock(RuleSpam, "identical message sent too many times"),
			}
		}
	}
	return nil
}

// CheckContent runs the blacklist alone, used for sends and edits.
func (r *RuleEngine) CheckContent(text string) *Violation {
	var words []string
	if r.settings.AutoModeration {
		words = append(words, r.global.Contains(text)...)
	}
	words = append(words, r.room.Contains(text)...)
	if len(words) == 0 {
		return nil
	}
	return &Violation{
		Rule:   RuleBlacklist,
		Words:  words,
		Strike: true,
		Err:    errors.ModerationBlock(RuleBlacklist, "message contains blocked words"),
	}
}

// Record stores an accepted message in the sliding window of its sender.
func (r *RuleEngine) Record(userID, text string, at time.Time) {
	r.history[userID] = append(r.recent(userID, at), sample{at: at, fingerprint: fingerprint(text)})
}

// Forget drops the window of a user who left the room.
func (r *RuleEngine) Forget(userID string) {
	delete(r.history, userID)
}

func (r *RuleEngine) recent(userID string, now time.Time) []sample {
	samples := r.history[userID]
	cut := 0
	for cut < len(samples) && !samples[cut].at.After(now.Add(-r.window)) {
		cut++
	}
	if cut == len(samples) {
		delete(r.history, userID)
		return nil
	}
	samples = samples[cut:]
	r.history[userID] = samples
	return samples
}

func fingerprint(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

package services

import (
	"regexp"
	"strings"
	"sync"

	"github.com/custodia-labs/sercha-cli/internal/core/domain"
)

// NoiseRule is one entry in a Noise Flagger rule set, evaluated in order;
// the first matching rule decides.
type NoiseRule struct {
	// Pattern is matched against Message.Text, case-insensitively. If the
	// string compiles as a regular expression it is used as one;
	// otherwise it falls back to a plain substring match.
	Pattern string
	// Senders, when non-empty, matches Message.Contact against a configured
	// list of known commercial senders or short codes instead of text.
	Senders []string

	re *regexp.Regexp
}

// DefaultNoiseRules returns a reasonable default rule set covering common
// commercial/automated senders, used when no external rule file is
// configured.
func DefaultNoiseRules() []NoiseRule {
	return []NoiseRule{
		{Pattern: `(?i)\bunsubscribe\b`},
		{Pattern: `(?i)\bverification code\b`},
		{Pattern: `(?i)\breply stop to (cancel|opt out)\b`},
		{Pattern: `(?i)\blimited time offer\b`},
		{Senders: []string{"22000", "40404", "shortcode"}},
	}
}

// NoiseFlagger sets is_noise on each record via a configurable, ordered
// rule set loaded from an external list, with a built-in fallback set.
type NoiseFlagger struct {
	mu    sync.RWMutex
	rules []NoiseRule
}

// NewNoiseFlagger compiles rules and returns a ready Flagger. An empty or
// nil rule slice falls back to DefaultNoiseRules.
func NewNoiseFlagger(rules []NoiseRule) *NoiseFlagger {
	f := &NoiseFlagger{}
	if len(rules) == 0 {
		rules = DefaultNoiseRules()
	}
	f.SetRules(rules)
	return f
}

// SetRules atomically replaces the active rule set, compiling any regex
// patterns. Invalid regexes fall back to a literal substring match rather
// than failing the reload.
func (f *NoiseFlagger) SetRules(rules []NoiseRule) {
	compiled := make([]NoiseRule, len(rules))
	for i, r := range rules {
		if r.Pattern != "" {
			if re, err := regexp.Compile("(?i)" + r.Pattern); err == nil {
				r.re = re
			}
		}
		compiled[i] = r
	}

	f.mu.Lock()
	f.rules = compiled
	f.mu.Unlock()
}

// Flag evaluates the rule set against msg and returns whether it is noise.
func (f *NoiseFlagger) Flag(msg domain.Message) bool {
	f.mu.RLock()
	rules := f.rules
	f.mu.RUnlock()

	for _, r := range rules {
		if len(r.Senders) > 0 {
			for _, s := range r.Senders {
				if strings.EqualFold(msg.Contact, s) {
					return true
				}
			}
			continue
		}
		if r.re != nil {
			if r.re.MatchString(msg.Text) {
				return true
			}
			continue
		}
		if r.Pattern != "" && strings.Contains(strings.ToLower(msg.Text), strings.ToLower(r.Pattern)) {
			return true
		}
	}
	return false
}

// FlagBatch sets IsNoise on every message in place.
func (f *NoiseFlagger) FlagBatch(messages []domain.Message) {
	for i := range messages {
		messages[i].IsNoise = f.Flag(messages[i])
	}
}

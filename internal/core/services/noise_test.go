package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/custodia-labs/sercha-cli/internal/core/domain"
)

func TestNoiseFlagger_DefaultRules(t *testing.T) {
	f := NewNoiseFlagger(nil)

	assert.True(t, f.Flag(domain.Message{Text: "Reply STOP to cancel this subscription"}))
	assert.True(t, f.Flag(domain.Message{Text: "Your verification code is 482913"}))
	assert.False(t, f.Flag(domain.Message{Text: "see you at 7?"}))
}

func TestNoiseFlagger_SenderRule(t *testing.T) {
	f := NewNoiseFlagger(nil)
	assert.True(t, f.Flag(domain.Message{Contact: "22000", Text: "hi"}))
}

func TestNoiseFlagger_SetRules_InvalidRegexFallsBackToSubstring(t *testing.T) {
	f := NewNoiseFlagger([]NoiseRule{{Pattern: "[unterminated"}})
	assert.True(t, f.Flag(domain.Message{Text: "this has [unterminated inside"}))
	assert.False(t, f.Flag(domain.Message{Text: "no match here"}))
}

func TestNoiseFlagger_FlagBatch(t *testing.T) {
	f := NewNoiseFlagger(nil)
	messages := []domain.Message{
		{Text: "unsubscribe now"},
		{Text: "lunch tomorrow?"},
	}
	f.FlagBatch(messages)
	assert.True(t, messages[0].IsNoise)
	assert.False(t, messages[1].IsNoise)
}

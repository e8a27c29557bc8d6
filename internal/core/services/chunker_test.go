package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-cli/internal/core/domain"
)

func makeMessages(n int, contact string) []domain.Message {
	msgs := make([]domain.Message, n)
	for i := 0; i < n; i++ {
		ts := int64(i)
		msgs[i] = domain.Message{ID: string(rune('a' + i)), Text: "msg", Timestamp: &ts, Contact: contact}
	}
	return msgs
}

func TestChunker_FullCoverageWithOverlap(t *testing.T) {
	c := NewChunker(WithWindowSize(3), WithOverlap(2))
	msgs := makeMessages(5, "alice")

	chunks := c.Chunk(msgs)

	// window=3 overlap=2 -> stride 1, covering n-w+1 = 3 full windows,
	// the last one already reaches the end so no trailing partial is added.
	require.Len(t, chunks, 3)
	assert.Equal(t, 3, chunks[0].MemberCount)
	assert.Equal(t, []string{"a", "b", "c"}, chunks[0].MemberIDs)
	assert.Equal(t, []string{"c", "d", "e"}, chunks[2].MemberIDs)
}

func TestChunker_TrailingPartialWindow(t *testing.T) {
	c := NewChunker(WithWindowSize(3), WithOverlap(0))
	msgs := makeMessages(7, "alice")

	chunks := c.Chunk(msgs)

	// stride 3: [0,1,2] [3,4,5] then trailing [6] has one new member.
	require.Len(t, chunks, 3)
	assert.Equal(t, 1, chunks[2].MemberCount)
	assert.Equal(t, []string{"g"}, chunks[2].MemberIDs)
}

func TestChunker_NoTrailingWindowWhenNoNewMembers(t *testing.T) {
	c := NewChunker(WithWindowSize(4), WithOverlap(0))
	msgs := makeMessages(4, "alice")

	chunks := c.Chunk(msgs)

	require.Len(t, chunks, 1)
	assert.Equal(t, 4, chunks[0].MemberCount)
}

func TestChunker_NeverCrossesContacts(t *testing.T) {
	c := NewChunker(WithWindowSize(5), WithOverlap(1))
	msgs := append(makeMessages(2, "alice"), makeMessages(2, "bob")...)

	chunks := c.Chunk(msgs)

	for _, chunk := range chunks {
		assert.NotEmpty(t, chunk.Contact)
	}
	require.Len(t, chunks, 2)
}

func TestChunker_NullTimestampSortsFirst(t *testing.T) {
	c := NewChunker(WithWindowSize(2), WithOverlap(0))
	ts := int64(5)
	msgs := []domain.Message{
		{ID: "withTs", Timestamp: &ts, Contact: "alice"},
		{ID: "noTs", Timestamp: nil, Contact: "alice"},
	}

	chunks := c.Chunk(msgs)

	require.Len(t, chunks, 1)
	assert.Equal(t, []string{"noTs", "withTs"}, chunks[0].MemberIDs)
}

func TestChunker_SingleMessageContact(t *testing.T) {
	c := NewChunker(WithWindowSize(5), WithOverlap(1))
	msgs := makeMessages(1, "alice")

	chunks := c.Chunk(msgs)

	require.Len(t, chunks, 1)
	assert.Equal(t, 1, chunks[0].MemberCount)
}

func TestChunker_OverlapClampedBelowWindowSize(t *testing.T) {
	c := NewChunker(WithWindowSize(3), WithOverlap(10))
	assert.Equal(t, 2, c.overlap)
}

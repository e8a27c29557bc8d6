package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-cli/internal/core/domain"
)

func TestNormalizer_BuildsMessagesAndImages(t *testing.T) {
	n := NewNormalizer(nil)
	ts := int64(100)

	rows := []domain.RawRecord{
		{Text: "hello there", Timestamp: &ts, Contact: " Alice@Example.com ", Direction: "in"},
		{Text: "a photo", IsImage: true, Filename: "img1.jpg", Path: "/evidence/img1.jpg"},
	}

	result := n.Normalize("batch1", rows)

	require.Len(t, result.Messages, 1)
	require.Len(t, result.Images, 1)
	assert.Equal(t, 0, result.Skipped)

	msg := result.Messages[0]
	assert.Equal(t, "hello there", msg.Text)
	assert.Equal(t, "alice@example.com", msg.Contact)
	assert.Equal(t, domain.DirectionIncoming, msg.Direction)
	assert.Equal(t, "batch1", msg.SourceTag)
	assert.Equal(t, "batch1-1", msg.ID)

	img := result.Images[0]
	assert.Equal(t, "a photo", img.Description)
	assert.Equal(t, "img1.jpg", img.Filename)
	assert.Equal(t, "batch1-2", img.ID)
}

func TestNormalizer_SkipsBlankTextAndCountsIt(t *testing.T) {
	n := NewNormalizer(nil)

	rows := []domain.RawRecord{
		{Text: "   "},
		{Text: "real message"},
		{Text: "", IsImage: true},
	}

	result := n.Normalize("batch1", rows)

	assert.Len(t, result.Messages, 1)
	assert.Empty(t, result.Images)
	assert.Equal(t, 2, result.Skipped)
}

func TestNormalizer_UsesInjectedIDFunction(t *testing.T) {
	seq := 0
	n := NewNormalizer(func() string {
		seq++
		return "fixed-id-" + string(rune('0'+seq))
	})

	rows := []domain.RawRecord{{Text: "a"}, {Text: "b"}}
	result := n.Normalize("batch1", rows)

	require.Len(t, result.Messages, 2)
	assert.Equal(t, "fixed-id-1", result.Messages[0].ID)
	assert.Equal(t, "fixed-id-2", result.Messages[1].ID)
}

func TestNormalizer_UnrecognizedDirectionBecomesUnknown(t *testing.T) {
	n := NewNormalizer(nil)

	result := n.Normalize("batch1", []domain.RawRecord{{Text: "hi", Direction: "sideways"}})

	require.Len(t, result.Messages, 1)
	assert.Equal(t, domain.DirectionUnknown, result.Messages[0].Direction)
}

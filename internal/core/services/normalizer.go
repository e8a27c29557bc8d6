package services

import (
	"strconv"
	"strings"

	"github.com/custodia-labs/sercha-cli/internal/core/domain"
	"github.com/custodia-labs/sercha-cli/internal/logger"
)

// Normalizer converts parser output into the uniform Message/ImageRecord
// shape of §3.1. It never lets a malformed row abort the caller; it skips
// the row and increments a counter instead.
type Normalizer struct {
	idFn func() string
}

// NewNormalizer builds a Normalizer. idFn supplies fallback ids for rows the
// source left unidentified; pass nil to use a monotonic in-batch counter.
func NewNormalizer(idFn func() string) *Normalizer {
	return &Normalizer{idFn: idFn}
}

// NormalizeResult reports what a Normalize call produced.
type NormalizeResult struct {
	Messages []domain.Message
	Images   []domain.ImageRecord
	Skipped  int
}

// Normalize yields one Message or ImageRecord per valid raw row. Rows with
// no text (for messages) or no description (for images) are malformed and
// skipped.
func (n *Normalizer) Normalize(sourceTag string, rows []domain.RawRecord) NormalizeResult {
	var result NormalizeResult
	seq := 0

	for _, r := range rows {
		seq++
		if r.IsImage {
			img, ok := n.normalizeImage(r, sourceTag, seq)
			if !ok {
				result.Skipped++
				logger.Debug("normalizer: skipped malformed image row in batch %s", sourceTag)
				continue
			}
			result.Images = append(result.Images, img)
			continue
		}

		msg, ok := n.normalizeMessage(r, sourceTag, seq)
		if !ok {
			result.Skipped++
			logger.Debug("normalizer: skipped malformed message row in batch %s", sourceTag)
			continue
		}
		result.Messages = append(result.Messages, msg)
	}

	return result
}

func (n *Normalizer) normalizeMessage(r domain.RawRecord, sourceTag string, seq int) (domain.Message, bool) {
	text := strings.TrimSpace(r.Text)
	if text == "" {
		return domain.Message{}, false
	}

	return domain.Message{
		ID:          n.nextID(sourceTag, seq),
		Text:        text,
		Timestamp:   r.Timestamp,
		Contact:     canonicalContact(r.Contact),
		ContactName: r.ContactName,
		Direction:   parseDirection(r.Direction),
		App:         r.App,
		GPSLat:      r.GPSLat,
		GPSLon:      r.GPSLon,
		SourceTag:   sourceTag,
	}, true
}

func (n *Normalizer) normalizeImage(r domain.RawRecord, sourceTag string, seq int) (domain.ImageRecord, bool) {
	desc := strings.TrimSpace(r.Text)
	if desc == "" {
		return domain.ImageRecord{}, false
	}

	return domain.ImageRecord{
		ID:          n.nextID(sourceTag, seq),
		Description: desc,
		Filename:    r.Filename,
		Path:        r.Path,
		Timestamp:   r.Timestamp,
		GPSLat:      r.GPSLat,
		GPSLon:      r.GPSLon,
		SourceTag:   sourceTag,
	}, true
}

func (n *Normalizer) nextID(sourceTag string, seq int) string {
	if n.idFn != nil {
		return n.idFn()
	}
	return sourceTag + "-" + strconv.Itoa(seq)
}

func canonicalContact(contact string) string {
	return strings.ToLower(strings.TrimSpace(contact))
}

func parseDirection(raw string) domain.Direction {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "incoming", "in", "received":
		return domain.DirectionIncoming
	case "outgoing", "out", "sent":
		return domain.DirectionOutgoing
	default:
		return domain.DirectionUnknown
	}
}

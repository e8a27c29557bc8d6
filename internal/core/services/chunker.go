package services

import (
	"sort"
	"strings"

	"github.com/custodia-labs/sercha-cli/internal/core/domain"
)

// Default window parameters, used when a caller passes zero values.
const (
	DefaultWindowSize = 5
	DefaultOverlap    = 1
)

// Chunker groups adjacent messages of a conversation into overlapping
// context windows, per §4.5.
type Chunker struct {
	windowSize int
	overlap    int
}

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

// WithWindowSize overrides the default window size.
func WithWindowSize(w int) ChunkerOption {
	return func(c *Chunker) { c.windowSize = w }
}

// WithOverlap overrides the default overlap.
func WithOverlap(o int) ChunkerOption {
	return func(c *Chunker) { c.overlap = o }
}

// NewChunker builds a Chunker with defaults, then applies opts. An overlap
// greater than or equal to the window size is clamped down so every window
// still advances.
func NewChunker(opts ...ChunkerOption) *Chunker {
	c := &Chunker{windowSize: DefaultWindowSize, overlap: DefaultOverlap}
	for _, opt := range opts {
		opt(c)
	}
	if c.windowSize < 1 {
		c.windowSize = 1
	}
	if c.overlap < 0 {
		c.overlap = 0
	}
	if c.overlap >= c.windowSize {
		c.overlap = c.windowSize - 1
	}
	return c
}

// Chunk partitions messages by contact, sorts each partition by
// (timestamp, id), and slides a window of size windowSize with stride
// windowSize-overlap to build ContextChunks. Chunks never cross contacts.
func (c *Chunker) Chunk(messages []domain.Message) []domain.ContextChunk {
	byContact := make(map[string][]domain.Message)
	for _, m := range messages {
		byContact[m.Contact] = append(byContact[m.Contact], m)
	}

	contacts := make([]string, 0, len(byContact))
	for contact := range byContact {
		contacts = append(contacts, contact)
	}
	sort.Strings(contacts)

	var chunks []domain.ContextChunk
	for _, contact := range contacts {
		msgs := byContact[contact]
		sort.SliceStable(msgs, func(i, j int) bool {
			ti, tj := msgs[i].Timestamp, msgs[j].Timestamp
			switch {
			case ti == nil && tj == nil:
				return msgs[i].ID < msgs[j].ID
			case ti == nil:
				return true
			case tj == nil:
				return false
			case *ti != *tj:
				return *ti < *tj
			default:
				return msgs[i].ID < msgs[j].ID
			}
		})
		chunks = append(chunks, c.windowContact(msgs)...)
	}

	return chunks
}

func (c *Chunker) windowContact(msgs []domain.Message) []domain.ContextChunk {
	n := len(msgs)
	if n == 0 {
		return nil
	}

	stride := c.windowSize - c.overlap
	if stride < 1 {
		stride = 1
	}

	var chunks []domain.ContextChunk
	lastEnd := -1
	for start := 0; start < n; start += stride {
		end := start + c.windowSize
		if end > n {
			end = n
		}
		// Skip a trailing window with no members past the previous window.
		if end-1 <= lastEnd {
			break
		}
		chunks = append(chunks, buildChunk(msgs[start:end]))
		lastEnd = end - 1
		if end == n {
			break
		}
	}

	return chunks
}

func buildChunk(members []domain.Message) domain.ContextChunk {
	texts := make([]string, len(members))
	ids := make([]string, len(members))
	allNoise := true
	for i, m := range members {
		texts[i] = m.Text
		ids[i] = m.ID
		if !m.IsNoise {
			allNoise = false
		}
	}

	var start, end *int64
	if ts := members[0].Timestamp; ts != nil {
		v := *ts
		start = &v
	}
	if ts := members[len(members)-1].Timestamp; ts != nil {
		v := *ts
		end = &v
	}
	first := members[0]
	return domain.ContextChunk{
		ID:             domain.ChunkID(first.Contact, first.ID, len(members)),
		Text:           strings.Join(texts, "\n"),
		TimestampStart: start,
		TimestampEnd:   end,
		Contact:        first.Contact,
		ContactName:    first.ContactName,
		MemberIDs:      ids,
		FirstMessageID: first.ID,
		MemberCount:    len(members),
		IsNoise:        allNoise,
	}
}

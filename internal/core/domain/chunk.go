package domain

import "fmt"

// ContextChunk is an overlapping window of adjacent messages from one
// contact, indexed as a single document to preserve conversational context.
type ContextChunk struct {
	ID             string
	Text           string
	TimestampStart *int64
	TimestampEnd   *int64
	Contact        string
	ContactName    string
	MemberIDs      []string
	FirstMessageID string
	MemberCount    int
	IsNoise        bool
}

// ChunkID derives a ContextChunk's id from its contact, first member id,
// and member count, per the entity's identity rule.
func ChunkID(contact, firstMessageID string, memberCount int) string {
	return fmt.Sprintf("%s:%s:%d", contact, firstMessageID, memberCount)
}

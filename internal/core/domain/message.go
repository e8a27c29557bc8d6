package domain

// Direction classifies a Message relative to the evidence owner.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
	DirectionUnknown  Direction = "unknown"
)

// Message is a single SMS/email/chat record pulled from seized evidence.
type Message struct {
	ID          string
	Text        string
	Timestamp   *int64 // Unix seconds; nil when the source row carried no timestamp.
	Contact     string
	ContactName string
	Direction   Direction
	App         string
	GPSLat      *float64
	GPSLon      *float64
	IsNoise     bool
	SourceTag   string
}

// ImageRecord is a captioned image from a seized image corpus. Its
// Description serves as the indexed document text.
type ImageRecord struct {
	ID          string
	Description string
	Filename    string
	Path        string
	Timestamp   *int64
	GPSLat      *float64
	GPSLon      *float64
	SourceTag   string
}

// RawRecord is the one typed shape the Normalizer accepts from an external
// parser: a heterogeneous row with optional fields, none of which are
// guaranteed present.
type RawRecord struct {
	Text        string
	Timestamp   *int64
	Contact     string
	ContactName string
	Direction   string
	App         string
	GPSLat      *float64
	GPSLon      *float64
	// Image-only fields; zero value when the record is a Message.
	IsImage  bool
	Filename string
	Path     string
}

package domain

import "time"

// RawLogPayload is the full log content returned by a single fetch.
// Body is kept verbatim; decoding into lines happens in the feed package.
type RawLogPayload struct {
	QueryID   string
	Body      []byte
	FetchedAt time.Time
}

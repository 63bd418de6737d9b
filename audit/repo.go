package audit

import "context"

// Repo appends entries to durable storage. The core never updates or deletes
// entries; retention is an external concern.
type Repo interface {
	Append(ctx context.Context, entry *Entry) error
}

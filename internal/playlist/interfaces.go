package playlist

import (
	"context"
	"io"
	"time"
)

// Source lists shows and plays from a remote station site.
type Source interface {
	// ListShows returns the entries on one listing page. An empty slice marks
	// the end of pagination.
	ListShows(ctx context.Context, pageURL string) ([]ListingEntry, error)
	// ListPlays returns the plays on a show page.
	ListPlays(ctx context.Context, showURL string) ([]PlayEntry, error)
}

// Store persists shows and play events with insert-if-absent semantics.
type Store interface {
	ShowExists(ctx context.Context, url string) (bool, error)
	// SaveShow inserts the show unless its URL is already stored and reports
	// whether a row was written.
	SaveShow(ctx context.Context, show Show) (bool, error)
	// SavePlayEvents inserts plays not yet stored for the show and returns how
	// many were new. Duplicates are skipped, never reported as errors.
	SavePlayEvents(ctx context.Context, showURL string, events []PlayEvent) (int, error)
	// IngestShow stores the show and its plays in one transaction. Either
	// both are written or neither is. created is false when the show was
	// already stored; plays are still merged in that case.
	IngestShow(ctx context.Context, show Show, events []PlayEvent) (created bool, inserted int, err error)
	// QueryHistory returns every play of the target joined to its show, most
	// recently ingested first.
	QueryHistory(ctx context.Context, targetName string) ([]HistoryRow, error)
	CountShows(ctx context.Context, targetName string) (int, error)
	Close() error
}

// SnapshotSink writes exported snapshot files and returns their URI.
type SnapshotSink interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher announces exported snapshots to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Pacer spaces out network fetches against one source host.
type Pacer interface {
	Wait(ctx context.Context, url string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Hasher computes content digests for exported snapshots.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

package storageclient

import "context"

// Client is the full Storage Interface (spec §4.3): the generic tabular
// operations plus the readings-specific fetch and purge calls every other
// component is built against. Every call is asynchronous over the wire;
// implementations return *errtypes.StorageTransient for transport failures
// so callers can retry with backoff, and carry semantic failures (like a 409
// from Purge) in-band via QueryResult.Message / an *errtypes.StorageConflict.
type Client interface {
	QueryTbl(ctx context.Context, table, where string) (*QueryResult, error)
	QueryTblWithPayload(ctx context.Context, table string, payload []byte) (*QueryResult, error)
	InsertIntoTbl(ctx context.Context, table string, payload []byte) (*QueryResult, error)
	UpdateTbl(ctx context.Context, table string, payload []byte) (*QueryResult, error)

	// Fetch returns up to limit readings with id > fromIDExclusive, ordered
	// by id ascending.
	Fetch(ctx context.Context, fromIDExclusive int64, limit int) ([]Reading, error)

	// Purge removes readings per req and reports what happened. A semantic
	// 409 is returned as *errtypes.StorageConflict, not an error the caller
	// should retry immediately.
	Purge(ctx context.Context, req PurgeRequest) (*PurgeResult, error)
}

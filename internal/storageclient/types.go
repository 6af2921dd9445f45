// Package storageclient is a thin typed wrapper over the storage service's
// tabular operations: query, query-with-payload, insert, update, plus the
// readings-specific fetch and purge calls. The storage service itself is an
// out-of-process collaborator — spec.md explicitly models it as "a remote
// key/tabular service with an asynchronous query/update API" — so every
// method here takes a context and can return a retryable *errtypes.StorageTransient
// or an in-band *errtypes.StorageConflict.
package storageclient

import "time"

// Reading is one row of the readings table. IDs are monotone per storage
// instance; gaps are allowed. Once produced, Reading.ID and Reading.UserTS
// are immutable.
type Reading struct {
	ID        int64                  `json:"id"`
	AssetCode string                 `json:"asset_code"`
	ReadKey   string                 `json:"read_key"`
	UserTS    time.Time              `json:"user_ts"`
	Values    map[string]interface{} `json:"reading"`
}

// QueryResult is the uniform shape every tabular operation returns.
type QueryResult struct {
	Count int                      `json:"count"`
	Rows  []map[string]interface{} `json:"rows"`
	// Message is set instead of Rows on a semantic (non-transport) failure,
	// e.g. "409 Conflict" from a purge call racing another purge.
	Message string `json:"message,omitempty"`
}

// PurgeFlag instructs the storage service whether to spare readings newer
// than SentID.
type PurgeFlag string

const (
	PurgeFlagPurge  PurgeFlag = "purge"
	PurgeFlagRetain PurgeFlag = "retain"
)

// PurgeRequest purges readings either by age (hours) or by size (row count),
// never both in a single call — the Purge Task issues one call per
// non-zero parameter.
type PurgeRequest struct {
	AgeHours int // 0 means "not an age-based purge"
	MaxRows  int // 0 means "not a size-based purge"
	SentID   int64
	Flag     PurgeFlag
}

// PurgeResult reports what a purge call actually did.
type PurgeResult struct {
	Readings        int64 `json:"readings"`
	Removed         int64 `json:"removed"`
	UnsentPurged    int64 `json:"unsentPurged"`
	UnsentRetained  int64 `json:"unsentRetained"`
}

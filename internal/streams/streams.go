// Package streams implements Stream State (spec §4.4): the single row per
// configured destination that records whether a stream is active and the
// highest reading id it has confirmed sent, used both as the Sending
// Process's checkpoint and as the Purge Task's retention floor.
package streams

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/weinenglong/foglamp-sendprocess/internal/errtypes"
	"github.com/weinenglong/foglamp-sendprocess/internal/storageclient"
)

// Stream is one row of the streams table.
type Stream struct {
	ID         int64     `json:"id"`
	Active     bool      `json:"active"`
	LastObject int64     `json:"last_object"`
	TS         time.Time `json:"ts"`
}

// Repository wraps the storage service's streams table with the lookups and
// the monotonic checkpoint update the Sending Process and Purge Task need.
type Repository struct {
	storage storageclient.Client
}

func NewRepository(storage storageclient.Client) *Repository {
	return &Repository{storage: storage}
}

// Get loads stream id. Returns *errtypes.ConfigError if the stream does not
// exist or exists more than once, matching spec §4.4's "validate stream
// exists exactly once" startup check.
func (r *Repository) Get(ctx context.Context, id int64) (Stream, error) {
	payload := storageclient.NewPayloadBuilder().WHERE("id", id).Payload()
	result, err := r.storage.QueryTblWithPayload(ctx, "streams", payload)
	if err != nil {
		return Stream{}, err
	}

	var found *Stream
	for _, row := range result.Rows {
		if toInt64(row["id"]) != id {
			continue
		}
		if found != nil {
			return Stream{}, &errtypes.ConfigError{Op: "stream_get", Detail: fmt.Sprintf("stream %d exists more than once", id)}
		}
		stream, err := rowToStream(row)
		if err != nil {
			return Stream{}, err
		}
		found = &stream
	}
	if found == nil {
		return Stream{}, &errtypes.ConfigError{Op: "stream_get", Detail: fmt.Sprintf("stream %d does not exist", id)}
	}
	return *found, nil
}

// RequireActive loads and validates stream id is active. Returning a
// non-nil error here is always fatal at startup.
func (r *Repository) RequireActive(ctx context.Context, id int64) (Stream, error) {
	stream, err := r.Get(ctx, id)
	if err != nil {
		return Stream{}, err
	}
	if !stream.Active {
		return Stream{}, &errtypes.ConfigError{Op: "stream_require_active", Detail: fmt.Sprintf("stream %d is disabled", id)}
	}
	return stream, nil
}

// UpdatePosition advances id's last_object checkpoint. lastObject must be
// monotonically non-decreasing (spec §8 property: "stream position is
// monotonic non-decreasing"); a smaller value is rejected rather than
// silently ignored, since it would indicate a bug in the caller.
func (r *Repository) UpdatePosition(ctx context.Context, id int64, lastObject int64) error {
	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if lastObject < current.LastObject {
		return &errtypes.ConfigError{
			Op:     "stream_update_position",
			Detail: fmt.Sprintf("stream %d: refusing to move last_object backward from %d to %d", id, current.LastObject, lastObject),
		}
	}

	payload, err := json.Marshal(map[string]interface{}{
		"where": map[string]interface{}{"id": id},
		"values": map[string]interface{}{
			"last_object": lastObject,
			"ts":          time.Now().UTC(),
		},
	})
	if err != nil {
		return fmt.Errorf("encode stream update: %w", err)
	}

	_, err = r.storage.UpdateTbl(ctx, "streams", payload)
	return err
}

// MinLastObject returns the lowest last_object across every stream, the
// retention floor the Purge Task must never cross (spec §4.5: "safety floor
// = min(streams.last_object)"). Returns 0, false when there are no streams,
// in which case the Purge Task treats the floor as 0.
func (r *Repository) MinLastObject(ctx context.Context) (int64, bool, error) {
	payload := storageclient.NewPayloadBuilder().AGGREGATE("min", "last_object").Payload()
	result, err := r.storage.QueryTblWithPayload(ctx, "streams", payload)
	if err != nil {
		return 0, false, err
	}
	v, ok := storageclient.AggregateScalar(result, "min", "last_object")
	if !ok {
		return 0, false, nil
	}
	return toInt64(v), true, nil
}

func rowToStream(row map[string]interface{}) (Stream, error) {
	active, _ := row["active"].(bool)
	stream := Stream{
		ID:         toInt64(row["id"]),
		Active:     active,
		LastObject: toInt64(row["last_object"]),
	}
	if ts, ok := row["ts"].(time.Time); ok {
		stream.TS = ts
	}
	return stream, nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

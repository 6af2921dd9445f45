// Package statistics implements the statistics counters and their periodic
// roll-up into statistics_history (spec §4.6): every component increments a
// named counter as it does work, and a roll-up run writes each counter's
// non-zero delta since the last run as one statistics_history row.
package statistics

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/weinenglong/foglamp-sendprocess/internal/storageclient"
)

// Recorder tracks named counters, persisting every increment to the
// statistics table and mirroring the running total on a Prometheus
// CounterVec for process-local observability, following the same
// promauto-registered collector pattern the rest of the corpus uses for its
// own request/processing counters.
type Recorder struct {
	storage storageclient.Client
	total   *prometheus.CounterVec
}

// statisticsTotal is registered once with the default Prometheus registry
// and shared by every Recorder.
var statisticsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "foglamp_statistics_total",
		Help: "Running total of each named FogLAMP statistics counter.",
	},
	[]string{"key"},
)

func NewRecorder(storage storageclient.Client) *Recorder {
	return &Recorder{
		storage: storage,
		total:   statisticsTotal,
	}
}

// Update increments key by delta, creating the row with description if it
// does not already exist. delta may be zero (used by callers that only want
// to ensure the row exists) but must not be negative.
func (r *Recorder) Update(ctx context.Context, key, description string, delta int64) error {
	if delta < 0 {
		return fmt.Errorf("statistics: negative delta %d for key %q", delta, key)
	}

	payload, err := json.Marshal(map[string]interface{}{
		"where": map[string]interface{}{"key": key},
		"values": map[string]interface{}{
			"value_incr":  delta,
			"description": description,
		},
	})
	if err != nil {
		return fmt.Errorf("encode statistics update: %w", err)
	}

	if _, err := r.storage.UpdateTbl(ctx, "statistics", payload); err != nil {
		return err
	}
	if delta > 0 {
		r.total.WithLabelValues(key).Add(float64(delta))
	}
	return nil
}

// Value returns key's current persisted total, 0 if the key has never been
// updated.
func (r *Recorder) Value(ctx context.Context, key string) (int64, error) {
	payload := storageclient.NewPayloadBuilder().WHERE("key", key).Payload()
	result, err := r.storage.QueryTblWithPayload(ctx, "statistics", payload)
	if err != nil {
		return 0, err
	}
	for _, row := range result.Rows {
		if k, _ := row["key"].(string); k == key {
			return toInt64(row["value"]), nil
		}
	}
	return 0, nil
}

// RollUp snapshots every statistics row's delta since its last roll-up
// (value - previous_value) into statistics_history, then advances
// previous_value to value, matching the original statistics daemon's hourly
// sweep.
func (r *Recorder) RollUp(ctx context.Context) error {
	result, err := r.storage.QueryTbl(ctx, "statistics", "")
	if err != nil {
		return err
	}

	for _, row := range result.Rows {
		key, _ := row["key"].(string)
		value := toInt64(row["value"])
		previous := toInt64(row["previous_value"])
		delta := value - previous
		if delta == 0 {
			continue
		}

		historyPayload, err := json.Marshal(map[string]interface{}{
			"key":   key,
			"value": delta,
		})
		if err != nil {
			return fmt.Errorf("encode statistics_history insert: %w", err)
		}
		if _, err := r.storage.InsertIntoTbl(ctx, "statistics_history", historyPayload); err != nil {
			return err
		}

		advancePayload, err := json.Marshal(map[string]interface{}{
			"where":  map[string]interface{}{"key": key},
			"values": map[string]interface{}{"previous_value": value},
		})
		if err != nil {
			return fmt.Errorf("encode previous_value advance: %w", err)
		}
		if _, err := r.storage.UpdateTbl(ctx, "statistics", advancePayload); err != nil {
			return err
		}
	}
	return nil
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

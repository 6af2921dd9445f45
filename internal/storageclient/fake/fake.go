// Package fake provides an in-process, thread-safe stand-in for the storage
// service, used by every other package's tests so they don't need a running
// storage microservice. It implements storageclient.Client directly against
// in-memory tables, grounded on the same RWMutex-guarded map shape the
// teacher's in-memory storage backend uses.
package fake

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/weinenglong/foglamp-sendprocess/internal/errtypes"
	"github.com/weinenglong/foglamp-sendprocess/internal/storageclient"
)

// Storage is an in-memory implementation of storageclient.Client with
// direct accessors the test suites use to seed and inspect table state.
type Storage struct {
	mu sync.RWMutex

	readings []storageclient.Reading
	streams  map[int64]map[string]interface{}
	config   map[string]map[string]interface{}
	stats    map[string]map[string]interface{}
	history  []map[string]interface{}
	log      []map[string]interface{}

	// NextConflict, if set, makes the next Purge call return a 409 instead
	// of performing the purge.
	NextConflict bool
}

func New() *Storage {
	return &Storage{
		streams: map[int64]map[string]interface{}{},
		config:  map[string]map[string]interface{}{},
		stats:   map[string]map[string]interface{}{},
	}
}

// SeedReadings appends n readings continuing from the current max id.
func (s *Storage) SeedReadings(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := int64(0)
	if len(s.readings) > 0 {
		start = s.readings[len(s.readings)-1].ID
	}
	for i := int64(0); i < int64(n); i++ {
		id := start + i + 1
		s.readings = append(s.readings, storageclient.Reading{
			ID:        id,
			AssetCode: "sensor1",
			ReadKey:   uuid.New().String(),
			UserTS:    time.Now().UTC(),
			Values:    map[string]interface{}{"value": float64(id)},
		})
	}
}

// SeedStream installs a streams row directly.
func (s *Storage) SeedStream(id int64, active bool, lastObject int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams[id] = map[string]interface{}{
		"id":          id,
		"active":      active,
		"last_object": lastObject,
		"ts":          time.Now().UTC(),
	}
}

func (s *Storage) AuditEntries() []map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]map[string]interface{}, len(s.log))
	copy(out, s.log)
	return out
}

func (s *Storage) Statistic(key string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.stats[key]
	if !ok {
		return 0, false
	}
	return toInt64(row["value"]), true
}

func (s *Storage) Stream(id int64) (map[string]interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.streams[id]
	return row, ok
}

// HistoryEntries returns every statistics_history row inserted so far.
func (s *Storage) HistoryEntries() []map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]map[string]interface{}, len(s.history))
	copy(out, s.history)
	return out
}

// --- storageclient.Client ---

func (s *Storage) QueryTbl(ctx context.Context, table, where string) (*storageclient.QueryResult, error) {
	return s.QueryTblWithPayload(ctx, table, nil)
}

func (s *Storage) QueryTblWithPayload(ctx context.Context, table string, payload []byte) (*storageclient.QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch table {
	case "streams":
		if isMinLastObjectQuery(payload) {
			min := int64(0)
			first := true
			for _, row := range s.streams {
				v := toInt64(row["last_object"])
				if first || v < min {
					min = v
					first = false
				}
			}
			if first {
				return &storageclient.QueryResult{Count: 0}, nil
			}
			return &storageclient.QueryResult{
				Count: 1,
				Rows:  []map[string]interface{}{{"min_last_object": min}},
			}, nil
		}
		rows := make([]map[string]interface{}, 0, len(s.streams))
		ids := make([]int64, 0, len(s.streams))
		for id := range s.streams {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			rows = append(rows, s.streams[id])
		}
		return &storageclient.QueryResult{Count: len(rows), Rows: rows}, nil

	case "readings":
		if isCountQuery(payload) {
			return &storageclient.QueryResult{
				Count: 1,
				Rows:  []map[string]interface{}{{"count_*": float64(len(s.readings))}},
			}, nil
		}
		return &storageclient.QueryResult{Count: len(s.readings)}, nil

	case "configuration":
		rows := make([]map[string]interface{}, 0, len(s.config))
		for key, items := range s.config {
			rows = append(rows, map[string]interface{}{"key": key, "value": items})
		}
		return &storageclient.QueryResult{Count: len(rows), Rows: rows}, nil

	case "statistics":
		rows := make([]map[string]interface{}, 0, len(s.stats))
		for key, row := range s.stats {
			rows = append(rows, map[string]interface{}{"key": key, "value": row["value"], "previous_value": row["previous_value"]})
		}
		return &storageclient.QueryResult{Count: len(rows), Rows: rows}, nil

	default:
		return &storageclient.QueryResult{Count: 0}, nil
	}
}

func (s *Storage) InsertIntoTbl(ctx context.Context, table string, payload []byte) (*storageclient.QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc map[string]interface{}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode insert payload: %w", err)
	}

	switch table {
	case "log":
		s.log = append(s.log, doc)
	case "configuration":
		key, _ := doc["key"].(string)
		value, _ := doc["value"].(map[string]interface{})
		s.config[key] = value
	case "streams":
		id := toInt64(doc["id"])
		s.streams[id] = doc
	case "statistics":
		key, _ := doc["key"].(string)
		s.stats[key] = doc
	case "statistics_history":
		s.history = append(s.history, doc)
	case "readings":
		assetCode, _ := doc["asset_code"].(string)
		readKey, _ := doc["read_key"].(string)
		userTS, _ := doc["user_ts"].(string)
		values, _ := doc["reading"].(map[string]interface{})
		ts, err := time.Parse("2006-01-02T15:04:05.000000-07", userTS)
		if err != nil {
			ts, err = time.Parse("2006-01-02 15:04:05.000000-07", userTS)
		}
		if err != nil {
			ts = time.Now().UTC()
		}
		s.readings = append(s.readings, storageclient.Reading{
			ID:        int64(len(s.readings)) + 1,
			AssetCode: assetCode,
			ReadKey:   readKey,
			UserTS:    ts,
			Values:    values,
		})
	}
	return &storageclient.QueryResult{Count: 1}, nil
}

func (s *Storage) UpdateTbl(ctx context.Context, table string, payload []byte) (*storageclient.QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc struct {
		Where  map[string]interface{} `json:"where"`
		Values map[string]interface{} `json:"values"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode update payload: %w", err)
	}

	switch table {
	case "streams":
		id := toInt64(doc.Where["id"])
		row, ok := s.streams[id]
		if !ok {
			return &storageclient.QueryResult{Count: 0}, nil
		}
		for k, v := range doc.Values {
			row[k] = v
		}
		return &storageclient.QueryResult{Count: 1}, nil

	case "statistics":
		key, _ := doc.Where["key"].(string)
		row, ok := s.stats[key]
		if !ok {
			row = map[string]interface{}{"key": key, "value": int64(0), "previous_value": int64(0)}
			s.stats[key] = row
		}
		if inc, ok := doc.Values["value_incr"]; ok {
			row["value"] = toInt64(row["value"]) + toInt64(inc)
		}
		for k, v := range doc.Values {
			if k == "value_incr" {
				continue
			}
			row[k] = v
		}
		return &storageclient.QueryResult{Count: 1}, nil

	case "configuration":
		key, _ := doc.Where["key"].(string)
		items, ok := s.config[key]
		if !ok {
			return &storageclient.QueryResult{Count: 0}, nil
		}
		for k, v := range doc.Values {
			items[k] = v
		}
		return &storageclient.QueryResult{Count: 1}, nil
	}

	return &storageclient.QueryResult{Count: 0}, nil
}

func (s *Storage) Fetch(ctx context.Context, fromIDExclusive int64, limit int) ([]storageclient.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]storageclient.Reading, 0, limit)
	for _, r := range s.readings {
		if r.ID <= fromIDExclusive {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Storage) Purge(ctx context.Context, req storageclient.PurgeRequest) (*storageclient.PurgeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.NextConflict {
		s.NextConflict = false
		return nil, &errtypes.StorageConflict{Op: "purge", Message: "409 Conflict"}
	}

	var kept []storageclient.Reading
	var removed, unsentPurged, unsentRetained int64
	now := time.Now().UTC()

	for _, r := range s.readings {
		tooOld := req.AgeHours > 0 && now.Sub(r.UserTS) > time.Duration(req.AgeHours)*time.Hour
		overSize := req.MaxRows > 0 && int64(len(s.readings))-removed > int64(req.MaxRows)
		eligible := tooOld || overSize
		if !eligible {
			kept = append(kept, r)
			continue
		}
		if req.Flag == storageclient.PurgeFlagRetain && r.ID > req.SentID {
			unsentRetained++
			kept = append(kept, r)
			continue
		}
		if r.ID > req.SentID {
			unsentPurged++
		}
		removed++
	}

	s.readings = kept
	return &storageclient.PurgeResult{
		Readings:       int64(len(kept)),
		Removed:        removed,
		UnsentPurged:   unsentPurged,
		UnsentRetained: unsentRetained,
	}, nil
}

func isMinLastObjectQuery(payload []byte) bool {
	if payload == nil {
		return false
	}
	var doc struct {
		Aggregate struct {
			Operation string `json:"operation"`
			Column    string `json:"column"`
		} `json:"aggregate"`
	}
	_ = json.Unmarshal(payload, &doc)
	return doc.Aggregate.Operation == "min" && doc.Aggregate.Column == "last_object"
}

func isCountQuery(payload []byte) bool {
	if payload == nil {
		return false
	}
	var doc struct {
		Aggregate struct {
			Operation string `json:"operation"`
		} `json:"aggregate"`
	}
	_ = json.Unmarshal(payload, &doc)
	return doc.Aggregate.Operation == "count"
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

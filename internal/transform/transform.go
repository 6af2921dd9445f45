// Package transform implements the optional filter stage the Sending
// Process's fetcher applies to a fetched batch before it is placed in the
// ring buffer (spec §4.4 applyFilter/filterRule), expressed as a JQ program.
package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/itchyny/gojq"

	"github.com/weinenglong/foglamp-sendprocess/internal/errtypes"
	"github.com/weinenglong/foglamp-sendprocess/internal/storageclient"
)

// DefaultRule passes every reading through unchanged.
const DefaultRule = ".[]"

// Filter is a compiled JQ program applied to a batch of readings, one
// object per reading: {id, asset_code, read_key, user_ts, reading}.
type Filter struct {
	rule  string
	query *gojq.Query
	code  *gojq.Code
}

// Compile parses and type-checks rule once, so a malformed rule is rejected
// when the Sending Process resolves its settings at startup rather than on
// the first batch.
func Compile(rule string) (*Filter, error) {
	if rule == "" {
		rule = DefaultRule
	}
	query, err := gojq.Parse(rule)
	if err != nil {
		return nil, &errtypes.TransformFailed{Rule: rule, Cause: fmt.Errorf("parse: %w", err)}
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, &errtypes.TransformFailed{Rule: rule, Cause: fmt.Errorf("compile: %w", err)}
	}
	return &Filter{rule: rule, query: query, code: code}, nil
}

// Apply runs the filter over batch, rebuilding a Reading per surviving
// output value. A reading the filter drops (e.g. a "select" rule) is simply
// absent from the result; a rule that errors on any one reading fails the
// whole batch, since the fetcher has no per-reading partial-failure path.
func (f *Filter) Apply(ctx context.Context, batch []storageclient.Reading) ([]storageclient.Reading, error) {
	input, err := readingsToJQInput(batch)
	if err != nil {
		return nil, &errtypes.TransformFailed{Rule: f.rule, Cause: err}
	}

	out := make([]storageclient.Reading, 0, len(batch))
	iter := f.code.RunWithContext(ctx, input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, &errtypes.TransformFailed{Rule: f.rule, Cause: err}
		}
		reading, err := jqOutputToReading(v)
		if err != nil {
			return nil, &errtypes.TransformFailed{Rule: f.rule, Cause: err}
		}
		out = append(out, reading)
	}
	return out, nil
}

func readingsToJQInput(batch []storageclient.Reading) (interface{}, error) {
	raw := make([]map[string]interface{}, 0, len(batch))
	for _, r := range batch {
		raw = append(raw, map[string]interface{}{
			"id":         r.ID,
			"asset_code": r.AssetCode,
			"read_key":   r.ReadKey,
			"user_ts":    r.UserTS,
			"reading":    r.Values,
		})
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode batch for filter: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(encoded, &generic); err != nil {
		return nil, fmt.Errorf("decode batch for filter: %w", err)
	}
	return generic, nil
}

func jqOutputToReading(v interface{}) (storageclient.Reading, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return storageclient.Reading{}, fmt.Errorf("encode filter output: %w", err)
	}

	var doc struct {
		ID        int64                  `json:"id"`
		AssetCode string                 `json:"asset_code"`
		ReadKey   string                 `json:"read_key"`
		UserTS    interface{}            `json:"user_ts"`
		Reading   map[string]interface{} `json:"reading"`
	}
	if err := json.Unmarshal(encoded, &doc); err != nil {
		return storageclient.Reading{}, fmt.Errorf("decode filter output: %w", err)
	}

	reading := storageclient.Reading{
		ID:        doc.ID,
		AssetCode: doc.AssetCode,
		ReadKey:   doc.ReadKey,
		Values:    doc.Reading,
	}
	if ts, ok := doc.UserTS.(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			reading.UserTS = parsed
		}
	}
	return reading, nil
}

package storageclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/weinenglong/foglamp-sendprocess/internal/errtypes"
	"github.com/weinenglong/foglamp-sendprocess/internal/resilience"
)

// HTTPClient talks to the storage service's tabular HTTP API. It is the
// production implementation of Client; storageclient/fake provides an
// in-memory stand-in for tests.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	retry      resilience.Policy
}

// NewHTTPClient builds a client bound to the storage service running at
// address:port, as passed to the Sending Process on the command line.
func NewHTTPClient(address string, port int) *HTTPClient {
	return &HTTPClient{
		baseURL: fmt.Sprintf("http://%s:%d", address, port),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry: resilience.DefaultPolicy(),
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte) (*QueryResult, error) {
	var result *QueryResult

	err := resilience.WithRetry(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &errtypes.StorageTransient{Op: method + " " + path, Cause: err}
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return &errtypes.StorageTransient{Op: method + " " + path, Cause: err}
		}

		if resp.StatusCode == http.StatusConflict {
			return &errtypes.StorageConflict{Op: method + " " + path, Message: string(raw)}
		}
		if resp.StatusCode >= 500 {
			return &errtypes.StorageTransient{Op: method + " " + path, Cause: fmt.Errorf("status %d: %s", resp.StatusCode, raw)}
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("storage request %s %s failed with status %d: %s", method, path, resp.StatusCode, raw)
		}

		var qr QueryResult
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &qr); err != nil {
				return fmt.Errorf("decode storage response: %w", err)
			}
		}
		result = &qr
		return nil
	})

	return result, err
}

func (c *HTTPClient) QueryTbl(ctx context.Context, table, where string) (*QueryResult, error) {
	path := fmt.Sprintf("/storage/table/%s", url.PathEscape(table))
	if where != "" {
		path += "?query=" + url.QueryEscape(where)
	}
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *HTTPClient) QueryTblWithPayload(ctx context.Context, table string, payload []byte) (*QueryResult, error) {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/storage/table/%s/query", url.PathEscape(table)), payload)
}

func (c *HTTPClient) InsertIntoTbl(ctx context.Context, table string, payload []byte) (*QueryResult, error) {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/storage/table/%s", url.PathEscape(table)), payload)
}

func (c *HTTPClient) UpdateTbl(ctx context.Context, table string, payload []byte) (*QueryResult, error) {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/storage/table/%s", url.PathEscape(table)), payload)
}

func (c *HTTPClient) Fetch(ctx context.Context, fromIDExclusive int64, limit int) ([]Reading, error) {
	path := fmt.Sprintf("/storage/reading?id=%d&limit=%d", fromIDExclusive, limit)
	result, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return rowsToReadings(result.Rows)
}

func (c *HTTPClient) Purge(ctx context.Context, req PurgeRequest) (*PurgeResult, error) {
	q := url.Values{}
	if req.AgeHours > 0 {
		q.Set("age", strconv.Itoa(req.AgeHours))
	}
	if req.MaxRows > 0 {
		q.Set("size", strconv.Itoa(req.MaxRows))
	}
	q.Set("sent_id", strconv.FormatInt(req.SentID, 10))
	q.Set("flags", string(req.Flag))

	result, err := c.do(ctx, http.MethodPut, "/storage/reading/purge?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if result.Message != "" {
		return nil, &errtypes.StorageConflict{Op: "purge", Message: result.Message}
	}

	pr := &PurgeResult{}
	if len(result.Rows) > 0 {
		row := result.Rows[0]
		pr.Readings = toInt64(row["readings"])
		pr.Removed = toInt64(row["removed"])
		pr.UnsentPurged = toInt64(row["unsentPurged"])
		pr.UnsentRetained = toInt64(row["unsentRetained"])
	}
	return pr, nil
}

func rowsToReadings(rows []map[string]interface{}) ([]Reading, error) {
	readings := make([]Reading, 0, len(rows))
	for _, row := range rows {
		raw, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("re-encode reading row: %w", err)
		}
		var r Reading
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("decode reading row: %w", err)
		}
		readings = append(readings, r)
	}
	return readings, nil
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

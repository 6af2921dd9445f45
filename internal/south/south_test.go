package south_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weinenglong/foglamp-sendprocess/internal/statistics"
	"github.com/weinenglong/foglamp-sendprocess/internal/south"
	"github.com/weinenglong/foglamp-sendprocess/internal/storageclient/fake"
)

func newHarness(t *testing.T, maxInFlight int) (*fake.Storage, *httptest.Server) {
	t.Helper()
	storage := fake.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	listener := south.NewListener(storage, statistics.NewRecorder(storage), logger)

	handler := listener.Handler(south.Settings{URI: "/sensor-reading", MaxInFlight: maxInFlight})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return storage, server
}

func postReading(t *testing.T, server *httptest.Server, body []byte) *http.Response {
	t.Helper()
	resp, err := http.Post(server.URL+"/sensor-reading", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestIngestAcceptsValidReading(t *testing.T) {
	storage, server := newHarness(t, 10)

	body, err := json.Marshal(map[string]interface{}{
		"timestamp": time.Now().UTC().Format("2006-01-02T15:04:05.000000Z"),
		"asset":     "sensor1",
		"key":       "k1",
		"readings":  map[string]interface{}{"value": 1.0},
	})
	require.NoError(t, err)

	resp := postReading(t, server, body)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	var doc map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, "success", doc["result"])
	assert.Equal(t, float64(http.StatusOK), doc["status"])

	result, err := storage.QueryTbl(context.Background(), "readings", "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)
}

func TestIngestRejectsMalformedBody(t *testing.T) {
	_, server := newHarness(t, 10)
	resp := postReading(t, server, []byte("not json"))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var doc map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, float64(http.StatusBadRequest), doc["status"])
	assert.NotEmpty(t, doc["error"])
}

func TestIngestBackPressureReturnsBusy(t *testing.T) {
	storage, server := newHarness(t, 0)

	body, err := json.Marshal(map[string]interface{}{
		"timestamp": time.Now().UTC().Format("2006-01-02T15:04:05.000000Z"),
		"asset":     "sensor1",
		"key":       "k1",
		"readings":  map[string]interface{}{"value": 1.0},
	})
	require.NoError(t, err)

	resp := postReading(t, server, body)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var doc map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, true, doc["busy"])
	assert.Equal(t, float64(http.StatusOK), doc["status"])

	v, err := statistics.NewRecorder(storage).Value(context.Background(), "DISCARDED")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

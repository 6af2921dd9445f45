package httpnorth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weinenglong/foglamp-sendprocess/internal/config"
	"github.com/weinenglong/foglamp-sendprocess/internal/plugin/httpnorth"
	"github.com/weinenglong/foglamp-sendprocess/internal/storageclient"
)

func itemsWithOverrides(overrides map[string]string) map[string]config.Item {
	items := map[string]config.Item{}
	for name, fields := range httpnorth.ConfigSchema() {
		value := fields["default"]
		if v, ok := overrides[name]; ok {
			value = v
		}
		items[name] = config.Item{Description: fields["description"], Type: config.ItemType(fields["type"]), Default: fields["default"], Value: value}
	}
	return items
}

func sampleBatch() []storageclient.Reading {
	return []storageclient.Reading{
		{ID: 1, AssetCode: "sensor1", ReadKey: "k1", UserTS: time.Unix(0, 0).UTC(), Values: map[string]interface{}{"value": 1.0}},
		{ID: 2, AssetCode: "sensor1", ReadKey: "k2", UserTS: time.Unix(0, 0).UTC(), Values: map[string]interface{}{"value": 2.0}},
	}
}

func TestMaxAttemptsZeroDoesNotRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := &httpnorth.Plugin{}
	handle, err := p.Init(context.Background(), itemsWithOverrides(map[string]string{"url": server.URL, "max_attempts": "0"}))
	require.NoError(t, err)

	ok, _, _, err := p.Send(context.Background(), handle, sampleBatch(), 1)
	assert.False(t, ok)
	assert.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestMaxAttemptsFiniteRetriesThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := &httpnorth.Plugin{}
	handle, err := p.Init(context.Background(), itemsWithOverrides(map[string]string{"url": server.URL, "max_attempts": "5"}))
	require.NoError(t, err)

	ok, lastID, count, err := p.Send(context.Background(), handle, sampleBatch(), 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 2, lastID)
	assert.Equal(t, 2, count)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestMaxAttemptsFiniteExhaustedFails(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := &httpnorth.Plugin{}
	handle, err := p.Init(context.Background(), itemsWithOverrides(map[string]string{"url": server.URL, "max_attempts": "2"}))
	require.NoError(t, err)

	ok, _, _, err := p.Send(context.Background(), handle, sampleBatch(), 1)
	assert.False(t, ok)
	assert.Error(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls), "max_attempts=2 means 1 initial attempt plus 2 retries")
}

func TestMaxAttemptsNegativeRetriesUntilSuccess(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 4 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := &httpnorth.Plugin{}
	handle, err := p.Init(context.Background(), itemsWithOverrides(map[string]string{"url": server.URL, "max_attempts": "-1"}))
	require.NoError(t, err)

	ok, _, _, err := p.Send(context.Background(), handle, sampleBatch(), 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 4, atomic.LoadInt32(&calls))
}

func Test4xxIsRetriedLikeServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := &httpnorth.Plugin{}
	handle, err := p.Init(context.Background(), itemsWithOverrides(map[string]string{"url": server.URL, "max_attempts": "5"}))
	require.NoError(t, err)

	ok, _, _, err := p.Send(context.Background(), handle, sampleBatch(), 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestEmptyBatchIsNoOp(t *testing.T) {
	p := &httpnorth.Plugin{}
	handle, err := p.Init(context.Background(), itemsWithOverrides(nil))
	require.NoError(t, err)

	ok, lastID, count, err := p.Send(context.Background(), handle, nil, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, lastID)
	assert.Zero(t, count)
}

func TestShutdownClosesIdleConnections(t *testing.T) {
	p := &httpnorth.Plugin{}
	handle, err := p.Init(context.Background(), itemsWithOverrides(nil))
	require.NoError(t, err)
	assert.NoError(t, p.Shutdown(context.Background(), handle))
}

package config_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weinenglong/foglamp-sendprocess/internal/audit"
	"github.com/weinenglong/foglamp-sendprocess/internal/config"
	"github.com/weinenglong/foglamp-sendprocess/internal/storageclient/fake"
)

func newTestManager(t *testing.T) (*config.Manager, *fake.Storage) {
	t.Helper()
	storage := fake.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditLogger := audit.New(storage, logger)
	mgr, err := config.New(storage, auditLogger, logger)
	require.NoError(t, err)
	return mgr, storage
}

func sampleSchema() map[string]map[string]string {
	return map[string]map[string]string{
		"url": {
			"description": "destination URL",
			"type":        "string",
			"default":     "http://localhost:6683",
		},
		"shutdown_wait_time": {
			"description": "seconds to wait for shutdown",
			"type":        "integer",
			"default":     "3",
		},
	}
}

func TestCreateCategoryFreshRoundTrips(t *testing.T) {
	mgr, storage := newTestManager(t)
	ctx := context.Background()

	cat, err := mgr.CreateCategory(ctx, "HTTP_NORTH", sampleSchema(), "HTTP North plugin", true)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:6683", cat.Items["url"].Value)
	assert.Equal(t, "3", cat.Items["shutdown_wait_time"].Value)

	again, err := mgr.GetCategoryAllItems(ctx, "HTTP_NORTH")
	require.NoError(t, err)
	assert.Equal(t, cat.Items, again.Items)

	entries := storage.AuditEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "CONAD", entries[0]["code"])
}

func TestCreateCategoryMergePreservesOperatorValue(t *testing.T) {
	mgr, storage := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.CreateCategory(ctx, "HTTP_NORTH", sampleSchema(), "HTTP North plugin", true)
	require.NoError(t, err)

	require.NoError(t, mgr.SetCategoryItemValueEntry(ctx, "HTTP_NORTH", "url", "http://edge.example.com:6683"))

	upgraded := sampleSchema()
	upgraded["rateLimit"] = map[string]string{
		"description": "max sends per second",
		"type":        "integer",
		"default":     "0",
	}

	cat, err := mgr.CreateCategory(ctx, "HTTP_NORTH", upgraded, "HTTP North plugin", true)
	require.NoError(t, err)

	assert.Equal(t, "http://edge.example.com:6683", cat.Items["url"].Value, "operator-set value must survive a schema upgrade")
	assert.Equal(t, "0", cat.Items["rateLimit"].Value, "new item takes its default")

	var conchCount int
	for _, e := range storage.AuditEntries() {
		if e["code"] == "CONCH" {
			conchCount++
		}
	}
	assert.Equal(t, 1, conchCount)
}

func TestSetCategoryItemValueEntryNoOpWhenUnchanged(t *testing.T) {
	mgr, storage := newTestManager(t)
	ctx := context.Background()

	_, err := mgr.CreateCategory(ctx, "HTTP_NORTH", sampleSchema(), "HTTP North plugin", true)
	require.NoError(t, err)

	require.NoError(t, mgr.SetCategoryItemValueEntry(ctx, "HTTP_NORTH", "url", "http://localhost:6683"))

	for _, e := range storage.AuditEntries() {
		assert.NotEqual(t, "CONCH", e["code"], "unchanged value must not fire a CONCH entry")
	}
}

func TestSetCategoryItemValueEntryUnknownCategory(t *testing.T) {
	mgr, _ := newTestManager(t)
	err := mgr.SetCategoryItemValueEntry(context.Background(), "NOPE", "url", "x")
	assert.Error(t, err)
}

func TestRegisterInterestRejectsNilCallback(t *testing.T) {
	mgr, _ := newTestManager(t)
	err := mgr.RegisterInterest("HTTP_NORTH", nil)
	assert.Error(t, err)
}

func TestRegisterInterestRunsCallbackOnChange(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	_, err := mgr.CreateCategory(ctx, "HTTP_NORTH", sampleSchema(), "HTTP North plugin", true)
	require.NoError(t, err)

	var seen []string
	require.NoError(t, mgr.RegisterInterest("HTTP_NORTH", config.CallbackFunc(func(_ context.Context, categoryName string) {
		seen = append(seen, categoryName)
	})))

	require.NoError(t, mgr.SetCategoryItemValueEntry(ctx, "HTTP_NORTH", "url", "http://new:1234"))
	assert.Equal(t, []string{"HTTP_NORTH"}, seen)
}

func TestCallbackPanicDoesNotBlockOthers(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	_, err := mgr.CreateCategory(ctx, "HTTP_NORTH", sampleSchema(), "HTTP North plugin", true)
	require.NoError(t, err)

	ran := false
	require.NoError(t, mgr.RegisterInterest("HTTP_NORTH", config.CallbackFunc(func(_ context.Context, _ string) {
		panic("observer exploded")
	})))
	require.NoError(t, mgr.RegisterInterest("HTTP_NORTH", config.CallbackFunc(func(_ context.Context, _ string) {
		ran = true
	})))

	require.NoError(t, mgr.SetCategoryItemValueEntry(ctx, "HTTP_NORTH", "url", "http://another:1234"))
	assert.True(t, ran, "second callback must still run after the first panics")
}

func TestGetAllCategoryNamesSorted(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()
	_, err := mgr.CreateCategory(ctx, "PURGE_READ", sampleSchema(), "purge task", true)
	require.NoError(t, err)
	_, err = mgr.CreateCategory(ctx, "HTTP_NORTH", sampleSchema(), "HTTP North plugin", true)
	require.NoError(t, err)

	names, err := mgr.GetAllCategoryNames(ctx)
	require.NoError(t, err)
	require.Len(t, names, 2)
	assert.Equal(t, "HTTP_NORTH", names[0].Name)
	assert.Equal(t, "PURGE_READ", names[1].Name)
}

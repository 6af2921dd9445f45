package purge_test

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weinenglong/foglamp-sendprocess/internal/audit"
	"github.com/weinenglong/foglamp-sendprocess/internal/config"
	"github.com/weinenglong/foglamp-sendprocess/internal/purge"
	"github.com/weinenglong/foglamp-sendprocess/internal/statistics"
	"github.com/weinenglong/foglamp-sendprocess/internal/storageclient/fake"
	"github.com/weinenglong/foglamp-sendprocess/internal/streams"
)

func newHarness(t *testing.T) (*fake.Storage, *purge.Task, *config.Manager) {
	t.Helper()
	storage := fake.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditLogger := audit.New(storage, logger)
	mgr, err := config.New(storage, auditLogger, logger)
	require.NoError(t, err)

	task := purge.NewTask(storage, streams.NewRepository(storage), statistics.NewRecorder(storage), auditLogger, mgr, logger)
	return storage, task, mgr
}

func configureSize(ctx context.Context, mgr *config.Manager, size int) error {
	_, err := mgr.CreateCategory(ctx, "PURGE_READ", purge.CategoryDefaults(), "Purge Task", true)
	if err != nil {
		return err
	}
	return mgr.SetCategoryItemValueEntry(ctx, "PURGE_READ", "size", strconv.Itoa(size))
}

func TestPurgeSizeBasedRemovesExcessReadings(t *testing.T) {
	storage, task, mgr := newHarness(t)
	storage.SeedReadings(100)
	storage.SeedStream(1, true, 100)

	require.NoError(t, configureSize(context.Background(), mgr, 10))
	require.NoError(t, task.Run(context.Background()))

	v, err := statistics.NewRecorder(storage).Value(context.Background(), "PURGED")
	require.NoError(t, err)
	assert.Greater(t, v, int64(0))

	entries := storage.AuditEntries()
	var sawPurge bool
	for _, e := range entries {
		if e["code"] == "PURGE" {
			sawPurge = true
		}
	}
	assert.True(t, sawPurge)
}

func TestPurgeNoOpWhenNothingEligible(t *testing.T) {
	storage, task, mgr := newHarness(t)
	storage.SeedReadings(10)
	storage.SeedStream(1, true, 10)

	require.NoError(t, configureSize(context.Background(), mgr, 1000000))
	require.NoError(t, task.Run(context.Background()))

	for _, e := range storage.AuditEntries() {
		assert.NotEqual(t, "PURGE", e["code"], "an empty purge must not write a PURGE audit entry")
	}
}

func TestPurgeDefersOnConflict(t *testing.T) {
	storage, task, mgr := newHarness(t)
	storage.SeedReadings(100)
	storage.SeedStream(1, true, 100)
	storage.NextConflict = true

	require.NoError(t, configureSize(context.Background(), mgr, 10))
	require.NoError(t, task.Run(context.Background()))
}

package statistics_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weinenglong/foglamp-sendprocess/internal/statistics"
	"github.com/weinenglong/foglamp-sendprocess/internal/storageclient/fake"
)

func TestUpdateAccumulates(t *testing.T) {
	storage := fake.New()
	rec := statistics.NewRecorder(storage)
	ctx := context.Background()

	require.NoError(t, rec.Update(ctx, "SENT_1", "readings sent on stream 1", 500))
	require.NoError(t, rec.Update(ctx, "SENT_1", "readings sent on stream 1", 200))

	v, err := rec.Value(ctx, "SENT_1")
	require.NoError(t, err)
	assert.Equal(t, int64(700), v)
}

func TestUpdateRejectsNegativeDelta(t *testing.T) {
	rec := statistics.NewRecorder(fake.New())
	err := rec.Update(context.Background(), "SENT_1", "desc", -1)
	assert.Error(t, err)
}

func TestValueUnknownKeyIsZero(t *testing.T) {
	rec := statistics.NewRecorder(fake.New())
	v, err := rec.Value(context.Background(), "NEVER_SEEN")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestRollUpSnapshotsDeltaAndAdvances(t *testing.T) {
	storage := fake.New()
	rec := statistics.NewRecorder(storage)
	ctx := context.Background()

	require.NoError(t, rec.Update(ctx, "PURGED", "readings purged", 1000))
	require.NoError(t, rec.RollUp(ctx))

	entries := storage.HistoryEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "PURGED", entries[0]["key"])
	assert.EqualValues(t, 1000, entries[0]["value"])

	require.NoError(t, rec.Update(ctx, "PURGED", "readings purged", 250))
	require.NoError(t, rec.RollUp(ctx))

	entries = storage.HistoryEntries()
	require.Len(t, entries, 2)
	assert.EqualValues(t, 250, entries[1]["value"], "second roll-up only snapshots the new delta")
}

func TestRollUpSkipsZeroDelta(t *testing.T) {
	storage := fake.New()
	rec := statistics.NewRecorder(storage)
	ctx := context.Background()

	require.NoError(t, rec.Update(ctx, "SENT_1", "desc", 0))
	require.NoError(t, rec.RollUp(ctx))

	assert.Empty(t, storage.HistoryEntries())
}

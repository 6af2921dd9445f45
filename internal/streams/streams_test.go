package streams_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weinenglong/foglamp-sendprocess/internal/storageclient/fake"
	"github.com/weinenglong/foglamp-sendprocess/internal/streams"
)

func TestGetUnknownStream(t *testing.T) {
	repo := streams.NewRepository(fake.New())
	_, err := repo.Get(context.Background(), 1)
	assert.Error(t, err)
}

func TestRequireActiveRejectsDisabledStream(t *testing.T) {
	storage := fake.New()
	storage.SeedStream(1, false, 0)
	repo := streams.NewRepository(storage)

	_, err := repo.RequireActive(context.Background(), 1)
	assert.Error(t, err)
}

func TestUpdatePositionAdvances(t *testing.T) {
	storage := fake.New()
	storage.SeedStream(1, true, 100)
	repo := streams.NewRepository(storage)
	ctx := context.Background()

	require.NoError(t, repo.UpdatePosition(ctx, 1, 150))

	stream, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(150), stream.LastObject)
}

func TestUpdatePositionRejectsRegression(t *testing.T) {
	storage := fake.New()
	storage.SeedStream(1, true, 100)
	repo := streams.NewRepository(storage)

	err := repo.UpdatePosition(context.Background(), 1, 50)
	assert.Error(t, err)
}

func TestMinLastObjectAcrossStreams(t *testing.T) {
	storage := fake.New()
	storage.SeedStream(1, true, 500)
	storage.SeedStream(2, true, 100)
	storage.SeedStream(3, false, 900)
	repo := streams.NewRepository(storage)

	min, ok, err := repo.MinLastObject(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(100), min)
}

func TestMinLastObjectNoStreams(t *testing.T) {
	repo := streams.NewRepository(fake.New())
	_, ok, err := repo.MinLastObject(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

package transform_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weinenglong/foglamp-sendprocess/internal/storageclient"
	"github.com/weinenglong/foglamp-sendprocess/internal/transform"
)

func sampleBatch() []storageclient.Reading {
	return []storageclient.Reading{
		{ID: 1, AssetCode: "sensor1", ReadKey: "k1", UserTS: time.Unix(0, 0).UTC(), Values: map[string]interface{}{"value": 10.0}},
		{ID: 2, AssetCode: "sensor1", ReadKey: "k2", UserTS: time.Unix(0, 0).UTC(), Values: map[string]interface{}{"value": 20.0}},
	}
}

func TestDefaultRulePassesThrough(t *testing.T) {
	f, err := transform.Compile(transform.DefaultRule)
	require.NoError(t, err)

	out, err := f.Apply(context.Background(), sampleBatch())
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(1), out[0].ID)
	assert.Equal(t, int64(2), out[1].ID)
}

func TestSelectRuleDropsReadings(t *testing.T) {
	f, err := transform.Compile(`.[] | select(.reading.value > 15)`)
	require.NoError(t, err)

	out, err := f.Apply(context.Background(), sampleBatch())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(2), out[0].ID)
}

func TestMalformedRuleFailsAtCompile(t *testing.T) {
	_, err := transform.Compile(`this is not jq (`)
	assert.Error(t, err)
}

func TestRuleErrorFailsTheBatch(t *testing.T) {
	f, err := transform.Compile(`.[] | error("boom")`)
	require.NoError(t, err)

	_, err = f.Apply(context.Background(), sampleBatch())
	assert.Error(t, err)
}

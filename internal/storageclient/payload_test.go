package storageclient

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadBuilderAggregate(t *testing.T) {
	raw := NewPayloadBuilder().AGGREGATE("min", "last_object").Payload()

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))

	agg, ok := doc["aggregate"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "min", agg["operation"])
	assert.Equal(t, "last_object", agg["column"])
}

func TestPayloadBuilderWhereSetLimit(t *testing.T) {
	raw := NewPayloadBuilder().
		WHERE("id", 1).
		SET("last_object", 1200).
		LIMIT(500).
		Payload()

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))

	where := doc["where"].(map[string]interface{})
	assert.Equal(t, float64(1), where["id"])

	values := doc["values"].(map[string]interface{})
	assert.Equal(t, float64(1200), values["last_object"])

	assert.Equal(t, float64(500), doc["limit"])
}

func TestAggregateScalar(t *testing.T) {
	result := &QueryResult{
		Count: 1,
		Rows:  []map[string]interface{}{{"min_last_object": float64(42)}},
	}
	v, ok := AggregateScalar(result, "min", "last_object")
	require.True(t, ok)
	assert.Equal(t, float64(42), v)

	_, ok = AggregateScalar(&QueryResult{Count: 0}, "min", "last_object")
	assert.False(t, ok)
}

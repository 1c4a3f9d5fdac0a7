package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToJSONMap(t *testing.T) {
	got, err := ToJSONMap(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	raw := map[string]any{"status": "confirmed"}
	got, err = ToJSONMap(raw)
	require.NoError(t, err)
	assert.Equal(t, JSONMap(raw), got)

	type line struct {
		SKU      string `json:"sku"`
		Received int    `json:"received"`
	}
	got, err = ToJSONMap(line{SKU: "BOLT-10", Received: 4})
	require.NoError(t, err)
	assert.Equal(t, JSONMap{"sku": "BOLT-10", "received": float64(4)}, got)

	_, err = ToJSONMap([]int{1, 2})
	assert.ErrorContains(t, err, "[]int is not a json object")

	_, err = ToJSONMap(make(chan int))
	assert.Error(t, err)
}

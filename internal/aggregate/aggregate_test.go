package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ke0m/scaleup/internal/chunkstream"
	"github.com/ke0m/scaleup/internal/errs"
)

// TestCollectOrderIndependence is spec.md §8 property 4 / scenario S1.
func TestCollectOrderIndependence(t *testing.T) {
	n := 5
	arrival := [][2]int{{2, 6}, {0, 2}, {4, 10}, {1, 4}, {3, 8}} // chunk_index, result

	agg := NewCollect(n, []string{"result", "scale"})
	for _, a := range arrival {
		idx, result := a[0], a[1]
		err := agg.Accumulate(idx, chunkstream.Fields{"result": result, "scale": idx + 1})
		require.NoError(t, err)
	}

	out := agg.Output()
	assert.Equal(t, []any{1, 2, 3, 4, 5}, out["scale"])
	assert.Equal(t, []any{2, 4, 6, 8, 10}, out["result"])
}

// TestSumLinearity is spec.md §8 property 5 / scenario S2.
func TestSumLinearity(t *testing.T) {
	agg := NewSum(3, "scale", "result", 4)
	ones := []float64{1, 1, 1, 1}

	for _, idx := range []int{2, 0, 1} { // arbitrary arrival order
		err := agg.Accumulate(idx, chunkstream.Fields{"scale": float64(idx + 1), "result": ones})
		require.NoError(t, err)
	}

	out := agg.Output()
	assert.Equal(t, float64(6), out["scale"])
	assert.Equal(t, []float64{6, 6, 6, 6}, out["result"])
}

// TestDuplicateResultIdempotent is spec.md §8 property 3.
func TestDuplicateResultIdempotent(t *testing.T) {
	agg := NewSum(2, "scale", "result", 2)
	result := chunkstream.Fields{"scale": float64(2), "result": []float64{1, 1}}

	require.NoError(t, agg.Accumulate(0, result))
	require.NoError(t, agg.Accumulate(0, result)) // duplicate, must be a no-op

	out := agg.Output()
	assert.Equal(t, float64(2), out["scale"])
	assert.Equal(t, []float64{2, 2}, out["result"])
	assert.True(t, agg.Seen(0))
	assert.False(t, agg.Seen(1))
}

func TestAccumulateMissingKeyIsProtocolError(t *testing.T) {
	agg := NewCollect(1, []string{"result"})
	err := agg.Accumulate(0, chunkstream.Fields{"other": 1})
	require.Error(t, err)
	var protoErr *errs.ProtocolError
	assert.ErrorAs(t, err, &protoErr)
}

func TestSumMismatchedArrayLengthIsProtocolError(t *testing.T) {
	agg := NewSum(1, "scale", "array", 4)
	err := agg.Accumulate(0, chunkstream.Fields{"scale": 1.0, "array": []float64{1, 2}})
	require.Error(t, err)
	var protoErr *errs.ProtocolError
	assert.ErrorAs(t, err, &protoErr)
}

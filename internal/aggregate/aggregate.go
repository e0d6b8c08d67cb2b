// Package aggregate implements the AggregationMode tagged variant of
// spec.md §3/§4.4: Collect (per-chunk values indexed by chunk_index) and Sum
// (one running scalar and one running array accumulator). The mode is fixed
// at construction; Accumulate and Output select the mode's behaviour on every
// call. The dispatch engine itself never branches on aggregation mode.
package aggregate

import (
	"fmt"
	"sync"

	"github.com/ke0m/scaleup/internal/chunkstream"
	"github.com/ke0m/scaleup/internal/errs"
)

// Mode identifies which aggregation strategy an Aggregator runs.
type Mode int

const (
	// ModeCollect stores the ordered sequence of per-chunk values for each
	// configured key, indexed by chunk_index.
	ModeCollect Mode = iota
	// ModeSum maintains one running numeric-array accumulator and one
	// running scalar sum across all results.
	ModeSum
)

// Aggregator accumulates per-chunk Results into a final aggregate output. A
// single Aggregator instance is constructed once per dispatch run and fed
// results in arrival order, which is not guaranteed to match chunk_index
// order; both modes are commutative with respect to arrival order.
//
// Aggregator is safe for concurrent use, though the dispatch engine's
// single-threaded loop never calls it concurrently in practice.
type Aggregator struct {
	mu   sync.Mutex
	mode Mode
	n    int

	collectKeys []string
	collectData map[string][]any

	sumScalarKey string
	sumArrayKey  string
	sumArrayLen  int
	sumScalar    float64
	sumArray     []float64

	seen map[int]bool
}

// NewCollect returns an Aggregator in Collect mode over the given keys,
// sized for a stream of n total chunks.
func NewCollect(n int, keys []string) *Aggregator {
	data := make(map[string][]any, len(keys))
	for _, k := range keys {
		data[k] = make([]any, n)
	}
	return &Aggregator{
		mode:        ModeCollect,
		n:           n,
		collectKeys: keys,
		collectData: data,
		seen:        make(map[int]bool, n),
	}
}

// NewSum returns an Aggregator in Sum mode. Each result contributes
// result[scalarKey] to the running scalar and result[scalarKey] *
// result[arrayKey] elementwise to the running array, which has fixed
// length arrayLen for the lifetime of the Aggregator.
func NewSum(n int, scalarKey, arrayKey string, arrayLen int) *Aggregator {
	return &Aggregator{
		mode:         ModeSum,
		n:            n,
		sumScalarKey: scalarKey,
		sumArrayKey:  arrayKey,
		sumArrayLen:  arrayLen,
		sumArray:     make([]float64, arrayLen),
		seen:         make(map[int]bool, n),
	}
}

// Mode reports which aggregation strategy this Aggregator runs.
func (a *Aggregator) Mode() Mode { return a.mode }

// Seen reports whether a result for chunkIndex has already been accumulated.
func (a *Aggregator) Seen(chunkIndex int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.seen[chunkIndex]
}

// Accumulate validates and folds one result into the aggregate. Feeding the
// same chunkIndex twice is idempotent: the second call is a no-op returning
// nil. A result missing a required key fails with ProtocolError.
func (a *Aggregator) Accumulate(chunkIndex int, result chunkstream.Fields) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.seen[chunkIndex] {
		return nil // idempotent: duplicate no longer outstanding
	}

	switch a.mode {
	case ModeCollect:
		for _, k := range a.collectKeys {
			v, ok := result[k]
			if !ok {
				return &errs.ProtocolError{Cause: fmt.Errorf("result missing required key %q", k)}
			}
			a.collectData[k][chunkIndex] = v
		}
	case ModeSum:
		scalar, ok := toFloat64(result[a.sumScalarKey])
		if !ok {
			return &errs.ProtocolError{Cause: fmt.Errorf("result missing required scalar key %q", a.sumScalarKey)}
		}
		arr, ok := toFloat64Slice(result[a.sumArrayKey])
		if !ok {
			return &errs.ProtocolError{Cause: fmt.Errorf("result missing required array key %q", a.sumArrayKey)}
		}
		if len(arr) != a.sumArrayLen {
			return &errs.ProtocolError{Cause: fmt.Errorf("result array %q has length %d, want %d", a.sumArrayKey, len(arr), a.sumArrayLen)}
		}
		a.sumScalar += scalar
		for i, v := range arr {
			a.sumArray[i] += scalar * v
		}
	}

	a.seen[chunkIndex] = true
	return nil
}

// Output returns the final aggregate. For ModeCollect it is the keyed record
// of per-key lists; for ModeSum it is {scalarKey: scalar, arrayKey: array}.
func (a *Aggregator) Output() chunkstream.Fields {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(chunkstream.Fields)
	switch a.mode {
	case ModeCollect:
		for _, k := range a.collectKeys {
			out[k] = a.collectData[k]
		}
	case ModeSum:
		out[a.sumScalarKey] = a.sumScalar
		arr := make([]float64, len(a.sumArray))
		copy(arr, a.sumArray)
		out[a.sumArrayKey] = arr
	}
	return out
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toFloat64Slice(v any) ([]float64, bool) {
	switch s := v.(type) {
	case []float64:
		return s, true
	case []float32:
		out := make([]float64, len(s))
		for i, f := range s {
			out[i] = float64(f)
		}
		return out, true
	case []int:
		out := make([]float64, len(s))
		for i, n := range s {
			out[i] = float64(n)
		}
		return out, true
	default:
		return nil, false
	}
}

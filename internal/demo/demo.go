// Package demo provides a small registry of example chunk generators and
// their matching aggregation mode, grounded in the original ompserver.py
// demo script's dstr_sum and dstr_collect usages (spec.md §12). cmd/coordinator
// exposes these by name, the way the teacher's cmd/coordinator exposes named
// computations from its own registry.
package demo

import (
	"fmt"

	"github.com/ke0m/scaleup/internal/aggregate"
	"github.com/ke0m/scaleup/internal/chunkstream"
)

// Demo bundles a chunk source builder and the aggregator it pairs with.
// Both builders take the total chunk count n; callers pass the same n to
// each so the source and aggregator agree.
type Demo struct {
	Name string

	// NewSource builds the chunk source for n total chunks.
	NewSource func(n int) chunkstream.Source
	// NewAggregator builds the matching aggregator for n total chunks.
	NewAggregator func(n int) *aggregate.Aggregator
}

// VectorScale mirrors ompserver.py's dstr_sum demo: chunk i carries a scalar
// scale = i+1 and a fixed-length array of ones; results are expected to echo
// "scale" and "array" back unchanged, and aggregate.Sum scales and sums them.
func VectorScale(arrayLen int) Demo {
	return Demo{
		Name: "vectorscale",
		NewSource: func(n int) chunkstream.Source {
			return chunkstream.NewFuncSource(n, func(pos int) chunkstream.Fields {
				arr := make([]float64, arrayLen)
				for i := range arr {
					arr[i] = 1
				}
				return chunkstream.Fields{
					"scale": float64(pos + 1),
					"array": arr,
				}
			})
		},
		NewAggregator: func(n int) *aggregate.Aggregator {
			return aggregate.NewSum(n, "scale", "array", arrayLen)
		},
	}
}

// Collect mirrors ompserver.py's dstr_collect demo: chunk i carries a scalar
// scale = i+1; results are expected to echo "result" and "scale" back,
// collected via aggregate.Collect indexed by chunk_index.
func Collect() Demo {
	return Demo{
		Name: "collect",
		NewSource: func(n int) chunkstream.Source {
			return chunkstream.NewFuncSource(n, func(pos int) chunkstream.Fields {
				return chunkstream.Fields{"scale": float64(pos + 1)}
			})
		},
		NewAggregator: func(n int) *aggregate.Aggregator {
			return aggregate.NewCollect(n, []string{"result", "scale"})
		},
	}
}

// ByName looks up a built-in demo by its registry name.
func ByName(name string, arrayLen int) (Demo, error) {
	switch name {
	case "vectorscale":
		return VectorScale(arrayLen), nil
	case "collect":
		return Collect(), nil
	default:
		return Demo{}, fmt.Errorf("demo: unknown demo %q", name)
	}
}

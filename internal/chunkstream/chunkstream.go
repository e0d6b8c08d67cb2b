// Package chunkstream models the finite, single-pass, non-restartable lazy
// sequence of work items ("chunks") and the results workers return for them.
//
// Chunks are modeled as a pull interface rather than a buffered slice:
// spec.md explicitly calls out that per-chunk payloads may be large (tens of
// megabytes), so the sequence must not be materialized in memory ahead of
// dispatch.
package chunkstream

// Fields is a keyed record of opaque, user-defined scalar and array values.
// The dispatch engine and aggregator pass these through unchanged except for
// the reserved "chunk_index" key, which the coordinator controls.
type Fields map[string]any

const IndexKey = "chunk_index"

// Chunk is one unit of work: a Fields record plus the chunk_index assigned by
// the coordinator in emission order.
type Chunk struct {
	Index  int
	Fields Fields
}

// Result is a Fields record returned by a worker for a specific chunk. The
// chunk_index it echoes is stored in Index.
type Result struct {
	Index  int
	Fields Fields
}

// Source is a pull iterator over a finite sequence of chunk payloads. Next
// returns false once the sequence is exhausted. Implementations must not
// buffer more than one chunk's worth of data at a time. Len reports the total
// number of chunks the source will ever yield (N in spec.md §3); it must not
// change across the lifetime of the Source.
type Source interface {
	Len() int
	Next() (Fields, bool)
}

// SliceSource adapts a pre-built slice of Fields into a Source. Useful for
// small or test sequences; real production sources should prefer a
// FuncSource that computes each chunk lazily.
type SliceSource struct {
	items []Fields
	pos   int
}

// NewSliceSource returns a Source over items, consumed in order.
func NewSliceSource(items []Fields) *SliceSource {
	return &SliceSource{items: items}
}

func (s *SliceSource) Len() int { return len(s.items) }

func (s *SliceSource) Next() (Fields, bool) {
	if s.pos >= len(s.items) {
		return nil, false
	}
	f := s.items[s.pos]
	s.pos++
	return f, true
}

// FuncSource adapts a generator function into a Source. gen is called with
// the zero-based position within the sequence (not the coordinator-assigned
// chunk_index, which may differ if a Source is ever composed) and must
// produce the Fields for that position.
type FuncSource struct {
	n   int
	gen func(pos int) Fields
	pos int
}

// NewFuncSource returns a Source that lazily calls gen for each of the n
// positions in order, never more than one ahead of consumption.
func NewFuncSource(n int, gen func(pos int) Fields) *FuncSource {
	return &FuncSource{n: n, gen: gen}
}

func (s *FuncSource) Len() int { return s.n }

func (s *FuncSource) Next() (Fields, bool) {
	if s.pos >= s.n {
		return nil, false
	}
	f := s.gen(s.pos)
	s.pos++
	return f, true
}

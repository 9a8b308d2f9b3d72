package reindex

// DefaultStride is the spacing between order keys. Sparse keys let most
// inserts take a midpoint without touching siblings; only a full gap forces
// a shift.
const DefaultStride int64 = 1000

// Shift moves every key >= From by Delta.
type Shift struct {
	From  int64 `json:"from"`
	Delta int64 `json:"delta"`
}

// Plan describes how to place a new item.
type Plan struct {
	// Index is the clamped insertion position.
	Index int

	// Key is the order key the new item receives.
	Key int64

	// Shift is non-nil when siblings must move to vacate Key.
	Shift *Shift
}

// Apply returns the key a sibling ends up with after the plan's shift.
func (p Plan) Apply(key int64) int64 {
	if p.Shift != nil && key >= p.Shift.From {
		return key + p.Shift.Delta
	}
	return key
}

// PlanInsert computes where an item inserted at index lands among keys,
// which must be sorted ascending and unique. index is clamped to
// [0, len(keys)].
//
//   - empty sequence: stride
//   - append: last + stride
//   - prepend: first - stride
//   - gap of at least 2 between neighbours: the midpoint
//   - otherwise: shift every key >= keys[index] by stride and take the
//     vacated keys[index]
//
// The new key always sorts strictly between keys[index-1] and keys[index].
func PlanInsert(keys []int64, index int, stride int64) Plan {
	if stride <= 0 {
		stride = DefaultStride
	}
	n := len(keys)
	if index < 0 {
		index = 0
	}
	if index > n {
		index = n
	}

	switch {
	case n == 0:
		return Plan{Index: 0, Key: stride}
	case index == n:
		return Plan{Index: index, Key: keys[n-1] + stride}
	case index == 0:
		return Plan{Index: 0, Key: keys[0] - stride}
	}

	prev, next := keys[index-1], keys[index]
	if next-prev >= 2 {
		return Plan{Index: index, Key: prev + (next-prev)/2}
	}
	return Plan{
		Index: index,
		Key:   next,
		Shift: &Shift{From: next, Delta: stride},
	}
}

// PlanPartial is PlanInsert for keys that are only a loaded prefix of a
// longer sequence. An append there still has unloaded neighbours after it,
// usually a full stride past the last loaded key, so the new key goes
// halfway into that gap instead of onto the next neighbour.
func PlanPartial(keys []int64, index int, stride int64) Plan {
	if stride <= 0 {
		stride = DefaultStride
	}
	p := PlanInsert(keys, index, stride)
	if len(keys) == 0 || p.Index < len(keys) {
		return p
	}
	p.Key = keys[len(keys)-1] + max(stride/2, 1)
	return p
}

// Compact returns evenly spaced keys stride, 2*stride, ... for n items.
func Compact(n int, stride int64) []int64 {
	if stride <= 0 {
		stride = DefaultStride
	}
	keys := make([]int64, n)
	for i := range keys {
		keys[i] = int64(i+1) * stride
	}
	return keys
}

// PlanPreferred is PlanInsert that keeps preferred when ok and preferred
// already sorts strictly between the neighbours at index. A caller that
// planned against a different view (one with optimistic or remote-only
// items) passes its own key here so the durable key matches what was
// rendered. Any key, zero included, can be preferred.
func PlanPreferred(keys []int64, index int, stride, preferred int64, ok bool) Plan {
	if !ok {
		return PlanInsert(keys, index, stride)
	}
	n := len(keys)
	if index < 0 {
		index = 0
	}
	if index > n {
		index = n
	}
	if (index == 0 || keys[index-1] < preferred) && (index == n || preferred < keys[index]) {
		return Plan{Index: index, Key: preferred}
	}
	return PlanInsert(keys, index, stride)
}

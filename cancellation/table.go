package cancellation

// table buckets the combinations of one level by a window of bits of their
// combined value. Keys keep the order of first appearance so that a run over
// the same pool always pairs in the same order.
type table struct {
	offset  int
	bits    int
	buckets map[uint32][]int
	keys    []uint32
}

func newTable(level []combination, offset, bits int) *table {
	t := &table{
		offset:  offset,
		bits:    bits,
		buckets: make(map[uint32][]int, len(level)),
	}
	for i := range level {
		t.insert(level[i].value.Window(offset, bits), i)
	}
	return t
}

func (t *table) insert(key uint32, pos int) {
	b, ok := t.buckets[key]
	if !ok {
		t.keys = append(t.keys, key)
	}
	t.buckets[key] = append(b, pos)
}

// collisions returns the number of pairs the table holds.
func (t *table) collisions() int {
	n := 0
	for _, b := range t.buckets {
		n += len(b) * (len(b) - 1) / 2
	}
	return n
}

package value

// MapBuilder accumulates mapping entries in insertion order. Setting a key
// that is already present replaces its value in place. Each operation is
// O(1), so building an n-key mapping is linear.
//
// The zero MapBuilder is ready to use.
type MapBuilder struct {
	pairs []Pair
	index map[string]int
}

// NewMapBuilder returns a builder with room for size entries.
func NewMapBuilder(size int) *MapBuilder {
	return &MapBuilder{
		pairs: make([]Pair, 0, size),
		index: make(map[string]int, size),
	}
}

// MapBuilderFrom returns a builder seeded with the entries of v. A
// non-mapping seeds nothing. v itself is not modified.
func MapBuilderFrom(v Value, extra int) *MapBuilder {
	src := v.Pairs()
	b := NewMapBuilder(len(src) + extra)
	for _, p := range src {
		b.Set(p.Key, p.Value)
	}
	return b
}

// Set binds key to val.
func (b *MapBuilder) Set(key string, val Value) {
	if b.index == nil {
		b.index = make(map[string]int)
	}
	if i, ok := b.index[key]; ok {
		b.pairs[i].Value = val
		return
	}
	b.index[key] = len(b.pairs)
	b.pairs = append(b.pairs, Pair{Key: key, Value: val})
}

// Get returns the value bound to key.
func (b *MapBuilder) Get(key string) (Value, bool) {
	i, ok := b.index[key]
	if !ok {
		return Value{}, false
	}
	return b.pairs[i].Value, true
}

// Len returns the number of entries.
func (b *MapBuilder) Len() int { return len(b.pairs) }

// Build returns the mapping and resets the builder.
func (b *MapBuilder) Build() Value {
	pairs := b.pairs
	if pairs == nil {
		pairs = []Pair{}
	}
	b.pairs = nil
	b.index = nil
	return Value{kind: KindMap, pairs: pairs}
}

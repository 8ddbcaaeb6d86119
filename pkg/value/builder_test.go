package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapBuilder(t *testing.T) {
	var b MapBuilder
	b.Set("z", Int(1))
	b.Set("a", Int(2))
	b.Set("z", Int(3))

	assert.Equal(t, 2, b.Len())
	got, ok := b.Get("z")
	require.True(t, ok)
	assert.True(t, got.Equal(Int(3)))

	m := b.Build()
	assert.Equal(t, []string{"z", "a"}, m.Keys())
	assert.True(t, Map(Pair{"z", Int(3)}, Pair{"a", Int(2)}).Equal(m))

	// Build resets the builder; the built mapping is unaffected.
	assert.Equal(t, 0, b.Len())
	b.Set("new", Null())
	assert.Equal(t, 2, m.Len())
}

func TestMapBuilder_EmptyBuildsEmptyMap(t *testing.T) {
	m := NewMapBuilder(0).Build()
	assert.Equal(t, KindMap, m.Kind())
	assert.Equal(t, 0, m.Len())
	assert.True(t, EmptyMap().Equal(m))
}

func TestMapBuilderFrom(t *testing.T) {
	src := Map(Pair{"a", Int(1)}, Pair{"b", Int(2)})

	b := MapBuilderFrom(src, 1)
	b.Set("a", Int(10))
	b.Set("c", Int(3))
	got := b.Build()

	assert.Equal(t, []string{"a", "b", "c"}, got.Keys())
	orig, _ := src.Get("a")
	assert.True(t, orig.Equal(Int(1)), "source mapping must not change")

	assert.Equal(t, 0, MapBuilderFrom(String("x"), 0).Len())
}

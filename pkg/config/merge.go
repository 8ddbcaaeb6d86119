package config

import "github.com/openfroyo/configtpl/pkg/value"

// DeepMerge merges b into a. When both are mappings they are merged key by
// key: keys already in a keep their position and new keys are appended.
// In every other case b wins, so lists are replaced rather than joined.
func DeepMerge(a, b value.Value) value.Value {
	if a.Kind() != value.KindMap || b.Kind() != value.KindMap {
		return b
	}

	out := value.MapBuilderFrom(a, b.Len())
	for _, p := range b.Pairs() {
		if existing, ok := out.Get(p.Key); ok {
			out.Set(p.Key, DeepMerge(existing, p.Value))
			continue
		}
		out.Set(p.Key, p.Value)
	}
	return out.Build()
}

// shallowMerge overlays the top-level keys of b onto a.
func shallowMerge(a, b value.Value) value.Value {
	bm := asMap(b)
	out := value.MapBuilderFrom(asMap(a), bm.Len())
	for _, p := range bm.Pairs() {
		out.Set(p.Key, p.Value)
	}
	return out.Build()
}

// asMap treats a null value as an empty mapping.
func asMap(v value.Value) value.Value {
	if v.IsNull() {
		return value.EmptyMap()
	}
	return v
}

// Package value defines the resolved configuration value produced by the
// configtpl build engine.
//
// A Value is a tagged union over null, bool, int64, float64, string, ordered
// lists and mappings with unique string keys. It is the only type that
// crosses from the build engine into the bridge; the marshal package turns
// it into host values.
//
// Mappings keep the order their producer inserted keys in. That order is
// useful for reproducible output but is not part of a Value's identity:
// Equal ignores it.
package value

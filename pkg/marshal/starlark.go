package marshal

import (
	"fmt"

	"github.com/openfroyo/configtpl/pkg/value"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// StarlarkFactory builds Starlark values.
type StarlarkFactory struct{}

var _ Factory[starlark.Value] = StarlarkFactory{}

// Bool returns starlark.True or starlark.False.
func (StarlarkFactory) Bool(b bool) (starlark.Value, error) {
	return starlark.Bool(b), nil
}

// Int returns a Starlark int holding the full 64-bit value.
func (StarlarkFactory) Int(i int64) (starlark.Value, error) {
	return starlark.MakeInt64(i), nil
}

// Float returns a Starlark float with the same bit pattern.
func (StarlarkFactory) Float(f float64) (starlark.Value, error) {
	return starlark.Float(f), nil
}

// String returns a Starlark string with the same bytes.
func (StarlarkFactory) String(s string) (starlark.Value, error) {
	return starlark.String(s), nil
}

// Null returns starlark.None.
func (StarlarkFactory) Null() (starlark.Value, error) {
	return starlark.None, nil
}

// List returns a new mutable Starlark list.
func (StarlarkFactory) List(items []starlark.Value) (starlark.Value, error) {
	return starlark.NewList(items), nil
}

// Map returns a new Starlark dict. Dicts keep insertion order.
func (StarlarkFactory) Map(keys []string, values []starlark.Value) (starlark.Value, error) {
	dict := starlark.NewDict(len(keys))
	for i, k := range keys {
		if err := dict.SetKey(starlark.String(k), values[i]); err != nil {
			return nil, err
		}
	}
	return dict, nil
}

// DecodeStarlark converts a Starlark value into a configuration value.
// Tuples decode as lists and structs as mappings.
func DecodeStarlark(v starlark.Value) (value.Value, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return value.Null(), nil
	case starlark.Bool:
		return value.Bool(bool(val)), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return value.Value{}, fmt.Errorf("integer %s out of 64-bit range", val.String())
		}
		return value.Int(i), nil
	case starlark.Float:
		return value.Float(float64(val)), nil
	case starlark.String:
		return value.String(string(val)), nil
	case *starlark.List:
		items := make([]value.Value, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := DecodeStarlark(val.Index(i))
			if err != nil {
				return value.Value{}, err
			}
			items[i] = item
		}
		return value.List(items...), nil
	case starlark.Tuple:
		items := make([]value.Value, len(val))
		for i, elem := range val {
			item, err := DecodeStarlark(elem)
			if err != nil {
				return value.Value{}, err
			}
			items[i] = item
		}
		return value.List(items...), nil
	case *starlark.Dict:
		out := value.NewMapBuilder(val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return value.Value{}, fmt.Errorf("dict key must be string, got %s", item[0].Type())
			}
			elem, err := DecodeStarlark(item[1])
			if err != nil {
				return value.Value{}, err
			}
			out.Set(string(key), elem)
		}
		return out.Build(), nil
	case *starlarkstruct.Struct:
		names := val.AttrNames()
		out := value.NewMapBuilder(len(names))
		for _, name := range names {
			attr, err := val.Attr(name)
			if err != nil {
				return value.Value{}, err
			}
			elem, err := DecodeStarlark(attr)
			if err != nil {
				return value.Value{}, err
			}
			out.Set(name, elem)
		}
		return out.Build(), nil
	default:
		return value.Value{}, fmt.Errorf("%w: starlark %s", ErrUnsupported, v.Type())
	}
}

// DecodeStrings converts a host path argument into Go strings. Any iterable
// of strings is accepted; a bare string is treated as a single path.
func DecodeStrings(v starlark.Value) ([]string, error) {
	if s, ok := v.(starlark.String); ok {
		return []string{string(s)}, nil
	}

	iterable, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("%w: expected a sequence of strings, got %s", ErrUnsupported, v.Type())
	}

	iter := iterable.Iterate()
	defer iter.Done()

	out := []string{}
	var x starlark.Value
	for i := 0; iter.Next(&x); i++ {
		s, ok := x.(starlark.String)
		if !ok {
			return nil, fmt.Errorf("element %d: expected string, got %s", i, x.Type())
		}
		out = append(out, string(s))
	}
	return out, nil
}

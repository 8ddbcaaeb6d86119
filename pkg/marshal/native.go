package marshal

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/openfroyo/configtpl/pkg/value"
)

// GoFactory builds plain Go values: bool, int64, float64, string, nil,
// []any and map[string]any. Mapping order is not kept.
type GoFactory struct{}

var _ Factory[any] = GoFactory{}

func (GoFactory) Bool(b bool) (any, error) { return b, nil }
func (GoFactory) Int(i int64) (any, error) { return i, nil }
func (GoFactory) Float(f float64) (any, error) { return f, nil }
func (GoFactory) String(s string) (any, error) { return s, nil }
func (GoFactory) Null() (any, error) { return nil, nil }
func (GoFactory) List(items []any) (any, error) { return items, nil }

func (GoFactory) Map(keys []string, values []any) (any, error) {
	m := make(map[string]any, len(keys))
	for i, k := range keys {
		m[k] = values[i]
	}
	return m, nil
}

// ErrNonFinite is returned by JSONFactory for NaN and infinite floats.
var ErrNonFinite = errors.New("JSON cannot represent NaN or infinite floats")

// JSONFactory is GoFactory restricted to values encoding/json can write.
// Non-finite floats fail with ErrNonFinite, so Encode reports their path.
type JSONFactory struct {
	GoFactory
}

var _ Factory[any] = JSONFactory{}

// Float rejects NaN and infinities.
func (JSONFactory) Float(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %v", ErrNonFinite, f)
	}
	return f, nil
}

// DecodeGo converts a Go value into a configuration value. Map keys are
// sorted so the result is deterministic.
func DecodeGo(v any) (value.Value, error) {
	switch val := v.(type) {
	case nil:
		return value.Null(), nil
	case value.Value:
		return val, nil
	case bool:
		return value.Bool(val), nil
	case int:
		return value.Int(int64(val)), nil
	case int8:
		return value.Int(int64(val)), nil
	case int16:
		return value.Int(int64(val)), nil
	case int32:
		return value.Int(int64(val)), nil
	case int64:
		return value.Int(val), nil
	case uint:
		return decodeUint(uint64(val))
	case uint8:
		return value.Int(int64(val)), nil
	case uint16:
		return value.Int(int64(val)), nil
	case uint32:
		return value.Int(int64(val)), nil
	case uint64:
		return decodeUint(val)
	case float32:
		return value.Float(float64(val)), nil
	case float64:
		return value.Float(val), nil
	case string:
		return value.String(val), nil
	case []byte:
		return value.String(string(val)), nil
	case []string:
		items := make([]value.Value, len(val))
		for i, s := range val {
			items[i] = value.String(s)
		}
		return value.List(items...), nil
	case []any:
		items := make([]value.Value, len(val))
		for i, elem := range val {
			item, err := DecodeGo(elem)
			if err != nil {
				return value.Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = item
		}
		return value.List(items...), nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		pairs := make([]value.Pair, len(keys))
		for i, k := range keys {
			item, err := DecodeGo(val[k])
			if err != nil {
				return value.Value{}, fmt.Errorf("%s: %w", k, err)
			}
			pairs[i] = value.Pair{Key: k, Value: item}
		}
		return value.Map(pairs...), nil
	case map[string]string:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		pairs := make([]value.Pair, len(keys))
		for i, k := range keys {
			pairs[i] = value.Pair{Key: k, Value: value.String(val[k])}
		}
		return value.Map(pairs...), nil
	default:
		return value.Value{}, fmt.Errorf("%w: go %T", ErrUnsupported, v)
	}
}

func decodeUint(u uint64) (value.Value, error) {
	if u > math.MaxInt64 {
		return value.Value{}, fmt.Errorf("integer %d out of 64-bit signed range", u)
	}
	return value.Int(int64(u)), nil
}

// ToGo is shorthand for Encode with GoFactory, which cannot fail.
func ToGo(v value.Value) any {
	out, _ := Encode[any](GoFactory{}, v)
	return out
}

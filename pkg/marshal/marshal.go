package marshal

import (
	"errors"
	"strconv"
	"strings"

	"github.com/openfroyo/configtpl/pkg/value"
)

// ErrUnsupported is returned by decoders for host values that have no
// configuration value equivalent.
var ErrUnsupported = errors.New("unsupported host value")

// Factory constructs host values of type H. Each target environment
// supplies one; Encode never builds host values any other way.
//
// Bool must be a dedicated constructor: hosts that represent booleans as
// small integers still need booleans and integers to stay distinguishable.
type Factory[H any] interface {
	Bool(b bool) (H, error)
	Int(i int64) (H, error)
	Float(f float64) (H, error)
	String(s string) (H, error)
	Null() (H, error)
	List(items []H) (H, error)
	Map(keys []string, values []H) (H, error)
}

// ConversionError reports that the host failed to construct a value.
type ConversionError struct {
	// Path locates the failing node, e.g. "servers[2].name".
	Path string

	// Kind is the kind of the value being constructed.
	Kind value.Kind

	// Err is the host's own error.
	Err error
}

// Error implements the error interface.
func (e *ConversionError) Error() string {
	if e.Path == "" {
		return "host conversion failed: " + e.Err.Error()
	}
	return "host conversion failed at " + e.Path + ": " + e.Err.Error()
}

// Unwrap returns the host error.
func (e *ConversionError) Unwrap() error {
	return e.Err
}

// Encode converts v into a host value in one depth-first pass. List order is
// preserved and mapping keys are handed to the factory in stored order.
func Encode[H any](f Factory[H], v value.Value) (H, error) {
	return encode(f, v, nil)
}

func encode[H any](f Factory[H], v value.Value, path []string) (H, error) {
	var (
		out H
		err error
	)

	switch v.Kind() {
	case value.KindNull:
		out, err = f.Null()
	case value.KindBool:
		b, _ := v.AsBool()
		out, err = f.Bool(b)
	case value.KindInt:
		i, _ := v.AsInt()
		out, err = f.Int(i)
	case value.KindFloat:
		fl, _ := v.AsFloat()
		out, err = f.Float(fl)
	case value.KindString:
		s, _ := v.AsString()
		out, err = f.String(s)
	case value.KindList:
		src := v.Items()
		items := make([]H, len(src))
		for i, item := range src {
			items[i], err = encode(f, item, append(path, "["+strconv.Itoa(i)+"]"))
			if err != nil {
				return out, err
			}
		}
		out, err = f.List(items)
	case value.KindMap:
		pairs := v.Pairs()
		keys := make([]string, len(pairs))
		values := make([]H, len(pairs))
		for i, p := range pairs {
			keys[i] = p.Key
			values[i], err = encode(f, p.Value, append(path, p.Key))
			if err != nil {
				return out, err
			}
		}
		out, err = f.Map(keys, values)
	}

	if err != nil {
		var convErr *ConversionError
		if errors.As(err, &convErr) {
			return out, err
		}
		return out, &ConversionError{Path: formatPath(path), Kind: v.Kind(), Err: err}
	}
	return out, nil
}

func formatPath(path []string) string {
	var b strings.Builder
	for _, p := range path {
		if b.Len() > 0 && !strings.HasPrefix(p, "[") {
			b.WriteByte('.')
		}
		b.WriteString(p)
	}
	return b.String()
}

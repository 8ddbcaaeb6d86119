package config

import (
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"github.com/openfroyo/configtpl/pkg/value"
)

// CUEParser loads CUE files and packages as configuration values.
//
// A cue.Context must not be shared between goroutines, so every load gets
// its own. Builds may run concurrently on the same ConfigBuilder.
type CUEParser struct{}

// NewCUEParser creates a new CUE parser.
func NewCUEParser() *CUEParser {
	return &CUEParser{}
}

// LoadFile compiles a single CUE file.
func (cp *CUEParser) LoadFile(path string) (value.Value, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return value.Value{}, fmt.Errorf("failed to read file: %w", err)
	}
	return cp.ParseInline(string(content), path)
}

// LoadDirectory loads the CUE package in dir.
func (cp *CUEParser) LoadDirectory(dir string) (value.Value, error) {
	buildInstances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(buildInstances) == 0 {
		return value.Value{}, fmt.Errorf("no CUE files found in %s", dir)
	}

	inst := buildInstances[0]
	if inst.Err != nil {
		return value.Value{}, cp.convertCUEErrors(inst.Err)
	}

	val := cuecontext.New().BuildInstance(inst)
	if err := val.Err(); err != nil {
		return value.Value{}, cp.convertCUEErrors(err)
	}
	return cp.extract(val)
}

// ParseInline compiles CUE source text. filename is only used in error
// positions and may be empty.
func (cp *CUEParser) ParseInline(content, filename string) (value.Value, error) {
	var opts []cue.BuildOption
	if filename != "" {
		opts = append(opts, cue.Filename(filename))
	}

	val := cuecontext.New().CompileString(content, opts...)
	if err := val.Err(); err != nil {
		return value.Value{}, cp.convertCUEErrors(err)
	}
	return cp.extract(val)
}

// extract validates that val is concrete and converts it.
func (cp *CUEParser) extract(val cue.Value) (value.Value, error) {
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return value.Value{}, cp.convertCUEErrors(err)
	}
	return cueToValue(val, nil)
}

// cueToValue converts a concrete CUE value. Regular fields keep their
// declaration order; definitions, hidden and optional fields are skipped.
func cueToValue(v cue.Value, path []string) (value.Value, error) {
	if d, ok := v.Default(); ok {
		v = d
	}

	switch v.Kind() {
	case cue.NullKind:
		return value.Null(), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return value.Value{}, cuePathError(path, err)
		}
		return value.Bool(b), nil
	case cue.IntKind:
		i, err := v.Int64()
		if err != nil {
			return value.Value{}, cuePathError(path, err)
		}
		return value.Int(i), nil
	case cue.FloatKind:
		f, err := v.Float64()
		if err != nil {
			return value.Value{}, cuePathError(path, err)
		}
		return value.Float(f), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return value.Value{}, cuePathError(path, err)
		}
		return value.String(s), nil
	case cue.BytesKind:
		b, err := v.Bytes()
		if err != nil {
			return value.Value{}, cuePathError(path, err)
		}
		return value.String(string(b)), nil
	case cue.ListKind:
		list, err := v.List()
		if err != nil {
			return value.Value{}, cuePathError(path, err)
		}
		var items []value.Value
		for idx := 0; list.Next(); idx++ {
			item, err := cueToValue(list.Value(), append(path, fmt.Sprintf("[%d]", idx)))
			if err != nil {
				return value.Value{}, err
			}
			items = append(items, item)
		}
		return value.List(items...), nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return value.Value{}, cuePathError(path, err)
		}
		var out value.MapBuilder
		for iter.Next() {
			name := iter.Selector().Unquoted()
			item, err := cueToValue(iter.Value(), append(path, name))
			if err != nil {
				return value.Value{}, err
			}
			out.Set(name, item)
		}
		return out.Build(), nil
	default:
		return value.Value{}, cuePathError(path, fmt.Errorf("incomplete value %v", v))
	}
}

func cuePathError(path []string, err error) error {
	if len(path) == 0 {
		return err
	}
	return ValidationError{
		Path:    strings.ReplaceAll(strings.Join(path, "."), ".[", "["),
		Message: err.Error(),
	}
}

// convertCUEErrors converts CUE errors to ValidationErrors.
func (cp *CUEParser) convertCUEErrors(err error) error {
	var validationErrors ValidationErrors

	for _, e := range errors.Errors(err) {
		pos := errors.Positions(e)
		var file string
		var line, column int

		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		format, args := e.Msg()
		validationErrors = append(validationErrors, ValidationError{
			File:    file,
			Line:    line,
			Column:  column,
			Path:    strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		})
	}

	if len(validationErrors) == 0 {
		return err
	}
	return validationErrors
}

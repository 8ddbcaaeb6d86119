package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/openfroyo/configtpl/pkg/marshal"
	"github.com/openfroyo/configtpl/pkg/value"
	starlarkjson "go.starlark.net/lib/json"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// DefaultStarlarkTimeout bounds a single Starlark source evaluation.
const DefaultStarlarkTimeout = 30 * time.Second

// StarlarkEvaluator executes Starlark configuration sources.
//
// The build data is predeclared as ctx. Public globals that are not
// callables form the resulting mapping, in name order.
type StarlarkEvaluator struct {
	timeout time.Duration
}

// NewStarlarkEvaluator creates a new Starlark evaluator.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = DefaultStarlarkTimeout
	}
	return &StarlarkEvaluator{
		timeout: timeout,
	}
}

// EvaluateFile executes the script in path.
func (se *StarlarkEvaluator) EvaluateFile(ctx context.Context, path string, data value.Value) (value.Value, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return value.Value{}, fmt.Errorf("failed to read file: %w", err)
	}
	return se.Evaluate(ctx, path, src, data)
}

// Evaluate executes script with data predeclared as ctx. The thread is
// cancelled when ctx is done or the timeout expires.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, filename string, script []byte, data value.Value) (value.Value, error) {
	evalCtx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()
	if err := evalCtx.Err(); err != nil {
		return value.Value{}, fmt.Errorf("starlark execution cancelled: %w", err)
	}

	thread := &starlark.Thread{
		Name: "configtpl",
		Print: func(_ *starlark.Thread, msg string) {
			// Sources have no output channel.
		},
	}
	stop := context.AfterFunc(evalCtx, func() {
		thread.Cancel(evalCtx.Err().Error())
	})
	defer stop()

	input, err := marshal.Encode[starlark.Value](marshal.StarlarkFactory{}, asMap(data))
	if err != nil {
		return value.Value{}, fmt.Errorf("failed to convert input: %w", err)
	}

	predeclared := starlark.StringDict{
		"ctx":    input,
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
		"json":   starlarkjson.Module,
	}

	globals, err := starlark.ExecFile(thread, filename, script, predeclared)
	if err != nil {
		if evalErr := evalCtx.Err(); evalErr != nil {
			return value.Value{}, fmt.Errorf("starlark execution cancelled: %w", evalErr)
		}
		return value.Value{}, fmt.Errorf("starlark execution failed: %w", err)
	}

	names := make([]string, 0, len(globals))
	for name, val := range globals {
		// Skip private names and helper functions.
		if name[0] == '_' {
			continue
		}
		if _, ok := val.(starlark.Callable); ok {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := value.NewMapBuilder(len(names))
	for _, name := range names {
		v, err := marshal.DecodeStarlark(globals[name])
		if err != nil {
			return value.Value{}, fmt.Errorf("failed to convert output %s: %w", name, err)
		}
		out.Set(name, v)
	}
	return out.Build(), nil
}

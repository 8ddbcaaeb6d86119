package bridge

import (
	"context"
	"fmt"

	"github.com/openfroyo/configtpl/pkg/config"
	"github.com/openfroyo/configtpl/pkg/marshal"
	"github.com/openfroyo/configtpl/pkg/registry"
	"go.starlark.net/lib/json"
	"go.starlark.net/starlark"
)

// contextKey is the thread-local key holding the context.Context of a
// script run.
const contextKey = "configtpl.context"

// SetThreadContext makes ctx visible to builder methods called on thread.
func SetThreadContext(thread *starlark.Thread, ctx context.Context) {
	thread.SetLocal(contextKey, ctx)
}

func threadContext(thread *starlark.Thread) context.Context {
	if ctx, ok := thread.Local(contextKey).(context.Context); ok {
		return ctx
	}
	return context.Background()
}

// Module returns the predeclared names that expose the bridge to Starlark:
// the ConfigBuilder constructor and the json module.
func (b *Bridge) Module() starlark.StringDict {
	return starlark.StringDict{
		"ConfigBuilder": starlark.NewBuiltin("ConfigBuilder", b.newHostBuilder),
		"json":          json.Module,
	}
}

// ExecFile runs a Starlark script with Module predeclared. src is passed
// to starlark.ExecFile; print receives the script's print output.
func (b *Bridge) ExecFile(ctx context.Context, filename string, src any, printFn func(msg string)) (starlark.StringDict, error) {
	thread := &starlark.Thread{
		Name: filename,
		Print: func(_ *starlark.Thread, msg string) {
			if printFn != nil {
				printFn(msg)
			}
		},
	}
	SetThreadContext(thread, ctx)

	stop := context.AfterFunc(ctx, func() {
		thread.Cancel(ctx.Err().Error())
	})
	defer stop()

	return starlark.ExecFile(thread, filename, src, b.Module())
}

// newHostBuilder implements ConfigBuilder(defaults=None, env_var_prefix="").
func (b *Bridge) newHostBuilder(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var defaults starlark.Value = starlark.None
	var prefix string
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "defaults?", &defaults, "env_var_prefix?", &prefix); err != nil {
		return nil, err
	}

	var opts []config.Option
	if defaults != starlark.None {
		v, err := marshal.DecodeStarlark(defaults)
		if err != nil {
			return nil, fmt.Errorf("%s: defaults: %w", fn.Name(), err)
		}
		opts = append(opts, config.WithDefaults(v))
	}
	if prefix != "" {
		opts = append(opts, config.WithEnvVarPrefix(prefix))
	}

	h, err := b.Create(threadContext(thread), opts...)
	if err != nil {
		return nil, err
	}
	return &hostBuilder{bridge: b, handle: h}, nil
}

// hostBuilder is the Starlark face of a registered builder. It holds only
// the handle.
type hostBuilder struct {
	bridge *Bridge
	handle registry.Handle
}

var (
	_ starlark.Value    = (*hostBuilder)(nil)
	_ starlark.HasAttrs = (*hostBuilder)(nil)
)

func (hb *hostBuilder) String() string        { return fmt.Sprintf("<ConfigBuilder handle=%d>", uint64(hb.handle)) }
func (hb *hostBuilder) Type() string          { return "ConfigBuilder" }
func (hb *hostBuilder) Freeze()               {}
func (hb *hostBuilder) Truth() starlark.Bool  { return starlark.True }
func (hb *hostBuilder) Hash() (uint32, error) { return uint32(hb.handle) ^ uint32(hb.handle>>32), nil }

var hostBuilderMethods = map[string]func(hb *hostBuilder, thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error){
	"render":     (*hostBuilder).render,
	"render_str": (*hostBuilder).renderStr,
	"set_global": (*hostBuilder).setFunc,
	"set_filter": (*hostBuilder).setFunc,
	"close":      (*hostBuilder).close,
}

// Attr implements starlark.HasAttrs.
func (hb *hostBuilder) Attr(name string) (starlark.Value, error) {
	if name == "handle" {
		return starlark.MakeUint64(uint64(hb.handle)), nil
	}
	method, ok := hostBuilderMethods[name]
	if !ok {
		return nil, nil
	}
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		return method(hb, thread, fn, args, kwargs)
	}).BindReceiver(hb), nil
}

// AttrNames implements starlark.HasAttrs.
func (hb *hostBuilder) AttrNames() []string {
	return []string{"close", "handle", "render", "render_str", "set_filter", "set_global"}
}

// buildArgs decodes the optional overrides and ctx keyword arguments.
func buildArgs(overrides, ctx starlark.Value) (config.BuildArgs, error) {
	args := config.DefaultBuildArgs()
	if overrides != nil && overrides != starlark.None {
		v, err := marshal.DecodeStarlark(overrides)
		if err != nil {
			return args, fmt.Errorf("overrides: %w", err)
		}
		args = args.WithOverrides(v)
	}
	if ctx != nil && ctx != starlark.None {
		v, err := marshal.DecodeStarlark(ctx)
		if err != nil {
			return args, fmt.Errorf("ctx: %w", err)
		}
		args = args.WithContext(v)
	}
	return args, nil
}

// render implements render(paths, overrides=None, ctx=None).
func (hb *hostBuilder) render(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var paths, overrides, extra starlark.Value
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "paths", &paths, "overrides?", &overrides, "ctx?", &extra); err != nil {
		return nil, err
	}

	list, err := marshal.DecodeStrings(paths)
	if err != nil {
		return nil, fmt.Errorf("%s: paths: %w", fn.Name(), err)
	}

	ctx := threadContext(thread)
	if overrides == nil && extra == nil {
		return Render[starlark.Value](ctx, hb.bridge, marshal.StarlarkFactory{}, hb.handle, list)
	}

	bargs, err := buildArgs(overrides, extra)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	return RenderArgs[starlark.Value](ctx, hb.bridge, marshal.StarlarkFactory{}, hb.handle, bargs.WithPaths(list...))
}

// renderStr implements render_str(source, work_dir="", overrides=None, ctx=None).
func (hb *hostBuilder) renderStr(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var source, workDir string
	var overrides, extra starlark.Value
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "source", &source, "work_dir?", &workDir, "overrides?", &overrides, "ctx?", &extra); err != nil {
		return nil, err
	}

	bargs, err := buildArgs(overrides, extra)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	return RenderString[starlark.Value](threadContext(thread), hb.bridge, marshal.StarlarkFactory{}, hb.handle, source, bargs.WithWorkDir(workDir))
}

// setFunc implements set_global(name, fn) and set_filter(name, fn).
func (hb *hostBuilder) setFunc(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var callable starlark.Callable
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "fn", &callable); err != nil {
		return nil, err
	}

	if err := hb.bridge.SetFunc(threadContext(thread), hb.handle, name, templateFunc(thread, name, callable)); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

// close implements close().
func (hb *hostBuilder) close(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs); err != nil {
		return nil, err
	}
	if err := hb.bridge.Release(threadContext(thread), hb.handle); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

// templateFunc adapts a Starlark callable into a template function. Each
// call runs on its own thread, since templates may be rendered from any
// goroutine.
func templateFunc(parent *starlark.Thread, name string, callable starlark.Callable) func(args ...any) (any, error) {
	printFn := parent.Print
	return func(args ...any) (any, error) {
		in := make(starlark.Tuple, len(args))
		for i, arg := range args {
			v, err := marshal.DecodeGo(arg)
			if err != nil {
				return nil, fmt.Errorf("%s: argument %d: %w", name, i, err)
			}
			sv, err := marshal.Encode[starlark.Value](marshal.StarlarkFactory{}, v)
			if err != nil {
				return nil, fmt.Errorf("%s: argument %d: %w", name, i, err)
			}
			in[i] = sv
		}

		thread := &starlark.Thread{Name: "template:" + name, Print: printFn}
		out, err := starlark.Call(thread, callable, in, nil)
		if err != nil {
			return nil, err
		}

		v, err := marshal.DecodeStarlark(out)
		if err != nil {
			return nil, fmt.Errorf("%s: result: %w", name, err)
		}
		return marshal.ToGo(v), nil
	}
}

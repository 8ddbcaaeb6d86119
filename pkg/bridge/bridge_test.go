package bridge

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/openfroyo/configtpl/pkg/config"
	"github.com/openfroyo/configtpl/pkg/marshal"
	"github.com/openfroyo/configtpl/pkg/registry"
	"github.com/openfroyo/configtpl/pkg/telemetry"
	"github.com/openfroyo/configtpl/pkg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

// fakeEngine resolves every build to a fixed mapping and records its calls.
type fakeEngine struct {
	mu     sync.Mutex
	result value.Value
	err    error
	calls  [][]string
	closed bool
}

func (f *fakeEngine) Build(ctx context.Context, args config.BuildArgs) (value.Value, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), args.Paths...))
	if f.err != nil {
		return value.Value{}, f.err
	}
	return f.result, nil
}

func (f *fakeEngine) Close() error {
	f.closed = true
	return nil
}

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func debugRetries() value.Value {
	return value.Map(
		value.Pair{Key: "debug", Value: value.Bool(false)},
		value.Pair{Key: "retries", Value: value.Int(3)},
	)
}

// newFakeBridge returns a bridge whose builders are fakeEngines. Every
// engine created is appended to engines.
func newFakeBridge(engines *[]*fakeEngine, opts ...Option) *Bridge {
	var mu sync.Mutex
	factory := func(...config.Option) (Builder, error) {
		mu.Lock()
		defer mu.Unlock()
		e := &fakeEngine{result: debugRetries()}
		*engines = append(*engines, e)
		return e, nil
	}
	return New(append([]Option{WithEngine(factory)}, opts...)...)
}

func TestRender_DefaultsOnlyScenario(t *testing.T) {
	var engines []*fakeEngine
	b := newFakeBridge(&engines)
	ctx := context.Background()

	h, err := b.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, registry.Handle(0), h)

	out, err := Render[starlark.Value](ctx, b, marshal.StarlarkFactory{}, h, []string{})
	require.NoError(t, err)

	dict, ok := out.(*starlark.Dict)
	require.True(t, ok, "expected dict, got %s", out.Type())
	assert.Equal(t, 2, dict.Len())

	debug, found, err := dict.Get(starlark.String("debug"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, starlark.False, debug)

	retries, found, err := dict.Get(starlark.String("retries"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "int", retries.Type())
	n, ok := retries.(starlark.Int).Int64()
	require.True(t, ok)
	assert.Equal(t, int64(3), n)
}

func TestRender_InvalidHandle(t *testing.T) {
	var engines []*fakeEngine
	b := newFakeBridge(&engines)
	ctx := context.Background()

	_, err := b.Create(ctx)
	require.NoError(t, err)

	out, err := Render[starlark.Value](ctx, b, marshal.StarlarkFactory{}, registry.Handle(7), []string{"a.yaml"})
	require.Error(t, err)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, registry.ErrInvalidHandle)
	assert.Equal(t, "invalid builder handle: 7", err.Error())
	assert.Equal(t, 0, engines[0].callCount(), "engine must not run for an invalid handle")

	_, err = b.Build(ctx, registry.Handle(1), config.DefaultBuildArgs())
	assert.ErrorIs(t, err, registry.ErrInvalidHandle)
}

func TestRender_PathsPassedInOrder(t *testing.T) {
	var engines []*fakeEngine
	b := newFakeBridge(&engines)
	ctx := context.Background()

	h, err := b.Create(ctx)
	require.NoError(t, err)

	_, err = Render[any](ctx, b, marshal.GoFactory{}, h, []string{"b.yaml", "a.yaml", "b.yaml", "missing.yaml"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"b.yaml", "a.yaml", "b.yaml", "missing.yaml"}}, engines[0].calls)
}

func TestRender_BuildErrorIsVerbatim(t *testing.T) {
	engineErr := errors.New("config.cfg: open config.cfg: no such file or directory")
	b := New(WithEngine(func(...config.Option) (Builder, error) {
		return &fakeEngine{err: engineErr}, nil
	}))
	ctx := context.Background()

	h, err := b.Create(ctx)
	require.NoError(t, err)

	_, err = Render[any](ctx, b, marshal.GoFactory{}, h, []string{"config.cfg"})
	require.Error(t, err)
	assert.Equal(t, engineErr.Error(), err.Error())

	var buildErr *BuildError
	require.True(t, errors.As(err, &buildErr))
	assert.Equal(t, h, buildErr.Handle)
	assert.ErrorIs(t, err, engineErr)
}

// failingFactory fails on strings and builds Go values otherwise.
type failingFactory struct {
	marshal.GoFactory
}

var errHostAlloc = errors.New("host allocation failed")

func (failingFactory) String(string) (any, error) { return nil, errHostAlloc }

func TestRender_ConversionErrorPropagates(t *testing.T) {
	b := New(WithEngine(func(...config.Option) (Builder, error) {
		return &fakeEngine{result: value.Map(value.Pair{Key: "name", Value: value.String("svc")})}, nil
	}))
	ctx := context.Background()

	h, err := b.Create(ctx)
	require.NoError(t, err)

	_, err = Render[any](ctx, b, failingFactory{}, h, nil)
	require.Error(t, err)

	var convErr *marshal.ConversionError
	require.True(t, errors.As(err, &convErr))
	assert.ErrorIs(t, err, errHostAlloc)
	assert.Contains(t, err.Error(), errHostAlloc.Error())
}

func TestCreate_HandlesAreDistinctAndIsolated(t *testing.T) {
	b := New()
	ctx := context.Background()

	h0, err := b.Create(ctx)
	require.NoError(t, err)
	h1, err := b.Create(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, h0, h1)
	assert.Equal(t, 2, b.Len())

	require.NoError(t, b.SetFunc(ctx, h0, "shout", func(s string) string { return s + "!" }))

	out, err := RenderString[any](ctx, b, marshal.GoFactory{}, h0, `v: {{ shout "hi" }}`, config.DefaultBuildArgs())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"v": "hi!"}, out)

	_, err = RenderString[any](ctx, b, marshal.GoFactory{}, h1, `v: {{ shout "hi" }}`, config.DefaultBuildArgs())
	require.Error(t, err, "function registered on another handle must not be visible")
	assert.Contains(t, err.Error(), "shout")
}

func TestCreate_WithOptions(t *testing.T) {
	b := New()
	ctx := context.Background()

	h, err := b.Create(ctx, config.WithDefaults(debugRetries()))
	require.NoError(t, err)

	v, err := b.Build(ctx, h, config.DefaultBuildArgs())
	require.NoError(t, err)
	assert.True(t, debugRetries().Equal(v))

	_, err = b.Create(ctx, config.WithEnvVarPrefix("BAD=PREFIX"))
	assert.ErrorContains(t, err, "invalid builder options")
	assert.Equal(t, 1, b.Len())
}

func TestRender_IdempotentWithRealEngine(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	over := filepath.Join(dir, "over.yaml")
	require.NoError(t, os.WriteFile(base, []byte("name: svc\nports: [80, 443]\n"), 0644))
	require.NoError(t, os.WriteFile(over, []byte("url: http://{{ .name }}:{{ index .ports 0 }}\n"), 0644))

	b := New()
	ctx := context.Background()
	h, err := b.Create(ctx)
	require.NoError(t, err)

	first, err := b.Build(ctx, h, config.DefaultBuildArgs().WithPaths(base, over))
	require.NoError(t, err)
	second, err := b.Build(ctx, h, config.DefaultBuildArgs().WithPaths(base, over))
	require.NoError(t, err)

	assert.True(t, first.Equal(second))
	url, _ := first.Get("url")
	assert.True(t, value.String("http://svc:80").Equal(url))
}

func TestRender_ConcurrentOnSameHandle(t *testing.T) {
	var engines []*fakeEngine
	b := newFakeBridge(&engines)
	ctx := context.Background()

	h, err := b.Create(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := Render[any](ctx, b, marshal.GoFactory{}, h, nil)
			assert.NoError(t, err)
			assert.Equal(t, map[string]any{"debug": false, "retries": int64(3)}, out)
		}()
	}
	wg.Wait()
	assert.Equal(t, 16, engines[0].callCount())
}

func TestRelease_Unsupported(t *testing.T) {
	b := New()
	ctx := context.Background()

	h, err := b.Create(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, b.Release(ctx, h), ErrReleaseUnsupported)
	assert.NoError(t, b.Close())
	assert.Equal(t, 1, b.Len())
}

func TestRelease_Arena(t *testing.T) {
	var engines []*fakeEngine
	b := newFakeBridge(&engines, WithArena())
	ctx := context.Background()

	h0, err := b.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Release(ctx, h0))
	assert.True(t, engines[0].closed)
	assert.Equal(t, 0, b.Len())

	_, err = Render[any](ctx, b, marshal.GoFactory{}, h0, nil)
	assert.ErrorIs(t, err, registry.ErrInvalidHandle)
	assert.ErrorIs(t, b.Release(ctx, h0), registry.ErrInvalidHandle)

	h1, err := b.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, h0.Index(), h1.Index(), "released slot is reused")
	assert.NotEqual(t, h0, h1)

	_, err = Render[any](ctx, b, marshal.GoFactory{}, h1, nil)
	assert.NoError(t, err)

	require.NoError(t, b.Close())
	assert.True(t, engines[1].closed)
	_, err = b.Create(ctx)
	assert.ErrorIs(t, err, registry.ErrClosed)
}

func TestBridge_Metrics(t *testing.T) {
	cfg := telemetry.DefaultConfig()
	metrics, err := telemetry.NewMetrics(cfg.Metrics)
	require.NoError(t, err)
	tel := &telemetry.Telemetry{
		Logger:  telemetry.NopLogger(),
		Tracer:  telemetry.NopTracer(),
		Metrics: metrics,
		Config:  cfg,
	}

	var engines []*fakeEngine
	b := newFakeBridge(&engines, WithTelemetry(tel))
	ctx := context.Background()

	h, err := b.Create(ctx)
	require.NoError(t, err)
	_, err = Render[any](ctx, b, marshal.GoFactory{}, h, nil)
	require.NoError(t, err)
	_, err = Render[any](ctx, b, marshal.GoFactory{}, registry.Handle(9), nil)
	require.Error(t, err)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, "configtpl_builders_created_total 1")
	assert.Contains(t, body, "configtpl_invalid_handles_total 1")
	assert.Contains(t, body, `configtpl_renders_total{operation="render",status="success"} 1`)
	assert.Contains(t, body, `configtpl_renders_total{operation="render",status="invalid_handle"} 1`)
}

func TestUnsupportedCapabilities(t *testing.T) {
	var engines []*fakeEngine
	b := newFakeBridge(&engines)
	ctx := context.Background()

	h, err := b.Create(ctx)
	require.NoError(t, err)

	assert.ErrorIs(t, b.SetFunc(ctx, h, "f", func() string { return "" }), ErrUnsupported)

	_, err = RenderString[any](ctx, b, marshal.GoFactory{}, h, "a: 1", config.DefaultBuildArgs())
	assert.ErrorIs(t, err, ErrUnsupported)
}

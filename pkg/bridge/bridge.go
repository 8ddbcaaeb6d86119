package bridge

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"
	"github.com/openfroyo/configtpl/pkg/config"
	"github.com/openfroyo/configtpl/pkg/marshal"
	"github.com/openfroyo/configtpl/pkg/registry"
	"github.com/openfroyo/configtpl/pkg/telemetry"
	"github.com/openfroyo/configtpl/pkg/value"
)

var (
	// ErrReleaseUnsupported is returned by Release on a bridge whose table
	// has no release operation.
	ErrReleaseUnsupported = errors.New("builder release not supported")
	// ErrUnsupported is returned when a builder lacks an optional
	// capability such as string sources or template functions.
	ErrUnsupported = errors.New("operation not supported by builder")
)

// Builder is the build engine contract the bridge depends on.
// *config.ConfigBuilder satisfies it.
type Builder interface {
	Build(ctx context.Context, args config.BuildArgs) (value.Value, error)
}

// StringBuilder is implemented by builders that can render a template
// string directly.
type StringBuilder interface {
	BuildFromString(ctx context.Context, source string, args config.BuildArgs) (value.Value, error)
}

// FuncSetter is implemented by builders that accept template functions.
type FuncSetter interface {
	SetFunc(name string, fn any) error
}

// EngineFactory creates a builder from construction options.
type EngineFactory func(opts ...config.Option) (Builder, error)

// DefaultEngine creates *config.ConfigBuilder instances.
func DefaultEngine(opts ...config.Option) (Builder, error) {
	return config.NewConfigBuilder(opts...)
}

// BuildError carries a build engine failure. Its message is the engine's
// own, unmodified.
type BuildError struct {
	Handle registry.Handle
	Err    error
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the engine error.
func (e *BuildError) Unwrap() error {
	return e.Err
}

// instance is one registered builder.
type instance struct {
	id      uuid.UUID
	builder Builder
}

// Close closes the builder if it holds resources.
func (i *instance) Close() error {
	if c, ok := i.builder.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithArena backs the bridge with a releasing arena instead of the
// append-only registry.
func WithArena() Option {
	return func(b *Bridge) {
		b.useArena = true
	}
}

// WithEngine replaces the build engine factory.
func WithEngine(factory EngineFactory) Option {
	return func(b *Bridge) {
		b.newEngine = factory
	}
}

// WithTelemetry sets the logger, tracer and metrics used by the bridge.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(b *Bridge) {
		b.tel = tel
	}
}

// Bridge owns builder instances on behalf of a host that refers to them by
// handle, and runs builds against them.
type Bridge struct {
	table     registry.Table[*instance]
	releaser  registry.Releaser
	arena     *registry.Arena[*instance]
	useArena  bool
	newEngine EngineFactory
	tel       *telemetry.Telemetry
	logger    *telemetry.Logger
}

// New creates a bridge. By default instances live as long as the bridge.
func New(opts ...Option) *Bridge {
	b := &Bridge{
		newEngine: DefaultEngine,
		tel:       telemetry.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.tel.Logger.NewComponentLogger("bridge")

	factory := func() (*instance, error) { return b.newInstance() }
	if b.useArena {
		b.arena = registry.NewArena(factory)
		b.table = b.arena
		b.releaser = b.arena
	} else {
		b.table = registry.New(factory)
	}
	return b
}

func (b *Bridge) newInstance(opts ...config.Option) (*instance, error) {
	builder, err := b.newEngine(opts...)
	if err != nil {
		return nil, err
	}
	return &instance{id: uuid.New(), builder: builder}, nil
}

// Create registers a new builder constructed with opts and returns its
// handle.
func (b *Bridge) Create(ctx context.Context, opts ...config.Option) (registry.Handle, error) {
	var created *instance
	h, err := b.table.CreateWith(func() (*instance, error) {
		inst, err := b.newInstance(opts...)
		created = inst
		return inst, err
	})
	if err != nil {
		b.logger.WithError(err).Error("failed to create builder")
		return 0, err
	}

	b.tel.Metrics.RecordBuilderCreated()
	b.logger.WithHandle(uint64(h)).WithInstanceID(created.id.String()).Debug("builder created")
	return h, nil
}

// Release disposes of the builder owned by h. Only arena-backed bridges
// support it.
func (b *Bridge) Release(ctx context.Context, h registry.Handle) error {
	if b.releaser == nil {
		return ErrReleaseUnsupported
	}

	err := b.releaser.Release(h)
	var handleErr *registry.HandleError
	if errors.As(err, &handleErr) {
		b.tel.Metrics.RecordInvalidHandle()
		return err
	}

	b.tel.Metrics.RecordBuilderReleased()
	b.logger.WithHandle(uint64(h)).Debug("builder released")
	return err
}

// Close releases every builder of an arena-backed bridge. It is a no-op
// for the append-only registry.
func (b *Bridge) Close() error {
	if b.arena == nil {
		return nil
	}
	live := b.arena.Len()
	err := b.arena.Close()
	for i := 0; i < live; i++ {
		b.tel.Metrics.RecordBuilderReleased()
	}
	return err
}

// Len returns the number of live builders.
func (b *Bridge) Len() int {
	return b.table.Len()
}

// SetFunc registers a template function on the builder owned by h.
func (b *Bridge) SetFunc(ctx context.Context, h registry.Handle, name string, fn any) error {
	inst, err := b.resolve(h)
	if err != nil {
		return err
	}
	setter, ok := inst.builder.(FuncSetter)
	if !ok {
		return ErrUnsupported
	}
	return setter.SetFunc(name, fn)
}

// Build runs a build with full arguments and returns the native result.
func (b *Bridge) Build(ctx context.Context, h registry.Handle, args config.BuildArgs) (value.Value, error) {
	v, ic, err := b.run(ctx, "build", h, len(args.Paths), buildPaths(args))
	if err != nil {
		return value.Value{}, err
	}
	ic.End(telemetry.StatusSuccess, nil)
	return v, nil
}

func (b *Bridge) resolve(h registry.Handle) (*instance, error) {
	inst, err := b.table.Resolve(h)
	if err != nil {
		b.tel.Metrics.RecordInvalidHandle()
		return nil, err
	}
	return inst, nil
}

// buildFunc runs one build against a resolved builder.
type buildFunc func(ctx context.Context, builder Builder) (value.Value, error)

func buildPaths(args config.BuildArgs) buildFunc {
	return func(ctx context.Context, builder Builder) (value.Value, error) {
		return builder.Build(ctx, args)
	}
}

func buildString(source string, args config.BuildArgs) buildFunc {
	return func(ctx context.Context, builder Builder) (value.Value, error) {
		sb, ok := builder.(StringBuilder)
		if !ok {
			return value.Value{}, ErrUnsupported
		}
		return sb.BuildFromString(ctx, source, args)
	}
}

// run resolves h and builds. On failure the instrumentation is already
// ended; on success the caller ends it.
func (b *Bridge) run(ctx context.Context, operation string, h registry.Handle, paths int, build buildFunc) (value.Value, *telemetry.InstrumentedContext, error) {
	ic := b.tel.StartRender(ctx, operation, uint64(h), paths)

	inst, err := b.resolve(h)
	if err != nil {
		ic.End(telemetry.StatusInvalidHandle, err)
		return value.Value{}, nil, err
	}

	// The registry lock is not held here.
	v, err := build(ic.Ctx, inst.builder)
	if err != nil {
		buildErr := &BuildError{Handle: h, Err: err}
		ic.End(telemetry.StatusBuildError, buildErr)
		return value.Value{}, nil, buildErr
	}
	return v, ic, nil
}

// Render builds paths, in order, with the builder owned by h and encodes
// the result with f.
func Render[H any](ctx context.Context, b *Bridge, f marshal.Factory[H], h registry.Handle, paths []string) (H, error) {
	return RenderArgs(ctx, b, f, h, config.DefaultBuildArgs().WithPaths(paths...))
}

// RenderArgs is Render with full build arguments.
func RenderArgs[H any](ctx context.Context, b *Bridge, f marshal.Factory[H], h registry.Handle, args config.BuildArgs) (H, error) {
	return render(ctx, b, f, "render", h, len(args.Paths), buildPaths(args))
}

// RenderString renders a template string with the builder owned by h and
// encodes the result with f.
func RenderString[H any](ctx context.Context, b *Bridge, f marshal.Factory[H], h registry.Handle, source string, args config.BuildArgs) (H, error) {
	return render(ctx, b, f, "render_str", h, 0, buildString(source, args))
}

func render[H any](ctx context.Context, b *Bridge, f marshal.Factory[H], operation string, h registry.Handle, paths int, build buildFunc) (H, error) {
	var zero H

	v, ic, err := b.run(ctx, operation, h, paths, build)
	if err != nil {
		return zero, err
	}

	out, err := marshal.Encode(f, v)
	if err != nil {
		ic.End(telemetry.StatusConversion, err)
		return zero, err
	}

	ic.End(telemetry.StatusSuccess, nil)
	return out, nil
}

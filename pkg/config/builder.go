package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/openfroyo/configtpl/pkg/marshal"
	"github.com/openfroyo/configtpl/pkg/value"
)

// stringSourcePath names string sources in errors.
const stringSourcePath = "<string>"

// builderSchemaName is the name the builder's own schema is registered under.
const builderSchemaName = "config"

var validate = validator.New()

// builderOptions is the validated construction state of a ConfigBuilder.
type builderOptions struct {
	Defaults        value.Value    `validate:"-"`
	EnvVarPrefix    string         `validate:"omitempty,printascii,excludesall=="`
	Funcs           map[string]any `validate:"-"`
	StarlarkTimeout time.Duration  `validate:"gte=0"`
	Schema          string         `validate:"-"`
}

// Option configures a ConfigBuilder.
type Option func(*builderOptions)

// WithDefaults sets the initial configuration. It must be a mapping or null.
func WithDefaults(defaults value.Value) Option {
	return func(o *builderOptions) {
		o.Defaults = defaults
	}
}

// WithEnvVarPrefix enables environment variable injection for variables
// named PREFIX__KEY.
func WithEnvVarPrefix(prefix string) Option {
	return func(o *builderOptions) {
		o.EnvVarPrefix = prefix
	}
}

// WithFuncs adds template functions.
func WithFuncs(funcs map[string]any) Option {
	return func(o *builderOptions) {
		if o.Funcs == nil {
			o.Funcs = make(map[string]any, len(funcs))
		}
		for name, fn := range funcs {
			o.Funcs[name] = fn
		}
	}
}

// WithStarlarkTimeout bounds the evaluation of each Starlark source.
func WithStarlarkTimeout(d time.Duration) Option {
	return func(o *builderOptions) {
		o.StarlarkTimeout = d
	}
}

// WithSchema validates every built configuration against a CUE schema. If
// the source declares #Config, that definition is the schema.
func WithSchema(cueSource string) Option {
	return func(o *builderOptions) {
		o.Schema = cueSource
	}
}

// ConfigBuilder builds configuration from template, YAML, CUE and Starlark
// sources. Construction state is read-only during builds, so one builder
// may serve concurrent builds.
type ConfigBuilder struct {
	defaults     value.Value
	envVarPrefix string
	cue          *CUEParser
	starlark     *StarlarkEvaluator
	schemas      *SchemaRegistry
	hasSchema    bool

	mu    sync.RWMutex
	funcs map[string]any
}

// New returns a builder with the default configuration.
func New() *ConfigBuilder {
	b, err := NewConfigBuilder()
	if err != nil {
		panic(fmt.Sprintf("config: default builder: %v", err))
	}
	return b
}

// NewConfigBuilder creates a builder from options.
func NewConfigBuilder(opts ...Option) (*ConfigBuilder, error) {
	o := builderOptions{Defaults: value.EmptyMap()}
	for _, opt := range opts {
		opt(&o)
	}

	if err := validate.Struct(o); err != nil {
		return nil, fmt.Errorf("invalid builder options: %w", err)
	}
	defaults := asMap(o.Defaults)
	if defaults.Kind() != value.KindMap {
		return nil, fmt.Errorf("invalid builder options: defaults must be a mapping, got %s", defaults.Kind())
	}
	for name, fn := range o.Funcs {
		if err := checkFunc(name, fn); err != nil {
			return nil, fmt.Errorf("invalid builder options: %w", err)
		}
	}

	b := &ConfigBuilder{
		defaults:     defaults,
		envVarPrefix: o.EnvVarPrefix,
		cue:          NewCUEParser(),
		starlark:     NewStarlarkEvaluator(o.StarlarkTimeout),
		schemas:      NewSchemaRegistry(),
		funcs:        make(map[string]any, len(o.Funcs)),
	}
	for name, fn := range o.Funcs {
		b.funcs[name] = fn
	}

	if o.Schema != "" {
		if err := b.schemas.RegisterSchema(builderSchemaName, o.Schema); err != nil {
			return nil, fmt.Errorf("invalid builder options: %w", err)
		}
		b.hasSchema = true
	}

	return b, nil
}

// Defaults returns the builder's initial configuration.
func (b *ConfigBuilder) Defaults() value.Value {
	return b.defaults
}

// SetFunc registers a template function, replacing any with the same
// name. It only affects builds started afterwards.
func (b *ConfigBuilder) SetFunc(name string, fn any) error {
	if err := checkFunc(name, fn); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.funcs[name] = fn
	return nil
}

func (b *ConfigBuilder) snapshotFuncs() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()

	funcs := make(map[string]any, len(b.funcs))
	for name, fn := range b.funcs {
		funcs[name] = fn
	}
	return funcs
}

// Build loads args.Paths in order and merges them over the defaults.
// Each source sees the configuration built so far plus args.Context as its
// template data. Environment variables and then args.Overrides are merged
// last.
func (b *ConfigBuilder) Build(ctx context.Context, args BuildArgs) (value.Value, error) {
	funcs := b.snapshotFuncs()
	extra := asMap(args.Context)
	if extra.Kind() != value.KindMap {
		return value.Value{}, fmt.Errorf("context must be a mapping, got %s", extra.Kind())
	}

	cfg := b.defaults
	for _, raw := range args.Paths {
		if err := ctx.Err(); err != nil {
			return value.Value{}, err
		}

		path := resolvePath(raw)
		data := shallowMerge(cfg, extra)

		kind, result, err := b.loadSource(ctx, path, data, funcs)
		if err != nil {
			return value.Value{}, &SourceError{Path: path, Kind: kind, Err: err}
		}
		if result.Kind() != value.KindMap {
			return value.Value{}, &SourceError{
				Path: path,
				Kind: kind,
				Err:  fmt.Errorf("source must produce a mapping, got %s", result.Kind()),
			}
		}

		cfg = DeepMerge(cfg, result)
	}

	return b.finalize(ctx, cfg, args.Overrides)
}

// BuildFromString renders source as a template rendered into YAML. The
// template data is the defaults deep-merged with args.Context; the defaults
// are not part of the result. file and include resolve against
// args.WorkDir, or the working directory when it is empty.
func (b *ConfigBuilder) BuildFromString(ctx context.Context, source string, args BuildArgs) (value.Value, error) {
	funcs := b.snapshotFuncs()
	extra := asMap(args.Context)
	if extra.Kind() != value.KindMap {
		return value.Value{}, fmt.Errorf("context must be a mapping, got %s", extra.Kind())
	}

	workDir := args.WorkDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return value.Value{}, fmt.Errorf("failed to get working directory: %w", err)
		}
		workDir = wd
	}

	data := DeepMerge(b.defaults, extra)
	cfg, err := b.renderTemplate(stringSourcePath, workDir, source, data, funcs)
	if err != nil {
		return value.Value{}, &SourceError{Path: stringSourcePath, Kind: SourceTemplate, Err: err}
	}
	if cfg.Kind() != value.KindMap {
		return value.Value{}, &SourceError{
			Path: stringSourcePath,
			Kind: SourceTemplate,
			Err:  fmt.Errorf("source must produce a mapping, got %s", cfg.Kind()),
		}
	}

	return b.finalize(ctx, cfg, args.Overrides)
}

// finalize applies environment variables, then overrides, then the schema.
func (b *ConfigBuilder) finalize(ctx context.Context, cfg, overrides value.Value) (value.Value, error) {
	cfg = DeepMerge(cfg, EnvConfig(b.envVarPrefix))

	if !overrides.IsNull() {
		if overrides.Kind() != value.KindMap {
			return value.Value{}, fmt.Errorf("overrides must be a mapping, got %s", overrides.Kind())
		}
		cfg = DeepMerge(cfg, overrides)
	}

	if b.hasSchema {
		if err := b.schemas.ValidateValue(ctx, builderSchemaName, cfg); err != nil {
			return value.Value{}, err
		}
	}
	return cfg, nil
}

// loadSource dispatches on the source kind.
func (b *ConfigBuilder) loadSource(ctx context.Context, path string, data value.Value, funcs map[string]any) (SourceKind, value.Value, error) {
	info, err := os.Stat(path)
	if err != nil {
		return SourceTemplate, value.Value{}, err
	}

	switch {
	case info.IsDir():
		v, err := b.cue.LoadDirectory(path)
		return SourceCUE, v, err
	case strings.EqualFold(filepath.Ext(path), ".cue"):
		v, err := b.cue.LoadFile(path)
		return SourceCUE, v, err
	case strings.EqualFold(filepath.Ext(path), ".star"):
		v, err := b.starlark.EvaluateFile(ctx, path, data)
		return SourceStarlark, v, err
	default:
		content, err := os.ReadFile(path)
		if err != nil {
			return SourceTemplate, value.Value{}, err
		}
		v, err := b.renderTemplate(filepath.Base(path), filepath.Dir(path), string(content), data, funcs)
		return SourceTemplate, v, err
	}
}

// renderTemplate renders text with data and parses the output as YAML.
func (b *ConfigBuilder) renderTemplate(name, dir, text string, data value.Value, funcs map[string]any) (value.Value, error) {
	r := newTemplateRenderer(dir, funcs, marshal.ToGo(data))
	rendered, err := r.render(name, text)
	if err != nil {
		return value.Value{}, err
	}
	return ParseYAML([]byte(rendered))
}

// resolvePath makes path absolute and resolves symlinks. A path that does
// not exist is returned absolute so the load reports the real error.
func resolvePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return abs
	}
	return resolved
}

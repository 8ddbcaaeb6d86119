// Package config builds configuration values from layered sources.
//
// # Overview
//
// A ConfigBuilder holds construction state: default values, an optional
// environment variable prefix, template functions and an optional CUE
// schema. Build loads a list of source paths in order and deep-merges each
// one over the result so far.
//
// # Sources
//
// The kind of a source is chosen from its path:
//
//   - a directory or a .cue file is evaluated with CUE
//   - a .star file is executed as Starlark; its global variables form the
//     result
//   - anything else is rendered as a Go text/template and parsed as YAML
//
// Templates and Starlark scripts see the configuration built so far, shallow
// merged with BuildArgs.Context. In templates it is the dot value; Starlark
// scripts get it as the predeclared ctx dict. Missing template keys are
// errors.
//
// Besides the text/template builtins, templates can call env, file,
// include, md5, sha256, indent, nindent, default, quote, lower, upper, trim,
// toYaml and toJson. file and include resolve paths relative to the
// directory of the source being rendered.
//
// # Precedence
//
// From lowest to highest:
//
//  1. builder defaults
//  2. sources, in the order given
//  3. environment variables named PREFIX__KEY__SUBKEY
//  4. BuildArgs.Overrides
//
// Mappings merge recursively. Any other value, lists included, replaces the
// lower layer.
//
// # Usage Example
//
//	builder, err := config.NewConfigBuilder(
//	    config.WithEnvVarPrefix("MY_APP"),
//	    config.WithFuncs(map[string]any{"double": func(i int) int { return i * 2 }}),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	args := config.DefaultBuildArgs().
//	    WithPaths("base.yaml", "services.cue", "scale.star").
//	    WithContext(ctx)
//
//	cfg, err := builder.Build(context.Background(), args)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Error Handling
//
// Failures while loading a source are returned as *SourceError carrying the
// resolved path and source kind. CUE evaluation failures unwrap to
// ValidationErrors with file positions where CUE reports them.
package config

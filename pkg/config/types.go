package config

import (
	"fmt"

	"github.com/openfroyo/configtpl/pkg/value"
)

// SourceKind identifies how a configuration source is loaded.
type SourceKind string

const (
	// SourceTemplate is a text/template rendered into YAML. Any file that
	// is not one of the other kinds is a template.
	SourceTemplate SourceKind = "template"

	// SourceCUE is a .cue file or a directory holding a CUE package.
	SourceCUE SourceKind = "cue"

	// SourceStarlark is a .star script whose public globals form the mapping.
	SourceStarlark SourceKind = "starlark"
)

// BuildArgs carries the per-build inputs. The zero value is valid and
// equivalent to DefaultBuildArgs. The With methods return modified copies
// and never touch the receiver.
type BuildArgs struct {
	// Paths are the sources, loaded and merged in order.
	Paths []string

	// Overrides are merged last, after environment variables.
	Overrides value.Value

	// Context is extra template data. It is visible to sources but is
	// not merged into the result.
	Context value.Value

	// WorkDir resolves file and include calls for string sources.
	// Empty means the process working directory.
	WorkDir string
}

// DefaultBuildArgs returns build arguments with no paths.
func DefaultBuildArgs() BuildArgs {
	return BuildArgs{Paths: []string{}}
}

// WithPaths returns a copy with the given source paths. Order is kept and
// duplicates are not removed.
func (a BuildArgs) WithPaths(paths ...string) BuildArgs {
	a.Paths = append([]string{}, paths...)
	return a
}

// WithOverrides returns a copy with the given overrides.
func (a BuildArgs) WithOverrides(overrides value.Value) BuildArgs {
	a.Overrides = overrides
	return a
}

// WithContext returns a copy with the given template context.
func (a BuildArgs) WithContext(ctx value.Value) BuildArgs {
	a.Context = ctx
	return a
}

// WithWorkDir returns a copy with the given working directory.
func (a BuildArgs) WithWorkDir(dir string) BuildArgs {
	a.WorkDir = dir
	return a
}

// SourceError reports a failure to load one source.
type SourceError struct {
	// Path is the resolved source path, or "<string>" for string sources.
	Path string

	// Kind is how the source was being loaded.
	Kind SourceKind

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying failure.
func (e *SourceError) Unwrap() error {
	return e.Err
}

// ValidationError is a single schema or CUE evaluation problem with its
// source position, when CUE reports one.
type ValidationError struct {
	// File is the file the error was reported in.
	File string `json:"file,omitempty"`

	// Line is the line number (1-based).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-based).
	Column int `json:"column,omitempty"`

	// Path is the configuration path, e.g. "server.port".
	Path string `json:"path,omitempty"`

	// Message describes the problem.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	switch {
	case e.File != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	case e.Path != "":
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	default:
		return e.Message
	}
}

// ValidationErrors collects every problem found in one validation pass.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "validation failed"
	case 1:
		return e[0].Error()
	default:
		return fmt.Sprintf("%s (and %d more errors)", e[0].Error(), len(e)-1)
	}
}

package config

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// maxIncludeDepth bounds nested include calls.
const maxIncludeDepth = 32

var funcNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// checkFunc reports whether fn can be installed as a template function.
func checkFunc(name string, fn any) error {
	if !funcNamePattern.MatchString(name) {
		return fmt.Errorf("invalid function name %q", name)
	}

	t := reflect.TypeOf(fn)
	if t == nil || t.Kind() != reflect.Func {
		return fmt.Errorf("function %q: expected a func, got %T", name, fn)
	}
	switch {
	case t.NumOut() == 1:
	case t.NumOut() == 2 && t.Out(1) == errorType:
	default:
		return fmt.Errorf("function %q: must return one value, or a value and an error", name)
	}
	return nil
}

// templateRenderer renders templates rooted at one directory. file and
// include resolve relative paths against that directory.
type templateRenderer struct {
	dir   string
	funcs template.FuncMap
	data  any
	depth int
}

func newTemplateRenderer(dir string, custom map[string]any, data any) *templateRenderer {
	r := &templateRenderer{dir: dir, data: data}

	funcs := template.FuncMap{
		"env":     envFunc,
		"file":    r.readFile,
		"include": r.include,
		"md5":     md5Hex,
		"sha256":  sha256Hex,
		"indent":  indent,
		"nindent": nindent,
		"default": defaultValue,
		"quote":   quote,
		"lower":   strings.ToLower,
		"upper":   strings.ToUpper,
		"trim":    strings.TrimSpace,
		"toYaml":  toYAML,
		"toJson":  toJSON,
	}
	for name, fn := range custom {
		funcs[name] = fn
	}
	r.funcs = funcs
	return r
}

// render executes text as a template named name.
func (r *templateRenderer) render(name, text string) (string, error) {
	tmpl, err := template.New(name).
		Option("missingkey=error").
		Funcs(r.funcs).
		Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, r.data); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return buf.String(), nil
}

func (r *templateRenderer) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(r.dir, path)
}

func (r *templateRenderer) readFile(path string) (string, error) {
	content, err := os.ReadFile(r.resolve(path))
	if err != nil {
		return "", err
	}
	return string(content), nil
}

func (r *templateRenderer) include(path string) (string, error) {
	if r.depth >= maxIncludeDepth {
		return "", fmt.Errorf("include %s: nesting deeper than %d", path, maxIncludeDepth)
	}

	content, err := r.readFile(path)
	if err != nil {
		return "", err
	}

	r.depth++
	defer func() { r.depth-- }()
	return r.render(filepath.Base(path), content)
}

func envFunc(name string, fallback ...string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	if len(fallback) > 0 {
		return fallback[0]
	}
	return ""
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func indent(n int, s string) string {
	pad := strings.Repeat(" ", n)
	return pad + strings.ReplaceAll(s, "\n", "\n"+pad)
}

func nindent(n int, s string) string {
	return "\n" + indent(n, s)
}

// defaultValue returns v unless it is empty, in which case def is returned.
func defaultValue(def any, v ...any) any {
	if len(v) == 0 || isEmpty(v[0]) {
		return def
	}
	return v[0]
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Bool:
		return !rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func quote(v any) string {
	return strconv.Quote(fmt.Sprint(v))
}

func toYAML(v any) (string, error) {
	out, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(string(out), "\n"), nil
}

func toJSON(v any) (string, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderString(t *testing.T, dir, text string, data any, custom map[string]any) (string, error) {
	t.Helper()
	return newTemplateRenderer(dir, custom, data).render("test", text)
}

func TestTemplateFuncs(t *testing.T) {
	t.Setenv("CFGTPL_SAMPLE_ENV_KEY", "sample_value")

	data := map[string]any{
		"name":  "svc",
		"empty": "",
		"list":  []any{"a", int64(1)},
		"nested": map[string]any{
			"port": int64(80),
		},
	}

	tests := []struct {
		name string
		text string
		want string
	}{
		{"env", `{{ env "CFGTPL_SAMPLE_ENV_KEY" }}`, "sample_value"},
		{"env fallback", `{{ env "CFGTPL_UNSET_KEY" "dflt" }}`, "dflt"},
		{"md5", `{{ "abc" | md5 }}`, "900150983cd24fb0d6963f7d28e17f72"},
		{"sha256", `{{ sha256 "abc" }}`, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{"indent", `{{ indent 2 "a\nb" }}`, "  a\n  b"},
		{"nindent", `{{ "a" | nindent 4 }}`, "\n    a"},
		{"default used", `{{ .empty | default "fallback" }}`, "fallback"},
		{"default skipped", `{{ .name | default "fallback" }}`, "svc"},
		{"quote", `{{ quote .name }}`, `"svc"`},
		{"case", `{{ upper .name }}-{{ lower "ABC" }}`, "SVC-abc"},
		{"trim", `[{{ trim "  x  " }}]`, "[x]"},
		{"toJson", `{{ toJson .list }}`, `["a",1]`},
		{"toYaml", `{{ toYaml .nested }}`, "port: 80"},
		{"nested access", `{{ .nested.port }}`, "80"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := renderString(t, t.TempDir(), tt.text, data, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTemplate_MissingKeyIsError(t *testing.T) {
	_, err := renderString(t, t.TempDir(), `{{ .nope }}`, map[string]any{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestTemplate_FileAndInclude(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plain.txt"), []byte("{{ not rendered }}"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "part.yaml"), []byte("key: {{ .name }}"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "outer.yaml"), []byte(`outer: {{ include "part.yaml" }}`), 0644))

	data := map[string]any{"name": "svc"}

	got, err := renderString(t, dir, `{{ file "plain.txt" }}`, data, nil)
	require.NoError(t, err)
	assert.Equal(t, "{{ not rendered }}", got)

	got, err = renderString(t, dir, `{{ include "outer.yaml" }}`, data, nil)
	require.NoError(t, err)
	assert.Equal(t, "outer: key: svc", got)

	_, err = renderString(t, dir, `{{ file "missing.txt" }}`, data, nil)
	assert.Error(t, err)
}

func TestTemplate_IncludeCycle(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "loop.yaml"), []byte(`{{ include "loop.yaml" }}`), 0644))

	_, err := renderString(t, dir, `{{ include "loop.yaml" }}`, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nesting deeper than")
}

func TestTemplate_CustomFuncs(t *testing.T) {
	custom := map[string]any{
		"str_rev": func(s string) string {
			r := []rune(s)
			for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
				r[i], r[j] = r[j], r[i]
			}
			return string(r)
		},
		// Custom functions may replace built-ins.
		"upper": func(s string) string { return "custom:" + s },
	}

	got, err := renderString(t, t.TempDir(), `{{ "hello" | str_rev }} {{ upper "x" }}`, nil, custom)
	require.NoError(t, err)
	assert.Equal(t, "olleh custom:x", got)
}

func TestCheckFunc(t *testing.T) {
	tests := []struct {
		name    string
		fnName  string
		fn      any
		wantErr string
	}{
		{"plain", "ok", func() string { return "" }, ""},
		{"with error", "ok_err", func(args ...any) (any, error) { return nil, nil }, ""},
		{"bad name", "has-dash", func() string { return "" }, "invalid function name"},
		{"not a func", "x", 42, "expected a func"},
		{"nil", "x", nil, "expected a func"},
		{"no results", "x", func() {}, "must return"},
		{"second not error", "x", func() (int, int) { return 0, 0 }, "must return"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkFunc(tt.fnName, tt.fn)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), err.Error())
		})
	}
}

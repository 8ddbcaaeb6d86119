package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand("test", "none", "today")
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRender_YAML(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "base.yaml", "server:\n  host: localhost\n  port: 8080\nname: app\n")
	prod := writeFile(t, dir, "prod.yaml", "server:\n  host: prod.example.com\n")

	out, _, err := execute(t, "render", base, prod, "--set", "server.port=9090")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, map[string]any{
		"server": map[string]any{"host": "prod.example.com", "port": 9090},
		"name":   "app",
	}, got)

	// Source order is kept.
	assert.Less(t, bytes.Index([]byte(out), []byte("server:")), bytes.Index([]byte(out), []byte("name:")))
}

func TestRender_JSON(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "app.yaml", "replicas: 3\nlabels: [a, b]\nratio: 0.5\n")

	out, _, err := execute(t, "render", "--format", "json", src)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, map[string]any{
		"replicas": float64(3),
		"labels":   []any{"a", "b"},
		"ratio":    0.5,
	}, got)
}

func TestRender_JSONRejectsNonFiniteFloats(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "limits.yaml", "limits:\n  low: 0\n  high: .inf\n")

	_, _, err := execute(t, "render", "--format", "json", src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limits.high")
	assert.Contains(t, err.Error(), "--format yaml")

	out, _, err := execute(t, "render", src)
	require.NoError(t, err)
	assert.Contains(t, out, "high: .inf")
}

func TestRender_EnvPrefixDefaultsAndContext(t *testing.T) {
	dir := t.TempDir()
	defaults := writeFile(t, dir, "defaults.yaml", "timeout: 30\nregion: eu\n")
	ctxFile := writeFile(t, dir, "ctx.yaml", "suffix: blue\n")
	src := writeFile(t, dir, "app.cfg", "name: app-{{ .suffix }}\nregion: {{ .region }}\n")

	t.Setenv("CLITEST__REGION", "us")

	out, _, err := execute(t, "render", "--format", "json",
		"--env-prefix", "CLITEST",
		"--defaults", defaults,
		"--ctx", ctxFile,
		src)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "app-blue", got["name"])
	assert.Equal(t, "us", got["region"])
	assert.Equal(t, float64(30), got["timeout"])
	assert.NotContains(t, got, "suffix")
}

func TestRender_Errors(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.yaml", "a: 1\n")
	list := writeFile(t, dir, "list.yaml", "[1, 2]\n")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"bad format", []string{"render", "--format", "toml", good}, "invalid format"},
		{"missing source", []string{"render", filepath.Join(dir, "missing.yaml")}, "missing.yaml"},
		{"not a mapping", []string{"render", list}, "got list"},
		{"bad assignment", []string{"render", "--set", "novalue", good}, "invalid assignment"},
		{"defaults not a mapping", []string{"render", "--defaults", list, good}, "expected a mapping"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	schema := writeFile(t, dir, "schema.cue", `
#Config: {
	host: string
	port: int & >0 & <65536
	...
}
`)
	good := writeFile(t, dir, "good.yaml", "host: localhost\nport: 8080\n")
	bad := writeFile(t, dir, "bad.yaml", "host: localhost\nport: 70000\n")

	t.Run("valid", func(t *testing.T) {
		out, _, err := execute(t, "validate", "--schema", schema, good)
		require.NoError(t, err)
		assert.Contains(t, out, "configuration is valid")
	})

	t.Run("invalid", func(t *testing.T) {
		_, stderr, err := execute(t, "validate", "--schema", schema, bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration is invalid")
		assert.NotEmpty(t, stderr)
	})

	t.Run("override fixes it", func(t *testing.T) {
		_, _, err := execute(t, "validate", "--schema", schema, "--set", "port=443", bad)
		require.NoError(t, err)
	})

	t.Run("schema required", func(t *testing.T) {
		_, _, err := execute(t, "validate", good)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--schema is required")
	})
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "server:\n  port: 8080\n")
	script := writeFile(t, dir, "script.star", `
b = ConfigBuilder(defaults = {"debug": False})
cfg = b.render(["`+filepath.Join(dir, "base.yaml")+`"], overrides = {"server": {"port": 9000}})
print(json.encode(cfg))
`)

	out, _, err := execute(t, "run", script)
	require.NoError(t, err)
	assert.Equal(t, `{"debug":false,"server":{"port":9000}}`+"\n", out)
}

func TestRun_CloseNeedsArena(t *testing.T) {
	dir := t.TempDir()
	script := writeFile(t, dir, "close.star", `
b = ConfigBuilder()
b.close()
print("closed")
`)

	_, _, err := execute(t, "run", script)
	require.Error(t, err)

	out, _, err := execute(t, "run", "--arena", script)
	require.NoError(t, err)
	assert.Equal(t, "closed\n", out)
}

func TestWatchDirs(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "pkg")
	require.NoError(t, os.Mkdir(sub, 0755))
	a := writeFile(t, dir, "a.yaml", "a: 1\n")
	b := writeFile(t, dir, "b.yaml", "b: 1\n")

	assert.Equal(t, []string{dir, sub}, watchDirs([]string{a, b, sub}))
}

func TestWatchAndRender_StopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "a.yaml", "a: 1\n")

	ctx, cancel := context.WithCancel(context.Background())
	renders := 0
	err := watchAndRender(ctx, []string{src}, &bytes.Buffer{}, func(context.Context) error {
		renders++
		cancel()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, renders)
}

package config

import (
	"testing"

	"github.com/openfroyo/configtpl/pkg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScalar(t *testing.T) {
	tests := []struct {
		in   string
		want value.Value
	}{
		{"", value.Null()},
		{"test_string", value.String("test_string")},
		{"'quoted_string'", value.String("quoted_string")},
		{`"another_quoted_string"`, value.String("another_quoted_string")},
		{`"123"`, value.String("123")},
		{"'", value.String("'")},
		{"true", value.Bool(true)},
		{"false", value.Bool(false)},
		{"TRUE", value.String("TRUE")},
		{"123", value.Int(123)},
		{"-45", value.Int(-45)},
		{"1.23", value.Float(1.23)},
		{"-0.5", value.Float(-0.5)},
		{"1e3", value.Float(1000)},
		{"99999999999999999999", value.Float(1e20)},
		{"1.2.3", value.String("1.2.3")},
		{"MixedCase", value.String("MixedCase")},
		{"inf", value.String("inf")},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseScalar(tt.in)
			assert.True(t, tt.want.Equal(got), "ParseScalar(%q) = %s, want %s", tt.in, got, tt.want)
		})
	}
}

func TestEnvConfigFrom(t *testing.T) {
	environ := []string{
		"TEST_APP__FOO__BAR=baz",
		"TEST_APP__FOO__QUOTED='quoted'",
		"TEST_APP__A_BOOL=TRUE",
		"TEST_APP__ANOTHER_BOOL=false",
		"TEST_APP__AN_EMPTY_VALUE=",
		"TEST_APP__AN_INT=123",
		"TEST_APP__A_NEG_INT=-45",
		"TEST_APP__A_FLOAT=1.23",
		"TEST_APP__A_NEG_FLOAT=-0.5",
		"TEST_APP__CAMELCASE_VAR=camelCaseValue",
		"TEST_APP__WITH_UNDERSCORE__VAR=with_underscore_value",
		"TEST_APP__EQUALS=a=b",
		"TEST_APP__=ignored",
		"UNRELATED_VAR=unrelated",
		"TEST_APPX__NOPE=1",
	}

	assert.True(t, value.EmptyMap().Equal(envConfigFrom("", environ)))
	assert.True(t, value.EmptyMap().Equal(envConfigFrom("NON_EXISTENT", environ)))

	want := mapOf(
		"foo", mapOf("bar", value.String("baz"), "quoted", value.String("quoted")),
		"a_bool", value.String("TRUE"),
		"another_bool", value.Bool(false),
		"an_empty_value", value.Null(),
		"an_int", value.Int(123),
		"a_neg_int", value.Int(-45),
		"a_float", value.Float(1.23),
		"a_neg_float", value.Float(-0.5),
		"camelcase_var", value.String("camelCaseValue"),
		"with_underscore", mapOf("var", value.String("with_underscore_value")),
		"equals", value.String("a=b"),
	)
	got := envConfigFrom("TEST_APP", environ)
	assert.True(t, want.Equal(got), "got %s", got)
}

func TestEnvConfigFrom_SortedByName(t *testing.T) {
	got := envConfigFrom("APP", []string{
		"APP__Z=1",
		"APP__DB__PORT=5432",
		"APP__A=2",
		"APP__DB__HOST=db",
	})

	assert.Equal(t, []string{"a", "db", "z"}, got.Keys())
	db, _ := got.Get("db")
	assert.Equal(t, []string{"host", "port"}, db.Keys())
}

func TestEnvConfigFrom_NestedReplacesScalar(t *testing.T) {
	got := envConfigFrom("APP", []string{
		"APP__DB=plain",
		"APP__DB__HOST=db",
	})
	assert.True(t, mapOf("db", mapOf("host", value.String("db"))).Equal(got), "got %s", got)
}

func TestEnvConfig(t *testing.T) {
	t.Setenv("CFGTPL_TEST__SERVER__PORT", "8080")

	got := EnvConfig("CFGTPL_TEST")
	server, ok := got.Get("server")
	require.True(t, ok)
	port, _ := server.Get("port")
	assert.True(t, value.Int(8080).Equal(port))
}

func TestParseAssignment(t *testing.T) {
	got, err := ParseAssignment("server.port=8080")
	require.NoError(t, err)
	assert.True(t, mapOf("server", mapOf("port", value.Int(8080))).Equal(got))

	got, err = ParseAssignment("name='a=b'")
	require.NoError(t, err)
	assert.True(t, mapOf("name", value.String("a=b")).Equal(got))

	for _, bad := range []string{"novalue", "=1", "a..b=1"} {
		_, err := ParseAssignment(bad)
		assert.Error(t, err, bad)
	}
}

package config

import (
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/openfroyo/configtpl/pkg/value"
)

// envSeparator splits both the prefix from the key and nested key levels.
const envSeparator = "__"

var (
	intPattern   = regexp.MustCompile(`^[-+]?[0-9]+$`)
	floatPattern = regexp.MustCompile(`^[-+]?([0-9]+\.[0-9]*|\.[0-9]+|[0-9]+(\.[0-9]*)?[eE][-+]?[0-9]+)$`)
)

// ParseScalar converts an environment variable or command line value into
// a typed configuration value:
//
//	""             -> null
//	'x' or "x"     -> x (quotes stripped, never re-typed)
//	true, false    -> bool (exact, lower case only)
//	123, -45       -> int
//	1.5, -0.5, 1e3 -> float
//	anything else  -> string
func ParseScalar(s string) value.Value {
	if s == "" {
		return value.Null()
	}

	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '\'' || first == '"') && first == last {
			return value.String(s[1 : len(s)-1])
		}
	}

	switch s {
	case "true":
		return value.Bool(true)
	case "false":
		return value.Bool(false)
	}

	if intPattern.MatchString(s) {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return value.Int(i)
		}
		// Integers beyond 64 bits degrade to floats.
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return value.Float(f)
		}
	}
	if floatPattern.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return value.Float(f)
		}
	}

	return value.String(s)
}

// EnvConfig builds a mapping from the environment variables that start with
// prefix followed by "__". The rest of the name is lower-cased and split on
// "__" into nested keys, so APP__DB__HOST=x becomes {db: {host: x}}.
// Variables are applied in name order. An empty prefix yields an empty map.
func EnvConfig(prefix string) value.Value {
	return envConfigFrom(prefix, os.Environ())
}

func envConfigFrom(prefix string, environ []string) value.Value {
	if prefix == "" {
		return value.EmptyMap()
	}

	lead := prefix + envSeparator
	type envVar struct{ name, raw string }
	var vars []envVar
	for _, kv := range environ {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, lead) || name == lead {
			continue
		}
		vars = append(vars, envVar{name: name, raw: raw})
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].name < vars[j].name })

	tree := newEnvTree()
	for _, ev := range vars {
		keys := strings.Split(strings.ToLower(strings.TrimPrefix(ev.name, lead)), envSeparator)
		tree.set(keys, ParseScalar(ev.raw))
	}
	return tree.value()
}

// envTree collects nested variables before they are frozen into a value.
// A key holds either a leaf or a subtree; setting one replaces the other.
type envTree struct {
	order    []string
	leaves   map[string]value.Value
	children map[string]*envTree
}

func newEnvTree() *envTree {
	return &envTree{
		leaves:   make(map[string]value.Value),
		children: make(map[string]*envTree),
	}
}

func (t *envTree) set(keys []string, v value.Value) {
	key := keys[0]
	_, isLeaf := t.leaves[key]
	child, isTree := t.children[key]
	if !isLeaf && !isTree {
		t.order = append(t.order, key)
	}

	if len(keys) == 1 {
		delete(t.children, key)
		t.leaves[key] = v
		return
	}
	if !isTree {
		delete(t.leaves, key)
		child = newEnvTree()
		t.children[key] = child
	}
	child.set(keys[1:], v)
}

func (t *envTree) value() value.Value {
	out := value.NewMapBuilder(len(t.order))
	for _, key := range t.order {
		if child, ok := t.children[key]; ok {
			out.Set(key, child.value())
			continue
		}
		out.Set(key, t.leaves[key])
	}
	return out.Build()
}

// setPath sets v at the nested key path, creating mappings as needed and
// replacing any non-mapping found on the way. Each level is copied, so it
// suits single assignments.
func setPath(m value.Value, keys []string, v value.Value) value.Value {
	if len(keys) == 0 {
		return v
	}

	child, ok := m.Get(keys[0])
	if !ok || child.Kind() != value.KindMap {
		child = value.EmptyMap()
	}
	if len(keys) == 1 {
		return m.Set(keys[0], v)
	}
	return m.Set(keys[0], setPath(child, keys[1:], v))
}

// ParseAssignment parses a "key.path=value" override into a nested mapping.
// The value goes through ParseScalar.
func ParseAssignment(s string) (value.Value, error) {
	key, raw, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return value.Value{}, &assignmentError{input: s}
	}

	keys := strings.Split(key, ".")
	for _, k := range keys {
		if k == "" {
			return value.Value{}, &assignmentError{input: s}
		}
	}
	return setPath(value.EmptyMap(), keys, ParseScalar(raw)), nil
}

type assignmentError struct {
	input string
}

func (e *assignmentError) Error() string {
	return "invalid assignment " + strconv.Quote(e.input) + ": expected key.path=value"
}

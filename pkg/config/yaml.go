package config

import (
	"errors"
	"fmt"
	"math"

	"github.com/openfroyo/configtpl/pkg/value"
	"gopkg.in/yaml.v3"
)

// ParseYAML parses a single YAML document into a value, keeping mapping
// order. An empty document is an empty mapping.
//
// Anchored nodes are converted once and shared by every alias to them.
// Documents whose expanded size comes mostly from aliases are rejected with
// the same ratio yaml.v3 applies when decoding into Go values.
func ParseYAML(data []byte) (value.Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return value.Value{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return value.EmptyMap(), nil
	}

	w := &yamlWalker{anchors: make(map[*yaml.Node]converted)}
	root, err := w.convert(doc.Content[0])
	if err != nil {
		return value.Value{}, err
	}
	if root.aliased > 100 && root.size > 1000 &&
		float64(root.aliased)/float64(root.size) > allowedAliasRatio(root.size) {
		return value.Value{}, errors.New("YAML document contains excessive aliasing")
	}
	if root.v.IsNull() {
		return value.EmptyMap(), nil
	}
	return root.v, nil
}

// converted is a node's value with its size once aliases are expanded and
// how much of that size is reached through aliases.
type converted struct {
	v       value.Value
	size    int64
	aliased int64
}

// yamlWalker converts a node tree, memoizing anchored nodes.
type yamlWalker struct {
	anchors  map[*yaml.Node]converted
	visiting map[*yaml.Node]bool
}

func (w *yamlWalker) convert(n *yaml.Node) (converted, error) {
	if n.Anchor == "" {
		return w.convertNode(n)
	}
	if c, ok := w.anchors[n]; ok {
		return c, nil
	}
	if w.visiting[n] {
		return converted{}, fmt.Errorf("line %d: anchor %q value contains itself", n.Line, n.Anchor)
	}
	if w.visiting == nil {
		w.visiting = make(map[*yaml.Node]bool)
	}
	w.visiting[n] = true
	c, err := w.convertNode(n)
	delete(w.visiting, n)
	if err != nil {
		return converted{}, err
	}
	w.anchors[n] = c
	return c, nil
}

func (w *yamlWalker) convertNode(n *yaml.Node) (converted, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return converted{size: 1}, nil
		}
		return w.convert(n.Content[0])
	case yaml.AliasNode:
		target, err := w.convert(n.Alias)
		if err != nil {
			return converted{}, err
		}
		return converted{v: target.v, size: target.size, aliased: target.size}, nil
	case yaml.ScalarNode:
		v, err := scalarToValue(n)
		if err != nil {
			return converted{}, err
		}
		return converted{v: v, size: 1}, nil
	case yaml.SequenceNode:
		out := converted{size: 1}
		items := make([]value.Value, len(n.Content))
		for i, c := range n.Content {
			item, err := w.convert(c)
			if err != nil {
				return converted{}, err
			}
			items[i] = item.v
			out.add(item)
		}
		out.v = value.List(items...)
		return out, nil
	case yaml.MappingNode:
		return w.mapping(n)
	default:
		return converted{}, fmt.Errorf("line %d: unsupported YAML node kind %d", n.Line, n.Kind)
	}
}

func (w *yamlWalker) mapping(n *yaml.Node) (converted, error) {
	out := converted{size: 1}
	pairs := value.NewMapBuilder(len(n.Content) / 2)

	for i := 0; i+1 < len(n.Content); i += 2 {
		keyNode, valNode := n.Content[i], n.Content[i+1]

		if keyNode.Kind == yaml.ScalarNode && keyNode.ShortTag() == "!!merge" {
			merged, err := w.convert(valNode)
			if err != nil {
				return converted{}, err
			}
			out.add(merged)
			sources := []value.Value{merged.v}
			if merged.v.Kind() == value.KindList {
				sources = merged.v.Items()
			}
			for _, src := range sources {
				if src.Kind() != value.KindMap {
					return converted{}, fmt.Errorf("line %d: merge key expects a mapping", keyNode.Line)
				}
				for _, p := range src.Pairs() {
					// Explicit keys and earlier merges win.
					if _, ok := pairs.Get(p.Key); !ok {
						pairs.Set(p.Key, p.Value)
					}
				}
			}
			continue
		}

		if keyNode.Kind != yaml.ScalarNode {
			return converted{}, fmt.Errorf("line %d: mapping keys must be scalars", keyNode.Line)
		}

		v, err := w.convert(valNode)
		if err != nil {
			return converted{}, err
		}
		out.add(v)

		// Explicit keys replace merged ones; duplicate keys resolve to the last.
		pairs.Set(keyNode.Value, v.v)
	}
	out.v = pairs.Build()
	return out, nil
}

// add accumulates a child's sizes, saturating instead of overflowing.
func (c *converted) add(child converted) {
	c.size = saturatingAdd(c.size, child.size)
	c.aliased = saturatingAdd(c.aliased, child.aliased)
}

func saturatingAdd(a, b int64) int64 {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

const (
	aliasRatioRangeLow  = 400000
	aliasRatioRangeHigh = 4000000
)

// allowedAliasRatio mirrors yaml.v3: small documents may come almost
// entirely from aliases, very large ones only a tenth.
func allowedAliasRatio(size int64) float64 {
	switch {
	case size <= aliasRatioRangeLow:
		return 0.99
	case size >= aliasRatioRangeHigh:
		return 0.10
	default:
		return 0.99 - 0.89*(float64(size-aliasRatioRangeLow)/float64(aliasRatioRangeHigh-aliasRatioRangeLow))
	}
}

func scalarToValue(n *yaml.Node) (value.Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return value.Null(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return value.Value{}, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return value.Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return value.Value{}, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return value.Int(i), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return value.Value{}, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return value.Float(f), nil
	default:
		// Strings, timestamps and binary data keep their source text.
		return value.String(n.Value), nil
	}
}

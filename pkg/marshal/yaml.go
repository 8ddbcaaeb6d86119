package marshal

import (
	"math"
	"strconv"

	"gopkg.in/yaml.v3"
)

// YAMLFactory builds yaml.v3 nodes. Unlike GoFactory it keeps mapping
// order, so encoding the result reproduces the order of the sources.
type YAMLFactory struct{}

var _ Factory[*yaml.Node] = YAMLFactory{}

func scalar(tag, val string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: val}
}

// Bool returns a !!bool scalar.
func (YAMLFactory) Bool(b bool) (*yaml.Node, error) {
	return scalar("!!bool", strconv.FormatBool(b)), nil
}

// Int returns a !!int scalar.
func (YAMLFactory) Int(i int64) (*yaml.Node, error) {
	return scalar("!!int", strconv.FormatInt(i, 10)), nil
}

// Float returns a !!float scalar using YAML spellings for NaN and infinity.
func (YAMLFactory) Float(f float64) (*yaml.Node, error) {
	var s string
	switch {
	case math.IsNaN(f):
		s = ".nan"
	case math.IsInf(f, 1):
		s = ".inf"
	case math.IsInf(f, -1):
		s = "-.inf"
	default:
		s = strconv.FormatFloat(f, 'g', -1, 64)
		// Keep integral floats recognisable as floats.
		if _, err := strconv.ParseInt(s, 10, 64); err == nil {
			s += ".0"
		}
	}
	return scalar("!!float", s), nil
}

// String returns a !!str scalar; the encoder quotes it when needed.
func (YAMLFactory) String(s string) (*yaml.Node, error) {
	return scalar("!!str", s), nil
}

// Null returns a !!null scalar.
func (YAMLFactory) Null() (*yaml.Node, error) {
	return scalar("!!null", "null"), nil
}

// List returns a sequence node.
func (YAMLFactory) List(items []*yaml.Node) (*yaml.Node, error) {
	return &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Content: items}, nil
}

// Map returns a mapping node with keys in the given order.
func (YAMLFactory) Map(keys []string, values []*yaml.Node) (*yaml.Node, error) {
	content := make([]*yaml.Node, 0, 2*len(keys))
	for i, k := range keys {
		content = append(content, scalar("!!str", k), values[i])
	}
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Content: content}, nil
}

package data

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/chazu/reflow/pkg/validator"
)

// FromYAML decodes a YAML document into tracked Objects. Mappings become
// *Object, sequences become []any, scalars keep their decoded Go type.
func FromYAML(tracker validator.Tracker, r io.Reader) (any, error) {
	var node yaml.Node
	if err := yaml.NewDecoder(r).Decode(&node); err != nil {
		if err == io.EOF {
			return NewObject(tracker), nil
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return fromNode(tracker, &node)
}

func fromNode(tracker validator.Tracker, n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return fromNode(tracker, n.Content[0])

	case yaml.AliasNode:
		return fromNode(tracker, n.Alias)

	case yaml.MappingNode:
		obj := NewObject(tracker)
		for i := 0; i+1 < len(n.Content); i += 2 {
			var key string
			if err := n.Content[i].Decode(&key); err != nil {
				return nil, fmt.Errorf("line %d: mapping key: %w", n.Content[i].Line, err)
			}
			v, err := fromNode(tracker, n.Content[i+1])
			if err != nil {
				return nil, err
			}
			obj.values[key] = v
		}
		return obj, nil

	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := fromNode(tracker, c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: scalar: %w", n.Line, err)
		}
		return v, nil
	}

	return nil, fmt.Errorf("line %d: unsupported yaml node kind %d", n.Line, n.Kind)
}

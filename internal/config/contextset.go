package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ContextSet is an order-preserving mapping from context name to
// definition. YAML mappings are unordered in most decoders; resolution
// tie-breaks depend on declaration order ("first declared wins"), so
// the set records the order names appeared in the source document.
//
// The zero value is an empty set ready for use.
type ContextSet struct {
	names []string
	defs  map[string]ContextDefinition
}

// UnmarshalYAML decodes a YAML mapping node, preserving key order.
func (cs *ContextSet) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("contexts must be a mapping, got %v", node.Kind)
	}

	cs.names = nil
	cs.defs = make(map[string]ContextDefinition, len(node.Content)/2)

	for i := 0; i+1 < len(node.Content); i += 2 {
		var name string
		if err := node.Content[i].Decode(&name); err != nil {
			return fmt.Errorf("context name: %w", err)
		}
		var def ContextDefinition
		if err := node.Content[i+1].Decode(&def); err != nil {
			return fmt.Errorf("context %q: %w", name, err)
		}
		if _, dup := cs.defs[name]; dup {
			return fmt.Errorf("duplicate context %q", name)
		}
		cs.names = append(cs.names, name)
		cs.defs[name] = def
	}

	return nil
}

// MarshalYAML encodes the set as a mapping in declaration order.
func (cs ContextSet) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range cs.names {
		var key, val yaml.Node
		if err := key.Encode(name); err != nil {
			return nil, err
		}
		if err := val.Encode(cs.defs[name]); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &key, &val)
	}
	return node, nil
}

// Set adds or replaces a definition. New names append to the order;
// existing names keep their position.
func (cs *ContextSet) Set(name string, def ContextDefinition) {
	if cs.defs == nil {
		cs.defs = make(map[string]ContextDefinition)
	}
	if _, ok := cs.defs[name]; !ok {
		cs.names = append(cs.names, name)
	}
	cs.defs[name] = def
}

// Get returns the definition for name and whether it exists.
func (cs *ContextSet) Get(name string) (ContextDefinition, bool) {
	def, ok := cs.defs[name]
	return def, ok
}

// Names returns context names in declaration order. The returned slice
// is shared; callers must not modify it.
func (cs *ContextSet) Names() []string {
	return cs.names
}

// Len returns the number of contexts in the set.
func (cs *ContextSet) Len() int {
	return len(cs.names)
}

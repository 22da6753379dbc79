package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Prompt holds reminder body text declared either as a single YAML
// string or as a sequence of strings. Sequences render joined with
// newlines, letting config authors write multi-line prompts without
// YAML block scalars.
type Prompt struct {
	lines []string
}

// NewPrompt builds a Prompt from explicit lines. Used by tests and by
// programmatic config construction.
func NewPrompt(lines ...string) Prompt {
	return Prompt{lines: lines}
}

// UnmarshalYAML accepts a scalar or a sequence of scalars.
func (p *Prompt) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		p.lines = []string{s}
		return nil
	case yaml.SequenceNode:
		var ss []string
		if err := node.Decode(&ss); err != nil {
			return err
		}
		p.lines = ss
		return nil
	default:
		return fmt.Errorf("prompt must be a string or a sequence of strings, got %v", node.Kind)
	}
}

// MarshalYAML mirrors the accepted input shapes: single-line prompts
// encode as a scalar, multi-line as a sequence.
func (p Prompt) MarshalYAML() (any, error) {
	if len(p.lines) == 1 {
		return p.lines[0], nil
	}
	return p.lines, nil
}

// Text returns the rendered prompt body.
func (p Prompt) Text() string {
	return strings.Join(p.lines, "\n")
}

// IsZero reports whether no prompt text was declared.
func (p Prompt) IsZero() bool {
	return len(p.lines) == 0
}

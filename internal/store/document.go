package store

import (
	"bytes"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// NamedInt is an integer setting value that carries a display name.
// It is written to disk as a plain integer.
type NamedInt struct {
	Value int
	Name  string
}

func (n NamedInt) String() string {
	if n.Name != "" {
		return n.Name
	}
	return strconv.Itoa(n.Value)
}

func (n NamedInt) MarshalYAML() (any, error) {
	return n.Value, nil
}

// Document is the whole configuration: a schema version followed by the
// device records in insertion order.
type Document struct {
	Version string
	Records []*Record
}

// MarshalYAML emits the document as a sequence whose first element is the
// version string.
func (d *Document) MarshalYAML() (any, error) {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	var version yaml.Node
	if err := version.Encode(d.Version); err != nil {
		return nil, fmt.Errorf("encode version: %w", err)
	}
	seq.Content = append(seq.Content, &version)
	for i, r := range d.Records {
		n, err := r.node()
		if err != nil {
			return nil, fmt.Errorf("encode record %d: %w", i+1, err)
		}
		seq.Content = append(seq.Content, n)
	}
	return seq, nil
}

// node renders the record as a mapping with sorted keys. Callers hold the
// owner's lock.
func (r *Record) node() (*yaml.Node, error) {
	m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range r.keysLocked() {
		v, _ := r.getLocked(k)
		var vn yaml.Node
		if err := vn.Encode(v); err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		flowLeaves(&vn)
		m.Content = append(m.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			&vn)
	}
	return m, nil
}

// flowLeaves switches collections holding only scalars to flow style.
func flowLeaves(n *yaml.Node) {
	if n.Kind != yaml.MappingNode && n.Kind != yaml.SequenceNode {
		return
	}
	leaf := true
	for _, c := range n.Content {
		if c.Kind != yaml.ScalarNode {
			leaf = false
			flowLeaves(c)
		}
	}
	if leaf {
		n.Style = yaml.FlowStyle
	}
}

func encodeDocument(d *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeDocument(data []byte) (any, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// ParseValue decodes a YAML scalar or flow collection into the value shapes
// records hold, so integer-keyed tables keep integer keys.
func ParseValue(text string) (any, error) {
	v, err := decodeDocument([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("parse value: %w", err)
	}
	return normalizeValue(v), nil
}

// Package jsondoc provides an order-preserving JSON object tree. Schema
// documents and entity content both rely on field order (tab columns follow
// schema property order), which the standard map type discards.
package jsondoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Node is a JSON object whose keys keep their insertion (or source) order.
// Values are strings, float64, bool, nil, []any, or *Node for nested objects.
type Node struct {
	keys   []string
	values map[string]any
}

// New creates an empty Node
func New() *Node {
	return &Node{values: make(map[string]any)}
}

// Parse decodes a JSON object from raw bytes, preserving key order
func Parse(data []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to parse json document: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("json document is not an object")
	}

	node, err := decodeObject(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to parse json document: %w", err)
	}
	return node, nil
}

// decodeObject consumes tokens after an opening brace up to the matching
// closing brace.
func decodeObject(dec *json.Decoder) (*Node, error) {
	node := New()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", keyTok)
		}
		value, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		node.Set(key, value)
	}
	// consume closing brace
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return node, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			var items []any
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			if items == nil {
				items = []any{}
			}
			return items, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", t)
		}
	case json.Number:
		return normalizeNumber(t), nil
	default:
		return tok, nil
	}
}

// normalizeNumber keeps integers as int64 so they survive a marshal round
// trip without a trailing fraction.
func normalizeNumber(n json.Number) any {
	if i, err := n.Int64(); err == nil && !strings.ContainsAny(n.String(), ".eE") {
		return i
	}
	f, _ := n.Float64()
	return f
}

// Len returns the number of keys
func (n *Node) Len() int {
	return len(n.keys)
}

// Keys returns the keys in order
func (n *Node) Keys() []string {
	out := make([]string, len(n.keys))
	copy(out, n.keys)
	return out
}

// Has reports whether the key is present
func (n *Node) Has(key string) bool {
	_, ok := n.values[key]
	return ok
}

// Get returns the value for key
func (n *Node) Get(key string) (any, bool) {
	v, ok := n.values[key]
	return v, ok
}

// GetString returns the value for key if it is a string
func (n *Node) GetString(key string) (string, bool) {
	s, ok := n.values[key].(string)
	return s, ok
}

// GetNode returns the value for key if it is a nested object
func (n *Node) GetNode(key string) (*Node, bool) {
	c, ok := n.values[key].(*Node)
	return c, ok
}

// GetSlice returns the value for key if it is an array
func (n *Node) GetSlice(key string) ([]any, bool) {
	s, ok := n.values[key].([]any)
	return s, ok
}

// Set stores a value, appending the key if it is new
func (n *Node) Set(key string, value any) {
	if _, exists := n.values[key]; !exists {
		n.keys = append(n.keys, key)
	}
	n.values[key] = value
}

// Delete removes a key if present
func (n *Node) Delete(key string) {
	if _, exists := n.values[key]; !exists {
		return
	}
	delete(n.values, key)
	for i, k := range n.keys {
		if k == key {
			n.keys = append(n.keys[:i], n.keys[i+1:]...)
			break
		}
	}
}

// GetPath resolves a dotted path (a.b.c) through nested objects
func (n *Node) GetPath(path string) (any, bool) {
	segments := strings.Split(path, ".")
	current := n
	for i, seg := range segments {
		v, ok := current.values[seg]
		if !ok {
			return nil, false
		}
		if i == len(segments)-1 {
			return v, true
		}
		current, ok = v.(*Node)
		if !ok {
			return nil, false
		}
	}
	return nil, false
}

// SetPath stores a value at a dotted path, creating intermediate objects as
// needed.
func (n *Node) SetPath(path string, value any) {
	segments := strings.Split(path, ".")
	current := n
	for _, seg := range segments[:len(segments)-1] {
		child, ok := current.values[seg].(*Node)
		if !ok {
			child = New()
			current.Set(seg, child)
		}
		current = child
	}
	current.Set(segments[len(segments)-1], value)
}

// AppendPath appends a value to the list at a dotted path, creating the list
// if it does not exist.
func (n *Node) AppendPath(path string, value any) {
	existing, ok := n.GetPath(path)
	if !ok {
		n.SetPath(path, []any{value})
		return
	}
	list, ok := existing.([]any)
	if !ok {
		list = []any{existing}
	}
	n.SetPath(path, append(list, value))
}

// Flatten returns a map of dotted leaf paths to values. Arrays are treated
// as leaves.
func (n *Node) Flatten() map[string]any {
	out := make(map[string]any)
	n.flattenInto("", out)
	return out
}

func (n *Node) flattenInto(prefix string, out map[string]any) {
	for _, key := range n.keys {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if child, ok := n.values[key].(*Node); ok {
			child.flattenInto(path, out)
			continue
		}
		out[path] = n.values[key]
	}
}

// Nest builds a Node from a map of dotted paths. Paths are inserted in
// lexicographic segment order when order is not otherwise known.
func Nest(flat map[string]any, order []string) *Node {
	node := New()
	seen := make(map[string]bool, len(order))
	for _, path := range order {
		if v, ok := flat[path]; ok {
			node.SetPath(path, v)
			seen[path] = true
		}
	}
	for path, v := range flat {
		if !seen[path] {
			node.SetPath(path, v)
		}
	}
	return node
}

// Clone returns a deep copy of the node
func (n *Node) Clone() *Node {
	out := New()
	for _, key := range n.keys {
		out.Set(key, cloneValue(n.values[key]))
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case *Node:
		return t.Clone()
	case []any:
		items := make([]any, len(t))
		for i, item := range t {
			items[i] = cloneValue(item)
		}
		return items
	default:
		return v
	}
}

// MarshalJSON encodes the node preserving key order
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range n.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		valueJSON, err := json.Marshal(n.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(valueJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object preserving key order
func (n *Node) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	n.keys = parsed.keys
	n.values = parsed.values
	return nil
}

// Interface converts the tree to plain map[string]any values, losing order.
// Useful for comparisons in tests and for callers that do not care about
// ordering.
func (n *Node) Interface() map[string]any {
	out := make(map[string]any, len(n.keys))
	for _, key := range n.keys {
		out[key] = interfaceValue(n.values[key])
	}
	return out
}

func interfaceValue(v any) any {
	switch t := v.(type) {
	case *Node:
		return t.Interface()
	case []any:
		items := make([]any, len(t))
		for i, item := range t {
			items[i] = interfaceValue(item)
		}
		return items
	default:
		return v
	}
}

package schema

import (
	"strings"
)

// Tab describes the worksheet generated for one concrete type: its display
// name and the ordered, depth-first list of leaf column paths.
type Tab struct {
	ConcreteType string
	DisplayName  string
	Columns      []string
}

// Template is the resolved schema catalog. It maps concrete type names to
// property trees, user-facing labels and fully-qualified paths to matching
// paths, and carries the property-migration ledger.
type Template struct {
	properties map[string]*Property
	typeOrder  []string
	labels     map[string][]string
	labelOrder []string
	tabs       []Tab
	migrations *Migrations
	root       *trieNode
}

// trieNode resolves dotted paths by segment walk instead of per-query string
// splitting against nested maps.
type trieNode struct {
	property *Property
	children map[string]*trieNode
}

func newTrieNode(p *Property) *trieNode {
	return &trieNode{property: p, children: make(map[string]*trieNode)}
}

func (t *trieNode) insert(segments []string, p *Property) {
	if len(segments) == 0 {
		t.property = p
		return
	}
	key := strings.ToLower(segments[0])
	child, ok := t.children[key]
	if !ok {
		child = newTrieNode(nil)
		t.children[key] = child
	}
	child.insert(segments[1:], p)
}

func (t *trieNode) walk(segments []string) (*Property, bool) {
	if len(segments) == 0 {
		if t.property == nil {
			return nil, false
		}
		return t.property, true
	}
	child, ok := t.children[strings.ToLower(segments[0])]
	if !ok {
		return nil, false
	}
	return child.walk(segments[1:])
}

// newTemplate assembles the catalog from extracted root properties, in input
// order.
func newTemplate(roots []*Property, migrations *Migrations) *Template {
	t := &Template{
		properties: make(map[string]*Property),
		labels:     make(map[string][]string),
		migrations: migrations,
		root:       newTrieNode(nil),
	}
	if t.migrations == nil {
		t.migrations = NewMigrations()
	}

	for _, root := range roots {
		name := root.Name
		if _, exists := t.properties[name]; !exists {
			t.typeOrder = append(t.typeOrder, name)
		}
		t.properties[name] = root

		tab := Tab{
			ConcreteType: name,
			DisplayName:  displayName(name),
		}
		t.indexProperty(name, root, &tab.Columns)
		t.tabs = append(t.tabs, tab)
	}
	return t
}

// indexProperty inserts a property subtree into the trie and label index and
// collects leaf column paths depth-first.
func (t *Template) indexProperty(path string, p *Property, columns *[]string) {
	t.root.insert(strings.Split(path, "."), p)

	if !p.IsComplex() {
		t.addLabel(p.UserFriendly, path)
		t.addLabel(path, path)
		*columns = append(*columns, path)
		return
	}
	for _, name := range p.ChildOrder {
		t.indexProperty(path+"."+name, p.Children[name], columns)
	}
}

func (t *Template) addLabel(label, path string) {
	if label == "" {
		return
	}
	key := strings.ToLower(label)
	if _, exists := t.labels[key]; !exists {
		t.labelOrder = append(t.labelOrder, key)
	}
	t.labels[key] = append(t.labels[key], path)
}

// displayName turns a module name into its tab title: underscores become
// spaces and the first letter is capitalized.
func displayName(module string) string {
	s := strings.ReplaceAll(module, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Lookup resolves a fully-qualified dotted path to its property descriptor.
// Matching is case-insensitive.
func (t *Template) Lookup(path string) (*Property, error) {
	p, ok := t.root.walk(strings.Split(path, "."))
	if !ok {
		return nil, &UnknownKeyError{Key: path}
	}
	return p, nil
}

// LookupType returns the root property tree for a concrete type
func (t *Template) LookupType(concreteType string) (*Property, error) {
	p, ok := t.properties[concreteType]
	if !ok {
		return nil, &UnknownKeyError{Key: concreteType}
	}
	return p, nil
}

// HasType reports whether the catalog knows a concrete type
func (t *Template) HasType(concreteType string) bool {
	_, ok := t.properties[concreteType]
	return ok
}

// Types returns the concrete type names in catalog order
func (t *Template) Types() []string {
	out := make([]string, len(t.typeOrder))
	copy(out, t.typeOrder)
	return out
}

// PathsForLabel returns every fully-qualified path registered under a
// user-facing label or path key, case-insensitively.
func (t *Template) PathsForLabel(label string) ([]string, error) {
	paths, ok := t.labels[strings.ToLower(label)]
	if !ok {
		return nil, &UnknownKeyError{Key: label}
	}
	out := make([]string, len(paths))
	copy(out, paths)
	return out, nil
}

// Labels returns every label key in insertion order
func (t *Template) Labels() []string {
	out := make([]string, len(t.labelOrder))
	copy(out, t.labelOrder)
	return out
}

// Tabs returns one tab descriptor per root schema, in input order
func (t *Template) Tabs() []Tab {
	out := make([]Tab, len(t.tabs))
	copy(out, t.tabs)
	return out
}

// TabForSheet resolves a worksheet title to a concrete type, matching either
// the tab display name or the concrete type name, case-insensitively.
func (t *Template) TabForSheet(title string) (string, bool) {
	trimmed := strings.TrimSpace(title)
	for _, tab := range t.tabs {
		if strings.EqualFold(tab.DisplayName, trimmed) || strings.EqualFold(tab.ConcreteType, trimmed) {
			return tab.ConcreteType, true
		}
	}
	return "", false
}

// DescribedBy returns the schema URL a document of the given concrete type
// must declare.
func (t *Template) DescribedBy(concreteType string) (string, error) {
	p, err := t.LookupType(concreteType)
	if err != nil {
		return "", err
	}
	return p.Schema.URL, nil
}

// DomainType returns the domain family of a concrete type (biomaterial,
// file, process, protocol, project).
func (t *Template) DomainType(concreteType string) (string, error) {
	p, err := t.LookupType(concreteType)
	if err != nil {
		return "", err
	}
	return p.Schema.DomainType(), nil
}

// Migrations returns the property-migration ledger
func (t *Template) Migrations() *Migrations {
	return t.migrations
}

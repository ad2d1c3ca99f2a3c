package schema

import (
	"fmt"

	"github.com/biobroker/biobroker/internal/jsondoc"
)

// ValueType represents the primitive type of a schema property
type ValueType int

const (
	ValueString ValueType = iota
	ValueInteger
	ValueBoolean
	ValueNumber
	ValueObject
)

// String returns the JSON-schema name of the value type
func (v ValueType) String() string {
	switch v {
	case ValueString:
		return "string"
	case ValueInteger:
		return "integer"
	case ValueBoolean:
		return "boolean"
	case ValueNumber:
		return "number"
	case ValueObject:
		return "object"
	default:
		return "unknown"
	}
}

// ParseValueType converts a JSON-schema type name to a ValueType
func ParseValueType(s string) (ValueType, bool) {
	switch s {
	case "string":
		return ValueString, true
	case "integer":
		return ValueInteger, true
	case "boolean":
		return ValueBoolean, true
	case "number":
		return ValueNumber, true
	case "object":
		return ValueObject, true
	default:
		return 0, false
	}
}

// identifiableProperties are identifying regardless of what the schema text
// says about them.
var identifiableProperties = map[string]bool{
	"biomaterial_id": true,
	"process_id":     true,
	"protocol_id":    true,
	"file_name":      true,
}

// strippedProperties never become catalog entries
var strippedProperties = map[string]bool{
	"describedBy":    true,
	"schema_version": true,
	"schema_type":    true,
	"provenance":     true,
}

// Property describes one field of a schema. Simple properties carry a value
// type and presentation metadata; complex properties additionally own a
// nested schema descriptor and child properties.
type Property struct {
	Name              string
	Type              ValueType
	Multivalue        bool
	Format            string
	UserFriendly      string
	Description       string
	Example           string
	Guidelines        string
	Required          bool
	Identifiable      bool
	ExternalReference bool

	// Complex form
	Schema           *Descriptor
	Children         map[string]*Property
	ChildOrder       []string
	RequiredChildren []string
}

// IsComplex reports whether the property owns child properties
func (p *Property) IsComplex() bool {
	return len(p.Children) > 0
}

// Child returns a child property by name
func (p *Property) Child(name string) (*Property, bool) {
	c, ok := p.Children[name]
	return c, ok
}

// addChild registers a child property preserving order
func (p *Property) addChild(child *Property) {
	if p.Children == nil {
		p.Children = make(map[string]*Property)
	}
	if _, exists := p.Children[child.Name]; !exists {
		p.ChildOrder = append(p.ChildOrder, child.Name)
	}
	p.Children[child.Name] = child
}

// extractRoot builds the root property tree for one resolved schema
// document. Every concrete type gains an implicit uuid pseudo-property so
// workbooks can reference pre-existing entities.
func extractRoot(doc *jsondoc.Node) (*Property, error) {
	id := documentID(doc)
	if id == "" {
		return nil, &RootSchemaError{Err: fmt.Errorf("schema document has no $id")}
	}
	desc, err := ParseDescriptor(id)
	if err != nil {
		return nil, err
	}

	root := &Property{
		Name:   desc.Module,
		Type:   ValueObject,
		Schema: desc,
	}
	if title, ok := doc.GetString("title"); ok {
		root.UserFriendly = title
	}
	if description, ok := doc.GetString("description"); ok {
		root.Description = description
	}

	if err := extractChildren(root, doc); err != nil {
		return nil, fmt.Errorf("schema %s: %w", id, err)
	}

	root.addChild(&Property{
		Name:              "uuid",
		Type:              ValueString,
		UserFriendly:      "Uuid",
		Identifiable:      true,
		ExternalReference: true,
	})
	return root, nil
}

// extractChildren populates the children of a complex property from the
// resolved schema node's properties object.
func extractChildren(parent *Property, node *jsondoc.Node) error {
	requiredSet := requiredNames(node)
	for _, name := range requiredSet.order {
		parent.RequiredChildren = append(parent.RequiredChildren, name)
	}

	properties, ok := node.GetNode("properties")
	if !ok {
		return nil
	}
	for _, name := range properties.Keys() {
		if strippedProperties[name] {
			continue
		}
		child, ok := properties.GetNode(name)
		if !ok {
			continue
		}
		prop, err := extractProperty(name, child, requiredSet.names)
		if err != nil {
			return err
		}
		parent.addChild(prop)
	}
	return nil
}

// extractProperty builds a single property from its resolved schema node
func extractProperty(name string, node *jsondoc.Node, required map[string]bool) (*Property, error) {
	prop := &Property{
		Name:         name,
		Required:     required[name],
		Identifiable: identifiableProperties[name],
	}

	if typeName, ok := node.GetString("type"); ok && typeName == "array" {
		prop.Multivalue = true
		if items, ok := node.GetNode("items"); ok {
			node = items
		}
	}

	if id := documentID(node); id != "" {
		desc, err := ParseDescriptor(id)
		if err != nil {
			return nil, err
		}
		prop.Schema = desc
	}

	prop.Type = ValueObject
	if typeName, ok := node.GetString("type"); ok {
		if vt, ok := ParseValueType(typeName); ok {
			prop.Type = vt
		}
	}

	prop.Format, _ = node.GetString("format")
	prop.UserFriendly, _ = node.GetString("user_friendly")
	prop.Description, _ = node.GetString("description")
	prop.Example, _ = node.GetString("example")
	prop.Guidelines, _ = node.GetString("guidelines")
	if ext, ok := node.Get("external_reference"); ok {
		if b, ok := ext.(bool); ok {
			prop.ExternalReference = b
		}
	}

	if prop.Type == ValueObject {
		if err := extractChildren(prop, node); err != nil {
			return nil, err
		}
	}
	return prop, nil
}

type requiredList struct {
	names map[string]bool
	order []string
}

func requiredNames(node *jsondoc.Node) requiredList {
	out := requiredList{names: make(map[string]bool)}
	raw, ok := node.GetSlice("required")
	if !ok {
		return out
	}
	for _, v := range raw {
		if s, ok := v.(string); ok && !out.names[s] {
			out.names[s] = true
			out.order = append(out.order, s)
		}
	}
	return out
}

// documentID returns the schema identifier of a node, honoring both draft-07
// ($id) and draft-04 (id) spellings.
func documentID(node *jsondoc.Node) string {
	if id, ok := node.GetString("$id"); ok {
		return id
	}
	if id, ok := node.GetString("id"); ok {
		return id
	}
	return ""
}

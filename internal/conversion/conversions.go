package conversion

import (
	"fmt"

	"github.com/biobroker/biobroker/internal/graph"
	"github.com/biobroker/biobroker/internal/jsondoc"
)

// CellConversion applies one column's raw cell value to a target entity
type CellConversion interface {
	// Spec returns the column specification the conversion was built from
	Spec() *ColumnSpec
	// Apply converts the raw cell and mutates the entity
	Apply(entity *graph.Entity, raw string) error
}

// NewCellConversion selects the conversion variant for a column spec
func NewCellConversion(spec *ColumnSpec) CellConversion {
	base := baseConversion{spec: spec, convert: converterFor(spec.Property.Type)}
	switch spec.Type {
	case Identity:
		return &identityConversion{base}
	case ExternalReference:
		return &externalReferenceConversion{base}
	case LinkedIdentity:
		return &linkedIdentityConversion{base}
	case LinkedExternalReference:
		return &linkedExternalReferenceConversion{base}
	case LinkingDetail:
		return &linkingDetailConversion{base}
	case FieldOfListElement:
		return &listElementConversion{base}
	default:
		return &memberFieldConversion{base}
	}
}

type baseConversion struct {
	spec    *ColumnSpec
	convert converter
}

// Spec returns the column specification
func (c *baseConversion) Spec() *ColumnSpec {
	return c.spec
}

func (c *baseConversion) value(raw string) (any, error) {
	v, err := convertCell(raw, c.spec.Property.Multivalue, c.convert)
	if err != nil {
		return nil, fmt.Errorf("column %s: %w", c.spec.Path, err)
	}
	return v, nil
}

// values always yields a list, splitting on the multi-value separator even
// for single-valued declarations so link columns accept several targets.
func (c *baseConversion) values(raw string) ([]any, error) {
	v, err := convertCell(raw, true, c.convert)
	if err != nil {
		return nil, fmt.Errorf("column %s: %w", c.spec.Path, err)
	}
	return v.([]any), nil
}

// memberFieldConversion assigns directly into the content tree
type memberFieldConversion struct {
	baseConversion
}

func (c *memberFieldConversion) Apply(entity *graph.Entity, raw string) error {
	v, err := c.value(raw)
	if err != nil {
		return err
	}
	entity.Content.SetPath(c.spec.FieldPath, v)
	return nil
}

// identityConversion assigns the identifying field and the object id
type identityConversion struct {
	baseConversion
}

func (c *identityConversion) Apply(entity *graph.Entity, raw string) error {
	v, err := c.value(raw)
	if err != nil {
		return err
	}
	entity.Content.SetPath(c.spec.FieldPath, v)
	if id, ok := v.(string); ok {
		entity.ObjectID = id
	}
	return nil
}

// externalReferenceConversion brings in a pre-existing registry entity by
// UUID; the row becomes a reference rather than a new document.
type externalReferenceConversion struct {
	baseConversion
}

func (c *externalReferenceConversion) Apply(entity *graph.Entity, raw string) error {
	v, err := c.value(raw)
	if err != nil {
		return err
	}
	uuid, ok := v.(string)
	if !ok {
		return fmt.Errorf("column %s: uuid cell must be a string", c.spec.Path)
	}
	entity.ObjectID = uuid
	entity.RegistryUUID = uuid
	entity.IsReference = true
	return nil
}

// linkedIdentityConversion declares links to entities in another sheet
type linkedIdentityConversion struct {
	baseConversion
}

func (c *linkedIdentityConversion) Apply(entity *graph.Entity, raw string) error {
	ids, err := c.values(raw)
	if err != nil {
		return err
	}
	for _, id := range ids {
		s, ok := id.(string)
		if !ok || s == "" {
			continue
		}
		entity.AddLink(c.spec.OwnerDomain, s)
	}
	return nil
}

// linkedExternalReferenceConversion declares links to pre-existing registry
// entities by UUID.
type linkedExternalReferenceConversion struct {
	baseConversion
}

func (c *linkedExternalReferenceConversion) Apply(entity *graph.Entity, raw string) error {
	uuids, err := c.values(raw)
	if err != nil {
		return err
	}
	for _, u := range uuids {
		s, ok := u.(string)
		if !ok || s == "" {
			continue
		}
		entity.AddExternalLink(c.spec.OwnerDomain, s)
	}
	return nil
}

// linkingDetailConversion accumulates content for the synthesized connector
// process.
type linkingDetailConversion struct {
	baseConversion
}

func (c *linkingDetailConversion) Apply(entity *graph.Entity, raw string) error {
	v, err := c.value(raw)
	if err != nil {
		return err
	}
	entity.LinkingDetails.SetPath(c.spec.FieldPath, v)
	return nil
}

// listElementConversion merges sibling subfields into one element of a
// multivalued object property. A repeated subfield starts a new element.
type listElementConversion struct {
	baseConversion
}

func (c *listElementConversion) Apply(entity *graph.Entity, raw string) error {
	v, err := c.value(raw)
	if err != nil {
		return err
	}

	var element *jsondoc.Node
	if existing, ok := entity.Content.GetPath(c.spec.ListPath); ok {
		if list, ok := existing.([]any); ok && len(list) > 0 {
			if last, ok := list[len(list)-1].(*jsondoc.Node); ok {
				if _, present := last.GetPath(c.spec.ElementPath); !present {
					element = last
				}
			}
		}
	}
	if element == nil {
		element = jsondoc.New()
		entity.Content.AppendPath(c.spec.ListPath, element)
	}
	element.SetPath(c.spec.ElementPath, v)
	return nil
}

// Package conversion turns workbook cells into typed entity content. A
// column specification classifies each header path against the schema
// template; a cell conversion applies the matching converter and mutates the
// target entity.
package conversion

import "fmt"

// Type classifies what a workbook column does to the entity being imported
type Type int

const (
	// MemberField is the default: direct assignment into the content tree
	MemberField Type = iota
	// Identity is the identifying field of the current entity
	Identity
	// ExternalReference is the uuid pseudo-field of the current entity,
	// bringing in a pre-existing registry entity.
	ExternalReference
	// LinkedIdentity is the identifying field of another concrete type,
	// declaring a link to an entity in another sheet.
	LinkedIdentity
	// LinkedExternalReference is the uuid of another concrete type
	LinkedExternalReference
	// LinkingDetail carries payload for the synthesized connector process
	LinkingDetail
	// FieldOfListElement is a subfield of a multivalued object property
	FieldOfListElement
)

// String returns the conversion type name
func (t Type) String() string {
	switch t {
	case MemberField:
		return "member_field"
	case Identity:
		return "identity"
	case ExternalReference:
		return "external_reference"
	case LinkedIdentity:
		return "linked_identity"
	case LinkedExternalReference:
		return "linked_external_reference"
	case LinkingDetail:
		return "linking_detail"
	case FieldOfListElement:
		return "field_of_list_element"
	default:
		return "unknown"
	}
}

// InvalidBooleanValueError reports a cell that is not a recognized boolean
type InvalidBooleanValueError struct {
	Value string
}

// Error implements the error interface
func (e *InvalidBooleanValueError) Error() string {
	return fmt.Sprintf("invalid boolean value %q", e.Value)
}

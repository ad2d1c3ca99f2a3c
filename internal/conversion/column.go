package conversion

import (
	"fmt"
	"strings"

	"github.com/biobroker/biobroker/internal/schema"
)

// ColumnSpec is the compiled description of one workbook column: which
// entity type owns it, what property it resolves to, and which conversion
// applies.
type ColumnSpec struct {
	// Path is the fully-qualified header path, e.g.
	// donor_organism.biomaterial_core.biomaterial_id
	Path string
	// OwnerType is the concrete type named by the first path segment
	OwnerType string
	// OwnerDomain is the domain family of the owner type
	OwnerDomain string
	// FieldPath is the path within the owning entity's content tree
	FieldPath string
	// Property is the resolved leaf descriptor
	Property *schema.Property
	// Type is the conversion classification
	Type Type

	// ListPath and ElementPath are set for FieldOfListElement columns:
	// ListPath locates the multivalued object property within the content
	// tree, ElementPath the subfield within one list element.
	ListPath    string
	ElementPath string
}

// NewColumnSpec classifies a header path against the schema template for the
// sheet's concrete type.
func NewColumnSpec(header, sheetType string, template *schema.Template) (*ColumnSpec, error) {
	path := strings.TrimSpace(header)
	owner, rest, found := strings.Cut(path, ".")
	if !found {
		return nil, fmt.Errorf("header %q has no field path", path)
	}

	property, err := template.Lookup(path)
	if err != nil {
		return nil, err
	}
	ownerDomain, err := template.DomainType(owner)
	if err != nil {
		return nil, err
	}

	spec := &ColumnSpec{
		Path:        path,
		OwnerType:   owner,
		OwnerDomain: ownerDomain,
		FieldPath:   rest,
		Property:    property,
	}

	sameSheet := strings.EqualFold(owner, sheetType)
	switch {
	case property.Identifiable && !property.ExternalReference:
		if sameSheet {
			spec.Type = Identity
		} else {
			spec.Type = LinkedIdentity
		}
	case property.ExternalReference:
		if sameSheet {
			spec.Type = ExternalReference
		} else {
			spec.Type = LinkedExternalReference
		}
	case !sameSheet:
		spec.Type = LinkingDetail
	default:
		spec.Type = MemberField
		if listPath, elementPath, ok := listAncestor(path, template); ok {
			spec.Type = FieldOfListElement
			spec.ListPath = listPath
			spec.ElementPath = elementPath
		}
	}
	return spec, nil
}

// listAncestor finds the nearest multivalued object ancestor of a path. The
// returned list path is relative to the entity content (owner stripped), as
// is the element path within one list element.
func listAncestor(path string, template *schema.Template) (string, string, bool) {
	segments := strings.Split(path, ".")
	// Skip the owner segment and the leaf itself.
	for i := len(segments) - 1; i > 1; i-- {
		prefix := strings.Join(segments[:i], ".")
		ancestor, err := template.Lookup(prefix)
		if err != nil {
			continue
		}
		if ancestor.Multivalue && ancestor.IsComplex() {
			listPath := strings.Join(segments[1:i], ".")
			elementPath := strings.Join(segments[i:], ".")
			return listPath, elementPath, true
		}
	}
	return "", "", false
}

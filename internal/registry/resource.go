// Package registry is the HATEOAS client for the central metadata registry.
// The root document is read once; every further URL is resolved through
// _links.
package registry

import (
	"fmt"
	"regexp"

	"github.com/biobroker/biobroker/internal/jsondoc"
)

// Resource is one registry JSON resource. The raw document is kept intact;
// accessors pull the fields the pipeline cares about.
type Resource struct {
	doc *jsondoc.Node
}

// NewResource wraps a parsed registry document
func NewResource(doc *jsondoc.Node) *Resource {
	return &Resource{doc: doc}
}

// ParseResource decodes a registry response body
func ParseResource(data []byte) (*Resource, error) {
	doc, err := jsondoc.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry resource: %w", err)
	}
	return &Resource{doc: doc}, nil
}

// Raw returns the underlying document
func (r *Resource) Raw() *jsondoc.Node {
	return r.doc
}

// Link resolves a _links relation to its href
func (r *Resource) Link(rel string) (string, bool) {
	href, ok := r.doc.GetPath("_links." + rel + ".href")
	if !ok {
		return "", false
	}
	s, ok := href.(string)
	return trimTemplate(s), ok
}

// SelfURL returns the resource's own URL
func (r *Resource) SelfURL() string {
	href, _ := r.Link("self")
	return href
}

// UUID returns the registry-assigned UUID
func (r *Resource) UUID() string {
	if u, ok := r.doc.GetPath("uuid.uuid"); ok {
		if s, ok := u.(string); ok {
			return s
		}
	}
	if s, ok := r.doc.GetString("uuid"); ok {
		return s
	}
	return ""
}

// Content returns the metadata content object, or an empty node
func (r *Resource) Content() *jsondoc.Node {
	if content, ok := r.doc.GetNode("content"); ok {
		return content
	}
	return jsondoc.New()
}

// DescribedBy returns the schema URL the content declares
func (r *Resource) DescribedBy() string {
	s, _ := r.Content().GetString("describedBy")
	return s
}

// DCPVersion returns the registry's version stamp for the resource
func (r *Resource) DCPVersion() string {
	s, _ := r.doc.GetString("dcpVersion")
	return s
}

// SubmissionDate returns the resource's creation timestamp
func (r *Resource) SubmissionDate() string {
	s, _ := r.doc.GetString("submissionDate")
	return s
}

// UpdateDate returns the resource's last-update timestamp
func (r *Resource) UpdateDate() string {
	s, _ := r.doc.GetString("updateDate")
	return s
}

// Embedded returns the embedded resources of one type from a paginated
// response.
func (r *Resource) Embedded(key string) []*Resource {
	items, ok := r.doc.GetPath("_embedded." + key)
	if !ok {
		return nil
	}
	list, ok := items.([]any)
	if !ok {
		return nil
	}
	var out []*Resource
	for _, item := range list {
		if node, ok := item.(*jsondoc.Node); ok {
			out = append(out, &Resource{doc: node})
		}
	}
	return out
}

// templateSuffix strips URI-template placeholders like {?projection}
var templateSuffix = regexp.MustCompile(`\{[^}]*\}$`)

func trimTemplate(href string) string {
	return templateSuffix.ReplaceAllString(href, "")
}

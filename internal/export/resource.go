package export

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/biobroker/biobroker/internal/dss"
	"github.com/biobroker/biobroker/internal/jsondoc"
	"github.com/biobroker/biobroker/internal/registry"
)

var schemaVersionPattern = regexp.MustCompile(`/(\d+)\.(\d+)(?:\.(\d+))?/[^/]+$`)

// MetadataResource is one metadata document bound for a bundle: the
// registry resource plus the bundle-facing type and version.
type MetadataResource struct {
	// MetadataType classifies the document, for example "biomaterial" or
	// "links". It becomes the dcp-type suffix of the staged content type.
	MetadataType string

	UUID       string
	DCPVersion string
	Content    *jsondoc.Node
}

// NewMetadataResource builds a MetadataResource from a registry resource.
func NewMetadataResource(metadataType string, resource *registry.Resource) (MetadataResource, error) {
	uuid := resource.UUID()
	if uuid == "" {
		return MetadataResource{}, fmt.Errorf("metadata resource of type %s has no uuid", metadataType)
	}
	version := resource.DCPVersion()
	if version == "" {
		return MetadataResource{}, fmt.Errorf("metadata resource %s has no dcpVersion", uuid)
	}
	return MetadataResource{
		MetadataType: metadataType,
		UUID:         uuid,
		DCPVersion:   version,
		Content:      resource.Content(),
	}, nil
}

// StoreVersion translates the resource's dcpVersion into the downstream
// store's version format.
func (r MetadataResource) StoreVersion() (string, error) {
	return dss.ToStoreVersion(r.DCPVersion)
}

// ContentType is the staged file's content type tag, "metadata/<type>".
func (r MetadataResource) ContentType() string {
	return "metadata/" + r.MetadataType
}

// FileName is the resource's stable staging file name.
func (r MetadataResource) FileName() string {
	return fmt.Sprintf("%s_%s.json", r.MetadataType, r.UUID)
}

// Provenance is the provenance block injected into exported documents.
type Provenance struct {
	DocumentID         string
	SubmissionDate     string
	UpdateDate         string
	SchemaMajorVersion int
	SchemaMinorVersion int
}

// DocumentWithProvenance returns a copy of the resource content with a
// provenance block appended. The input content is never mutated.
func DocumentWithProvenance(resource MetadataResource, submissionDate, updateDate string) (*jsondoc.Node, error) {
	document := resource.Content.Clone()

	provenance := jsondoc.New()
	provenance.Set("document_id", resource.UUID)
	provenance.Set("submission_date", submissionDate)
	provenance.Set("update_date", updateDate)

	describedBy, _ := document.GetString("describedBy")
	if major, minor, ok := schemaVersionOf(describedBy); ok {
		provenance.Set("schema_major_version", int64(major))
		provenance.Set("schema_minor_version", int64(minor))
	}

	document.Set("provenance", provenance)
	return document, nil
}

// schemaVersionOf extracts the major and minor schema version from a
// describedBy URL.
func schemaVersionOf(describedBy string) (major, minor int, ok bool) {
	match := schemaVersionPattern.FindStringSubmatch(describedBy)
	if match == nil {
		return 0, 0, false
	}
	major, _ = strconv.Atoi(match[1])
	minor, _ = strconv.Atoi(match[2])
	return major, minor, true
}

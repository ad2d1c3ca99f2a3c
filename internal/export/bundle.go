package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/biobroker/biobroker/internal/dss"
)

// ErrFileNotInBundle is reported when an update targets a file UUID the
// bundle does not contain.
type ErrFileNotInBundle struct {
	BundleUUID string
	FileUUID   string
}

func (e *ErrFileNotInBundle) Error() string {
	return fmt.Sprintf("bundle %s has no file %s", e.BundleUUID, e.FileUUID)
}

// Bundle is the in-memory view of a registered bundle: a version plus an
// ordered set of file descriptors keyed by file UUID.
type Bundle struct {
	uuid       string
	version    string
	creatorUID string
	files      map[string]dss.BundleFile
	fileOrder  []string
}

// NewBundle creates an empty bundle with the given identity and version.
func NewBundle(uuid, creatorUID, version string) *Bundle {
	return &Bundle{
		uuid:       uuid,
		version:    version,
		creatorUID: creatorUID,
		files:      make(map[string]dss.BundleFile),
	}
}

// FetchBundle loads an existing bundle from the downstream store.
func FetchBundle(ctx context.Context, store *dss.Client, uuid, creatorUID string) (*Bundle, error) {
	version, files, err := store.GetBundle(ctx, uuid)
	if err != nil {
		return nil, err
	}
	bundle := NewBundle(uuid, creatorUID, version)
	for _, file := range files {
		bundle.AddFile(file)
	}
	return bundle, nil
}

// UUID returns the bundle's UUID.
func (b *Bundle) UUID() string { return b.uuid }

// Version returns the bundle's current version.
func (b *Bundle) Version() string { return b.version }

// CreatorUID returns the creator uid recorded on store writes.
func (b *Bundle) CreatorUID() string { return b.creatorUID }

// UpdateVersion moves the bundle to a new version.
func (b *Bundle) UpdateVersion(version string) { b.version = version }

// AddFile records a file descriptor, replacing any existing descriptor for
// the same UUID while preserving its position.
func (b *Bundle) AddFile(file dss.BundleFile) {
	if _, exists := b.files[file.UUID]; !exists {
		b.fileOrder = append(b.fileOrder, file.UUID)
	}
	b.files[file.UUID] = file
}

// GetFile returns the descriptor for a file UUID.
func (b *Bundle) GetFile(fileUUID string) (dss.BundleFile, bool) {
	file, ok := b.files[fileUUID]
	return file, ok
}

// UpdateFile retags an existing file's version and content type from a
// freshly fetched metadata resource.
func (b *Bundle) UpdateFile(resource MetadataResource) error {
	file, ok := b.files[resource.UUID]
	if !ok {
		return &ErrFileNotInBundle{BundleUUID: b.uuid, FileUUID: resource.UUID}
	}
	version, err := resource.StoreVersion()
	if err != nil {
		return err
	}
	file.Version = version
	file.ContentType = resource.ContentType()
	b.files[resource.UUID] = file
	return nil
}

// Files returns the bundle's file descriptors in insertion order.
func (b *Bundle) Files() []dss.BundleFile {
	files := make([]dss.BundleFile, 0, len(b.fileOrder))
	for _, uuid := range b.fileOrder {
		files = append(files, b.files[uuid])
	}
	return files
}

// Manifest is the registry-side record of a bundle: its metadata file
// UUIDs partitioned by type, plus its data files.
type Manifest struct {
	EnvelopeUUID    string          `json:"envelopeUuid"`
	BundleUUID      string          `json:"bundleUuid"`
	BundleVersion   string          `json:"bundleVersion"`
	FileBiomaterial map[string]bool `json:"fileBiomaterialMap"`
	FileProcess     map[string]bool `json:"fileProcessMap"`
	FileProtocol    map[string]bool `json:"fileProtocolMap"`
	FileProject     map[string]bool `json:"fileProjectMap"`
	FileFiles       map[string]bool `json:"fileFilesMap"`
	DataFiles       []string        `json:"dataFiles"`
}

// GenerateManifest partitions the bundle's metadata files by their content
// type. Files whose content type is not metadata tagged are treated as data
// files. The links document belongs to no partition.
func (b *Bundle) GenerateManifest(envelopeUUID string) *Manifest {
	manifest := &Manifest{
		EnvelopeUUID:    envelopeUUID,
		BundleUUID:      b.uuid,
		BundleVersion:   b.version,
		FileBiomaterial: make(map[string]bool),
		FileProcess:     make(map[string]bool),
		FileProtocol:    make(map[string]bool),
		FileProject:     make(map[string]bool),
		FileFiles:       make(map[string]bool),
	}
	for _, uuid := range b.fileOrder {
		file := b.files[uuid]
		metadataType, isMetadata := strings.CutPrefix(contentTypeTag(file.ContentType), "metadata/")
		if !isMetadata {
			manifest.DataFiles = append(manifest.DataFiles, file.UUID)
			continue
		}
		switch metadataType {
		case "biomaterial":
			manifest.FileBiomaterial[file.UUID] = true
		case "process":
			manifest.FileProcess[file.UUID] = true
		case "protocol":
			manifest.FileProtocol[file.UUID] = true
		case "project":
			manifest.FileProject[file.UUID] = true
		case "file":
			manifest.FileFiles[file.UUID] = true
		}
	}
	return manifest
}

// contentTypeTag extracts the dcp-type parameter from a content type, or
// returns the bare media type when no tag is present.
func contentTypeTag(contentType string) string {
	if _, value, found := strings.Cut(contentType, `dcp-type="`); found {
		if tag, _, found := strings.Cut(value, `"`); found {
			return tag
		}
	}
	if _, value, found := strings.Cut(contentType, "dcp-type="); found {
		return strings.Trim(value, `;" `)
	}
	return contentType
}

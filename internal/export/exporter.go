package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/biobroker/biobroker/internal/crawler"
	"github.com/biobroker/biobroker/internal/dss"
	"github.com/biobroker/biobroker/internal/httpsession"
	"github.com/biobroker/biobroker/internal/registry"
	"github.com/biobroker/biobroker/internal/staging"
)

// Copy-verification polling defaults.
const (
	DefaultCopyPollInterval = 30 * time.Second
	DefaultCopyPollTimeout  = 20 * time.Minute
)

// ErrNoUploadAreaFound is reported when the submission has no staging area.
var ErrNoUploadAreaFound = errors.New("no upload area found for submission")

// ErrBundleAlreadyExists is reported when the bundle UUID is already
// registered in the downstream store.
var ErrBundleAlreadyExists = errors.New("bundle already exists")

// ErrCopyTimeout is reported when registered files do not finish copying
// into the store within the polling budget.
var ErrCopyTimeout = errors.New("timed out waiting for store copies")

// AreaProber is the part of the upload client the exporter needs.
type AreaProber interface {
	AreaExists(ctx context.Context, areaUUID string) (bool, error)
}

// Exporter packages one process's experiment graph into a store bundle.
type Exporter struct {
	registry   *registry.Client
	crawler    *crawler.Crawler
	staging    *staging.Service
	storage    *StorageService
	store      *dss.Client
	areas      AreaProber
	creatorUID string

	copyPollInterval time.Duration
	copyPollTimeout  time.Duration
	now              func() time.Time
	log              *zap.Logger
}

// ExporterConfig wires an Exporter's collaborators.
type ExporterConfig struct {
	Registry   *registry.Client
	Crawler    *crawler.Crawler
	Staging    *staging.Service
	Storage    *StorageService
	Store      *dss.Client
	Areas      AreaProber
	CreatorUID string

	// CopyPollInterval and CopyPollTimeout bound the file-copy
	// verification loop. Zero values use the package defaults.
	CopyPollInterval time.Duration
	CopyPollTimeout  time.Duration

	// Now supplies timestamps for bundle and links versions. Nil uses
	// time.Now.
	Now func() time.Time

	Logger *zap.Logger
}

// NewExporter creates an exporter from config.
func NewExporter(cfg ExporterConfig) *Exporter {
	if cfg.CopyPollInterval <= 0 {
		cfg.CopyPollInterval = DefaultCopyPollInterval
	}
	if cfg.CopyPollTimeout <= 0 {
		cfg.CopyPollTimeout = DefaultCopyPollTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Exporter{
		registry:         cfg.Registry,
		crawler:          cfg.Crawler,
		staging:          cfg.Staging,
		storage:          cfg.Storage,
		store:            cfg.Store,
		areas:            cfg.Areas,
		creatorUID:       cfg.CreatorUID,
		copyPollInterval: cfg.CopyPollInterval,
		copyPollTimeout:  cfg.CopyPollTimeout,
		now:              cfg.Now,
		log:              cfg.Logger,
	}
}

// registeredFile tracks one store registration pending copy verification.
type registeredFile struct {
	uuid    string
	version string
}

// ExportBundle crawls the graph seeded by processUUID and registers a new
// bundle for it. The bundle UUID is the caller's choice; re-registering an
// existing UUID surfaces ErrBundleAlreadyExists.
func (e *Exporter) ExportBundle(ctx context.Context, envelopeUUID, processUUID, bundleUUID string) (*Manifest, error) {
	envelope, err := e.registry.FindByUUID(ctx, "submissionEnvelopes", envelopeUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch submission %s: %w", envelopeUUID, err)
	}
	areaUUID, err := e.stagingArea(ctx, envelope)
	if err != nil {
		return nil, err
	}

	graph, err := e.buildGraph(ctx, envelope, processUUID)
	if err != nil {
		return nil, err
	}

	resources, err := e.metadataResources(graph)
	if err != nil {
		return nil, err
	}
	links := LinksResource(graph.Links(), e.now())
	resources = append(resources, links)

	bundle := NewBundle(bundleUUID, e.creatorUID, "")
	var pending []registeredFile

	for _, resource := range resources {
		version, err := resource.StoreVersion()
		if err != nil {
			return nil, err
		}
		if err := e.storeMetadata(ctx, envelope, areaUUID, resource, version); err != nil {
			return nil, err
		}
		bundle.AddFile(dss.BundleFile{
			Name:        resource.FileName(),
			UUID:        resource.UUID,
			Version:     version,
			ContentType: resource.ContentType(),
			Indexed:     true,
		})
		pending = append(pending, registeredFile{uuid: resource.UUID, version: version})
	}

	dataFiles, err := e.storeDataFiles(ctx, envelope, graph)
	if err != nil {
		return nil, err
	}
	for _, file := range dataFiles {
		bundle.AddFile(file)
		pending = append(pending, registeredFile{uuid: file.UUID, version: file.Version})
	}

	if err := e.awaitCopies(ctx, pending); err != nil {
		e.recordFailure(ctx, envelope, "FileDSSError", "store copy verification failed", err)
		return nil, err
	}

	bundle.UpdateVersion(dss.NewVersion(e.now()))
	if err := e.registerBundle(ctx, envelope, bundle); err != nil {
		return nil, err
	}

	manifest := bundle.GenerateManifest(envelopeUUID)
	if err := e.persistManifest(ctx, envelope, manifest); err != nil {
		return nil, err
	}
	e.log.Info("exported bundle",
		zap.String("bundle_uuid", bundleUUID),
		zap.String("bundle_version", bundle.Version()),
		zap.Int("files", len(bundle.Files())))
	return manifest, nil
}

// UpdateBundle re-stages updated metadata documents into an existing bundle
// and registers it under a new version.
func (e *Exporter) UpdateBundle(ctx context.Context, envelopeUUID, bundleUUID string, metadataURLs []string) (*Manifest, error) {
	envelope, err := e.registry.FindByUUID(ctx, "submissionEnvelopes", envelopeUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch submission %s: %w", envelopeUUID, err)
	}
	areaUUID, err := e.stagingArea(ctx, envelope)
	if err != nil {
		return nil, err
	}

	bundle, err := FetchBundle(ctx, e.store, bundleUUID, e.creatorUID)
	if err != nil {
		return nil, err
	}

	var pending []registeredFile
	for _, metadataURL := range metadataURLs {
		updated, err := e.registry.Get(ctx, metadataURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch updated metadata %s: %w", metadataURL, err)
		}
		resource, err := NewMetadataResource(crawler.MetadataType(updated), updated)
		if err != nil {
			return nil, err
		}
		version, err := resource.StoreVersion()
		if err != nil {
			return nil, err
		}
		if err := e.storeMetadata(ctx, envelope, areaUUID, resource, version); err != nil {
			return nil, err
		}
		if err := bundle.UpdateFile(resource); err != nil {
			return nil, err
		}
		pending = append(pending, registeredFile{uuid: resource.UUID, version: version})
	}

	if err := e.awaitCopies(ctx, pending); err != nil {
		e.recordFailure(ctx, envelope, "FileDSSError", "store copy verification failed", err)
		return nil, err
	}

	bundle.UpdateVersion(dss.NewVersion(e.now()))
	if err := e.registerBundle(ctx, envelope, bundle); err != nil {
		return nil, err
	}

	manifest := bundle.GenerateManifest(envelopeUUID)
	if err := e.persistManifest(ctx, envelope, manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

// stagingArea resolves the submission's staging area UUID, requiring the
// upload area to exist.
func (e *Exporter) stagingArea(ctx context.Context, envelope *registry.Resource) (string, error) {
	areaUUID, ok := envelope.Content().GetPath("stagingDetails.stagingAreaUuid.uuid")
	if !ok {
		areaUUID, ok = envelope.Content().GetPath("stagingDetails.stagingAreaUuid")
	}
	uuidString, isString := areaUUID.(string)
	if !ok || !isString || uuidString == "" {
		return "", ErrNoUploadAreaFound
	}
	exists, err := e.areas.AreaExists(ctx, uuidString)
	if err != nil {
		return "", fmt.Errorf("failed to probe upload area %s: %w", uuidString, err)
	}
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrNoUploadAreaFound, uuidString)
	}
	return uuidString, nil
}

// buildGraph crawls from the seed process and attaches the submission's
// project as a dangling node.
func (e *Exporter) buildGraph(ctx context.Context, envelope *registry.Resource, processUUID string) (*crawler.ExperimentGraph, error) {
	seed, err := e.registry.FindByUUID(ctx, "processes", processUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch process %s: %w", processUUID, err)
	}
	graph, err := e.crawler.Crawl(ctx, seed)
	if err != nil {
		return nil, err
	}

	projects, err := e.registry.Related(ctx, envelope, "projects", "projects")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch submission project: %w", err)
	}
	if len(projects) != 1 {
		return nil, fmt.Errorf("submission has %d projects, expected exactly one", len(projects))
	}
	graph.AddNode(projects[0])
	return graph, nil
}

// metadataResources converts graph nodes into exportable documents.
func (e *Exporter) metadataResources(graph *crawler.ExperimentGraph) ([]MetadataResource, error) {
	nodes := graph.Nodes()
	resources := make([]MetadataResource, 0, len(nodes))
	for _, node := range nodes {
		resource, err := NewMetadataResource(node.MetadataType, node.Resource)
		if err != nil {
			return nil, err
		}
		// Provenance is injected into a copy of the node's content.
		document, err := DocumentWithProvenance(resource, node.Resource.SubmissionDate(), node.Resource.UpdateDate())
		if err != nil {
			return nil, err
		}
		resource.Content = document
		resources = append(resources, resource)
	}
	return resources, nil
}

// storeMetadata stages one metadata document and registers it in the
// store, under its storage job lock.
func (e *Exporter) storeMetadata(ctx context.Context, envelope *registry.Resource, areaUUID string, resource MetadataResource, storeVersion string) error {
	job := StorageJob{
		MetadataUUID: resource.UUID,
		DCPVersion:   resource.DCPVersion,
		EntityType:   resource.MetadataType,
	}
	err := e.storage.WithLock(ctx, job, func(ctx context.Context) error {
		document, err := json.Marshal(resource.Content)
		if err != nil {
			return fmt.Errorf("failed to encode %s document: %w", resource.MetadataType, err)
		}
		cloudURL, err := e.staging.StageMetadata(ctx, areaUUID, resource.MetadataType, resource.UUID, document)
		if err != nil {
			return fmt.Errorf("failed to stage %s: %w", resource.FileName(), err)
		}
		if err := e.store.PutFile(ctx, resource.UUID, storeVersion, cloudURL, e.creatorUID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		e.recordFailure(ctx, envelope, "BundleFileUploadError", "failed to store metadata file "+resource.FileName(), err)
		return err
	}
	return nil
}

// storeDataFiles registers the cloud copies of every data file described by
// the graph's file metadata. No storage-job lock is taken here: data files
// are already staged, and a concurrent put of the same (uuid, version) from
// the same cloudUrl writes the same content.
func (e *Exporter) storeDataFiles(ctx context.Context, envelope *registry.Resource, graph *crawler.ExperimentGraph) ([]dss.BundleFile, error) {
	var files []dss.BundleFile
	for _, node := range graph.NodesOfType("file") {
		doc := node.Resource.Raw()
		cloudURL, _ := doc.GetString("cloudUrl")
		if cloudURL == "" {
			return nil, fmt.Errorf("file %s has no cloudUrl", node.UUID)
		}
		dataFileUUID, _ := doc.GetString("dataFileUuid")
		if dataFileUUID == "" {
			return nil, fmt.Errorf("file %s has no dataFileUuid", node.UUID)
		}
		version, err := dss.ToStoreVersion(node.Resource.DCPVersion())
		if err != nil {
			return nil, err
		}
		if err := e.store.PutFile(ctx, dataFileUUID, version, cloudURL, e.creatorUID); err != nil {
			e.recordFailure(ctx, envelope, "FileDSSError", "failed to store data file "+dataFileUUID, err)
			return nil, err
		}
		name, _ := node.Resource.Content().GetPath("file_core.file_name")
		fileName, _ := name.(string)
		files = append(files, dss.BundleFile{
			Name:        fileName,
			UUID:        dataFileUUID,
			Version:     version,
			ContentType: "data",
			Indexed:     false,
		})
	}
	return files, nil
}

// awaitCopies polls the store until every registered file has finished
// copying.
func (e *Exporter) awaitCopies(ctx context.Context, files []registeredFile) error {
	deadline := e.now().Add(e.copyPollTimeout)
	remaining := append([]registeredFile(nil), files...)
	for len(remaining) > 0 {
		var unconfirmed []registeredFile
		for _, file := range remaining {
			exists, err := e.store.FileExists(ctx, file.uuid, file.version)
			if err != nil {
				return err
			}
			if !exists {
				unconfirmed = append(unconfirmed, file)
			}
		}
		remaining = unconfirmed
		if len(remaining) == 0 {
			return nil
		}
		if e.now().After(deadline) {
			return fmt.Errorf("%w: %d files still copying", ErrCopyTimeout, len(remaining))
		}
		e.log.Debug("waiting for store copies", zap.Int("remaining", len(remaining)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.copyPollInterval):
		}
	}
	return nil
}

// registerBundle writes the bundle to the store. An already-registered
// bundle UUID surfaces as ErrBundleAlreadyExists, never wrapped.
func (e *Exporter) registerBundle(ctx context.Context, envelope *registry.Resource, bundle *Bundle) error {
	err := e.store.PutBundle(ctx, bundle.UUID(), bundle.Version(), bundle.CreatorUID(), bundle.Files())
	if httpsession.IsConflict(err) {
		return ErrBundleAlreadyExists
	}
	if err != nil {
		e.recordFailure(ctx, envelope, "BundleDSSError", "failed to register bundle "+bundle.UUID(), err)
		return fmt.Errorf("failed to register bundle %s: %w", bundle.UUID(), err)
	}
	return nil
}

// persistManifest stores the bundle manifest in the registry.
func (e *Exporter) persistManifest(ctx context.Context, envelope *registry.Resource, manifest *Manifest) error {
	manifestsURL, err := e.registry.SubmissionLink(ctx, envelope.SelfURL(), "bundleManifests")
	if err != nil {
		manifestsURL, err = e.registry.RootLink(ctx, "bundleManifests")
		if err != nil {
			return fmt.Errorf("failed to resolve bundleManifests link: %w", err)
		}
	}
	if _, err := e.registry.Post(ctx, manifestsURL, manifest); err != nil {
		return fmt.Errorf("failed to persist bundle manifest: %w", err)
	}
	return nil
}

// recordFailure attaches a structured error to the submission envelope.
// Recording is best effort and never masks the original error.
func (e *Exporter) recordFailure(ctx context.Context, envelope *registry.Resource, errType, title string, cause error) {
	e.registry.RecordError(ctx, envelope.SelfURL(), registry.SubmissionError{
		Type:   errType,
		Title:  title,
		Detail: cause.Error(),
	})
}

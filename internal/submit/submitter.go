// Package submit drives ordered entity creation and linking against the
// registry for one submission envelope.
package submit

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/biobroker/biobroker/internal/graph"
	"github.com/biobroker/biobroker/internal/httpsession"
	"github.com/biobroker/biobroker/internal/jsondoc"
	"github.com/biobroker/biobroker/internal/registry"
)

// endpointRels maps a domain type to its submission-scoped endpoint relation
var endpointRels = map[string]string{
	"project":     "projects",
	"protocol":    "protocols",
	"biomaterial": "biomaterials",
	"file":        "files",
	"process":     "processes",
}

// creationOrder respects link dependencies: the project first, then leaves,
// then the processes that connect them. Links are issued only after every
// entity exists.
var creationOrder = []string{"project", "protocol", "biomaterial", "file", "process"}

// Submitter creates entities and links in the registry
type Submitter struct {
	client *registry.Client
	log    *zap.Logger
}

// New creates a submitter
func New(client *registry.Client, log *zap.Logger) *Submitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Submitter{client: client, log: log}
}

// Submit records the expected-counts manifest, creates every non-reference
// entity in dependency order, resolves references, and issues the direct
// links.
func (s *Submitter) Submit(ctx context.Context, submissionURL string, entities *graph.EntityMap, links []graph.DirectLink) error {
	if err := s.client.RecordExpectedCounts(ctx, submissionURL, expectedCounts(entities)); err != nil {
		return fmt.Errorf("failed to record expected counts: %w", err)
	}

	for _, domain := range creationOrder {
		for _, entity := range entities.OfDomain(domain) {
			if entity.IsReference {
				if err := s.resolveReference(ctx, entity); err != nil {
					return err
				}
				continue
			}
			if err := s.createEntity(ctx, submissionURL, entity); err != nil {
				return err
			}
		}
	}

	for _, link := range links {
		if err := s.createLink(ctx, entities, link); err != nil {
			return err
		}
	}

	s.log.Info("submission complete",
		zap.String("submission", submissionURL),
		zap.Int("entities", entities.Count()),
		zap.Int("links", len(links)))
	return nil
}

// createEntity creates one entity and replaces its in-memory state with the
// registry-assigned resource.
func (s *Submitter) createEntity(ctx context.Context, submissionURL string, entity *graph.Entity) error {
	var resource *registry.Resource
	var err error

	if entity.DomainType == "file" {
		resource, err = s.createFile(ctx, submissionURL, entity)
	} else {
		resource, err = s.client.CreateEntity(ctx, submissionURL, endpointRels[entity.DomainType], entity.Content)
	}
	if err != nil {
		return fmt.Errorf("failed to create %s %q: %w", entity.DomainType, entity.ObjectID, err)
	}

	entity.RegistryURL = resource.SelfURL()
	entity.RegistryUUID = resource.UUID()
	entity.Content = resource.Content()
	s.log.Debug("created entity",
		zap.String("domain_type", entity.DomainType),
		zap.String("object_id", entity.ObjectID),
		zap.String("uuid", entity.RegistryUUID))
	return nil
}

// createFile creates a file entity via the filename-keyed endpoint. On
// conflict the existing file is fetched and patched with merged content:
// existing fields preserved, new fields overlaid.
func (s *Submitter) createFile(ctx context.Context, submissionURL string, entity *graph.Entity) (*registry.Resource, error) {
	name := fileName(entity)
	resource, err := s.client.CreateFile(ctx, submissionURL, name, entity.Content)
	if err == nil {
		return resource, nil
	}
	if !httpsession.IsConflict(err) {
		return nil, err
	}

	s.log.Debug("file already exists, merging", zap.String("file_name", name))
	existing, findErr := s.findFile(ctx, submissionURL, name)
	if findErr != nil {
		return nil, fmt.Errorf("file %q conflicted but could not be fetched: %w", name, findErr)
	}

	merged := existing.Content().Clone()
	for _, key := range entity.Content.Keys() {
		value, _ := entity.Content.Get(key)
		merged.Set(key, value)
	}
	body := jsondoc.New()
	body.Set("content", merged)
	return s.client.Patch(ctx, existing.SelfURL(), body, "")
}

// findFile locates a submission's file entity by file name
func (s *Submitter) findFile(ctx context.Context, submissionURL, name string) (*registry.Resource, error) {
	envelope, err := s.client.Get(ctx, submissionURL)
	if err != nil {
		return nil, err
	}
	files, err := s.client.Related(ctx, envelope, "files", "files")
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		if candidate, ok := file.Content().GetPath("file_core.file_name"); ok && candidate == name {
			return file, nil
		}
	}
	return nil, fmt.Errorf("no file named %q in submission", name)
}

// resolveReference resolves a pre-existing entity's registry URL by UUID
func (s *Submitter) resolveReference(ctx context.Context, entity *graph.Entity) error {
	resource, err := s.client.FindByUUID(ctx, endpointRels[entity.DomainType], entity.RegistryUUID)
	if err != nil {
		return fmt.Errorf("failed to resolve %s reference %s: %w",
			entity.DomainType, entity.RegistryUUID, err)
	}
	entity.RegistryURL = resource.SelfURL()
	entity.Content = resource.Content()
	return nil
}

// createLink issues one relationship between two created entities
func (s *Submitter) createLink(ctx context.Context, entities *graph.EntityMap, link graph.DirectLink) error {
	source, ok := entities.Get(link.SourceType, link.SourceID)
	if !ok {
		return &graph.LinkedEntityNotFoundError{DomainType: link.SourceType, ObjectID: link.SourceID}
	}
	target, ok := entities.Get(link.TargetType, link.TargetID)
	if !ok {
		return &graph.LinkedEntityNotFoundError{DomainType: link.TargetType, ObjectID: link.TargetID}
	}
	if source.RegistryURL == "" || target.RegistryURL == "" {
		return fmt.Errorf("link %s issued before both endpoints were created", link)
	}
	return s.client.CreateLink(ctx, source.RegistryURL, link.Relationship, target.RegistryURL)
}

// expectedCounts derives the manifest from the entities to be created
func expectedCounts(entities *graph.EntityMap) registry.ExpectedCounts {
	counts := registry.ExpectedCounts{}
	for _, entity := range entities.NonReferences() {
		switch entity.DomainType {
		case "biomaterial":
			counts.ExpectedBiomaterials++
		case "process":
			counts.ExpectedProcesses++
		case "file":
			counts.ExpectedFiles++
		case "protocol":
			counts.ExpectedProtocols++
		case "project":
			counts.ExpectedProjects++
		}
		counts.TotalCount++
	}
	return counts
}

// fileName returns the identifying file name of a file entity
func fileName(entity *graph.Entity) string {
	if name, ok := entity.Content.GetPath("file_core.file_name"); ok {
		if s, ok := name.(string); ok && s != "" {
			return s
		}
	}
	return entity.ObjectID
}

package staging

import (
	"context"
	"fmt"
	"net/url"

	"github.com/biobroker/biobroker/internal/httpsession"
	"github.com/biobroker/biobroker/internal/registry"
)

// RegistryRepository persists staging records as stagingJobs resources in
// the registry. The registry's uniqueness constraint on (area, file name)
// turns Save into a create-or-conflict lock.
type RegistryRepository struct {
	client *registry.Client
}

// NewRegistryRepository creates a repository backed by the registry.
func NewRegistryRepository(client *registry.Client) *RegistryRepository {
	return &RegistryRepository{client: client}
}

// Save creates a stagingJobs resource, failing with ErrFileDuplication when
// the registry reports a conflict.
func (r *RegistryRepository) Save(ctx context.Context, info Info) error {
	jobsURL, err := r.client.RootLink(ctx, "stagingJobs")
	if err != nil {
		return fmt.Errorf("failed to resolve stagingJobs link: %w", err)
	}
	_, err = r.client.Post(ctx, jobsURL, map[string]string{
		"stagingAreaUuid":     info.StagingAreaUUID,
		"stagingAreaFileName": info.FileName,
		"metadataUuid":        info.MetadataUUID,
	})
	if httpsession.IsConflict(err) {
		return &FileDuplicationError{StagingAreaUUID: info.StagingAreaUUID, FileName: info.FileName}
	}
	if err != nil {
		return fmt.Errorf("failed to create staging job: %w", err)
	}
	return nil
}

// FindOne looks up the staging job for a key, or ErrNotFound.
func (r *RegistryRepository) FindOne(ctx context.Context, stagingAreaUUID, fileName string) (Info, error) {
	resource, err := r.find(ctx, stagingAreaUUID, fileName)
	if err != nil {
		return Info{}, err
	}
	info := Info{
		StagingAreaUUID: stagingAreaUUID,
		FileName:        fileName,
	}
	if v, ok := resource.Content().GetString("metadataUuid"); ok {
		info.MetadataUUID = v
	}
	if v, ok := resource.Content().GetString("cloudUrl"); ok {
		info.CloudURL = v
	}
	return info, nil
}

// Update patches the staging job's cloud URL.
func (r *RegistryRepository) Update(ctx context.Context, info Info) error {
	resource, err := r.find(ctx, info.StagingAreaUUID, info.FileName)
	if err != nil {
		return err
	}
	if _, err := r.client.Patch(ctx, resource.SelfURL(), map[string]string{"cloudUrl": info.CloudURL}, ""); err != nil {
		return fmt.Errorf("failed to update staging job: %w", err)
	}
	return nil
}

// Delete removes the staging job, releasing its key.
func (r *RegistryRepository) Delete(ctx context.Context, info Info) error {
	resource, err := r.find(ctx, info.StagingAreaUUID, info.FileName)
	if err != nil {
		return err
	}
	if err := r.client.Delete(ctx, resource.SelfURL()); err != nil {
		return fmt.Errorf("failed to delete staging job: %w", err)
	}
	return nil
}

func (r *RegistryRepository) find(ctx context.Context, stagingAreaUUID, fileName string) (*registry.Resource, error) {
	jobsURL, err := r.client.RootLink(ctx, "stagingJobs")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve stagingJobs link: %w", err)
	}
	searchURL := fmt.Sprintf("%s/search/findByStagingAreaUuidAndStagingAreaFileName?stagingAreaUuid=%s&fileName=%s",
		jobsURL, url.QueryEscape(stagingAreaUUID), url.QueryEscape(fileName))
	resource, err := r.client.Get(ctx, searchURL)
	if httpsession.IsStatus(err, 404) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up staging job: %w", err)
	}
	return resource, nil
}

package export

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/biobroker/biobroker/internal/httpsession"
	"github.com/biobroker/biobroker/internal/registry"
)

// Storage lock tuning.
const (
	DefaultJobPollInterval = 1500 * time.Millisecond
	DefaultJobPollAttempts = 5
	DefaultJobAcquireTries = 3
)

// ErrStorageFailed is reported when a storage lock could not be acquired
// within its retry budget.
var ErrStorageFailed = errors.New("failed to acquire storage job")

// StorageJob identifies one (metadata uuid, version) registration.
type StorageJob struct {
	MetadataUUID string
	DCPVersion   string
	EntityType   string
}

// StorageService serializes metadata registrations across workers through
// storageJobs lock records in the registry. At most one worker registers a
// given (metadata uuid, version); the others wait for it to finish.
type StorageService struct {
	client       *registry.Client
	pollInterval time.Duration
	pollAttempts int
	acquireTries int
	log          *zap.Logger
}

// NewStorageService creates a storage service. Zero tuning values fall back
// to the package defaults.
func NewStorageService(client *registry.Client, pollInterval time.Duration, pollAttempts, acquireTries int, log *zap.Logger) *StorageService {
	if pollInterval <= 0 {
		pollInterval = DefaultJobPollInterval
	}
	if pollAttempts <= 0 {
		pollAttempts = DefaultJobPollAttempts
	}
	if acquireTries <= 0 {
		acquireTries = DefaultJobAcquireTries
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &StorageService{
		client:       client,
		pollInterval: pollInterval,
		pollAttempts: pollAttempts,
		acquireTries: acquireTries,
		log:          log,
	}
}

// WithLock runs work inside a storage job for the given metadata document.
// When another worker holds the job, the call waits for that worker to
// complete and skips the work. The job is marked complete only when work
// returns nil.
func (s *StorageService) WithLock(ctx context.Context, job StorageJob, work func(context.Context) error) error {
	for attempt := 0; attempt < s.acquireTries; attempt++ {
		jobURL, err := s.create(ctx, job)
		if err == nil {
			if workErr := work(ctx); workErr != nil {
				// The job stays incomplete so a later run can observe the
				// failure and retry the registration.
				return workErr
			}
			return s.complete(ctx, jobURL)
		}
		if !httpsession.IsConflict(err) {
			return fmt.Errorf("failed to create storage job for %s: %w", job.MetadataUUID, err)
		}

		s.log.Debug("storage job held by another worker",
			zap.String("metadata_uuid", job.MetadataUUID),
			zap.String("dcp_version", job.DCPVersion))
		completed, existingURL, err := s.awaitCompletion(ctx, job)
		if err != nil {
			return err
		}
		if completed {
			return nil
		}
		// The holder appears stuck. Clear its job and retry acquisition.
		if existingURL != "" {
			if err := s.client.Delete(ctx, existingURL); err != nil {
				s.log.Warn("failed to delete stale storage job",
					zap.String("metadata_uuid", job.MetadataUUID),
					zap.Error(err))
			}
		}
	}
	return fmt.Errorf("%w: %s version %s", ErrStorageFailed, job.MetadataUUID, job.DCPVersion)
}

// create posts a new storage job and returns its URL. A conflict surfaces
// as the underlying httpsession error.
func (s *StorageService) create(ctx context.Context, job StorageJob) (string, error) {
	jobsURL, err := s.client.RootLink(ctx, "storageJobs")
	if err != nil {
		return "", fmt.Errorf("failed to resolve storageJobs link: %w", err)
	}
	resource, err := s.client.Post(ctx, jobsURL, map[string]string{
		"metadataUuid":       job.MetadataUUID,
		"metadataDcpVersion": job.DCPVersion,
		"entityType":         job.EntityType,
	})
	if err != nil {
		return "", err
	}
	return resource.SelfURL(), nil
}

// complete marks the job finished.
func (s *StorageService) complete(ctx context.Context, jobURL string) error {
	if _, err := s.client.Patch(ctx, jobURL, map[string]bool{"isCompleted": true}, ""); err != nil {
		return fmt.Errorf("failed to complete storage job: %w", err)
	}
	return nil
}

// awaitCompletion polls the existing job for the same key until it reports
// completion or the polling budget runs out. It returns the existing job's
// URL so a stuck job can be deleted.
func (s *StorageService) awaitCompletion(ctx context.Context, job StorageJob) (completed bool, jobURL string, err error) {
	for attempt := 0; attempt < s.pollAttempts; attempt++ {
		existing, err := s.find(ctx, job)
		if err != nil && !errors.Is(err, errJobNotFound) {
			return false, "", err
		}
		if err == nil {
			jobURL = existing.SelfURL()
			if isCompleted, _ := existing.Content().Get("isCompleted"); isCompleted == true {
				return true, jobURL, nil
			}
		}

		select {
		case <-ctx.Done():
			return false, jobURL, ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
	return false, jobURL, nil
}

var errJobNotFound = errors.New("storage job not found")

func (s *StorageService) find(ctx context.Context, job StorageJob) (*registry.Resource, error) {
	jobsURL, err := s.client.RootLink(ctx, "storageJobs")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storageJobs link: %w", err)
	}
	searchURL := fmt.Sprintf("%s/search/findByMetadataUuidAndMetadataDcpVersion?metadataUuid=%s&metadataDcpVersion=%s",
		jobsURL, url.QueryEscape(job.MetadataUUID), url.QueryEscape(job.DCPVersion))
	resource, err := s.client.Get(ctx, searchURL)
	if httpsession.IsStatus(err, 404) {
		return nil, errJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up storage job: %w", err)
	}
	return resource, nil
}

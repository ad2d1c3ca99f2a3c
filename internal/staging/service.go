package staging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/biobroker/biobroker/internal/upload"
)

// Default polling settings for waiting out another worker's upload.
const (
	DefaultWaitInterval = 250 * time.Millisecond
	DefaultWaitAttempts = 5
)

// ErrFileUpload is reported when the upload service fails after the staging
// record was claimed. The claim is released before the error is returned.
var ErrFileUpload = errors.New("failed to upload staged file")

// ErrStagingTimeout is reported when another worker's upload does not
// complete within the polling budget.
var ErrStagingTimeout = errors.New("timed out waiting for staged file")

// Uploader is the part of the upload client the staging service needs.
type Uploader interface {
	StoreMetadata(ctx context.Context, areaUUID, fileName, metadataType string, content []byte) (*upload.FileDescription, error)
}

// Service stages metadata files exactly once per (area, file name) pair.
// Concurrent workers racing to stage the same file coordinate through the
// repository: the winner uploads, the losers wait for its cloud URL.
type Service struct {
	repository   InfoRepository
	uploader     Uploader
	waitInterval time.Duration
	waitAttempts int
	log          *zap.Logger
}

// NewService creates a staging service. Zero wait settings fall back to the
// package defaults.
func NewService(repository InfoRepository, uploader Uploader, waitInterval time.Duration, waitAttempts int, log *zap.Logger) *Service {
	if waitInterval <= 0 {
		waitInterval = DefaultWaitInterval
	}
	if waitAttempts <= 0 {
		waitAttempts = DefaultWaitAttempts
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repository:   repository,
		uploader:     uploader,
		waitInterval: waitInterval,
		waitAttempts: waitAttempts,
		log:          log,
	}
}

// FileName derives the staged file name for a metadata document.
func FileName(metadataType, metadataUUID string) string {
	return fmt.Sprintf("%s_%s.json", metadataType, metadataUUID)
}

// StageMetadata uploads a metadata document into the staging area and
// returns its cloud URL. When another worker already claimed the file, the
// call waits for that worker's upload to finish and returns its URL.
func (s *Service) StageMetadata(ctx context.Context, areaUUID, metadataType, metadataUUID string, content []byte) (string, error) {
	fileName := FileName(metadataType, metadataUUID)
	claim := Info{
		StagingAreaUUID: areaUUID,
		FileName:        fileName,
		MetadataUUID:    metadataUUID,
	}

	err := s.repository.Save(ctx, claim)
	if errors.Is(err, ErrFileDuplication) {
		s.log.Debug("file already claimed, waiting for upload",
			zap.String("staging_area", areaUUID),
			zap.String("file_name", fileName))
		return s.awaitCloudURL(ctx, areaUUID, fileName)
	}
	if err != nil {
		return "", fmt.Errorf("failed to claim staging record for %s: %w", fileName, err)
	}

	description, err := s.uploader.StoreMetadata(ctx, areaUUID, fileName, metadataType, content)
	if err != nil {
		// Release the claim so a retry or another worker can stage the file.
		if deleteErr := s.repository.Delete(ctx, claim); deleteErr != nil {
			s.log.Warn("failed to release staging claim after upload failure",
				zap.String("file_name", fileName),
				zap.Error(deleteErr))
		}
		return "", fmt.Errorf("%w: %s: %v", ErrFileUpload, fileName, err)
	}

	claim.CloudURL = description.URL
	if err := s.repository.Update(ctx, claim); err != nil {
		return "", fmt.Errorf("failed to record cloud URL for %s: %w", fileName, err)
	}
	s.log.Debug("staged metadata file",
		zap.String("staging_area", areaUUID),
		zap.String("file_name", fileName),
		zap.String("cloud_url", description.URL))
	return description.URL, nil
}

// awaitCloudURL polls the repository until the claiming worker records a
// cloud URL or the polling budget runs out.
func (s *Service) awaitCloudURL(ctx context.Context, areaUUID, fileName string) (string, error) {
	for attempt := 0; attempt < s.waitAttempts; attempt++ {
		info, err := s.repository.FindOne(ctx, areaUUID, fileName)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("failed to poll staging record for %s: %w", fileName, err)
		}
		if err == nil && info.CloudURL != "" {
			return info.CloudURL, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.waitInterval):
		}
	}
	return "", fmt.Errorf("%w: %s in area %s", ErrStagingTimeout, fileName, areaUUID)
}

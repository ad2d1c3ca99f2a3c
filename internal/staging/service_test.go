package staging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biobroker/biobroker/internal/upload"
)

type fakeUploader struct {
	mu    sync.Mutex
	calls []string
	fail  error
}

func (f *fakeUploader) StoreMetadata(ctx context.Context, areaUUID, fileName, metadataType string, content []byte) (*upload.FileDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fileName)
	if f.fail != nil {
		return nil, f.fail
	}
	return &upload.FileDescription{
		Name: fileName,
		URL:  "s3://staging/" + areaUUID + "/" + fileName,
	}, nil
}

func (f *fakeUploader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

const (
	testAreaUUID     = "11111111-0000-4000-8000-000000000001"
	testMetadataUUID = "aa000000-0000-4000-8000-000000000002"
)

func TestFileName(t *testing.T) {
	assert.Equal(t, "biomaterial_"+testMetadataUUID+".json", FileName("biomaterial", testMetadataUUID))
}

func TestStageMetadataUploadsOnce(t *testing.T) {
	repository := NewMemoryRepository()
	uploader := &fakeUploader{}
	service := NewService(repository, uploader, time.Millisecond, 3, nil)

	cloudURL, err := service.StageMetadata(context.Background(),
		testAreaUUID, "biomaterial", testMetadataUUID, []byte(`{"is_living": true}`))
	require.NoError(t, err)

	fileName := FileName("biomaterial", testMetadataUUID)
	assert.Equal(t, "s3://staging/"+testAreaUUID+"/"+fileName, cloudURL)
	assert.Equal(t, []string{fileName}, uploader.calls)

	info, err := repository.FindOne(context.Background(), testAreaUUID, fileName)
	require.NoError(t, err)
	assert.Equal(t, cloudURL, info.CloudURL)
	assert.Equal(t, testMetadataUUID, info.MetadataUUID)
}

func TestStageMetadataWaitsForClaimingWorker(t *testing.T) {
	repository := NewMemoryRepository()
	uploader := &fakeUploader{}
	service := NewService(repository, uploader, 5*time.Millisecond, 20, nil)

	ctx := context.Background()
	fileName := FileName("biomaterial", testMetadataUUID)
	claim := Info{StagingAreaUUID: testAreaUUID, FileName: fileName, MetadataUUID: testMetadataUUID}
	require.NoError(t, repository.Save(ctx, claim))

	go func() {
		time.Sleep(15 * time.Millisecond)
		claim.CloudURL = "s3://staging/winner"
		repository.Update(ctx, claim)
	}()

	cloudURL, err := service.StageMetadata(ctx, testAreaUUID, "biomaterial", testMetadataUUID, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "s3://staging/winner", cloudURL)
	// The losing worker never uploads.
	assert.Equal(t, 0, uploader.callCount())
}

func TestStageMetadataTimesOutWaiting(t *testing.T) {
	repository := NewMemoryRepository()
	service := NewService(repository, &fakeUploader{}, time.Millisecond, 2, nil)

	ctx := context.Background()
	fileName := FileName("biomaterial", testMetadataUUID)
	require.NoError(t, repository.Save(ctx, Info{
		StagingAreaUUID: testAreaUUID,
		FileName:        fileName,
		MetadataUUID:    testMetadataUUID,
	}))

	_, err := service.StageMetadata(ctx, testAreaUUID, "biomaterial", testMetadataUUID, []byte(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStagingTimeout)
}

func TestStageMetadataReleasesClaimOnUploadFailure(t *testing.T) {
	repository := NewMemoryRepository()
	uploader := &fakeUploader{fail: errors.New("service unavailable")}
	service := NewService(repository, uploader, time.Millisecond, 2, nil)

	ctx := context.Background()
	_, err := service.StageMetadata(ctx, testAreaUUID, "biomaterial", testMetadataUUID, []byte(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFileUpload)

	// The claim is gone, so a retry can stage the file.
	fileName := FileName("biomaterial", testMetadataUUID)
	_, err = repository.FindOne(ctx, testAreaUUID, fileName)
	assert.ErrorIs(t, err, ErrNotFound)

	uploader.fail = nil
	cloudURL, err := service.StageMetadata(ctx, testAreaUUID, "biomaterial", testMetadataUUID, []byte(`{}`))
	require.NoError(t, err)
	assert.NotEmpty(t, cloudURL)
}

package staging

import (
	"context"
	"errors"
	"fmt"
)

// ErrFileDuplication is reported by Save when another worker already holds
// the staging record for the same (staging area, file name) pair.
var ErrFileDuplication = errors.New("staging info already exists")

// ErrNotFound is reported by FindOne and Update when no record exists.
var ErrNotFound = errors.New("staging info not found")

// Info is a staging record. A record with an empty CloudURL is a claim:
// the file is being uploaded but is not yet addressable.
type Info struct {
	StagingAreaUUID string `json:"stagingAreaUuid"`
	FileName        string `json:"fileName"`
	MetadataUUID    string `json:"metadataUuid"`
	CloudURL        string `json:"cloudUrl"`
}

func (i Info) key() string {
	return i.StagingAreaUUID + "/" + i.FileName
}

// FileDuplicationError decorates ErrFileDuplication with the contested key.
type FileDuplicationError struct {
	StagingAreaUUID string
	FileName        string
}

func (e *FileDuplicationError) Error() string {
	return fmt.Sprintf("file %s already staged in area %s", e.FileName, e.StagingAreaUUID)
}

func (e *FileDuplicationError) Unwrap() error { return ErrFileDuplication }

// InfoRepository persists staging records. Save is the lock primitive:
// a successful Save grants ownership of the record, and a second Save for
// the same key fails with ErrFileDuplication.
type InfoRepository interface {
	// Save atomically claims the record's key and stores it.
	Save(ctx context.Context, info Info) error

	// FindOne returns the record for a key, or ErrNotFound.
	FindOne(ctx context.Context, stagingAreaUUID, fileName string) (Info, error)

	// Update overwrites an existing record.
	Update(ctx context.Context, info Info) error

	// Delete releases a record, freeing its key for a fresh Save.
	Delete(ctx context.Context, info Info) error
}

package staging

import (
	"context"
	"sync"
)

// MemoryRepository keeps staging records in process memory. It is suitable
// for single-process runs and for tests.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[string]Info
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]Info)}
}

// Save claims the record's key, failing when it is already held.
func (r *MemoryRepository) Save(ctx context.Context, info Info) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[info.key()]; exists {
		return &FileDuplicationError{StagingAreaUUID: info.StagingAreaUUID, FileName: info.FileName}
	}
	r.records[info.key()] = info
	return nil
}

// FindOne returns the record for a key, or ErrNotFound.
func (r *MemoryRepository) FindOne(ctx context.Context, stagingAreaUUID, fileName string) (Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, exists := r.records[Info{StagingAreaUUID: stagingAreaUUID, FileName: fileName}.key()]
	if !exists {
		return Info{}, ErrNotFound
	}
	return info, nil
}

// Update overwrites an existing record.
func (r *MemoryRepository) Update(ctx context.Context, info Info) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[info.key()]; !exists {
		return ErrNotFound
	}
	r.records[info.key()] = info
	return nil
}

// Delete releases a record. Deleting an absent record is not an error.
func (r *MemoryRepository) Delete(ctx context.Context, info Info) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, info.key())
	return nil
}

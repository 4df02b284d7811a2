package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"mailscout/models"
)

var ErrBatchNotFound = errors.New("batch not found")

// BatchStore keeps batch jobs between the caller's requests. Reports are not
// stored here.
type BatchStore interface {
	Create(ctx context.Context) (*models.BatchJob, error)
	Get(ctx context.Context, id string) (*models.BatchJob, error)
	AppendEntries(ctx context.Context, id string, entries []models.PersonIdentity) (*models.BatchJob, error)
	Delete(ctx context.Context, id string) error
}

func newBatch() *models.BatchJob {
	return &models.BatchJob{
		ID:        uuid.NewString(),
		Entries:   []models.PersonIdentity{},
		CreatedAt: time.Now().UTC(),
	}
}

// MemoryBatchStore is the default store when Redis is disabled.
type MemoryBatchStore struct {
	mu      sync.RWMutex
	batches map[string]*models.BatchJob
}

func NewMemoryBatchStore() *MemoryBatchStore {
	return &MemoryBatchStore{batches: make(map[string]*models.BatchJob)}
}

func (s *MemoryBatchStore) Create(_ context.Context) (*models.BatchJob, error) {
	b := newBatch()
	s.mu.Lock()
	s.batches[b.ID] = b
	s.mu.Unlock()
	return clone(b), nil
}

func (s *MemoryBatchStore) Get(_ context.Context, id string) (*models.BatchJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	return clone(b), nil
}

func (s *MemoryBatchStore) AppendEntries(_ context.Context, id string, entries []models.PersonIdentity) (*models.BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	b.Entries = append(b.Entries, entries...)
	return clone(b), nil
}

func (s *MemoryBatchStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[id]; !ok {
		return ErrBatchNotFound
	}
	delete(s.batches, id)
	return nil
}

func clone(b *models.BatchJob) *models.BatchJob {
	out := *b
	out.Entries = append([]models.PersonIdentity{}, b.Entries...)
	return &out
}

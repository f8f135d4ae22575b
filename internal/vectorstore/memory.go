package vectorstore

import (
	"fmt"
	"sync"

	"github.com/nikhilbhutani/docqa/internal/models"
)

// MemoryStore keeps documents in process memory for the lifetime of the
// engine. There is no eviction.
type MemoryStore struct {
	mu    sync.RWMutex
	docs  []*models.Document
	index map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{index: make(map[string]int)}
}

func (s *MemoryStore) Add(doc *models.Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	stored := doc.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.index[stored.ID]; exists {
		return fmt.Errorf("%w: duplicate id %s", models.ErrInvalidDocument, stored.ID)
	}
	s.index[stored.ID] = len(s.docs)
	s.docs = append(s.docs, &stored)
	return nil
}

func (s *MemoryStore) Get(id string) (models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return models.Document{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.docs[i].Clone(), nil
}

func (s *MemoryStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.docs = append(s.docs[:i], s.docs[i+1:]...)
	delete(s.index, id)
	for j := i; j < len(s.docs); j++ {
		s.index[s.docs[j].ID] = j
	}
	return true
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = nil
	s.index = make(map[string]int)
}

func (s *MemoryStore) List() []models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Document, len(s.docs))
	for i, d := range s.docs {
		out[i] = d.Clone()
	}
	return out
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *MemoryStore) SetEmbeddings(id string, embeddings [][]float32, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	updated := s.docs[i].Clone()
	updated.Embeddings = embeddings
	if err := updated.Validate(); err != nil {
		return err
	}
	if updated.Metadata == nil {
		updated.Metadata = make(map[string]any, len(metadata))
	}
	for k, v := range metadata {
		updated.Metadata[k] = v
	}
	s.docs[i] = &updated
	return nil
}

// Snapshot returns shallow copies. Stored documents are replaced, never
// mutated, so the shared slices stay valid; callers must treat them as
// read-only.
func (s *MemoryStore) Snapshot() []models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Document, len(s.docs))
	for i, d := range s.docs {
		out[i] = *d
	}
	return out
}

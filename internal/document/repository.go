package document

import (
	"context"
	"sort"
	"sync"
)

// Repository stores document metadata.
type Repository interface {
	// Create fails with ErrDuplicateFile when the user already has a
	// document with the same file name.
	Create(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	ExistsByName(ctx context.Context, userID, fileName string) (bool, error)
	List(ctx context.Context, userID string) ([]*Document, error)
	Delete(ctx context.Context, userID, id string) error
}

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// NewInMemoryRepository creates a new in-memory document repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{docs: make(map[string]*Document)}
}

func (r *InMemoryRepository) Create(_ context.Context, doc *Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.docs {
		if d.UserID == doc.UserID && d.FileName == doc.FileName {
			return ErrDuplicateFile
		}
	}
	cp := *doc
	r.docs[doc.ID] = &cp
	return nil
}

func (r *InMemoryRepository) Get(_ context.Context, id string) (*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *InMemoryRepository) ExistsByName(_ context.Context, userID, fileName string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.docs {
		if d.UserID == userID && d.FileName == fileName {
			return true, nil
		}
	}
	return false, nil
}

func (r *InMemoryRepository) List(_ context.Context, userID string) ([]*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Document, 0)
	for _, d := range r.docs {
		if d.UserID == userID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UploadedAt.After(out[j].UploadedAt)
	})
	return out, nil
}

func (r *InMemoryRepository) Delete(_ context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok || d.UserID != userID {
		return ErrDocumentNotFound
	}
	delete(r.docs, id)
	return nil
}

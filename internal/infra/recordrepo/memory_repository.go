package recordrepo

import (
	"context"
	"sync"
	"time"

	"github.com/yanqian/support-copilot/internal/domain/support"
	"github.com/yanqian/support-copilot/pkg/util"
)

// MemoryRepository is an in-memory support.Repository used for tests/dev.
// ListAll returns records in insertion order.
type MemoryRepository struct {
	mu sync.RWMutex

	order   []string
	records map[string]support.Record
	now     func() time.Time
}

// NewMemoryRepository constructs a repo backed by memory.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[string]support.Record),
		now:     util.NowUTC,
	}
}

// ListAll implements support.RecordLister.
func (r *MemoryRepository) ListAll(_ context.Context) ([]support.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]support.Record, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.records[id])
	}
	return out, nil
}

// Upsert implements support.Repository. An existing record keeps its position and creation time.
func (r *MemoryRepository) Upsert(_ context.Context, record support.Record) (support.Record, error) {
	if err := record.Validate(); err != nil {
		return support.Record{}, err
	}
	record = record.Normalize(r.now())

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.records[record.ID]; ok {
		record.CreatedAt = existing.CreatedAt
	} else {
		r.order = append(r.order, record.ID)
	}
	r.records[record.ID] = record
	return record, nil
}

var _ support.Repository = (*MemoryRepository)(nil)

package memory

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

// ShortTermStore is the pluggable backend for the short-term tier. The
// Manager serializes access, but implementations are safe on their own.
//
// Put on an existing id replaces the record and keeps its insertion
// position, so access-count updates never disturb eviction order.
type ShortTermStore interface {
	// Put inserts or replaces a record.
	Put(ctx context.Context, rec *types.TaskRecord) error
	// Get returns the record for id, or a RECORD_NOT_FOUND error.
	Get(ctx context.Context, id string) (*types.TaskRecord, error)
	// All returns every record in insertion order.
	All(ctx context.Context) ([]*types.TaskRecord, error)
	// Remove deletes the record for id, or returns RECORD_NOT_FOUND.
	Remove(ctx context.Context, id string) error
	// EvictOldest removes and returns the least-recently-inserted
	// record, or a RECORD_NOT_FOUND error when the store is empty.
	EvictOldest(ctx context.Context) (*types.TaskRecord, error)
	// Size returns the number of stored records.
	Size(ctx context.Context) (int, error)
	// Clear removes every record and returns how many were removed.
	Clear(ctx context.Context) (int, error)
}

// InMemoryShortTermConfig configures the in-memory short-term store.
type InMemoryShortTermConfig struct {
	// InitialCapacity sizes the internal map. 0 picks a small default.
	InitialCapacity int
}

// InMemoryShortTerm is the default ShortTermStore. It keeps records in a
// map plus an insertion-order sequence for FIFO eviction.
type InMemoryShortTerm struct {
	mu      sync.RWMutex
	records map[string]*types.TaskRecord
	order   []string

	logger *zap.Logger
}

// NewInMemoryShortTerm creates an in-memory short-term store.
func NewInMemoryShortTerm(config InMemoryShortTermConfig, logger *zap.Logger) *InMemoryShortTerm {
	if logger == nil {
		logger = zap.NewNop()
	}
	capacity := config.InitialCapacity
	if capacity <= 0 {
		capacity = 16
	}
	return &InMemoryShortTerm{
		records: make(map[string]*types.TaskRecord, capacity),
		order:   make([]string, 0, capacity),
		logger:  logger.With(zap.String("store", "short_term_inmemory")),
	}
}

func (s *InMemoryShortTerm) Put(ctx context.Context, rec *types.TaskRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; !exists {
		s.order = append(s.order, rec.ID)
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *InMemoryShortTerm) Get(ctx context.Context, id string) (*types.TaskRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, types.NewRecordNotFound(id)
	}
	return rec, nil
}

func (s *InMemoryShortTerm) All(ctx context.Context) ([]*types.TaskRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.TaskRecord, 0, len(s.records))
	for _, id := range s.order {
		if rec, ok := s.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *InMemoryShortTerm) Remove(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return types.NewRecordNotFound(id)
	}
	delete(s.records, id)
	s.dropFromOrderLocked(id)
	return nil
}

func (s *InMemoryShortTerm) EvictOldest(ctx context.Context) (*types.TaskRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.order) == 0 {
		return nil, types.NewRecordNotFound("")
	}

	id := s.order[0]
	s.order = s.order[1:]
	rec := s.records[id]
	delete(s.records, id)
	return rec, nil
}

func (s *InMemoryShortTerm) Size(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *InMemoryShortTerm) Clear(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cleared := len(s.records)
	s.records = make(map[string]*types.TaskRecord)
	s.order = s.order[:0]
	s.logger.Debug("short-term store cleared", zap.Int("cleared", cleared))
	return cleared, nil
}

func (s *InMemoryShortTerm) dropFromOrderLocked(id string) {
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

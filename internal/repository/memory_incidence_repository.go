package repository

import (
	"context"
	"iter"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/incidence-service/internal/domain"
)

type memoryIncidenceRepository struct {
	locks  *KeyedMutex
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]*domain.Incidence
	byCID  map[string]int64
	now    func() time.Time
}

// NewMemoryIncidenceRepository returns a process-local store used when no
// database is configured and in tests.
func NewMemoryIncidenceRepository() IncidenceRepository {
	return &memoryIncidenceRepository{
		locks: NewKeyedMutex(),
		byID:  make(map[int64]*domain.Incidence),
		byCID: make(map[string]int64),
		now:   time.Now,
	}
}

func (r *memoryIncidenceRepository) Create(ctx context.Context, incidence *domain.Incidence) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byCID[incidence.CorrelationID]; exists {
		return ErrDuplicateCorrelation
	}
	r.nextID++
	incidence.ID = r.nextID
	if incidence.CreatedAt.IsZero() {
		incidence.CreatedAt = r.now()
	}
	incidence.UpdatedAt = incidence.CreatedAt
	if incidence.Status == "" {
		incidence.Status = domain.IncidenceStatusPending
	}
	r.byID[incidence.ID] = incidence.Clone()
	r.byCID[incidence.CorrelationID] = incidence.ID
	return nil
}

func (r *memoryIncidenceRepository) GetByID(ctx context.Context, id int64) (*domain.Incidence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	inc, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return inc.Clone(), nil
}

func (r *memoryIncidenceRepository) GetByCorrelationID(ctx context.Context, correlationID string) (*domain.Incidence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	id, ok := r.byCID[correlationID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *memoryIncidenceRepository) GetByOriginMessage(ctx context.Context, conversationID, messageID string) (*domain.Incidence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, inc := range r.byID {
		if inc.OriginGroup == conversationID && inc.OriginMessageID == messageID {
			return inc.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryIncidenceRepository) Update(ctx context.Context, id int64, mutate Mutator) (*domain.Incidence, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := mutate(current); err != nil {
		return nil, err
	}
	current.ID = id

	r.mu.Lock()
	r.byID[id] = current.Clone()
	r.mu.Unlock()
	return current, nil
}

func (r *memoryIncidenceRepository) QueryOverdue(ctx context.Context, before time.Time) iter.Seq2[domain.Incidence, error] {
	return func(yield func(domain.Incidence, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(domain.Incidence{}, err)
			return
		}
		for _, inc := range r.snapshot() {
			if inc.Status != domain.IncidenceStatusPending || !inc.CreatedAt.Before(before) {
				continue
			}
			if !yield(*inc, nil) {
				return
			}
		}
	}
}

func (r *memoryIncidenceRepository) List(ctx context.Context, filter IncidenceFilter) ([]domain.Incidence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit, offset := normalizeLimit(filter.Limit, filter.Offset)

	var matched []domain.Incidence
	for _, inc := range r.snapshot() {
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, inc.Status) {
			continue
		}
		if filter.Category != nil && !inc.HasCategory(*filter.Category) {
			continue
		}
		if filter.CreatedFrom != nil && inc.CreatedAt.Before(*filter.CreatedFrom) {
			continue
		}
		if filter.CreatedTo != nil && !inc.CreatedAt.Before(*filter.CreatedTo) {
			continue
		}
		matched = append(matched, *inc)
	}
	if offset >= len(matched) {
		return []domain.Incidence{}, nil
	}
	return matched[offset:min(offset+limit, len(matched))], nil
}

// snapshot returns clones ordered by id.
func (r *memoryIncidenceRepository) snapshot() []*domain.Incidence {
	r.mu.RLock()
	out := make([]*domain.Incidence, 0, len(r.byID))
	for _, inc := range r.byID {
		out = append(out, inc.Clone())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

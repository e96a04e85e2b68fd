package repository

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/spec-kit/incidence-service/internal/domain"
)

// ErrNotFound is returned when no incidence matches a lookup.
var ErrNotFound = errors.New("incidence not found")

// ErrDuplicateCorrelation is returned when a correlation id is reused.
var ErrDuplicateCorrelation = errors.New("correlation id already exists")

// Mutator edits an incidence in place under per-id serialization. Returning
// an error aborts the update without writing.
type Mutator func(*domain.Incidence) error

// IncidenceFilter captures listing parameters.
type IncidenceFilter struct {
	Statuses    []domain.IncidenceStatus
	Category    *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// IncidenceRepository encapsulates incidence persistence.
type IncidenceRepository interface {
	Create(ctx context.Context, incidence *domain.Incidence) error
	GetByID(ctx context.Context, id int64) (*domain.Incidence, error)
	GetByCorrelationID(ctx context.Context, correlationID string) (*domain.Incidence, error)
	GetByOriginMessage(ctx context.Context, conversationID, messageID string) (*domain.Incidence, error)
	Update(ctx context.Context, id int64, mutate Mutator) (*domain.Incidence, error)
	QueryOverdue(ctx context.Context, before time.Time) iter.Seq2[domain.Incidence, error]
	List(ctx context.Context, filter IncidenceFilter) ([]domain.Incidence, error)
}

func normalizeLimit(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

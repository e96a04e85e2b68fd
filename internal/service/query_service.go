package service

import (
	"context"
	"errors"

	"github.com/spec-kit/incidence-service/internal/domain"
	"github.com/spec-kit/incidence-service/internal/repository"
	apperrors "github.com/spec-kit/incidence-service/pkg/util/errorutil"
)

const maxListLimit = 200

// QueryService serves read-only incidence lookups for the admin API.
type QueryService struct {
	incidences repository.IncidenceRepository
	history    repository.HistoryRepository
}

// NewQueryService constructs the service. history may be nil.
func NewQueryService(repo repository.IncidenceRepository, history repository.HistoryRepository) *QueryService {
	return &QueryService{incidences: repo, history: history}
}

// List returns incidences matching filter.
func (s *QueryService) List(ctx context.Context, filter repository.IncidenceFilter) ([]domain.Incidence, error) {
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.CreatedFrom != nil && filter.CreatedTo != nil && !filter.CreatedFrom.Before(*filter.CreatedTo) {
		return nil, apperrors.NewValidationError("created_from must be before created_to", nil)
	}
	for _, st := range filter.Statuses {
		switch st {
		case domain.IncidenceStatusPending, domain.IncidenceStatusCompleted, domain.IncidenceStatusCancelled:
		default:
			return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": st})
		}
	}
	list, err := s.incidences.List(ctx, filter)
	if err != nil {
		return nil, apperrors.NewStoreFailure("list incidences", err)
	}
	return list, nil
}

// Get returns one incidence.
func (s *QueryService) Get(ctx context.Context, id int64) (*domain.Incidence, error) {
	inc, err := s.incidences.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("incidence", map[string]any{"id": id})
	}
	if err != nil {
		return nil, apperrors.NewStoreFailure("get incidence", err)
	}
	return inc, nil
}

// History returns the audit trail of one incidence.
func (s *QueryService) History(ctx context.Context, id int64, limit, offset int) ([]domain.HistoryEntry, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []domain.HistoryEntry{}, nil
	}
	entries, err := s.history.ListByIncidence(ctx, id, limit, offset)
	if err != nil {
		return nil, apperrors.NewStoreFailure("list incidence history", err)
	}
	return entries, nil
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/incidence-service/internal/domain"
)

// HistoryRepository stores incidence audit entries.
type HistoryRepository interface {
	Create(ctx context.Context, entry *domain.HistoryEntry) error
	ListByIncidence(ctx context.Context, incidenceID int64, limit, offset int) ([]domain.HistoryEntry, error)
}

type historyRepository struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository builds the Postgres repository.
func NewHistoryRepository(pool *pgxpool.Pool) HistoryRepository {
	return &historyRepository{pool: pool}
}

func (r *historyRepository) Create(ctx context.Context, entry *domain.HistoryEntry) error {
	details := []byte("{}")
	if len(entry.Details) > 0 {
		var err error
		if details, err = json.Marshal(entry.Details); err != nil {
			return fmt.Errorf("encode history details: %w", err)
		}
	}
	const query = `
        INSERT INTO incidence_history (incidence_id, event_type, actor, details, created_at)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id`
	return r.pool.QueryRow(ctx, query,
		entry.IncidenceID,
		entry.EventType,
		entry.Actor,
		details,
		entry.CreatedAt,
	).Scan(&entry.ID)
}

func (r *historyRepository) ListByIncidence(ctx context.Context, incidenceID int64, limit, offset int) ([]domain.HistoryEntry, error) {
	limit, offset = normalizeLimit(limit, offset)
	const query = `
        SELECT id, incidence_id, event_type, actor, details, created_at
        FROM incidence_history WHERE incidence_id=$1
        ORDER BY created_at ASC, id ASC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, incidenceID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.HistoryEntry{}
	for rows.Next() {
		var entry domain.HistoryEntry
		var details []byte
		if err := rows.Scan(
			&entry.ID,
			&entry.IncidenceID,
			&entry.EventType,
			&entry.Actor,
			&details,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, fmt.Errorf("decode history details: %w", err)
			}
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

type memoryHistoryRepository struct {
	mu      sync.Mutex
	nextID  int64
	entries []domain.HistoryEntry
}

// NewMemoryHistoryRepository returns a process-local history store.
func NewMemoryHistoryRepository() HistoryRepository {
	return &memoryHistoryRepository{}
}

func (r *memoryHistoryRepository) Create(ctx context.Context, entry *domain.HistoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	entry.ID = r.nextID
	stored := *entry
	stored.Details = maps.Clone(entry.Details)
	r.entries = append(r.entries, stored)
	return nil
}

func (r *memoryHistoryRepository) ListByIncidence(ctx context.Context, incidenceID int64, limit, offset int) ([]domain.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit, offset = normalizeLimit(limit, offset)
	r.mu.Lock()
	defer r.mu.Unlock()

	result := []domain.HistoryEntry{}
	skipped := 0
	for _, e := range r.entries {
		if e.IncidenceID != incidenceID {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if len(result) == limit {
			break
		}
		e.Details = maps.Clone(e.Details)
		result = append(result, e)
	}
	return result, nil
}

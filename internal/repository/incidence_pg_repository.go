package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/incidence-service/internal/domain"
)

const incidenceColumns = `id, correlation_id, description, reported_by, categories, confirmations, status,
               origin_group, origin_message_id, attachment, attachment_mime, attachment_name,
               feedback_history, completed_at, cancelled_at, cancelled_by, created_at, updated_at`

type incidenceRepository struct {
	pool  *pgxpool.Pool
	locks *KeyedMutex
}

// NewIncidenceRepository instantiates the Postgres-backed repository.
func NewIncidenceRepository(pool *pgxpool.Pool) IncidenceRepository {
	return &incidenceRepository{pool: pool, locks: NewKeyedMutex()}
}

func (r *incidenceRepository) Create(ctx context.Context, incidence *domain.Incidence) error {
	const query = `
        INSERT INTO incidences (correlation_id, description, reported_by, categories, confirmations, status,
            origin_group, origin_message_id, attachment, attachment_mime, attachment_name, feedback_history, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12, COALESCE($13, NOW()))
        RETURNING id, created_at, updated_at`

	confirmations, feedback, err := encodeMutable(incidence)
	if err != nil {
		return err
	}
	if incidence.Status == "" {
		incidence.Status = domain.IncidenceStatusPending
	}
	data, mime, name := attachmentColumns(incidence.Attachment)

	var createdAt *time.Time
	if !incidence.CreatedAt.IsZero() {
		createdAt = &incidence.CreatedAt
	}

	err = r.pool.QueryRow(ctx, query,
		incidence.CorrelationID,
		incidence.Description,
		incidence.ReportedBy,
		incidence.Categories,
		confirmations,
		incidence.Status,
		incidence.OriginGroup,
		incidence.OriginMessageID,
		data,
		mime,
		name,
		feedback,
		createdAt,
	).Scan(&incidence.ID, &incidence.CreatedAt, &incidence.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateCorrelation
	}
	return err
}

func (r *incidenceRepository) GetByID(ctx context.Context, id int64) (*domain.Incidence, error) {
	query := `SELECT ` + incidenceColumns + ` FROM incidences WHERE id=$1`
	return r.fetchSingle(ctx, r.pool, query, id)
}

func (r *incidenceRepository) GetByCorrelationID(ctx context.Context, correlationID string) (*domain.Incidence, error) {
	query := `SELECT ` + incidenceColumns + ` FROM incidences WHERE correlation_id=$1`
	return r.fetchSingle(ctx, r.pool, query, correlationID)
}

func (r *incidenceRepository) GetByOriginMessage(ctx context.Context, conversationID, messageID string) (*domain.Incidence, error) {
	query := `SELECT ` + incidenceColumns + ` FROM incidences WHERE origin_group=$1 AND origin_message_id=$2`
	return r.fetchSingle(ctx, r.pool, query, conversationID, messageID)
}

// Update serializes in process on the keyed mutex and across processes on
// the row lock taken by SELECT ... FOR UPDATE.
func (r *incidenceRepository) Update(ctx context.Context, id int64, mutate Mutator) (*domain.Incidence, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	query := `SELECT ` + incidenceColumns + ` FROM incidences WHERE id=$1 FOR UPDATE`
	incidence, err := r.fetchSingle(ctx, tx, query, id)
	if err != nil {
		return nil, err
	}
	if err := mutate(incidence); err != nil {
		return nil, err
	}

	confirmations, feedback, err := encodeMutable(incidence)
	if err != nil {
		return nil, err
	}
	const update = `
        UPDATE incidences SET description=$1, categories=$2, confirmations=$3, status=$4, feedback_history=$5,
            completed_at=$6, cancelled_at=$7, cancelled_by=$8, updated_at=NOW()
        WHERE id=$9
        RETURNING updated_at`
	if err := tx.QueryRow(ctx, update,
		incidence.Description,
		incidence.Categories,
		confirmations,
		incidence.Status,
		feedback,
		incidence.CompletedAt,
		incidence.CancelledAt,
		incidence.CancelledBy,
		id,
	).Scan(&incidence.UpdatedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return incidence, nil
}

func (r *incidenceRepository) QueryOverdue(ctx context.Context, before time.Time) iter.Seq2[domain.Incidence, error] {
	return func(yield func(domain.Incidence, error) bool) {
		query := `SELECT ` + incidenceColumns + ` FROM incidences
             WHERE status=$1 AND created_at < $2 ORDER BY created_at ASC`
		rows, err := r.pool.Query(ctx, query, domain.IncidenceStatusPending, before)
		if err != nil {
			yield(domain.Incidence{}, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			incidence, err := scanIncidence(rows)
			if err != nil {
				yield(domain.Incidence{}, err)
				return
			}
			if !yield(*incidence, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(domain.Incidence{}, err)
		}
	}
}

func (r *incidenceRepository) List(ctx context.Context, filter IncidenceFilter) ([]domain.Incidence, error) {
	base := `SELECT ` + incidenceColumns + ` FROM incidences`
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Category != nil {
		args = append(args, *filter.Category)
		clauses = append(clauses, fmt.Sprintf("$%d = ANY(categories)", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at < $%d", len(args)))
	}

	limit, offset := normalizeLimit(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`%s WHERE %s ORDER BY id ASC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Incidence{}
	for rows.Next() {
		incidence, err := scanIncidence(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *incidence)
	}
	return result, rows.Err()
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *incidenceRepository) fetchSingle(ctx context.Context, q querier, query string, args ...any) (*domain.Incidence, error) {
	incidence, err := scanIncidence(q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return incidence, err
}

func scanIncidence(row pgx.Row) (*domain.Incidence, error) {
	var (
		incidence     domain.Incidence
		confirmations []byte
		feedback      []byte
		attachment    []byte
		mime, name    string
	)
	if err := row.Scan(
		&incidence.ID,
		&incidence.CorrelationID,
		&incidence.Description,
		&incidence.ReportedBy,
		&incidence.Categories,
		&confirmations,
		&incidence.Status,
		&incidence.OriginGroup,
		&incidence.OriginMessageID,
		&attachment,
		&mime,
		&name,
		&feedback,
		&incidence.CompletedAt,
		&incidence.CancelledAt,
		&incidence.CancelledBy,
		&incidence.CreatedAt,
		&incidence.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(confirmations) > 0 && string(confirmations) != "null" {
		if err := json.Unmarshal(confirmations, &incidence.Confirmations); err != nil {
			return nil, fmt.Errorf("decode confirmations for incidence %d: %w", incidence.ID, err)
		}
	}
	if len(feedback) > 0 {
		if err := json.Unmarshal(feedback, &incidence.FeedbackHistory); err != nil {
			return nil, fmt.Errorf("decode feedback for incidence %d: %w", incidence.ID, err)
		}
	}
	if len(attachment) > 0 {
		incidence.Attachment = &domain.Attachment{Data: attachment, MimeType: mime, FileName: name}
	}
	return &incidence, nil
}

// encodeMutable renders the structured columns as JSON text. A nil
// confirmations map is stored as SQL NULL.
func encodeMutable(incidence *domain.Incidence) (confirmations *string, feedback string, err error) {
	if incidence.Confirmations != nil {
		raw, err := json.Marshal(incidence.Confirmations)
		if err != nil {
			return nil, "", fmt.Errorf("encode confirmations: %w", err)
		}
		s := string(raw)
		confirmations = &s
	}
	history := incidence.FeedbackHistory
	if history == nil {
		history = []domain.FeedbackEntry{}
	}
	raw, err := json.Marshal(history)
	if err != nil {
		return nil, "", fmt.Errorf("encode feedback: %w", err)
	}
	return confirmations, string(raw), nil
}

func attachmentColumns(att *domain.Attachment) ([]byte, string, string) {
	if att == nil {
		return nil, "", ""
	}
	return att.Data, att.MimeType, att.FileName
}

// Package correlation maps an inbound reply back to the incidence whose
// notice it quotes.
package correlation

import (
	"context"
	"errors"
	"regexp"
	"strconv"

	"github.com/spec-kit/incidence-service/internal/domain"
	"github.com/spec-kit/incidence-service/internal/repository"
	apperrors "github.com/spec-kit/incidence-service/pkg/util/errorutil"
)

const (
	idMarker  = "ID:"
	refMarker = "Ref:"
)

var (
	refPattern = regexp.MustCompile(`(?m)^\s*Ref:\s*([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})\s*$`)
	idPattern  = regexp.MustCompile(`(?m)^\s*ID:\s*(\d+)\s*$`)
)

var (
	// ErrUnresolved means the message is not a reply to a tracked incidence.
	ErrUnresolved = errors.New("reply does not resolve to an incidence")
	// ErrNoMarker lets the resolver fall through to the next strategy.
	ErrNoMarker = errors.New("no correlation marker")
)

// Lookup is the part of the incidence store the strategies read.
type Lookup interface {
	GetByID(ctx context.Context, id int64) (*domain.Incidence, error)
	GetByCorrelationID(ctx context.Context, correlationID string) (*domain.Incidence, error)
}

// Strategy extracts one kind of marker from quoted text and loads the
// incidence it names.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, quoted string) (*domain.Incidence, error)
}

// CorrelationIDStrategy resolves the opaque Ref marker.
type CorrelationIDStrategy struct {
	Store Lookup
}

func (CorrelationIDStrategy) Name() string { return "correlation_id" }

func (s CorrelationIDStrategy) Resolve(ctx context.Context, quoted string) (*domain.Incidence, error) {
	m := refPattern.FindStringSubmatch(quoted)
	if m == nil {
		return nil, ErrNoMarker
	}
	return s.Store.GetByCorrelationID(ctx, m[1])
}

// NumericIDStrategy resolves the surrogate ID marker.
type NumericIDStrategy struct {
	Store Lookup
}

func (NumericIDStrategy) Name() string { return "numeric_id" }

func (s NumericIDStrategy) Resolve(ctx context.Context, quoted string) (*domain.Incidence, error) {
	m := idPattern.FindStringSubmatch(quoted)
	if m == nil {
		return nil, ErrNoMarker
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return nil, ErrNoMarker
	}
	return s.Store.GetByID(ctx, id)
}

// Resolver runs its strategies in order against a quoted notice.
type Resolver struct {
	strategies []Strategy
}

// NewResolver returns a resolver trying the correlation id first and the
// numeric id second.
func NewResolver(store Lookup) *Resolver {
	return NewResolverWith(CorrelationIDStrategy{Store: store}, NumericIDStrategy{Store: store})
}

// NewResolverWith builds a resolver over explicit strategies.
func NewResolverWith(strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies}
}

// Resolve returns the incidence quoted by msg. It returns ErrUnresolved when
// nothing is quoted, the quoted text is not a known notice, or no strategy
// finds a record. Store errors surface as a StoreFailure.
func (r *Resolver) Resolve(ctx context.Context, msg domain.Message, quoted *domain.Message) (*domain.Incidence, error) {
	if !msg.HasQuotedMessage || quoted == nil {
		return nil, ErrUnresolved
	}
	if _, ok := MatchTemplate(quoted.Body); !ok {
		return nil, ErrUnresolved
	}

	for _, strategy := range r.strategies {
		inc, err := strategy.Resolve(ctx, quoted.Body)
		switch {
		case err == nil:
			return inc, nil
		case errors.Is(err, ErrNoMarker):
			continue
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrUnresolved
		default:
			return nil, apperrors.NewStoreFailure("resolve incidence via "+strategy.Name(), err)
		}
	}
	return nil, ErrUnresolved
}

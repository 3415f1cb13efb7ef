package query

import (
	"context"

	"github.com/fato-hub/comportamento-hub/internal/domain/occurrence"
	"github.com/fato-hub/comportamento-hub/internal/domain/shared"
	"github.com/fato-hub/comportamento-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET OCCURRENCE QUERY
// Single-record lookup by ID. Primary-key reads skip the cache; the record is
// fetched fresh so lifecycle operations never act on stale state.
// ══════════════════════════════════════════════════════════════════════════════

// GetOccurrenceQuery identifies the record.
type GetOccurrenceQuery struct {
	OccurrenceID string
}

// Validate validates the query.
func (q GetOccurrenceQuery) Validate() error {
	if q.OccurrenceID == "" {
		return shared.ErrInvalidID
	}
	return nil
}

// GetOccurrenceResult contains the record.
type GetOccurrenceResult struct {
	Occurrence OccurrenceDTO `json:"occurrence"`
}

// GetOccurrenceHandler handles the GetOccurrenceQuery.
type GetOccurrenceHandler struct {
	occurrenceRepo occurrence.Repository
	log            *logger.Logger
}

// NewGetOccurrenceHandler creates the handler.
func NewGetOccurrenceHandler(occurrenceRepo occurrence.Repository, log *logger.Logger) *GetOccurrenceHandler {
	return &GetOccurrenceHandler{
		occurrenceRepo: occurrenceRepo,
		log:            log.With(logger.Component("get_occurrence")),
	}
}

// Handle returns one occurrence, removed ones included.
func (h *GetOccurrenceHandler) Handle(ctx context.Context, q GetOccurrenceQuery) (*GetOccurrenceResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	o, err := h.occurrenceRepo.GetByID(ctx, q.OccurrenceID)
	if err != nil {
		return nil, err
	}

	return &GetOccurrenceResult{Occurrence: NewOccurrenceDTO(o)}, nil
}

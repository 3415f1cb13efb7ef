package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fato-hub/comportamento-hub/internal/domain/occurrence"
	"github.com/fato-hub/comportamento-hub/internal/domain/shared"
	"github.com/fato-hub/comportamento-hub/internal/infrastructure/cache"
	"github.com/fato-hub/comportamento-hub/pkg/logger"
	"github.com/fato-hub/comportamento-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST OCCURRENCES QUERY
// Filtered, paginated listing of disciplinary records. Removed records are
// hidden unless explicitly requested.
// ══════════════════════════════════════════════════════════════════════════════

// ListOccurrencesQuery filters the listing.
type ListOccurrencesQuery struct {
	StudentNumber  int
	Status         occurrence.Status
	Kind           occurrence.Kind
	FactFrom       time.Time
	FactTo         time.Time
	IncludeRemoved bool
	Limit          int
	Offset         int
}

// Validate validates and normalizes the query.
func (q *ListOccurrencesQuery) Validate() error {
	if q.StudentNumber < 0 {
		return fmt.Errorf("list_occurrences: negative student number: %w", shared.ErrInvalidInput)
	}
	if q.Status != "" && !q.Status.IsValid() {
		return fmt.Errorf("list_occurrences: invalid status filter: %w", shared.ErrInvalidInput)
	}
	if q.Kind != "" && !q.Kind.IsValid() {
		return fmt.Errorf("list_occurrences: invalid kind filter: %w", shared.ErrInvalidInput)
	}
	if q.Limit < 0 || q.Offset < 0 {
		return fmt.Errorf("list_occurrences: negative pagination: %w", shared.ErrInvalidInput)
	}
	if q.Limit == 0 || q.Limit > 200 {
		q.Limit = 50
	}
	return nil
}

// fingerprint derives the cache key suffix from every filter dimension.
func (q ListOccurrencesQuery) fingerprint() string {
	from, to := "", ""
	if !q.FactFrom.IsZero() {
		from = timeutil.FormatDate(q.FactFrom)
	}
	if !q.FactTo.IsZero() {
		to = timeutil.FormatDate(q.FactTo)
	}
	return fmt.Sprintf("%d:%s:%s:%s:%s:%t:%d:%d",
		q.StudentNumber, q.Status, q.Kind, from, to, q.IncludeRemoved, q.Limit, q.Offset)
}

// OccurrenceDTO is the read model for one occurrence.
type OccurrenceDTO struct {
	ID             string     `json:"id"`
	StudentNumber  int        `json:"numeroAluno"`
	Kind           string     `json:"tipo"`
	Sanction       string     `json:"sancaoDisciplinar,omitempty"`
	SanctionDays   int        `json:"quantidadeDias"`
	FactDate       string     `json:"dataFato"`
	Status         string     `json:"status"`
	ScoreDelta     *float64   `json:"variacaoComportamento"`
	ConsolidatedAt *time.Time `json:"consolidadoEm,omitempty"`
	TicketNumber   string     `json:"numeroChamado,omitempty"`
	Description    string     `json:"descricao,omitempty"`
}

// NewOccurrenceDTO maps an entity to its read model.
func NewOccurrenceDTO(o *occurrence.Occurrence) OccurrenceDTO {
	return OccurrenceDTO{
		ID:             o.ID,
		StudentNumber:  o.StudentNumber,
		Kind:           o.Kind.String(),
		Sanction:       o.Sanction.String(),
		SanctionDays:   o.SanctionDays,
		FactDate:       timeutil.FormatDate(o.FactDate),
		Status:         o.Status.String(),
		ScoreDelta:     o.ScoreDelta,
		ConsolidatedAt: o.ConsolidatedAt,
		TicketNumber:   o.TicketNumber,
		Description:    o.Description,
	}
}

// ListOccurrencesResult contains the page of records.
type ListOccurrencesResult struct {
	Occurrences []OccurrenceDTO `json:"occurrences"`
	FromCache   bool            `json:"-"`
}

// ListOccurrencesHandler handles the ListOccurrencesQuery.
type ListOccurrencesHandler struct {
	occurrenceRepo occurrence.Repository
	cache          Cache
	log            *logger.Logger
}

// NewListOccurrencesHandler creates the handler.
func NewListOccurrencesHandler(occurrenceRepo occurrence.Repository, c Cache, log *logger.Logger) *ListOccurrencesHandler {
	return &ListOccurrencesHandler{
		occurrenceRepo: occurrenceRepo,
		cache:          c,
		log:            log.With(logger.Component("list_occurrences")),
	}
}

// Handle returns the filtered page, cache first. Per-student listings live
// under the student's invalidation prefix; global listings under their own.
func (h *ListOccurrencesHandler) Handle(ctx context.Context, q ListOccurrencesQuery) (*ListOccurrencesResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var key string
	if q.StudentNumber > 0 {
		key = cache.StudentOccurrencesKey(q.StudentNumber, q.fingerprint())
	} else {
		key = cache.OccurrenceListKey(q.fingerprint())
	}

	var dtos []OccurrenceDTO
	if err := h.cache.Get(ctx, key, &dtos); err == nil {
		return &ListOccurrencesResult{Occurrences: dtos, FromCache: true}, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		h.log.Warn("cache read failed", logger.CacheKey(key), logger.Err(err))
	}

	occurrences, err := h.occurrenceRepo.List(ctx, occurrence.Filter{
		StudentNumber:  q.StudentNumber,
		Status:         q.Status,
		Kind:           q.Kind,
		FactFrom:       q.FactFrom,
		FactTo:         q.FactTo,
		IncludeRemoved: q.IncludeRemoved,
		Limit:          q.Limit,
		Offset:         q.Offset,
	})
	if err != nil {
		return nil, err
	}

	dtos = make([]OccurrenceDTO, 0, len(occurrences))
	for _, o := range occurrences {
		dtos = append(dtos, NewOccurrenceDTO(o))
	}

	if err := h.cache.Set(ctx, key, dtos, cache.TTLOccurrenceList, false); err != nil {
		h.log.Warn("cache write failed", logger.CacheKey(key), logger.Err(err))
	}

	return &ListOccurrencesResult{Occurrences: dtos}, nil
}

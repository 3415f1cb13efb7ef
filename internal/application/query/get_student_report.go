package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fato-hub/comportamento-hub/internal/domain/occurrence"
	"github.com/fato-hub/comportamento-hub/internal/domain/scoring"
	"github.com/fato-hub/comportamento-hub/internal/domain/shared"
	"github.com/fato-hub/comportamento-hub/internal/infrastructure/cache"
	"github.com/fato-hub/comportamento-hub/pkg/logger"
	"github.com/fato-hub/comportamento-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STUDENT REPORT QUERY
// Computes the point-in-time aggregate score for a student over a period:
// the itemized sanction contributions plus the sanction-free bonus. This is
// a derived view; it never touches the stored score.
// ══════════════════════════════════════════════════════════════════════════════

// GetStudentReportQuery identifies the student and the reporting period.
type GetStudentReportQuery struct {
	StudentNumber int

	// PeriodStart / PeriodEnd bound the report. A zero PeriodEnd defaults to
	// today; a zero PeriodStart defaults to the start of PeriodEnd's month.
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// Validate validates and normalizes the query.
func (q *GetStudentReportQuery) Validate(clock shared.Clock) error {
	if q.StudentNumber <= 0 {
		return shared.ErrInvalidStudentNumber
	}
	if q.PeriodEnd.IsZero() {
		q.PeriodEnd = clock.Today()
	}
	if q.PeriodStart.IsZero() {
		q.PeriodStart = timeutil.StartOfMonth(q.PeriodEnd)
	}
	if q.PeriodEnd.Before(q.PeriodStart) {
		return fmt.Errorf("get_student_report: period end before period start: %w", shared.ErrInvalidInput)
	}
	return nil
}

// GetStudentReportResult wraps the computed aggregate.
type GetStudentReportResult struct {
	Report    scoring.Aggregate `json:"report"`
	FromCache bool              `json:"-"`
}

// GetStudentReportHandler handles the GetStudentReportQuery.
type GetStudentReportHandler struct {
	occurrenceRepo occurrence.Repository
	cache          Cache
	clock          shared.Clock
	log            *logger.Logger
}

// NewGetStudentReportHandler creates the handler.
func NewGetStudentReportHandler(
	occurrenceRepo occurrence.Repository,
	c Cache,
	clock shared.Clock,
	log *logger.Logger,
) *GetStudentReportHandler {
	return &GetStudentReportHandler{
		occurrenceRepo: occurrenceRepo,
		cache:          c,
		clock:          clock,
		log:            log.With(logger.Component("get_student_report")),
	}
}

// Handle computes the aggregate score report, cache first. Only consolidated,
// non-removed occurrences feed the aggregation; the scoring engine itself
// filters justified sanctions and out-of-period facts.
func (h *GetStudentReportHandler) Handle(ctx context.Context, q GetStudentReportQuery) (*GetStudentReportResult, error) {
	if err := q.Validate(h.clock); err != nil {
		return nil, err
	}

	key := cache.StudentReportKey(q.StudentNumber,
		timeutil.FormatDate(q.PeriodStart), timeutil.FormatDate(q.PeriodEnd))

	var agg scoring.Aggregate
	if err := h.cache.Get(ctx, key, &agg); err == nil {
		return &GetStudentReportResult{Report: agg, FromCache: true}, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		h.log.Warn("cache read failed", logger.CacheKey(key), logger.Err(err))
	}

	occurrences, err := h.occurrenceRepo.List(ctx, occurrence.Filter{
		StudentNumber: q.StudentNumber,
		FactFrom:      q.PeriodStart,
		FactTo:        q.PeriodEnd,
	})
	if err != nil {
		return nil, err
	}

	events := make([]scoring.SanctionEvent, 0, len(occurrences))
	for _, o := range occurrences {
		if !o.IsConsolidated() || o.IsRemoved() {
			continue
		}
		events = append(events, scoring.SanctionEvent{
			OccurrenceID: o.ID,
			Sanction:     o.Sanction,
			Days:         o.SanctionDays,
			FactDate:     o.FactDate,
		})
	}

	agg = scoring.AggregateScore(q.StudentNumber, q.PeriodStart, q.PeriodEnd, events)

	if err := h.cache.Set(ctx, key, agg, cache.TTLStatistics, true); err != nil {
		h.log.Warn("cache write failed", logger.CacheKey(key), logger.Err(err))
	}

	return &GetStudentReportResult{Report: agg}, nil
}

package command

import (
	"context"
	"time"

	"github.com/fato-hub/comportamento-hub/internal/domain/occurrence"
	"github.com/fato-hub/comportamento-hub/internal/domain/scoring"
	"github.com/fato-hub/comportamento-hub/internal/domain/shared"
	"github.com/fato-hub/comportamento-hub/internal/domain/student"
	"github.com/fato-hub/comportamento-hub/internal/infrastructure/cache"
	"github.com/fato-hub/comportamento-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONSOLIDATE OCCURRENCE COMMAND
// The consolidation workflow is two separate writes, not one transaction:
//
//   1. the occurrence write: status, variation and timestamp land behind a
//      conditional guard that makes consolidation at-most-once;
//   2. the student-score write: the variation is added to the stored score.
//
// A crash between the two leaves a consolidated occurrence whose delta has
// not reached the student record. That gap is visible (nota_aplicada_em is
// null) and the reconciliation job replays it; the delta is never applied
// twice because step 2 only ever follows a step 1 this process won.
// ══════════════════════════════════════════════════════════════════════════════

// ConsolidateOccurrenceCommand consolidates a flagged occurrence.
type ConsolidateOccurrenceCommand struct {
	// OccurrenceID identifies the record to consolidate.
	OccurrenceID string
}

// Validate validates the command.
func (c ConsolidateOccurrenceCommand) Validate() error {
	if c.OccurrenceID == "" {
		return shared.ErrInvalidID
	}
	return nil
}

// ConsolidateOccurrenceResult contains the consolidation outcome.
type ConsolidateOccurrenceResult struct {
	// Occurrence is the consolidated record.
	Occurrence *occurrence.Occurrence

	// ScoreDelta is the variation computed from the sanction.
	ScoreDelta float64

	// NewScore is the student score after the delta landed. Only meaningful
	// when ScoreApplied is true.
	NewScore float64

	// ScoreApplied reports whether the second write landed. False means the
	// occurrence is consolidated but the score write failed; the
	// reconciliation job will replay it.
	ScoreApplied bool

	ConsolidatedAt time.Time
}

// ConsolidateOccurrenceHandler handles the ConsolidateOccurrenceCommand.
type ConsolidateOccurrenceHandler struct {
	occurrenceRepo occurrence.Repository
	studentRepo    student.Repository
	eventPublisher shared.EventPublisher
	cacheInval     CacheInvalidator
	clock          shared.Clock
	log            *logger.Logger
}

// NewConsolidateOccurrenceHandler creates the handler.
func NewConsolidateOccurrenceHandler(
	occurrenceRepo occurrence.Repository,
	studentRepo student.Repository,
	eventPublisher shared.EventPublisher,
	cacheInval CacheInvalidator,
	clock shared.Clock,
	log *logger.Logger,
) *ConsolidateOccurrenceHandler {
	return &ConsolidateOccurrenceHandler{
		occurrenceRepo: occurrenceRepo,
		studentRepo:    studentRepo,
		eventPublisher: eventPublisher,
		cacheInval:     cacheInval,
		clock:          clock,
		log:            log.With(logger.Component("consolidate_occurrence")),
	}
}

// Handle runs the two-step consolidation for one occurrence.
func (h *ConsolidateOccurrenceHandler) Handle(ctx context.Context, cmd ConsolidateOccurrenceCommand) (*ConsolidateOccurrenceResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	o, err := h.occurrenceRepo.GetByID(ctx, cmd.OccurrenceID)
	if err != nil {
		return nil, err
	}

	now := h.clock.Now()

	// Compute the variation and the post-consolidation status, then check
	// the transition on the entity before touching storage. The entity check
	// catches stale reads early; the repository guard is what actually
	// closes the race.
	delta := scoring.SanctionVariation(o.Sanction, o.SanctionDays)
	next := occurrence.NextStatusForKind(o.Kind)
	if err := o.MarkConsolidated(delta, next, now); err != nil {
		return nil, err
	}

	// Step 1: conditional occurrence write. Losing the guard means another
	// consolidation already recorded a delta for this occurrence.
	if err := h.occurrenceRepo.Consolidate(ctx, o.ID, delta, next, now); err != nil {
		return nil, err
	}

	result := &ConsolidateOccurrenceResult{
		Occurrence:     o,
		ScoreDelta:     delta,
		ConsolidatedAt: now,
	}

	h.log.Info("occurrence consolidated",
		logger.OccurrenceID(o.ID),
		logger.StudentNumber(o.StudentNumber),
		logger.Sanction(o.Sanction.String()),
		logger.ScoreDelta(delta),
		logger.OccurrenceStatus(next.String()),
	)

	if err := h.eventPublisher.Publish(shared.NewOccurrenceConsolidatedEvent(
		o.ID, o.StudentNumber, o.Sanction.String(), o.SanctionDays, delta, next.String(),
	)); err != nil {
		h.log.Warn("failed to publish consolidated event", logger.Err(err))
	}

	// Step 2: student-score write. Failure here is reported, not rolled
	// back: the occurrence stays consolidated and reconciliation replays
	// the missing delta later.
	newScore, err := h.applyScore(ctx, o, delta, now)
	if err != nil {
		h.log.Error("score write failed after consolidation; leaving for reconciliation",
			logger.OccurrenceID(o.ID),
			logger.StudentNumber(o.StudentNumber),
			logger.ScoreDelta(delta),
			logger.Err(err),
		)
		return result, nil
	}
	result.NewScore = newScore
	result.ScoreApplied = true

	if err := h.cacheInval.ClearByPrefix(ctx, cache.StudentPrefix(o.StudentNumber)); err != nil {
		h.log.Warn("cache invalidation failed", logger.Err(err))
	}
	if err := h.cacheInval.ClearByPrefix(ctx, cache.PrefixOccurrenceList); err != nil {
		h.log.Warn("cache invalidation failed", logger.Err(err))
	}
	// Score changes also invalidate the overview listing.
	if err := h.cacheInval.ClearByPrefix(ctx, cache.PrefixStudentList); err != nil {
		h.log.Warn("cache invalidation failed", logger.Err(err))
	}

	return result, nil
}

func (h *ConsolidateOccurrenceHandler) applyScore(ctx context.Context, o *occurrence.Occurrence, delta float64, now time.Time) (float64, error) {
	newScore, err := h.studentRepo.ApplyDelta(ctx, o.StudentNumber, delta, now)
	if err != nil {
		return 0, err
	}

	if err := h.occurrenceRepo.MarkScoreApplied(ctx, o.ID, now); err != nil {
		// The delta landed but the marker write failed. Reconciliation will
		// re-apply the delta, so this is the one path that can double-count;
		// log it loudly for the operators.
		h.log.Error("score applied but marker write failed",
			logger.OccurrenceID(o.ID), logger.Err(err))
	} else {
		o.MarkScoreApplied(now)
	}

	if err := h.eventPublisher.Publish(shared.NewScoreAppliedEvent(o.StudentNumber, o.ID, delta, newScore)); err != nil {
		h.log.Warn("failed to publish score applied event", logger.Err(err))
	}

	return newScore, nil
}

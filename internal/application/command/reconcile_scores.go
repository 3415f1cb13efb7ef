package command

import (
	"context"
	"time"

	"github.com/fato-hub/comportamento-hub/internal/domain/occurrence"
	"github.com/fato-hub/comportamento-hub/internal/domain/shared"
	"github.com/fato-hub/comportamento-hub/internal/domain/student"
	"github.com/fato-hub/comportamento-hub/internal/infrastructure/cache"
	"github.com/fato-hub/comportamento-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE SCORES COMMAND
// Sweeps consolidated occurrences whose delta never reached the student
// record (a crash between the two consolidation writes) and replays the
// score write for each.
// ══════════════════════════════════════════════════════════════════════════════

// ReconcileScoresCommand runs one reconciliation sweep.
type ReconcileScoresCommand struct {
	// Limit bounds how many stranded occurrences one sweep processes
	// (0 = all).
	Limit int
}

// ReconcileScoresResult summarizes one sweep.
type ReconcileScoresResult struct {
	// Scanned is how many stranded occurrences the sweep found.
	Scanned int

	// Applied is how many deltas were successfully replayed.
	Applied int

	// Failed is how many replays errored and remain stranded.
	Failed int

	RanAt time.Time
}

// ReconcileScoresHandler handles the ReconcileScoresCommand.
type ReconcileScoresHandler struct {
	occurrenceRepo occurrence.Repository
	studentRepo    student.Repository
	eventPublisher shared.EventPublisher
	cacheInval     CacheInvalidator
	clock          shared.Clock
	log            *logger.Logger
}

// NewReconcileScoresHandler creates the handler.
func NewReconcileScoresHandler(
	occurrenceRepo occurrence.Repository,
	studentRepo student.Repository,
	eventPublisher shared.EventPublisher,
	cacheInval CacheInvalidator,
	clock shared.Clock,
	log *logger.Logger,
) *ReconcileScoresHandler {
	return &ReconcileScoresHandler{
		occurrenceRepo: occurrenceRepo,
		studentRepo:    studentRepo,
		eventPublisher: eventPublisher,
		cacheInval:     cacheInval,
		clock:          clock,
		log:            log.With(logger.Component("reconcile_scores")),
	}
}

// Handle replays stranded score writes, oldest consolidation first. Each
// occurrence is handled independently; one failure does not stop the sweep.
func (h *ReconcileScoresHandler) Handle(ctx context.Context, cmd ReconcileScoresCommand) (*ReconcileScoresResult, error) {
	stranded, err := h.occurrenceRepo.ListUnapplied(ctx, cmd.Limit)
	if err != nil {
		return nil, err
	}

	result := &ReconcileScoresResult{
		Scanned: len(stranded),
		RanAt:   h.clock.Now(),
	}

	for _, o := range stranded {
		if o.ScoreDelta == nil {
			continue
		}

		now := h.clock.Now()
		newScore, err := h.studentRepo.ApplyDelta(ctx, o.StudentNumber, *o.ScoreDelta, now)
		if err != nil {
			result.Failed++
			h.log.Error("reconciliation replay failed",
				logger.OccurrenceID(o.ID),
				logger.StudentNumber(o.StudentNumber),
				logger.Err(err),
			)
			continue
		}

		if err := h.occurrenceRepo.MarkScoreApplied(ctx, o.ID, now); err != nil {
			result.Failed++
			h.log.Error("reconciliation marker write failed",
				logger.OccurrenceID(o.ID), logger.Err(err))
			continue
		}

		result.Applied++
		h.log.Info("stranded score delta replayed",
			logger.OccurrenceID(o.ID),
			logger.StudentNumber(o.StudentNumber),
			logger.ScoreDelta(*o.ScoreDelta),
			logger.Score(newScore),
		)

		if err := h.eventPublisher.Publish(shared.NewScoreAppliedEvent(o.StudentNumber, o.ID, *o.ScoreDelta, newScore)); err != nil {
			h.log.Warn("failed to publish score applied event", logger.Err(err))
		}
		if err := h.cacheInval.ClearByPrefix(ctx, cache.StudentPrefix(o.StudentNumber)); err != nil {
			h.log.Warn("cache invalidation failed", logger.Err(err))
		}
		if err := h.cacheInval.ClearByPrefix(ctx, cache.PrefixOccurrenceList); err != nil {
			h.log.Warn("cache invalidation failed", logger.Err(err))
		}
		if err := h.cacheInval.ClearByPrefix(ctx, cache.PrefixStudentList); err != nil {
			h.log.Warn("cache invalidation failed", logger.Err(err))
		}
	}

	if result.Scanned > 0 {
		h.log.Info("reconciliation sweep finished",
			logger.Int("scanned", result.Scanned),
			logger.Int("applied", result.Applied),
			logger.Int("failed", result.Failed),
		)
	}

	return result, nil
}

package command

import (
	"context"
	"time"

	"github.com/fato-hub/comportamento-hub/internal/domain/occurrence"
	"github.com/fato-hub/comportamento-hub/internal/domain/shared"
	"github.com/fato-hub/comportamento-hub/internal/infrastructure/cache"
	"github.com/fato-hub/comportamento-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// FLAG OCCURRENCE COMMAND
// Attaches the disciplinary sanction and moves a pending occurrence into the
// consolidation queue (pendente -> consolidar).
// ══════════════════════════════════════════════════════════════════════════════

// FlagOccurrenceCommand marks an occurrence for consolidation.
type FlagOccurrenceCommand struct {
	// OccurrenceID identifies the record.
	OccurrenceID string

	// Sanction is the disciplinary classification to attach. Optional for
	// positive facts; required before a negative fact can consolidate with a
	// nonzero impact.
	Sanction occurrence.SanctionType

	// SanctionDays is the day count for per-day sanctions (defaults to 1).
	SanctionDays int
}

// Validate validates the command.
func (c FlagOccurrenceCommand) Validate() error {
	if c.OccurrenceID == "" {
		return shared.ErrInvalidID
	}
	if !c.Sanction.IsValid() {
		return shared.ErrInvalidSanction
	}
	return nil
}

// FlagOccurrenceResult contains the updated record.
type FlagOccurrenceResult struct {
	Occurrence *occurrence.Occurrence
	FlaggedAt  time.Time
}

// FlagOccurrenceHandler handles the FlagOccurrenceCommand.
type FlagOccurrenceHandler struct {
	occurrenceRepo occurrence.Repository
	eventPublisher shared.EventPublisher
	cacheInval     CacheInvalidator
	clock          shared.Clock
	log            *logger.Logger
}

// NewFlagOccurrenceHandler creates the handler.
func NewFlagOccurrenceHandler(
	occurrenceRepo occurrence.Repository,
	eventPublisher shared.EventPublisher,
	cacheInval CacheInvalidator,
	clock shared.Clock,
	log *logger.Logger,
) *FlagOccurrenceHandler {
	return &FlagOccurrenceHandler{
		occurrenceRepo: occurrenceRepo,
		eventPublisher: eventPublisher,
		cacheInval:     cacheInval,
		clock:          clock,
		log:            log.With(logger.Component("flag_occurrence")),
	}
}

// Handle attaches the sanction and flags the occurrence for consolidation.
func (h *FlagOccurrenceHandler) Handle(ctx context.Context, cmd FlagOccurrenceCommand) (*FlagOccurrenceResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	o, err := h.occurrenceRepo.GetByID(ctx, cmd.OccurrenceID)
	if err != nil {
		return nil, err
	}

	now := h.clock.Now()

	if cmd.Sanction != occurrence.SanctionNone {
		if err := o.AssignSanction(cmd.Sanction, cmd.SanctionDays); err != nil {
			return nil, err
		}
	}
	if err := o.Flag(now); err != nil {
		return nil, err
	}

	if err := h.occurrenceRepo.Update(ctx, o); err != nil {
		return nil, err
	}

	h.log.Info("occurrence flagged for consolidation",
		logger.OccurrenceID(o.ID),
		logger.StudentNumber(o.StudentNumber),
		logger.Sanction(o.Sanction.String()),
	)

	if err := h.eventPublisher.Publish(shared.NewOccurrenceFlaggedEvent(o.ID, o.StudentNumber, o.Sanction.String())); err != nil {
		h.log.Warn("failed to publish flagged event", logger.Err(err))
	}

	if err := h.cacheInval.ClearByPrefix(ctx, cache.StudentPrefix(o.StudentNumber)); err != nil {
		h.log.Warn("cache invalidation failed", logger.Err(err))
	}
	if err := h.cacheInval.ClearByPrefix(ctx, cache.PrefixOccurrenceList); err != nil {
		h.log.Warn("cache invalidation failed", logger.Err(err))
	}

	return &FlagOccurrenceResult{Occurrence: o, FlaggedAt: now}, nil
}

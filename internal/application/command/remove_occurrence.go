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
// REMOVE / RESTORE / ERASE OCCURRENCE COMMANDS
// Removal is a soft delete: the record drops out of default listings but any
// previously applied score delta stays on the student record. Restore brings
// the record back to pending; erase destroys it permanently.
// ══════════════════════════════════════════════════════════════════════════════

// RemoveOccurrenceCommand soft-deletes an occurrence.
type RemoveOccurrenceCommand struct {
	OccurrenceID string
}

// RestoreOccurrenceCommand brings a removed occurrence back to pending.
type RestoreOccurrenceCommand struct {
	OccurrenceID string
}

// EraseOccurrenceCommand permanently deletes a removed occurrence.
type EraseOccurrenceCommand struct {
	OccurrenceID string
}

// OccurrenceLifecycleResult is the shared result shape for the three commands.
type OccurrenceLifecycleResult struct {
	Occurrence *occurrence.Occurrence
	At         time.Time
}

// RemoveOccurrenceHandler handles removal, restore and erasure.
type RemoveOccurrenceHandler struct {
	occurrenceRepo occurrence.Repository
	eventPublisher shared.EventPublisher
	cacheInval     CacheInvalidator
	clock          shared.Clock
	log            *logger.Logger
}

// NewRemoveOccurrenceHandler creates the handler.
func NewRemoveOccurrenceHandler(
	occurrenceRepo occurrence.Repository,
	eventPublisher shared.EventPublisher,
	cacheInval CacheInvalidator,
	clock shared.Clock,
	log *logger.Logger,
) *RemoveOccurrenceHandler {
	return &RemoveOccurrenceHandler{
		occurrenceRepo: occurrenceRepo,
		eventPublisher: eventPublisher,
		cacheInval:     cacheInval,
		clock:          clock,
		log:            log.With(logger.Component("occurrence_lifecycle")),
	}
}

// HandleRemove soft-deletes the occurrence. Legal from any live state; the
// applied score delta, if any, is deliberately left standing.
func (h *RemoveOccurrenceHandler) HandleRemove(ctx context.Context, cmd RemoveOccurrenceCommand) (*OccurrenceLifecycleResult, error) {
	if cmd.OccurrenceID == "" {
		return nil, shared.ErrInvalidID
	}

	o, err := h.occurrenceRepo.GetByID(ctx, cmd.OccurrenceID)
	if err != nil {
		return nil, err
	}

	now := h.clock.Now()
	if err := o.Remove(now); err != nil {
		return nil, err
	}
	if err := h.occurrenceRepo.Update(ctx, o); err != nil {
		return nil, err
	}

	h.log.Info("occurrence removed",
		logger.OccurrenceID(o.ID), logger.StudentNumber(o.StudentNumber))

	if err := h.eventPublisher.Publish(shared.NewOccurrenceRemovedEvent(o.ID, o.StudentNumber)); err != nil {
		h.log.Warn("failed to publish removed event", logger.Err(err))
	}
	h.invalidate(ctx, o.StudentNumber)

	return &OccurrenceLifecycleResult{Occurrence: o, At: now}, nil
}

// HandleRestore brings a removed occurrence back to pending. Any previously
// applied delta stays; the restored record re-enters the lifecycle from the
// start.
func (h *RemoveOccurrenceHandler) HandleRestore(ctx context.Context, cmd RestoreOccurrenceCommand) (*OccurrenceLifecycleResult, error) {
	if cmd.OccurrenceID == "" {
		return nil, shared.ErrInvalidID
	}

	o, err := h.occurrenceRepo.GetByID(ctx, cmd.OccurrenceID)
	if err != nil {
		return nil, err
	}

	now := h.clock.Now()
	if err := o.Restore(now); err != nil {
		return nil, err
	}
	if err := h.occurrenceRepo.Update(ctx, o); err != nil {
		return nil, err
	}

	h.log.Info("occurrence restored",
		logger.OccurrenceID(o.ID), logger.StudentNumber(o.StudentNumber))

	if err := h.eventPublisher.Publish(shared.NewOccurrenceRestoredEvent(o.ID, o.StudentNumber)); err != nil {
		h.log.Warn("failed to publish restored event", logger.Err(err))
	}
	h.invalidate(ctx, o.StudentNumber)

	return &OccurrenceLifecycleResult{Occurrence: o, At: now}, nil
}

// HandleErase permanently deletes an occurrence. Only removed records can be
// erased; erasure is outside the state machine and irreversible.
func (h *RemoveOccurrenceHandler) HandleErase(ctx context.Context, cmd EraseOccurrenceCommand) (*OccurrenceLifecycleResult, error) {
	if cmd.OccurrenceID == "" {
		return nil, shared.ErrInvalidID
	}

	o, err := h.occurrenceRepo.GetByID(ctx, cmd.OccurrenceID)
	if err != nil {
		return nil, err
	}
	if !o.IsRemoved() {
		return nil, shared.ErrOccurrenceNotRemoved
	}

	now := h.clock.Now()
	if err := h.occurrenceRepo.Delete(ctx, o.ID); err != nil {
		return nil, err
	}

	h.log.Info("occurrence erased",
		logger.OccurrenceID(o.ID), logger.StudentNumber(o.StudentNumber))

	if err := h.eventPublisher.Publish(shared.NewOccurrenceErasedEvent(o.ID, o.StudentNumber)); err != nil {
		h.log.Warn("failed to publish erased event", logger.Err(err))
	}
	h.invalidate(ctx, o.StudentNumber)

	return &OccurrenceLifecycleResult{Occurrence: o, At: now}, nil
}

func (h *RemoveOccurrenceHandler) invalidate(ctx context.Context, studentNumber int) {
	if err := h.cacheInval.ClearByPrefix(ctx, cache.StudentPrefix(studentNumber)); err != nil {
		h.log.Warn("cache invalidation failed",
			logger.StudentNumber(studentNumber), logger.Err(err))
	}
	if err := h.cacheInval.ClearByPrefix(ctx, cache.PrefixOccurrenceList); err != nil {
		h.log.Warn("cache invalidation failed", logger.Err(err))
	}
}

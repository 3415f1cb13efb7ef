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
// UPDATE TICKET COMMAND
// The ticket number is a free-text reference to the external helpdesk record.
// It is mutable at any point of the lifecycle and never affects the score.
// ══════════════════════════════════════════════════════════════════════════════

// UpdateTicketCommand sets the external ticket reference on an occurrence.
type UpdateTicketCommand struct {
	OccurrenceID string
	TicketNumber string
}

// UpdateTicketResult contains the updated record.
type UpdateTicketResult struct {
	Occurrence *occurrence.Occurrence
	UpdatedAt  time.Time
}

// UpdateTicketHandler handles the UpdateTicketCommand.
type UpdateTicketHandler struct {
	occurrenceRepo occurrence.Repository
	cacheInval     CacheInvalidator
	clock          shared.Clock
	log            *logger.Logger
}

// NewUpdateTicketHandler creates the handler.
func NewUpdateTicketHandler(
	occurrenceRepo occurrence.Repository,
	cacheInval CacheInvalidator,
	clock shared.Clock,
	log *logger.Logger,
) *UpdateTicketHandler {
	return &UpdateTicketHandler{
		occurrenceRepo: occurrenceRepo,
		cacheInval:     cacheInval,
		clock:          clock,
		log:            log.With(logger.Component("update_ticket")),
	}
}

// Handle sets the ticket number regardless of lifecycle state.
func (h *UpdateTicketHandler) Handle(ctx context.Context, cmd UpdateTicketCommand) (*UpdateTicketResult, error) {
	if cmd.OccurrenceID == "" {
		return nil, shared.ErrInvalidID
	}

	o, err := h.occurrenceRepo.GetByID(ctx, cmd.OccurrenceID)
	if err != nil {
		return nil, err
	}

	now := h.clock.Now()
	o.SetTicket(cmd.TicketNumber, now)

	if err := h.occurrenceRepo.Update(ctx, o); err != nil {
		return nil, err
	}

	h.log.Info("ticket updated",
		logger.OccurrenceID(o.ID),
		logger.String("ticket_number", cmd.TicketNumber),
	)

	if err := h.cacheInval.ClearByPrefix(ctx, cache.StudentPrefix(o.StudentNumber)); err != nil {
		h.log.Warn("cache invalidation failed", logger.Err(err))
	}
	if err := h.cacheInval.ClearByPrefix(ctx, cache.PrefixOccurrenceList); err != nil {
		h.log.Warn("cache invalidation failed", logger.Err(err))
	}

	return &UpdateTicketResult{Occurrence: o, UpdatedAt: now}, nil
}

// Package eventhandler contains the reactive side of the system: handlers
// that subscribe to domain events and run side effects such as notification
// delivery. Handlers never feed back into the score; a failed side effect
// leaves the consolidation outcome untouched.
package eventhandler

import (
	"context"
	"fmt"
	"time"

	"github.com/fato-hub/comportamento-hub/internal/domain/shared"
	"github.com/fato-hub/comportamento-hub/internal/infrastructure/service"
	"github.com/fato-hub/comportamento-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ON OCCURRENCE CONSOLIDATED
// Notifies the coordination inbox whenever a consolidation lands, so the
// pedagogic team sees score-affecting decisions without polling the system.
// ══════════════════════════════════════════════════════════════════════════════

// ConsolidatedNotifierConfig configures the handler.
type ConsolidatedNotifierConfig struct {
	// Recipients receive every consolidation notice.
	Recipients []string

	// OnlyScoreAffecting suppresses notices for zero-delta consolidations
	// (positive facts, warnings).
	OnlyScoreAffecting bool

	// SendTimeout bounds one delivery attempt end to end.
	SendTimeout time.Duration
}

// DefaultConsolidatedNotifierConfig returns sensible defaults.
func DefaultConsolidatedNotifierConfig() ConsolidatedNotifierConfig {
	return ConsolidatedNotifierConfig{
		OnlyScoreAffecting: true,
		SendTimeout:        30 * time.Second,
	}
}

// OnOccurrenceConsolidated handles OccurrenceConsolidatedEvent.
type OnOccurrenceConsolidated struct {
	notifier  service.Notifier
	publisher shared.EventPublisher
	config    ConsolidatedNotifierConfig
	log       *logger.Logger
}

// NewOnOccurrenceConsolidated creates the handler.
func NewOnOccurrenceConsolidated(
	notifier service.Notifier,
	publisher shared.EventPublisher,
	config ConsolidatedNotifierConfig,
	log *logger.Logger,
) *OnOccurrenceConsolidated {
	if config.SendTimeout <= 0 {
		config.SendTimeout = 30 * time.Second
	}
	return &OnOccurrenceConsolidated{
		notifier:  notifier,
		publisher: publisher,
		config:    config,
		log:       log.With(logger.Component("on_occurrence_consolidated")),
	}
}

// Handler returns the shared.EventHandler to register on the bus.
func (h *OnOccurrenceConsolidated) Handler() shared.EventHandler {
	return func(event shared.Event) error {
		e, ok := event.(shared.OccurrenceConsolidatedEvent)
		if !ok {
			return nil
		}
		return h.handle(e)
	}
}

func (h *OnOccurrenceConsolidated) handle(e shared.OccurrenceConsolidatedEvent) error {
	if len(h.config.Recipients) == 0 {
		return nil
	}
	if h.config.OnlyScoreAffecting && e.ScoreDelta == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.SendTimeout)
	defer cancel()

	msg := service.Message{
		To:      h.config.Recipients,
		Subject: fmt.Sprintf("Ocorrência consolidada - aluno %d", e.StudentNumber),
		Body: fmt.Sprintf(
			"Ocorrência %s consolidada.\n\nAluno: %d\nSanção: %s (%d dia(s))\nVariação: %.2f\nNovo status: %s\n",
			e.OccurrenceID, e.StudentNumber, e.Sanction, e.SanctionDays, e.ScoreDelta, e.NextStatus,
		),
	}

	if err := h.notifier.Notify(ctx, msg); err != nil {
		h.log.Error("consolidation notice failed",
			logger.OccurrenceID(e.OccurrenceID), logger.Err(err))
		h.publishOutcome(shared.EventNotificationFailed, e.OccurrenceID)
		return err
	}

	h.publishOutcome(shared.EventNotificationSent, e.OccurrenceID)
	return nil
}

func (h *OnOccurrenceConsolidated) publishOutcome(t shared.EventType, occurrenceID string) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.Publish(shared.NewNotificationEvent(t, occurrenceID)); err != nil {
		h.log.Warn("failed to publish notification outcome", logger.Err(err))
	}
}

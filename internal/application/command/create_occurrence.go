// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fato-hub/comportamento-hub/internal/domain/occurrence"
	"github.com/fato-hub/comportamento-hub/internal/domain/shared"
	"github.com/fato-hub/comportamento-hub/internal/domain/student"
	"github.com/fato-hub/comportamento-hub/internal/infrastructure/cache"
	"github.com/fato-hub/comportamento-hub/pkg/logger"

	"github.com/google/uuid"
)

// CacheInvalidator is the slice of the cache layer the write side needs:
// commands only ever evict, never populate.
type CacheInvalidator interface {
	ClearByPrefix(ctx context.Context, prefix string) error
}

// ══════════════════════════════════════════════════════════════════════════════
// CREATE OCCURRENCE COMMAND
// Registers a behavioral fact for one or more students in a single request.
// Every record starts pending; sanction and score come later in the lifecycle.
// ══════════════════════════════════════════════════════════════════════════════

// CreateOccurrenceCommand contains the data to register an occurrence.
type CreateOccurrenceCommand struct {
	// StudentNumbers are the subject students; one record is created per
	// student.
	StudentNumbers []int

	// Kind classifies the fact (positivo, negativo, neutro).
	Kind occurrence.Kind

	// FactDate is the calendar date of the observed event.
	FactDate time.Time

	// Description is the operator's account of the fact.
	Description string
}

// Validate validates the command.
func (c CreateOccurrenceCommand) Validate() error {
	if len(c.StudentNumbers) == 0 {
		return fmt.Errorf("create_occurrence: at least one student number is required: %w", shared.ErrInvalidInput)
	}
	for _, n := range c.StudentNumbers {
		if n <= 0 {
			return shared.ErrInvalidStudentNumber
		}
	}
	if !c.Kind.IsValid() {
		return shared.ErrInvalidKind
	}
	if c.FactDate.IsZero() {
		return fmt.Errorf("create_occurrence: fact date is required: %w", shared.ErrInvalidInput)
	}
	return nil
}

// CreateOccurrenceResult contains the created records.
type CreateOccurrenceResult struct {
	Occurrences []*occurrence.Occurrence
	CreatedAt   time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CreateOccurrenceHandler handles the CreateOccurrenceCommand.
type CreateOccurrenceHandler struct {
	occurrenceRepo occurrence.Repository
	studentRepo    student.Repository
	eventPublisher shared.EventPublisher
	cacheInval     CacheInvalidator
	clock          shared.Clock
	log            *logger.Logger
}

// NewCreateOccurrenceHandler creates the handler.
func NewCreateOccurrenceHandler(
	occurrenceRepo occurrence.Repository,
	studentRepo student.Repository,
	eventPublisher shared.EventPublisher,
	cacheInval CacheInvalidator,
	clock shared.Clock,
	log *logger.Logger,
) *CreateOccurrenceHandler {
	return &CreateOccurrenceHandler{
		occurrenceRepo: occurrenceRepo,
		studentRepo:    studentRepo,
		eventPublisher: eventPublisher,
		cacheInval:     cacheInval,
		clock:          clock,
		log:            log.With(logger.Component("create_occurrence")),
	}
}

// Handle registers one occurrence per requested student. A student with no
// score record yet gets one at the initial score before the fact is stored.
// The inserts ride one batch; a failure anywhere aborts the whole request.
func (h *CreateOccurrenceHandler) Handle(ctx context.Context, cmd CreateOccurrenceCommand) (*CreateOccurrenceResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	now := h.clock.Now()
	occs := make([]*occurrence.Occurrence, 0, len(cmd.StudentNumbers))

	for _, studentNumber := range cmd.StudentNumbers {
		if err := h.ensureStudent(ctx, studentNumber, now); err != nil {
			return nil, err
		}

		o, err := occurrence.New(uuid.NewString(), studentNumber, cmd.Kind, cmd.FactDate, cmd.Description, now)
		if err != nil {
			return nil, err
		}
		occs = append(occs, o)
	}

	if err := h.occurrenceRepo.CreateMany(ctx, occs); err != nil {
		return nil, err
	}

	for _, o := range occs {
		h.log.Info("occurrence created",
			logger.OccurrenceID(o.ID),
			logger.StudentNumber(o.StudentNumber),
			logger.String("kind", o.Kind.String()),
		)

		if err := h.eventPublisher.Publish(shared.NewOccurrenceCreatedEvent(o.ID, o.StudentNumber, o.Kind.String())); err != nil {
			h.log.Warn("failed to publish created event", logger.Err(err))
		}

		if err := h.cacheInval.ClearByPrefix(ctx, cache.StudentPrefix(o.StudentNumber)); err != nil {
			h.log.Warn("cache invalidation failed",
				logger.StudentNumber(o.StudentNumber), logger.Err(err))
		}
	}

	if err := h.cacheInval.ClearByPrefix(ctx, cache.PrefixOccurrenceList); err != nil {
		h.log.Warn("cache invalidation failed", logger.Err(err))
	}

	return &CreateOccurrenceResult{Occurrences: occs, CreatedAt: now}, nil
}

func (h *CreateOccurrenceHandler) ensureStudent(ctx context.Context, studentNumber int, now time.Time) error {
	_, err := h.studentRepo.GetByNumber(ctx, studentNumber)
	if err == nil {
		return nil
	}
	if !errors.Is(err, shared.ErrStudentNotFound) {
		return err
	}

	rec, err := student.NewScoreRecord(studentNumber, now)
	if err != nil {
		return err
	}
	return h.studentRepo.Create(ctx, rec)
}

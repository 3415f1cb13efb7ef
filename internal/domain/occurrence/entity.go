// Package occurrence contains the domain model for disciplinary records
// ("fatos observados"). This is core business logic - no external dependencies.
package occurrence

import (
	"strings"
	"time"

	"github.com/fato-hub/comportamento-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Kind classifies the nature of the observed fact.
// The values are the persisted wire values.
type Kind string

const (
	// KindPositive - commendable behavior; consolidation never reduces the score.
	KindPositive Kind = "positivo"
	// KindNegative - disciplinary infraction carrying a sanction.
	KindNegative Kind = "negativo"
	// KindNeutral - registered fact with no reducing sanction.
	KindNeutral Kind = "neutro"
)

// IsValid reports whether the kind is one of the closed set.
func (k Kind) IsValid() bool {
	switch k {
	case KindPositive, KindNegative, KindNeutral:
		return true
	default:
		return false
	}
}

// String returns the wire value.
func (k Kind) String() string {
	return string(k)
}

// ParseKind parses a wire value into a Kind.
func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(raw)))
	if !k.IsValid() {
		return "", shared.ErrInvalidKind
	}
	return k, nil
}

// SanctionType is the disciplinary classification attached to an occurrence.
// The values are the persisted wire values.
type SanctionType string

const (
	// SanctionNone - no sanction attached (yet).
	SanctionNone SanctionType = ""
	// SanctionJustified - the fact was justified; never contributes to score.
	SanctionJustified SanctionType = "JUSTIFICADO"
	// SanctionWarning - verbal/written warning, no score impact.
	SanctionWarning SanctionType = "ADVERTENCIA"
	// SanctionReprimand - formal reprimand.
	SanctionReprimand SanctionType = "REPREENSAO"
	// SanctionGuidedActivity - supervised educational activity.
	SanctionGuidedActivity SanctionType = "ATIVIDADE_OE"
	// SanctionSuspension - per-day suspension ("retirada"), capped at 6 chargeable days.
	SanctionSuspension SanctionType = "RETIRADA"
)

// IsValid reports whether the sanction is one of the closed set.
func (s SanctionType) IsValid() bool {
	switch s {
	case SanctionNone, SanctionJustified, SanctionWarning,
		SanctionReprimand, SanctionGuidedActivity, SanctionSuspension:
		return true
	default:
		return false
	}
}

// ReducesScore reports whether the sanction carries a negative score impact.
func (s SanctionType) ReducesScore() bool {
	switch s {
	case SanctionReprimand, SanctionGuidedActivity, SanctionSuspension:
		return true
	default:
		return false
	}
}

// PerDay reports whether the sanction impact multiplies by sanction days.
func (s SanctionType) PerDay() bool {
	return s == SanctionSuspension
}

// String returns the wire value.
func (s SanctionType) String() string {
	return string(s)
}

// ParseSanction parses a wire value into a SanctionType.
func ParseSanction(raw string) (SanctionType, error) {
	s := SanctionType(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return SanctionNone, shared.ErrInvalidSanction
	}
	return s, nil
}

// Status is the lifecycle state of an occurrence.
// The values are the persisted wire values; "glpi" marks soft-deleted records.
type Status string

const (
	// StatusPending - initial state, awaiting operator review.
	StatusPending Status = "pendente"
	// StatusToConsolidate - flagged by an operator for consolidation.
	StatusToConsolidate Status = "consolidar"
	// StatusToConclude - consolidated negative/neutral fact awaiting conclusion.
	StatusToConclude Status = "concluir"
	// StatusClosed - terminal state for the positive path.
	StatusClosed Status = "encerrado"
	// StatusRemoved - soft-deleted; restorable or permanently erasable.
	StatusRemoved Status = "glpi"
)

// IsValid reports whether the status is one of the closed set.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusToConsolidate, StatusToConclude, StatusClosed, StatusRemoved:
		return true
	default:
		return false
	}
}

// IsConsolidated reports whether consolidation has already happened in this state.
func (s Status) IsConsolidated() bool {
	return s == StatusToConclude || s == StatusClosed
}

// String returns the wire value.
func (s Status) String() string {
	return string(s)
}

// ParseStatus parses a wire value into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", shared.ErrInvalidStatus
	}
	return s, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STATE MACHINE
// ══════════════════════════════════════════════════════════════════════════════

// transitions is the closed transition table. Anything not listed here is
// rejected; callers never write status strings directly.
var transitions = map[Status][]Status{
	StatusPending:       {StatusToConsolidate, StatusRemoved},
	StatusToConsolidate: {StatusToConclude, StatusClosed, StatusRemoved},
	StatusToConclude:    {StatusRemoved},
	StatusClosed:        {StatusRemoved},
	StatusRemoved:       {StatusPending},
}

// CanTransition reports whether from -> to is a legal status transition.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatusForKind returns the post-consolidation status for a kind:
// positive facts close immediately, negative/neutral await conclusion.
func NextStatusForKind(k Kind) Status {
	if k == KindPositive {
		return StatusClosed
	}
	return StatusToConclude
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: OCCURRENCE
// ══════════════════════════════════════════════════════════════════════════════

// Occurrence is a single recorded behavioral event for one student.
type Occurrence struct {
	// ID is the opaque identifier assigned at creation. Immutable.
	ID string

	// StudentNumber is the subject student. Immutable after creation.
	StudentNumber int

	// Kind classifies the fact. Immutable.
	Kind Kind

	// Sanction is the disciplinary classification, set at or before
	// consolidation. SanctionNone until one is assigned.
	Sanction SanctionType

	// SanctionDays is the day count for per-day sanctions. Defaults to 1.
	SanctionDays int

	// FactDate is the calendar date of the observed event. Immutable.
	FactDate time.Time

	// Status is the current lifecycle state.
	Status Status

	// ScoreDelta is the score impact, set exactly once at consolidation.
	// Nil until then; 0 for positive occurrences.
	ScoreDelta *float64

	// ConsolidatedAt is when consolidation happened.
	ConsolidatedAt *time.Time

	// ScoreAppliedAt is when the delta landed on the student record.
	// Nil while the second consolidation write is still outstanding.
	ScoreAppliedAt *time.Time

	// DeletedAt / RestoredAt track the soft-delete lifecycle.
	DeletedAt  *time.Time
	RestoredAt *time.Time

	// TicketNumber is a free-text external reference, mutable at any time.
	TicketNumber string

	// Description is the operator's account of the fact.
	Description string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a pending occurrence for a student.
func New(id string, studentNumber int, kind Kind, factDate time.Time, description string, now time.Time) (*Occurrence, error) {
	o := &Occurrence{
		ID:            id,
		StudentNumber: studentNumber,
		Kind:          kind,
		Sanction:      SanctionNone,
		SanctionDays:  1,
		FactDate:      factDate,
		Status:        StatusPending,
		Description:   description,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Validate checks the entity invariants.
func (o *Occurrence) Validate() error {
	if o.ID == "" {
		return shared.NewDomainError("occurrence", "Validate", shared.ErrInvalidID, "empty occurrence id")
	}
	if o.StudentNumber <= 0 {
		return shared.ErrInvalidStudentNumber
	}
	if !o.Kind.IsValid() {
		return shared.ErrInvalidKind
	}
	if !o.Sanction.IsValid() {
		return shared.ErrInvalidSanction
	}
	if !o.Status.IsValid() {
		return shared.ErrInvalidStatus
	}
	if o.SanctionDays <= 0 {
		return shared.NewDomainError("occurrence", "Validate", shared.ErrValueOutOfRange, "sanction days must be positive")
	}
	if o.FactDate.IsZero() {
		return shared.NewDomainError("occurrence", "Validate", shared.ErrEmptyValue, "fact date is required")
	}
	// Positive and neutral facts never carry a score-reducing sanction.
	if o.Kind != KindNegative && o.Sanction.ReducesScore() {
		return shared.NewDomainError("occurrence", "Validate", shared.ErrInvalidInput,
			"only negative occurrences may carry a reducing sanction")
	}
	// A consolidated status without its delta means a half-written record.
	// The converse (delta with a non-consolidated status) is legal only for
	// removed or restored records, which keep their previously applied delta.
	if o.Status.IsConsolidated() && o.ScoreDelta == nil {
		return shared.NewDomainError("occurrence", "Validate", shared.ErrInvalidState,
			"consolidated occurrence is missing its score delta")
	}
	if o.ScoreDelta != nil && !o.Status.IsConsolidated() &&
		o.Status != StatusRemoved && o.RestoredAt == nil {
		return shared.NewDomainError("occurrence", "Validate", shared.ErrInvalidState,
			"score delta set before consolidation")
	}
	return nil
}

// IsConsolidated reports whether consolidation has occurred.
func (o *Occurrence) IsConsolidated() bool {
	return o.ScoreDelta != nil
}

// IsRemoved reports whether the occurrence is soft-deleted.
func (o *Occurrence) IsRemoved() bool {
	return o.Status == StatusRemoved
}

// AssignSanction attaches a sanction before consolidation.
func (o *Occurrence) AssignSanction(sanction SanctionType, days int) error {
	if o.IsConsolidated() {
		return shared.ErrAlreadyConsolidated
	}
	if !sanction.IsValid() {
		return shared.ErrInvalidSanction
	}
	if o.Kind != KindNegative && sanction.ReducesScore() {
		return shared.NewDomainError("occurrence", "AssignSanction", shared.ErrInvalidInput,
			"only negative occurrences may carry a reducing sanction")
	}
	if days <= 0 {
		days = 1
	}
	o.Sanction = sanction
	o.SanctionDays = days
	return nil
}

// Flag moves a pending occurrence into the consolidation queue.
func (o *Occurrence) Flag(now time.Time) error {
	if !CanTransition(o.Status, StatusToConsolidate) {
		return shared.ErrInvalidTransition
	}
	o.Status = StatusToConsolidate
	o.UpdatedAt = now
	return nil
}

// MarkConsolidated records the consolidation outcome on the entity.
// It enforces the at-most-once invariant: a set ScoreDelta blocks re-entry.
func (o *Occurrence) MarkConsolidated(delta float64, next Status, now time.Time) error {
	if o.IsConsolidated() {
		return shared.ErrAlreadyConsolidated
	}
	if !CanTransition(o.Status, next) {
		return shared.ErrInvalidTransition
	}
	o.ScoreDelta = &delta
	o.Status = next
	o.ConsolidatedAt = &now
	o.UpdatedAt = now
	return nil
}

// MarkScoreApplied records that the student-score write landed.
func (o *Occurrence) MarkScoreApplied(now time.Time) {
	o.ScoreAppliedAt = &now
	o.UpdatedAt = now
}

// Remove soft-deletes the occurrence. Legal from any live state.
func (o *Occurrence) Remove(now time.Time) error {
	if !CanTransition(o.Status, StatusRemoved) {
		return shared.ErrInvalidTransition
	}
	o.Status = StatusRemoved
	o.DeletedAt = &now
	o.UpdatedAt = now
	return nil
}

// Restore brings a removed occurrence back to pending.
// A previously applied score delta is deliberately left in place.
func (o *Occurrence) Restore(now time.Time) error {
	if o.Status != StatusRemoved {
		return shared.ErrOccurrenceNotRemoved
	}
	o.Status = StatusPending
	o.RestoredAt = &now
	o.UpdatedAt = now
	return nil
}

// SetTicket updates the external ticket reference. Independent of status.
func (o *Occurrence) SetTicket(ticket string, now time.Time) {
	o.TicketNumber = ticket
	o.UpdatedAt = now
}

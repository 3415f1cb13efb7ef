// Package shared contains common domain types, errors, events, and the clock
// abstraction used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - each represents something significant that happened
// in the disciplinary record lifecycle.
const (
	// Occurrence lifecycle events
	EventOccurrenceCreated      EventType = "occurrence.created"
	EventOccurrenceFlagged      EventType = "occurrence.flagged"
	EventOccurrenceConsolidated EventType = "occurrence.consolidated"
	EventOccurrenceRemoved      EventType = "occurrence.removed"
	EventOccurrenceRestored     EventType = "occurrence.restored"
	EventOccurrenceErased       EventType = "occurrence.erased"

	// Score events
	EventScoreApplied EventType = "score.applied"

	// Notification events
	EventNotificationSent   EventType = "notification.sent"
	EventNotificationFailed EventType = "notification.failed"

	// System events
	EventScoresReconciled EventType = "system.scores_reconciled"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// EventHandler processes a domain event.
type EventHandler func(event Event) error

// EventPublisher publishes domain events to interested subscribers.
type EventPublisher interface {
	Publish(event Event) error
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Occurrence Events
// ═══════════════════════════════════════════════════════════════════════════

// OccurrenceCreatedEvent is emitted when an occurrence is registered.
type OccurrenceCreatedEvent struct {
	BaseEvent
	OccurrenceID  string
	StudentNumber int
	Kind          string
}

// Payload implements Event interface.
func (e OccurrenceCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"occurrence_id":  e.OccurrenceID,
		"student_number": e.StudentNumber,
		"kind":           e.Kind,
	}
}

// NewOccurrenceCreatedEvent creates the creation event.
func NewOccurrenceCreatedEvent(occurrenceID string, studentNumber int, kind string) OccurrenceCreatedEvent {
	return OccurrenceCreatedEvent{
		BaseEvent:     NewBaseEvent(EventOccurrenceCreated, occurrenceID),
		OccurrenceID:  occurrenceID,
		StudentNumber: studentNumber,
		Kind:          kind,
	}
}

// OccurrenceFlaggedEvent is emitted when an occurrence enters the
// consolidation queue.
type OccurrenceFlaggedEvent struct {
	BaseEvent
	OccurrenceID  string
	StudentNumber int
	Sanction      string
}

// Payload implements Event interface.
func (e OccurrenceFlaggedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"occurrence_id":  e.OccurrenceID,
		"student_number": e.StudentNumber,
		"sanction":       e.Sanction,
	}
}

// NewOccurrenceFlaggedEvent creates the flagged event.
func NewOccurrenceFlaggedEvent(occurrenceID string, studentNumber int, sanction string) OccurrenceFlaggedEvent {
	return OccurrenceFlaggedEvent{
		BaseEvent:     NewBaseEvent(EventOccurrenceFlagged, occurrenceID),
		OccurrenceID:  occurrenceID,
		StudentNumber: studentNumber,
		Sanction:      sanction,
	}
}

// OccurrenceErasedEvent is emitted when a removed occurrence is permanently
// erased.
type OccurrenceErasedEvent struct {
	BaseEvent
	OccurrenceID  string
	StudentNumber int
}

// Payload implements Event interface.
func (e OccurrenceErasedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"occurrence_id":  e.OccurrenceID,
		"student_number": e.StudentNumber,
	}
}

// NewOccurrenceErasedEvent creates the erasure event.
func NewOccurrenceErasedEvent(occurrenceID string, studentNumber int) OccurrenceErasedEvent {
	return OccurrenceErasedEvent{
		BaseEvent:     NewBaseEvent(EventOccurrenceErased, occurrenceID),
		OccurrenceID:  occurrenceID,
		StudentNumber: studentNumber,
	}
}

// OccurrenceConsolidatedEvent is emitted when an occurrence is consolidated
// and its score impact has been computed.
type OccurrenceConsolidatedEvent struct {
	BaseEvent
	OccurrenceID  string
	StudentNumber int
	Sanction      string
	SanctionDays  int
	ScoreDelta    float64
	NextStatus    string
}

// Payload implements Event interface.
func (e OccurrenceConsolidatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"occurrence_id":  e.OccurrenceID,
		"student_number": e.StudentNumber,
		"sanction":       e.Sanction,
		"sanction_days":  e.SanctionDays,
		"score_delta":    e.ScoreDelta,
		"next_status":    e.NextStatus,
	}
}

// NewOccurrenceConsolidatedEvent creates the consolidation event.
func NewOccurrenceConsolidatedEvent(occurrenceID string, studentNumber int, sanction string, sanctionDays int, scoreDelta float64, nextStatus string) OccurrenceConsolidatedEvent {
	return OccurrenceConsolidatedEvent{
		BaseEvent:     NewBaseEvent(EventOccurrenceConsolidated, occurrenceID),
		OccurrenceID:  occurrenceID,
		StudentNumber: studentNumber,
		Sanction:      sanction,
		SanctionDays:  sanctionDays,
		ScoreDelta:    scoreDelta,
		NextStatus:    nextStatus,
	}
}

// ScoreAppliedEvent is emitted after a score delta lands on the student record.
type ScoreAppliedEvent struct {
	BaseEvent
	StudentNumber int
	OccurrenceID  string
	Delta         float64
	NewScore      float64
}

// Payload implements Event interface.
func (e ScoreAppliedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_number": e.StudentNumber,
		"occurrence_id":  e.OccurrenceID,
		"delta":          e.Delta,
		"new_score":      e.NewScore,
	}
}

// NewScoreAppliedEvent creates the score applied event.
func NewScoreAppliedEvent(studentNumber int, occurrenceID string, delta, newScore float64) ScoreAppliedEvent {
	return ScoreAppliedEvent{
		BaseEvent:     NewBaseEvent(EventScoreApplied, occurrenceID),
		StudentNumber: studentNumber,
		OccurrenceID:  occurrenceID,
		Delta:         delta,
		NewScore:      newScore,
	}
}

// NotificationEvent reports the outcome of one notification delivery.
type NotificationEvent struct {
	BaseEvent
	OccurrenceID string
}

// Payload implements Event interface.
func (e NotificationEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"occurrence_id": e.OccurrenceID,
	}
}

// NewNotificationEvent creates a sent/failed notification event.
func NewNotificationEvent(t EventType, occurrenceID string) NotificationEvent {
	return NotificationEvent{
		BaseEvent:    NewBaseEvent(t, occurrenceID),
		OccurrenceID: occurrenceID,
	}
}

// OccurrenceRemovedEvent is emitted when an occurrence is soft-deleted.
type OccurrenceRemovedEvent struct {
	BaseEvent
	OccurrenceID  string
	StudentNumber int
}

// Payload implements Event interface.
func (e OccurrenceRemovedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"occurrence_id":  e.OccurrenceID,
		"student_number": e.StudentNumber,
	}
}

// NewOccurrenceRemovedEvent creates the removal event.
func NewOccurrenceRemovedEvent(occurrenceID string, studentNumber int) OccurrenceRemovedEvent {
	return OccurrenceRemovedEvent{
		BaseEvent:     NewBaseEvent(EventOccurrenceRemoved, occurrenceID),
		OccurrenceID:  occurrenceID,
		StudentNumber: studentNumber,
	}
}

// OccurrenceRestoredEvent is emitted when a removed occurrence goes back to pending.
type OccurrenceRestoredEvent struct {
	BaseEvent
	OccurrenceID  string
	StudentNumber int
}

// Payload implements Event interface.
func (e OccurrenceRestoredEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"occurrence_id":  e.OccurrenceID,
		"student_number": e.StudentNumber,
	}
}

// NewOccurrenceRestoredEvent creates the restore event.
func NewOccurrenceRestoredEvent(occurrenceID string, studentNumber int) OccurrenceRestoredEvent {
	return OccurrenceRestoredEvent{
		BaseEvent:     NewBaseEvent(EventOccurrenceRestored, occurrenceID),
		OccurrenceID:  occurrenceID,
		StudentNumber: studentNumber,
	}
}

package occurrence

import (
	"context"
	"time"
)

// Filter narrows occurrence listings.
type Filter struct {
	// StudentNumber limits results to one student (0 = all).
	StudentNumber int

	// Status limits results to one lifecycle state ("" = all).
	Status Status

	// Kind limits results to one kind ("" = all).
	Kind Kind

	// FactFrom / FactTo bound the fact date (zero = unbounded).
	FactFrom time.Time
	FactTo   time.Time

	// IncludeRemoved also returns soft-deleted records.
	IncludeRemoved bool

	// Limit / Offset paginate (Limit 0 = no limit).
	Limit  int
	Offset int
}

// Repository is the persistence boundary for occurrences.
type Repository interface {
	// Create inserts a new occurrence.
	Create(ctx context.Context, o *Occurrence) error

	// CreateMany inserts a batch of occurrences. Used by the multi-student
	// fan-out so one fact lands for every subject in a single round trip.
	CreateMany(ctx context.Context, occs []*Occurrence) error

	// GetByID returns an occurrence by its ID, including removed ones.
	// Returns shared.ErrOccurrenceNotFound if absent.
	GetByID(ctx context.Context, id string) (*Occurrence, error)

	// List returns occurrences matching the filter, newest fact first.
	List(ctx context.Context, filter Filter) ([]*Occurrence, error)

	// Update persists the mutable fields of an occurrence.
	Update(ctx context.Context, o *Occurrence) error

	// Consolidate conditionally writes the consolidation outcome: status,
	// delta and timestamp land only if the stored delta is still null.
	// Returns shared.ErrAlreadyConsolidated when the guard fails, closing
	// the stale-read race between two concurrent consolidations.
	Consolidate(ctx context.Context, id string, delta float64, next Status, at time.Time) error

	// MarkScoreApplied records that the student-score write for a
	// consolidated occurrence has landed.
	MarkScoreApplied(ctx context.Context, id string, at time.Time) error

	// ListUnapplied returns consolidated occurrences whose score delta has
	// not yet been reflected on the student record.
	ListUnapplied(ctx context.Context, limit int) ([]*Occurrence, error)

	// Delete permanently erases an occurrence. Irreversible; outside the
	// state machine.
	Delete(ctx context.Context, id string) error
}

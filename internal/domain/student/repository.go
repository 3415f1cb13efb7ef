package student

import (
	"context"
	"time"
)

// Repository is the persistence boundary for student score records.
type Repository interface {
	// Create inserts a new score record at the initial score.
	Create(ctx context.Context, r *ScoreRecord) error

	// GetByNumber returns the score record for a student.
	// Returns shared.ErrStudentNotFound if absent.
	GetByNumber(ctx context.Context, studentNumber int) (*ScoreRecord, error)

	// ListAll returns every score record, ordered by student number.
	ListAll(ctx context.Context) ([]*ScoreRecord, error)

	// ApplyDelta atomically adds delta to the stored score, clamped to
	// [0, 10] and rounded to 2 decimals, stamping the update time.
	// Returns the new score, or shared.ErrStudentNotFound: updating a
	// nonexistent student's score fails loudly rather than upserting.
	ApplyDelta(ctx context.Context, studentNumber int, delta float64, at time.Time) (float64, error)
}

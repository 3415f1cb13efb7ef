// Package student contains the student score record: one comportamento score
// per student, clamped to [0, 10]. This is core business logic - no external
// dependencies.
package student

import (
	"math"
	"time"

	"github.com/fato-hub/comportamento-hub/internal/domain/shared"
)

// Score bounds and the starting value for every student.
const (
	MinScore     = 0.0
	MaxScore     = 10.0
	InitialScore = 10.0
)

// ScoreRecord is the stored comportamento score for one student.
type ScoreRecord struct {
	// StudentNumber is the key ("numero" on the wire).
	StudentNumber int

	// Score is the current comportamento score, always within [0, 10]
	// and rounded to 2 decimal places after any mutation.
	Score float64

	// LastScoreUpdateAt is the timestamp of the last score mutation.
	LastScoreUpdateAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewScoreRecord creates a record at the initial score.
func NewScoreRecord(studentNumber int, now time.Time) (*ScoreRecord, error) {
	if studentNumber <= 0 {
		return nil, shared.ErrInvalidStudentNumber
	}
	return &ScoreRecord{
		StudentNumber:     studentNumber,
		Score:             InitialScore,
		LastScoreUpdateAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// ApplyDelta mutates the score by delta, clamping to [0, 10] and rounding
// to 2 decimals, and stamps the mutation time.
func (r *ScoreRecord) ApplyDelta(delta float64, now time.Time) {
	r.Score = ClampScore(r.Score + delta)
	r.LastScoreUpdateAt = now
	r.UpdatedAt = now
}

// Validate checks the record invariants.
func (r *ScoreRecord) Validate() error {
	if r.StudentNumber <= 0 {
		return shared.ErrInvalidStudentNumber
	}
	if r.Score < MinScore || r.Score > MaxScore {
		return shared.ErrScoreOutOfRange
	}
	return nil
}

// ClampScore bounds a score to [0, 10] and rounds to 2 decimal places.
// Rounding happens only at this output boundary, never mid-computation.
func ClampScore(score float64) float64 {
	if score < MinScore {
		score = MinScore
	}
	if score > MaxScore {
		score = MaxScore
	}
	return math.Round(score*100) / 100
}

package command

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fato-hub/comportamento-hub/internal/domain/occurrence"
	"github.com/fato-hub/comportamento-hub/internal/domain/shared"
	"github.com/fato-hub/comportamento-hub/internal/domain/student"
	"github.com/fato-hub/comportamento-hub/internal/infrastructure/cache"
	"github.com/fato-hub/comportamento-hub/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError})
}

type consolidationFixture struct {
	occurrences *fakeOccurrenceRepo
	students    *fakeStudentRepo
	publisher   *fakePublisher
	invalidator *fakeInvalidator
	clock       shared.FixedClock
	handler     *ConsolidateOccurrenceHandler
}

func newConsolidationFixture(t *testing.T) *consolidationFixture {
	t.Helper()

	f := &consolidationFixture{
		occurrences: newFakeOccurrenceRepo(),
		students:    newFakeStudentRepo(),
		publisher:   &fakePublisher{},
		invalidator: &fakeInvalidator{},
		clock:       shared.FixedClock{Instant: time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC)},
	}
	f.handler = NewConsolidateOccurrenceHandler(
		f.occurrences, f.students, f.publisher, f.invalidator, f.clock, testLogger(),
	)
	return f
}

// seedFlagged stores a student at the initial score and one flagged
// occurrence carrying the given sanction.
func (f *consolidationFixture) seedFlagged(t *testing.T, id string, kind occurrence.Kind, sanction occurrence.SanctionType, days int) {
	t.Helper()

	now := f.clock.Now()
	if _, err := f.students.GetByNumber(context.Background(), 42); err != nil {
		rec, err := student.NewScoreRecord(42, now)
		require.NoError(t, err)
		require.NoError(t, f.students.Create(context.Background(), rec))
	}

	o, err := occurrence.New(id, 42, kind, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), "test fact", now)
	require.NoError(t, err)
	if sanction != occurrence.SanctionNone {
		require.NoError(t, o.AssignSanction(sanction, days))
	}
	require.NoError(t, o.Flag(now))
	require.NoError(t, f.occurrences.Create(context.Background(), o))
}

func TestConsolidatePositiveOccurrenceClosesWithZeroDelta(t *testing.T) {
	f := newConsolidationFixture(t)
	f.seedFlagged(t, "occ-pos", occurrence.KindPositive, occurrence.SanctionNone, 0)

	result, err := f.handler.Handle(context.Background(), ConsolidateOccurrenceCommand{OccurrenceID: "occ-pos"})
	require.NoError(t, err)

	assert.Equal(t, 0.0, result.ScoreDelta)
	assert.True(t, result.ScoreApplied)
	assert.Equal(t, 10.0, result.NewScore)
	assert.Equal(t, occurrence.StatusClosed, result.Occurrence.Status)

	stored, err := f.occurrences.GetByID(context.Background(), "occ-pos")
	require.NoError(t, err)
	require.NotNil(t, stored.ScoreDelta)
	assert.Equal(t, 0.0, *stored.ScoreDelta)
	assert.NotNil(t, stored.ConsolidatedAt)
	assert.NotNil(t, stored.ScoreAppliedAt)
}

func TestConsolidateSuspensionAppliesPerDayDelta(t *testing.T) {
	f := newConsolidationFixture(t)
	f.seedFlagged(t, "occ-susp", occurrence.KindNegative, occurrence.SanctionSuspension, 3)

	result, err := f.handler.Handle(context.Background(), ConsolidateOccurrenceCommand{OccurrenceID: "occ-susp"})
	require.NoError(t, err)

	assert.InDelta(t, -2.4, result.ScoreDelta, 1e-9)
	assert.InDelta(t, 7.6, result.NewScore, 1e-9)
	assert.Equal(t, occurrence.StatusToConclude, result.Occurrence.Status)
}

func TestConsolidateIsAtMostOnce(t *testing.T) {
	f := newConsolidationFixture(t)
	f.seedFlagged(t, "occ-once", occurrence.KindNegative, occurrence.SanctionReprimand, 1)

	first, err := f.handler.Handle(context.Background(), ConsolidateOccurrenceCommand{OccurrenceID: "occ-once"})
	require.NoError(t, err)
	assert.InDelta(t, -0.3, first.ScoreDelta, 1e-9)

	_, err = f.handler.Handle(context.Background(), ConsolidateOccurrenceCommand{OccurrenceID: "occ-once"})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrAlreadyConsolidated)

	// The stored delta stays exactly what the first consolidation wrote and
	// the score was reduced exactly once.
	stored, err := f.occurrences.GetByID(context.Background(), "occ-once")
	require.NoError(t, err)
	require.NotNil(t, stored.ScoreDelta)
	assert.InDelta(t, -0.3, *stored.ScoreDelta, 1e-9)

	rec, err := f.students.GetByNumber(context.Background(), 42)
	require.NoError(t, err)
	assert.InDelta(t, 9.7, rec.Score, 1e-9)
	assert.Equal(t, 1, f.students.applies)
}

func TestConsolidateRequiresFlaggedState(t *testing.T) {
	f := newConsolidationFixture(t)

	now := f.clock.Now()
	rec, err := student.NewScoreRecord(42, now)
	require.NoError(t, err)
	require.NoError(t, f.students.Create(context.Background(), rec))

	// Still pending, never flagged.
	o, err := occurrence.New("occ-pending", 42, occurrence.KindNegative,
		time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), "test fact", now)
	require.NoError(t, err)
	require.NoError(t, f.occurrences.Create(context.Background(), o))

	_, err = f.handler.Handle(context.Background(), ConsolidateOccurrenceCommand{OccurrenceID: "occ-pending"})
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestConsolidateSequenceMatchesLedger(t *testing.T) {
	// Reprimand then a 3-day suspension for the same student:
	// 10.0 -> 9.7 -> 8.1 (deltas accumulate on the stored score, the bonus
	// is a reporting concern and never feeds the consolidation writes).
	f := newConsolidationFixture(t)
	f.seedFlagged(t, "occ-a", occurrence.KindNegative, occurrence.SanctionReprimand, 1)
	f.seedFlagged(t, "occ-b", occurrence.KindNegative, occurrence.SanctionSuspension, 3)

	first, err := f.handler.Handle(context.Background(), ConsolidateOccurrenceCommand{OccurrenceID: "occ-a"})
	require.NoError(t, err)
	assert.InDelta(t, 9.7, first.NewScore, 1e-9)

	second, err := f.handler.Handle(context.Background(), ConsolidateOccurrenceCommand{OccurrenceID: "occ-b"})
	require.NoError(t, err)
	assert.InDelta(t, 8.1, second.NewScore, 1e-9)
}

func TestConsolidateSurvivesScoreWriteFailure(t *testing.T) {
	f := newConsolidationFixture(t)
	f.seedFlagged(t, "occ-partial", occurrence.KindNegative, occurrence.SanctionGuidedActivity, 1)
	f.students.failApply = true

	result, err := f.handler.Handle(context.Background(), ConsolidateOccurrenceCommand{OccurrenceID: "occ-partial"})
	require.NoError(t, err)

	// Step 1 landed, step 2 did not: the occurrence is consolidated, the
	// score untouched, and the gap is visible for reconciliation.
	assert.False(t, result.ScoreApplied)
	stored, err := f.occurrences.GetByID(context.Background(), "occ-partial")
	require.NoError(t, err)
	require.NotNil(t, stored.ScoreDelta)
	assert.InDelta(t, -0.5, *stored.ScoreDelta, 1e-9)
	assert.Nil(t, stored.ScoreAppliedAt)

	rec, err := f.students.GetByNumber(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 10.0, rec.Score)

	stranded, err := f.occurrences.ListUnapplied(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, stranded, 1)
}

func TestConsolidatePublishesEventsAndInvalidatesCache(t *testing.T) {
	f := newConsolidationFixture(t)
	f.seedFlagged(t, "occ-ev", occurrence.KindNegative, occurrence.SanctionReprimand, 1)

	_, err := f.handler.Handle(context.Background(), ConsolidateOccurrenceCommand{OccurrenceID: "occ-ev"})
	require.NoError(t, err)

	assert.Len(t, f.publisher.byType(shared.EventOccurrenceConsolidated), 1)
	assert.Len(t, f.publisher.byType(shared.EventScoreApplied), 1)
	assert.True(t, f.invalidator.cleared(cache.StudentPrefix(42)))
	assert.True(t, f.invalidator.cleared(cache.PrefixStudentList))
}

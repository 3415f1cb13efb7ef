package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fato-hub/comportamento-hub/internal/domain/occurrence"
	"github.com/fato-hub/comportamento-hub/internal/domain/shared"
)

func TestReconcileReplaysStrandedDelta(t *testing.T) {
	f := newConsolidationFixture(t)
	f.seedFlagged(t, "occ-stranded", occurrence.KindNegative, occurrence.SanctionSuspension, 3)

	// Consolidate with the score write failing: the delta is recorded on
	// the occurrence but never reaches the student record.
	f.students.failApply = true
	_, err := f.handler.Handle(context.Background(), ConsolidateOccurrenceCommand{OccurrenceID: "occ-stranded"})
	require.NoError(t, err)
	f.students.failApply = false

	reconciler := NewReconcileScoresHandler(
		f.occurrences, f.students, f.publisher, f.invalidator, f.clock, testLogger(),
	)

	result, err := reconciler.Handle(context.Background(), ReconcileScoresCommand{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 0, result.Failed)

	rec, err := f.students.GetByNumber(context.Background(), 42)
	require.NoError(t, err)
	assert.InDelta(t, 7.6, rec.Score, 1e-9)

	stored, err := f.occurrences.GetByID(context.Background(), "occ-stranded")
	require.NoError(t, err)
	assert.NotNil(t, stored.ScoreAppliedAt)

	// A second sweep finds nothing to replay: the delta lands exactly once.
	again, err := reconciler.Handle(context.Background(), ReconcileScoresCommand{})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Scanned)
	assert.Equal(t, 1, f.students.applies)
}

func TestReconcileIsNoOpWhenNothingStranded(t *testing.T) {
	f := newConsolidationFixture(t)
	reconciler := NewReconcileScoresHandler(
		f.occurrences, f.students, f.publisher, f.invalidator, f.clock, testLogger(),
	)

	result, err := reconciler.Handle(context.Background(), ReconcileScoresCommand{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Scanned)
	assert.Empty(t, f.publisher.byType(shared.EventScoreApplied))
}

func TestRemoveRestoreKeepsAppliedDelta(t *testing.T) {
	f := newConsolidationFixture(t)
	f.seedFlagged(t, "occ-cycle", occurrence.KindNegative, occurrence.SanctionReprimand, 1)

	_, err := f.handler.Handle(context.Background(), ConsolidateOccurrenceCommand{OccurrenceID: "occ-cycle"})
	require.NoError(t, err)

	lifecycle := NewRemoveOccurrenceHandler(
		f.occurrences, f.publisher, f.invalidator, f.clock, testLogger(),
	)

	removed, err := lifecycle.HandleRemove(context.Background(), RemoveOccurrenceCommand{OccurrenceID: "occ-cycle"})
	require.NoError(t, err)
	assert.Equal(t, occurrence.StatusRemoved, removed.Occurrence.Status)

	restored, err := lifecycle.HandleRestore(context.Background(), RestoreOccurrenceCommand{OccurrenceID: "occ-cycle"})
	require.NoError(t, err)
	assert.Equal(t, occurrence.StatusPending, restored.Occurrence.Status)

	// The applied delta survives the remove/restore cycle and the score is
	// never compensated.
	stored, err := f.occurrences.GetByID(context.Background(), "occ-cycle")
	require.NoError(t, err)
	require.NotNil(t, stored.ScoreDelta)
	assert.InDelta(t, -0.3, *stored.ScoreDelta, 1e-9)

	rec, err := f.students.GetByNumber(context.Background(), 42)
	require.NoError(t, err)
	assert.InDelta(t, 9.7, rec.Score, 1e-9)
}

func TestEraseRequiresRemovedState(t *testing.T) {
	f := newConsolidationFixture(t)
	f.seedFlagged(t, "occ-erase", occurrence.KindNegative, occurrence.SanctionReprimand, 1)

	lifecycle := NewRemoveOccurrenceHandler(
		f.occurrences, f.publisher, f.invalidator, f.clock, testLogger(),
	)

	_, err := lifecycle.HandleErase(context.Background(), EraseOccurrenceCommand{OccurrenceID: "occ-erase"})
	assert.ErrorIs(t, err, shared.ErrOccurrenceNotRemoved)

	_, err = lifecycle.HandleRemove(context.Background(), RemoveOccurrenceCommand{OccurrenceID: "occ-erase"})
	require.NoError(t, err)

	_, err = lifecycle.HandleErase(context.Background(), EraseOccurrenceCommand{OccurrenceID: "occ-erase"})
	require.NoError(t, err)

	_, err = f.occurrences.GetByID(context.Background(), "occ-erase")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateOccurrenceFanOut(t *testing.T) {
	f := newConsolidationFixture(t)
	creator := NewCreateOccurrenceHandler(
		f.occurrences, f.students, f.publisher, f.invalidator, f.clock, testLogger(),
	)

	result, err := creator.Handle(context.Background(), CreateOccurrenceCommand{
		StudentNumbers: []int{7, 8, 9},
		Kind:           occurrence.KindNeutral,
		FactDate:       time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		Description:    "fato coletivo",
	})
	require.NoError(t, err)
	require.Len(t, result.Occurrences, 3)

	for i, n := range []int{7, 8, 9} {
		o := result.Occurrences[i]
		assert.Equal(t, n, o.StudentNumber)
		assert.Equal(t, occurrence.StatusPending, o.Status)
		assert.Nil(t, o.ScoreDelta)

		// First occurrence bootstraps the score record at 10.0.
		rec, err := f.students.GetByNumber(context.Background(), n)
		require.NoError(t, err)
		assert.Equal(t, 10.0, rec.Score)
	}

	assert.Len(t, f.publisher.byType(shared.EventOccurrenceCreated), 3)
}

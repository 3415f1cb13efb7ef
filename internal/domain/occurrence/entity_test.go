package occurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fato-hub/comportamento-hub/internal/domain/shared"
	"github.com/fato-hub/comportamento-hub/pkg/timeutil"
)

func newTestOccurrence(t *testing.T, kind Kind) *Occurrence {
	t.Helper()
	o, err := New("occ-1", 42, kind, timeutil.Date(2025, 3, 10), "uniform out of order", time.Now())
	require.NoError(t, err)
	return o
}

func TestNew_StartsPending(t *testing.T) {
	o := newTestOccurrence(t, KindNegative)

	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, SanctionNone, o.Sanction)
	assert.Equal(t, 1, o.SanctionDays)
	assert.Nil(t, o.ScoreDelta)
}

func TestNew_RejectsInvalidInput(t *testing.T) {
	now := time.Now()
	fact := timeutil.Date(2025, 3, 10)

	_, err := New("", 42, KindNegative, fact, "", now)
	assert.ErrorIs(t, err, shared.ErrInvalidID)

	_, err = New("occ-1", 0, KindNegative, fact, "", now)
	assert.ErrorIs(t, err, shared.ErrInvalidID)

	_, err = New("occ-1", 42, Kind("positive"), fact, "", now)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = New("occ-1", 42, KindNegative, time.Time{}, "", now)
	assert.ErrorIs(t, err, shared.ErrEmptyValue)
}

func TestCanTransition_Table(t *testing.T) {
	tests := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusPending, StatusToConsolidate, true},
		{StatusPending, StatusRemoved, true},
		{StatusPending, StatusToConclude, false},
		{StatusPending, StatusClosed, false},
		{StatusToConsolidate, StatusToConclude, true},
		{StatusToConsolidate, StatusClosed, true},
		{StatusToConsolidate, StatusRemoved, true},
		{StatusToConsolidate, StatusPending, false},
		{StatusToConclude, StatusRemoved, true},
		{StatusToConclude, StatusClosed, false},
		{StatusClosed, StatusRemoved, true},
		{StatusClosed, StatusPending, false},
		{StatusRemoved, StatusPending, true},
		{StatusRemoved, StatusToConsolidate, false},
		{StatusRemoved, StatusRemoved, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestNextStatusForKind(t *testing.T) {
	assert.Equal(t, StatusClosed, NextStatusForKind(KindPositive))
	assert.Equal(t, StatusToConclude, NextStatusForKind(KindNegative))
	assert.Equal(t, StatusToConclude, NextStatusForKind(KindNeutral))
}

func TestAssignSanction_OnlyNegativeReduces(t *testing.T) {
	neg := newTestOccurrence(t, KindNegative)
	require.NoError(t, neg.AssignSanction(SanctionSuspension, 3))
	assert.Equal(t, SanctionSuspension, neg.Sanction)
	assert.Equal(t, 3, neg.SanctionDays)

	neutral := newTestOccurrence(t, KindNeutral)
	require.NoError(t, neutral.AssignSanction(SanctionWarning, 1))
	assert.ErrorIs(t, neutral.AssignSanction(SanctionReprimand, 1), shared.ErrInvalidInput)

	pos := newTestOccurrence(t, KindPositive)
	assert.ErrorIs(t, pos.AssignSanction(SanctionSuspension, 1), shared.ErrInvalidInput)
}

func TestMarkConsolidated_AtMostOnce(t *testing.T) {
	now := time.Now()
	o := newTestOccurrence(t, KindNegative)
	require.NoError(t, o.AssignSanction(SanctionReprimand, 1))
	require.NoError(t, o.Flag(now))

	require.NoError(t, o.MarkConsolidated(-0.3, StatusToConclude, now))
	require.NotNil(t, o.ScoreDelta)
	assert.Equal(t, -0.3, *o.ScoreDelta)
	assert.Equal(t, StatusToConclude, o.Status)
	assert.NotNil(t, o.ConsolidatedAt)

	// Second consolidation must fail and leave the delta untouched.
	err := o.MarkConsolidated(-0.8, StatusToConclude, now)
	assert.ErrorIs(t, err, shared.ErrAlreadyConsolidated)
	assert.Equal(t, -0.3, *o.ScoreDelta)
}

func TestMarkConsolidated_RequiresFlaggedState(t *testing.T) {
	o := newTestOccurrence(t, KindNegative)

	err := o.MarkConsolidated(-0.3, StatusToConclude, time.Now())
	assert.ErrorIs(t, err, shared.ErrStateTransition)
	assert.Nil(t, o.ScoreDelta)
}

func TestRemoveAndRestore(t *testing.T) {
	now := time.Now()
	o := newTestOccurrence(t, KindNegative)
	require.NoError(t, o.AssignSanction(SanctionSuspension, 2))
	require.NoError(t, o.Flag(now))
	require.NoError(t, o.MarkConsolidated(-1.6, StatusToConclude, now))

	require.NoError(t, o.Remove(now))
	assert.Equal(t, StatusRemoved, o.Status)
	assert.NotNil(t, o.DeletedAt)

	// Restore goes back to pending but never undoes the applied delta.
	require.NoError(t, o.Restore(now))
	assert.Equal(t, StatusPending, o.Status)
	assert.NotNil(t, o.RestoredAt)
	require.NotNil(t, o.ScoreDelta)
	assert.Equal(t, -1.6, *o.ScoreDelta)

	// Restoring a live occurrence is rejected.
	assert.ErrorIs(t, o.Restore(now), shared.ErrInvalidState)
}

func TestSetTicket_IndependentOfStatus(t *testing.T) {
	now := time.Now()
	o := newTestOccurrence(t, KindNeutral)
	require.NoError(t, o.Remove(now))

	o.SetTicket("GLPI-4711", now)
	assert.Equal(t, "GLPI-4711", o.TicketNumber)
}

func TestParseSanction(t *testing.T) {
	s, err := ParseSanction("retirada")
	assert.NoError(t, err)
	assert.Equal(t, SanctionSuspension, s)

	_, err = ParseSanction("EXPULSAO")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("CONSOLIDAR")
	assert.NoError(t, err)
	assert.Equal(t, StatusToConsolidate, s)

	_, err = ParseStatus("arquivado")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fato-hub/comportamento-hub/internal/domain/occurrence"
	"github.com/fato-hub/comportamento-hub/pkg/timeutil"
)

func TestSanctionImpact_Table(t *testing.T) {
	assert.Equal(t, 0.0, SanctionImpact(occurrence.SanctionJustified))
	assert.Equal(t, 0.0, SanctionImpact(occurrence.SanctionWarning))
	assert.Equal(t, -0.3, SanctionImpact(occurrence.SanctionReprimand))
	assert.Equal(t, -0.5, SanctionImpact(occurrence.SanctionGuidedActivity))
	assert.Equal(t, -0.8, SanctionImpact(occurrence.SanctionSuspension))
	assert.Equal(t, 0.0, SanctionImpact(occurrence.SanctionType("EXPULSAO")))
}

func TestSanctionVariation_SuspensionSaturatesAtSixDays(t *testing.T) {
	saturated := SanctionVariation(occurrence.SanctionSuspension, 6)
	assert.InDelta(t, -4.8, saturated, 1e-9)

	for _, days := range []int{6, 7, 10, 30, 365} {
		assert.InDelta(t, saturated, SanctionVariation(occurrence.SanctionSuspension, days), 1e-9,
			"suspension of %d days must saturate", days)
	}
}

func TestSanctionVariation_PerDayOnlyForSuspension(t *testing.T) {
	tests := []struct {
		name     string
		sanction occurrence.SanctionType
		days     int
		want     float64
	}{
		{"suspension 1 day", occurrence.SanctionSuspension, 1, -0.8},
		{"suspension 3 days", occurrence.SanctionSuspension, 3, -2.4},
		{"reprimand ignores days", occurrence.SanctionReprimand, 10, -0.3},
		{"guided activity ignores days", occurrence.SanctionGuidedActivity, 5, -0.5},
		{"warning is free", occurrence.SanctionWarning, 4, 0},
		{"justified never counts", occurrence.SanctionJustified, 99, 0},
		{"unknown type yields zero", occurrence.SanctionType("DETENCAO"), 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, SanctionVariation(tt.sanction, tt.days), 1e-9)
		})
	}
}

func TestBonus_PeriodAccounting(t *testing.T) {
	tests := []struct {
		days int
		want float64
	}{
		{0, 0},
		{-5, 0},
		{1, 0.01},
		{45, 0.45},
		{90, 0.9},
		{135, 1.35},
		{180, 1.8},
		{270, 2.7},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, Bonus(tt.days), 1e-9, "bonus for %d days", tt.days)
	}
}

func TestAggregateScore_EmptyPeriodGetsFullBonus(t *testing.T) {
	start := timeutil.Date(2025, 1, 1)
	end := timeutil.Date(2025, 3, 1)

	agg := AggregateScore(42, start, end, nil)

	// 59 sanction-free days of bonus on a pristine 10.0 still clamps to 10.
	assert.Equal(t, 10.0, agg.Score)
	assert.Equal(t, 59, agg.BonusDays)
	assert.Empty(t, agg.Breakdown)
}

func TestAggregateScore_SumsInPeriodVariations(t *testing.T) {
	start := timeutil.Date(2025, 1, 1)
	end := timeutil.Date(2025, 6, 30)

	events := []SanctionEvent{
		{OccurrenceID: "a", Sanction: occurrence.SanctionReprimand, Days: 1, FactDate: timeutil.Date(2025, 2, 10)},
		{OccurrenceID: "b", Sanction: occurrence.SanctionSuspension, Days: 2, FactDate: timeutil.Date(2025, 3, 22)},
		// Justified events never contribute.
		{OccurrenceID: "c", Sanction: occurrence.SanctionJustified, Days: 1, FactDate: timeutil.Date(2025, 4, 1)},
		// Out-of-period events never contribute.
		{OccurrenceID: "d", Sanction: occurrence.SanctionSuspension, Days: 6, FactDate: timeutil.Date(2024, 12, 1)},
	}

	agg := AggregateScore(42, start, end, events)

	assert.Len(t, agg.Breakdown, 2)
	assert.InDelta(t, -0.3, agg.Breakdown[0].Variation, 1e-9)
	assert.InDelta(t, -1.6, agg.Breakdown[1].Variation, 1e-9)

	// Bonus runs from the latest in-period sanction (Mar 22) to period end.
	assert.Equal(t, 100, agg.BonusDays)
	assert.InDelta(t, 1.0, agg.Bonus, 1e-9)

	// 10 - 0.3 - 1.6 + 1.0 = 9.1
	assert.Equal(t, 9.1, agg.Score)
}

func TestAggregateScore_ClampsToDomain(t *testing.T) {
	start := timeutil.Date(2025, 1, 1)
	end := timeutil.Date(2025, 12, 31)

	// Enough suspensions to drive the raw total far below zero.
	var events []SanctionEvent
	for i := 0; i < 5; i++ {
		events = append(events, SanctionEvent{
			OccurrenceID: "s",
			Sanction:     occurrence.SanctionSuspension,
			Days:         6,
			FactDate:     timeutil.Date(2025, 6, 1),
		})
	}

	agg := AggregateScore(7, start, end, events)
	assert.GreaterOrEqual(t, agg.Score, 0.0)
	assert.LessOrEqual(t, agg.Score, 10.0)
	assert.Equal(t, 0.0, agg.Score)
}

func TestAggregateScore_RoundsOnlyAtOutput(t *testing.T) {
	start := timeutil.Date(2025, 1, 1)
	end := timeutil.Date(2025, 1, 8)

	events := []SanctionEvent{
		{OccurrenceID: "a", Sanction: occurrence.SanctionReprimand, Days: 1, FactDate: timeutil.Date(2025, 1, 1)},
	}

	agg := AggregateScore(1, start, end, events)

	// 10 - 0.3 + 0.07 = 9.77; binary float drift must not leak into output.
	assert.Equal(t, 9.77, agg.Score)
}

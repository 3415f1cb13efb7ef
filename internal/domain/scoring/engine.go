// Package scoring computes comportamento score impacts: the numeric effect of
// a sanction, the bonus for sanction-free time, and the aggregate score for a
// student over a period. Everything here is pure computation - no storage, no
// side effects, double precision throughout, rounding only at the output
// boundary.
package scoring

import (
	"time"

	"github.com/fato-hub/comportamento-hub/internal/domain/occurrence"
	"github.com/fato-hub/comportamento-hub/internal/domain/student"
	"github.com/fato-hub/comportamento-hub/pkg/timeutil"
)

// Scoring constants.
const (
	// MaxSuspensionDays caps the chargeable days of a suspension: the effect
	// saturates at 6 days (-4.8) no matter how long the actual suspension.
	MaxSuspensionDays = 6

	// BonusPerDay is the daily score recovery for sanction-free time.
	BonusPerDay = 0.01

	// BonusPeriodDays is the accounting period for the bonus: each complete
	// 90-day block contributes 90 x 0.01 = 0.9, the remainder accrues daily.
	BonusPeriodDays = 90
)

// sanctionImpacts is the base impact lookup table. Suspension is per day.
var sanctionImpacts = map[occurrence.SanctionType]float64{
	occurrence.SanctionJustified:      0,
	occurrence.SanctionWarning:        0,
	occurrence.SanctionReprimand:      -0.3,
	occurrence.SanctionGuidedActivity: -0.5,
	occurrence.SanctionSuspension:     -0.8,
}

// SanctionImpact returns the base score impact of a sanction type.
// Unknown types yield 0.
func SanctionImpact(t occurrence.SanctionType) float64 {
	return sanctionImpacts[t]
}

// SanctionVariation returns the total score variation for a sanction.
// For suspensions the day count is clamped to MaxSuspensionDays before
// multiplying; every other type ignores the day count entirely.
// JUSTIFICADO never contributes and must be excluded upstream of aggregation.
func SanctionVariation(t occurrence.SanctionType, days int) float64 {
	impact := SanctionImpact(t)
	if !t.PerDay() {
		return impact
	}
	if days < 0 {
		days = 0
	}
	if days > MaxSuspensionDays {
		days = MaxSuspensionDays
	}
	return impact * float64(days)
}

// Bonus returns the score recovery for a run of sanction-free days.
// Non-positive inputs yield 0. The total is unbounded here; bounding to the
// score domain happens at aggregation.
func Bonus(daysWithoutSanction int) float64 {
	if daysWithoutSanction <= 0 {
		return 0
	}
	completePeriods := daysWithoutSanction / BonusPeriodDays
	remainder := daysWithoutSanction % BonusPeriodDays
	return float64(completePeriods)*float64(BonusPeriodDays)*BonusPerDay +
		float64(remainder)*BonusPerDay
}

// SanctionEvent is one consolidated sanction feeding the aggregate.
type SanctionEvent struct {
	OccurrenceID string
	Sanction     occurrence.SanctionType
	Days         int
	FactDate     time.Time
}

// Contribution is one itemized line of the aggregate breakdown.
type Contribution struct {
	OccurrenceID string                  `json:"occurrence_id"`
	Sanction     occurrence.SanctionType `json:"sanction"`
	Days         int                     `json:"days"`
	FactDate     time.Time               `json:"fact_date"`
	Variation    float64                 `json:"variation"`
}

// Aggregate is the point-in-time score report for a student over a period.
type Aggregate struct {
	StudentNumber int            `json:"student_number"`
	PeriodStart   time.Time      `json:"period_start"`
	PeriodEnd     time.Time      `json:"period_end"`
	Score         float64        `json:"score"`
	Bonus         float64        `json:"bonus"`
	BonusDays     int            `json:"bonus_days"`
	Breakdown     []Contribution `json:"breakdown"`
}

// AggregateScore computes the comportamento score for a student over
// [periodStart, periodEnd]: 10.0 plus the sum of sanction variations for
// every non-justified in-period event, plus the bonus for the sanction-free
// stretch between the latest in-period sanction (or the period start, if
// none) and the period end. The result is clamped to [0, 10] and rounded to
// 2 decimals only at the end; the itemized breakdown is returned for audit.
func AggregateScore(studentNumber int, periodStart, periodEnd time.Time, events []SanctionEvent) Aggregate {
	agg := Aggregate{
		StudentNumber: studentNumber,
		PeriodStart:   periodStart,
		PeriodEnd:     periodEnd,
		Breakdown:     make([]Contribution, 0, len(events)),
	}

	total := student.InitialScore
	var latestFact time.Time

	for _, ev := range events {
		if ev.Sanction == occurrence.SanctionJustified {
			continue
		}
		if !timeutil.InRange(ev.FactDate, periodStart, periodEnd) {
			continue
		}
		variation := SanctionVariation(ev.Sanction, ev.Days)
		total += variation
		agg.Breakdown = append(agg.Breakdown, Contribution{
			OccurrenceID: ev.OccurrenceID,
			Sanction:     ev.Sanction,
			Days:         ev.Days,
			FactDate:     ev.FactDate,
			Variation:    variation,
		})
		if ev.FactDate.After(latestFact) {
			latestFact = ev.FactDate
		}
	}

	bonusFrom := periodStart
	if !latestFact.IsZero() {
		bonusFrom = latestFact
	}
	agg.BonusDays = timeutil.DaysBetween(bonusFrom, periodEnd)
	agg.Bonus = Bonus(agg.BonusDays)

	agg.Score = student.ClampScore(total + agg.Bonus)
	return agg
}

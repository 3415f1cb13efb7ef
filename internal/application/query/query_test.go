package query

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fato-hub/comportamento-hub/internal/domain/occurrence"
	"github.com/fato-hub/comportamento-hub/internal/domain/scoring"
	"github.com/fato-hub/comportamento-hub/internal/domain/shared"
	"github.com/fato-hub/comportamento-hub/internal/domain/student"
	"github.com/fato-hub/comportamento-hub/internal/infrastructure/cache"
	"github.com/fato-hub/comportamento-hub/pkg/logger"
	"github.com/fato-hub/comportamento-hub/pkg/timeutil"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError})
}

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeOccurrenceRepo struct {
	occurrences []*occurrence.Occurrence
	lastFilter  occurrence.Filter
	listCalls   int
}

func (r *fakeOccurrenceRepo) Create(context.Context, *occurrence.Occurrence) error { return nil }

func (r *fakeOccurrenceRepo) CreateMany(context.Context, []*occurrence.Occurrence) error { return nil }

func (r *fakeOccurrenceRepo) Update(context.Context, *occurrence.Occurrence) error { return nil }

func (r *fakeOccurrenceRepo) Delete(context.Context, string) error { return nil }

func (r *fakeOccurrenceRepo) Consolidate(context.Context, string, float64, occurrence.Status, time.Time) error {
	return nil
}

func (r *fakeOccurrenceRepo) MarkScoreApplied(context.Context, string, time.Time) error {
	return nil
}

func (r *fakeOccurrenceRepo) ListUnapplied(context.Context, int) ([]*occurrence.Occurrence, error) {
	return nil, nil
}

func (r *fakeOccurrenceRepo) GetByID(_ context.Context, id string) (*occurrence.Occurrence, error) {
	for _, o := range r.occurrences {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, shared.ErrOccurrenceNotFound
}

func (r *fakeOccurrenceRepo) List(_ context.Context, filter occurrence.Filter) ([]*occurrence.Occurrence, error) {
	r.listCalls++
	r.lastFilter = filter
	return r.occurrences, nil
}

type fakeStudentRepo struct {
	records  map[int]*student.ScoreRecord
	getCalls int
}

func (r *fakeStudentRepo) Create(context.Context, *student.ScoreRecord) error { return nil }

func (r *fakeStudentRepo) ApplyDelta(context.Context, int, float64, time.Time) (float64, error) {
	return 0, nil
}

func (r *fakeStudentRepo) GetByNumber(_ context.Context, studentNumber int) (*student.ScoreRecord, error) {
	r.getCalls++
	rec, ok := r.records[studentNumber]
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	return rec, nil
}

func (r *fakeStudentRepo) ListAll(_ context.Context) ([]*student.ScoreRecord, error) {
	out := make([]*student.ScoreRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out, nil
}

// fakeCache JSON round-trips values like the real cache layer.
type fakeCache struct {
	entries map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte)}
}

func (c *fakeCache) Get(_ context.Context, key string, dest any) error {
	data, ok := c.entries[key]
	if !ok {
		return cache.ErrMiss
	}
	return json.Unmarshal(data, dest)
}

func (c *fakeCache) Set(_ context.Context, key string, value any, _ time.Duration, _ bool) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = data
	return nil
}

// consolidated builds an occurrence that went through flag + consolidation.
func consolidated(t *testing.T, id string, kind occurrence.Kind, sanction occurrence.SanctionType, days int, factDate time.Time) *occurrence.Occurrence {
	t.Helper()
	now := factDate.Add(24 * time.Hour)

	o, err := occurrence.New(id, 42, kind, factDate, "registro de teste", now)
	require.NoError(t, err)
	if sanction != occurrence.SanctionNone {
		require.NoError(t, o.AssignSanction(sanction, days))
	}
	require.NoError(t, o.Flag(now))

	delta := scoring.SanctionVariation(sanction, days)
	require.NoError(t, o.MarkConsolidated(delta, occurrence.NextStatusForKind(kind), now))
	return o
}

// ─────────────────────────────────────────────────────────────────────────────
// GetStudentScore
// ─────────────────────────────────────────────────────────────────────────────

func TestGetStudentScoreCachesResult(t *testing.T) {
	updated := timeutil.Date(2026, 3, 10)
	students := &fakeStudentRepo{records: map[int]*student.ScoreRecord{
		42: {StudentNumber: 42, Score: 9.7, LastScoreUpdateAt: updated},
	}}
	c := newFakeCache()
	h := NewGetStudentScoreHandler(students, c, testLogger())

	res, err := h.Handle(context.Background(), GetStudentScoreQuery{StudentNumber: 42})
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, 42, res.Student.StudentNumber)
	assert.InDelta(t, 9.7, res.Student.Score, 1e-9)

	res, err = h.Handle(context.Background(), GetStudentScoreQuery{StudentNumber: 42})
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, 1, students.getCalls)
}

func TestGetStudentScoreUnknownStudent(t *testing.T) {
	h := NewGetStudentScoreHandler(&fakeStudentRepo{records: map[int]*student.ScoreRecord{}}, newFakeCache(), testLogger())

	_, err := h.Handle(context.Background(), GetStudentScoreQuery{StudentNumber: 7})
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)

	_, err = h.Handle(context.Background(), GetStudentScoreQuery{StudentNumber: 0})
	assert.ErrorIs(t, err, shared.ErrInvalidStudentNumber)
}

// ─────────────────────────────────────────────────────────────────────────────
// GetStudentReport
// ─────────────────────────────────────────────────────────────────────────────

func TestStudentReportComputesPointInTimeAggregate(t *testing.T) {
	periodStart := timeutil.Date(2026, 3, 1)
	periodEnd := timeutil.Date(2026, 5, 31)

	// A reprimand, then a two-day suspension 40 days later. The bonus accrues
	// from the latest sanction to the period end.
	repo := &fakeOccurrenceRepo{occurrences: []*occurrence.Occurrence{
		consolidated(t, "a", occurrence.KindNegative, occurrence.SanctionReprimand, 1, timeutil.Date(2026, 3, 10)),
		consolidated(t, "b", occurrence.KindNegative, occurrence.SanctionSuspension, 2, timeutil.Date(2026, 4, 19)),
	}}

	h := NewGetStudentReportHandler(repo, newFakeCache(), shared.FixedClock{Instant: periodEnd}, testLogger())

	res, err := h.Handle(context.Background(), GetStudentReportQuery{
		StudentNumber: 42,
		PeriodStart:   periodStart,
		PeriodEnd:     periodEnd,
	})
	require.NoError(t, err)

	// 10 - 0.3 - 1.6 + bonus(42 days free after 2026-04-19) = 8.52
	assert.InDelta(t, 8.52, res.Report.Score, 1e-9)
	assert.InDelta(t, 0.42, res.Report.Bonus, 1e-9)
	assert.Equal(t, 42, res.Report.BonusDays)
	assert.Len(t, res.Report.Breakdown, 2)
}

func TestStudentReportSkipsUnconsolidatedAndRemoved(t *testing.T) {
	factDate := timeutil.Date(2026, 3, 10)
	now := factDate.Add(24 * time.Hour)

	pending, err := occurrence.New("p", 42, occurrence.KindNegative, factDate, "pendente", now)
	require.NoError(t, err)

	removed := consolidated(t, "r", occurrence.KindNegative, occurrence.SanctionReprimand, 1, factDate)
	require.NoError(t, removed.Remove(now))

	repo := &fakeOccurrenceRepo{occurrences: []*occurrence.Occurrence{pending, removed}}
	h := NewGetStudentReportHandler(repo, newFakeCache(), shared.FixedClock{Instant: now}, testLogger())

	res, err := h.Handle(context.Background(), GetStudentReportQuery{
		StudentNumber: 42,
		PeriodStart:   timeutil.Date(2026, 3, 1),
		PeriodEnd:     timeutil.Date(2026, 3, 31),
	})
	require.NoError(t, err)
	assert.Empty(t, res.Report.Breakdown)
}

func TestStudentReportDefaultsPeriodToCurrentMonth(t *testing.T) {
	today := timeutil.Date(2026, 8, 28)
	repo := &fakeOccurrenceRepo{}
	h := NewGetStudentReportHandler(repo, newFakeCache(), shared.FixedClock{Instant: today}, testLogger())

	res, err := h.Handle(context.Background(), GetStudentReportQuery{StudentNumber: 42})
	require.NoError(t, err)
	assert.True(t, res.Report.PeriodStart.Equal(timeutil.Date(2026, 8, 1)))
	assert.True(t, res.Report.PeriodEnd.Equal(today))
}

// ─────────────────────────────────────────────────────────────────────────────
// GetOccurrence
// ─────────────────────────────────────────────────────────────────────────────

func TestGetOccurrenceByID(t *testing.T) {
	o := consolidated(t, "abc", occurrence.KindNegative, occurrence.SanctionReprimand, 1, timeutil.Date(2026, 3, 10))
	h := NewGetOccurrenceHandler(&fakeOccurrenceRepo{occurrences: []*occurrence.Occurrence{o}}, testLogger())

	res, err := h.Handle(context.Background(), GetOccurrenceQuery{OccurrenceID: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "abc", res.Occurrence.ID)
	require.NotNil(t, res.Occurrence.ScoreDelta)
	assert.InDelta(t, -0.3, *res.Occurrence.ScoreDelta, 1e-9)

	_, err = h.Handle(context.Background(), GetOccurrenceQuery{OccurrenceID: "missing"})
	assert.ErrorIs(t, err, shared.ErrOccurrenceNotFound)

	_, err = h.Handle(context.Background(), GetOccurrenceQuery{})
	assert.ErrorIs(t, err, shared.ErrInvalidID)
}

// ─────────────────────────────────────────────────────────────────────────────
// ListOccurrences
// ─────────────────────────────────────────────────────────────────────────────

func TestListOccurrencesNormalizesAndCaches(t *testing.T) {
	repo := &fakeOccurrenceRepo{occurrences: []*occurrence.Occurrence{
		consolidated(t, "a", occurrence.KindNegative, occurrence.SanctionReprimand, 1, timeutil.Date(2026, 3, 10)),
	}}
	c := newFakeCache()
	h := NewListOccurrencesHandler(repo, c, testLogger())

	res, err := h.Handle(context.Background(), ListOccurrencesQuery{StudentNumber: 42})
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Len(t, res.Occurrences, 1)
	assert.Equal(t, "REPREENSAO", res.Occurrences[0].Sanction)

	// Zero limit normalizes to the default page size.
	assert.Equal(t, 50, repo.lastFilter.Limit)

	res, err = h.Handle(context.Background(), ListOccurrencesQuery{StudentNumber: 42})
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, 1, repo.listCalls)
}

// ─────────────────────────────────────────────────────────────────────────────
// ListStudents
// ─────────────────────────────────────────────────────────────────────────────

func TestListStudentsReturnsEveryRecord(t *testing.T) {
	students := &fakeStudentRepo{records: map[int]*student.ScoreRecord{
		42: {StudentNumber: 42, Score: 9.7},
		77: {StudentNumber: 77, Score: 10.0},
	}}
	h := NewListStudentsHandler(students, newFakeCache(), testLogger())

	res, err := h.Handle(context.Background(), ListStudentsQuery{})
	require.NoError(t, err)
	assert.Len(t, res.Students, 2)
}

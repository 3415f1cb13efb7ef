package command

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fato-hub/comportamento-hub/internal/domain/occurrence"
	"github.com/fato-hub/comportamento-hub/internal/domain/shared"
	"github.com/fato-hub/comportamento-hub/internal/domain/student"
)

// ─────────────────────────────────────────────────────────────────────────────
// In-memory test doubles
// ─────────────────────────────────────────────────────────────────────────────

type fakeOccurrenceRepo struct {
	mu      sync.Mutex
	records map[string]*occurrence.Occurrence

	// failMarkApplied simulates a crash after the student-score write.
	failMarkApplied bool
}

func newFakeOccurrenceRepo() *fakeOccurrenceRepo {
	return &fakeOccurrenceRepo{records: make(map[string]*occurrence.Occurrence)}
}

func (r *fakeOccurrenceRepo) Create(_ context.Context, o *occurrence.Occurrence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.records[o.ID] = &cp
	return nil
}

func (r *fakeOccurrenceRepo) CreateMany(ctx context.Context, occs []*occurrence.Occurrence) error {
	for _, o := range occs {
		if err := r.Create(ctx, o); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeOccurrenceRepo) GetByID(_ context.Context, id string) (*occurrence.Occurrence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.records[id]
	if !ok {
		return nil, shared.ErrOccurrenceNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *fakeOccurrenceRepo) List(_ context.Context, filter occurrence.Filter) ([]*occurrence.Occurrence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*occurrence.Occurrence
	for _, o := range r.records {
		if filter.StudentNumber != 0 && o.StudentNumber != filter.StudentNumber {
			continue
		}
		if !filter.IncludeRemoved && o.Status == occurrence.StatusRemoved {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeOccurrenceRepo) Update(_ context.Context, o *occurrence.Occurrence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[o.ID]; !ok {
		return shared.ErrOccurrenceNotFound
	}
	cp := *o
	r.records[o.ID] = &cp
	return nil
}

func (r *fakeOccurrenceRepo) Consolidate(_ context.Context, id string, delta float64, next occurrence.Status, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.records[id]
	if !ok {
		return shared.ErrOccurrenceNotFound
	}
	if o.ScoreDelta != nil {
		return shared.ErrAlreadyConsolidated
	}
	d := delta
	o.ScoreDelta = &d
	o.Status = next
	o.ConsolidatedAt = &at
	o.UpdatedAt = at
	return nil
}

func (r *fakeOccurrenceRepo) MarkScoreApplied(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failMarkApplied {
		return shared.ErrServiceUnavailable
	}
	o, ok := r.records[id]
	if !ok || o.ScoreDelta == nil {
		return shared.ErrOccurrenceNotFound
	}
	o.ScoreAppliedAt = &at
	o.UpdatedAt = at
	return nil
}

func (r *fakeOccurrenceRepo) ListUnapplied(_ context.Context, limit int) ([]*occurrence.Occurrence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*occurrence.Occurrence
	for _, o := range r.records {
		if o.ScoreDelta != nil && o.ScoreAppliedAt == nil {
			cp := *o
			out = append(out, &cp)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeOccurrenceRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return shared.ErrOccurrenceNotFound
	}
	delete(r.records, id)
	return nil
}

type fakeStudentRepo struct {
	mu      sync.Mutex
	records map[int]*student.ScoreRecord

	// failApply simulates the score write failing mid-workflow.
	failApply bool
	applies   int
}

func newFakeStudentRepo() *fakeStudentRepo {
	return &fakeStudentRepo{records: make(map[int]*student.ScoreRecord)}
}

func (r *fakeStudentRepo) Create(_ context.Context, rec *student.ScoreRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.StudentNumber]; ok {
		return shared.ErrStudentAlreadyExists
	}
	cp := *rec
	r.records[rec.StudentNumber] = &cp
	return nil
}

func (r *fakeStudentRepo) GetByNumber(_ context.Context, studentNumber int) (*student.ScoreRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[studentNumber]
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *fakeStudentRepo) ListAll(_ context.Context) ([]*student.ScoreRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*student.ScoreRecord
	for _, rec := range r.records {
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeStudentRepo) ApplyDelta(_ context.Context, studentNumber int, delta float64, at time.Time) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failApply {
		return 0, shared.ErrServiceUnavailable
	}
	rec, ok := r.records[studentNumber]
	if !ok {
		return 0, shared.ErrStudentNotFound
	}
	rec.ApplyDelta(delta, at)
	r.applies++
	return rec.Score, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *fakePublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) byType(t shared.EventType) []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.Event
	for _, e := range p.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

type fakeInvalidator struct {
	mu       sync.Mutex
	prefixes []string
}

func (i *fakeInvalidator) ClearByPrefix(_ context.Context, prefix string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.prefixes = append(i.prefixes, prefix)
	return nil
}

func (i *fakeInvalidator) cleared(prefix string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, p := range i.prefixes {
		if strings.HasPrefix(p, prefix) || p == prefix {
			return true
		}
	}
	return false
}

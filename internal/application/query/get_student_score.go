// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"errors"
	"time"

	"github.com/fato-hub/comportamento-hub/internal/domain/shared"
	"github.com/fato-hub/comportamento-hub/internal/domain/student"
	"github.com/fato-hub/comportamento-hub/internal/infrastructure/cache"
	"github.com/fato-hub/comportamento-hub/pkg/logger"
)

// Cache is the slice of the cache layer the read side needs.
type Cache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration, persist bool) error
}

// ══════════════════════════════════════════════════════════════════════════════
// GET STUDENT SCORE QUERY
// Returns the stored comportamento score for one student. Reads are shielded
// by the two-tier cache; the database is only hit on a miss.
// ══════════════════════════════════════════════════════════════════════════════

// GetStudentScoreQuery identifies the student.
type GetStudentScoreQuery struct {
	StudentNumber int
}

// Validate validates the query.
func (q GetStudentScoreQuery) Validate() error {
	if q.StudentNumber <= 0 {
		return shared.ErrInvalidStudentNumber
	}
	return nil
}

// StudentScoreDTO is the read model for a student score.
type StudentScoreDTO struct {
	// StudentNumber is the student key ("numero" on the wire).
	StudentNumber int `json:"numero"`

	// Score is the current comportamento score.
	Score float64 `json:"notaComportamento"`

	// LastScoreUpdateAt is when the score last changed.
	LastScoreUpdateAt time.Time `json:"ultimaAtualizacaoComportamento"`
}

// GetStudentScoreResult contains the score and its provenance.
type GetStudentScoreResult struct {
	Student   StudentScoreDTO `json:"student"`
	FromCache bool            `json:"-"`
}

// GetStudentScoreHandler handles the GetStudentScoreQuery.
type GetStudentScoreHandler struct {
	studentRepo student.Repository
	cache       Cache
	log         *logger.Logger
}

// NewGetStudentScoreHandler creates the handler.
func NewGetStudentScoreHandler(studentRepo student.Repository, c Cache, log *logger.Logger) *GetStudentScoreHandler {
	return &GetStudentScoreHandler{
		studentRepo: studentRepo,
		cache:       c,
		log:         log.With(logger.Component("get_student_score")),
	}
}

// Handle returns the student score, cache first.
func (h *GetStudentScoreHandler) Handle(ctx context.Context, q GetStudentScoreQuery) (*GetStudentScoreResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	key := cache.StudentRecordKey(q.StudentNumber)

	var dto StudentScoreDTO
	if err := h.cache.Get(ctx, key, &dto); err == nil {
		return &GetStudentScoreResult{Student: dto, FromCache: true}, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		h.log.Warn("cache read failed", logger.CacheKey(key), logger.Err(err))
	}

	rec, err := h.studentRepo.GetByNumber(ctx, q.StudentNumber)
	if err != nil {
		return nil, err
	}

	dto = StudentScoreDTO{
		StudentNumber:     rec.StudentNumber,
		Score:             rec.Score,
		LastScoreUpdateAt: rec.LastScoreUpdateAt,
	}

	if err := h.cache.Set(ctx, key, dto, cache.TTLStudentRecord, true); err != nil {
		h.log.Warn("cache write failed", logger.CacheKey(key), logger.Err(err))
	}

	return &GetStudentScoreResult{Student: dto}, nil
}

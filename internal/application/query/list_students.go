package query

import (
	"context"
	"errors"

	"github.com/fato-hub/comportamento-hub/internal/domain/student"
	"github.com/fato-hub/comportamento-hub/internal/infrastructure/cache"
	"github.com/fato-hub/comportamento-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST STUDENTS QUERY
// Returns every student score record, ordered by student number. Used by the
// administrative overview screen.
// ══════════════════════════════════════════════════════════════════════════════

// ListStudentsQuery has no parameters; the listing is always complete.
type ListStudentsQuery struct{}

// ListStudentsResult contains every score record.
type ListStudentsResult struct {
	Students  []StudentScoreDTO `json:"students"`
	FromCache bool              `json:"-"`
}

// ListStudentsHandler handles the ListStudentsQuery.
type ListStudentsHandler struct {
	studentRepo student.Repository
	cache       Cache
	log         *logger.Logger
}

// NewListStudentsHandler creates the handler.
func NewListStudentsHandler(studentRepo student.Repository, c Cache, log *logger.Logger) *ListStudentsHandler {
	return &ListStudentsHandler{
		studentRepo: studentRepo,
		cache:       c,
		log:         log.With(logger.Component("list_students")),
	}
}

// Handle returns all score records, cache first.
func (h *ListStudentsHandler) Handle(ctx context.Context, _ ListStudentsQuery) (*ListStudentsResult, error) {
	key := cache.PrefixStudentList + "all"

	var dtos []StudentScoreDTO
	if err := h.cache.Get(ctx, key, &dtos); err == nil {
		return &ListStudentsResult{Students: dtos, FromCache: true}, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		h.log.Warn("cache read failed", logger.CacheKey(key), logger.Err(err))
	}

	records, err := h.studentRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	dtos = make([]StudentScoreDTO, 0, len(records))
	for _, rec := range records {
		dtos = append(dtos, StudentScoreDTO{
			StudentNumber:     rec.StudentNumber,
			Score:             rec.Score,
			LastScoreUpdateAt: rec.LastScoreUpdateAt,
		})
	}

	if err := h.cache.Set(ctx, key, dtos, cache.TTLStudentList, false); err != nil {
		h.log.Warn("cache write failed", logger.CacheKey(key), logger.Err(err))
	}

	return &ListStudentsResult{Students: dtos}, nil
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/fato-hub/comportamento-hub/internal/domain/shared"
	"github.com/fato-hub/comportamento-hub/internal/domain/student"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements student.Repository for PostgreSQL.
type StudentRepository struct {
	conn *Connection
}

// Compile-time interface check.
var _ student.Repository = (*StudentRepository)(nil)

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(conn *Connection) *StudentRepository {
	return &StudentRepository{conn: conn}
}

// Create inserts a new score record at the initial score.
func (r *StudentRepository) Create(ctx context.Context, rec *student.ScoreRecord) error {
	query := `
		INSERT INTO alunos (
			numero, nota_comportamento, ultima_atualizacao_comportamento,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.conn.Exec(ctx, query,
		rec.StudentNumber,
		rec.Score,
		rec.LastScoreUpdateAt,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("student %d already exists: %w", rec.StudentNumber, err)
		}
		return fmt.Errorf("failed to create student record: %w", err)
	}

	return nil
}

// GetByNumber returns the score record for a student.
func (r *StudentRepository) GetByNumber(ctx context.Context, studentNumber int) (*student.ScoreRecord, error) {
	query := `
		SELECT numero, nota_comportamento, ultima_atualizacao_comportamento,
			   created_at, updated_at
		FROM alunos
		WHERE numero = $1
	`

	rec, err := scanScoreRecord(r.conn.QueryRow(ctx, query, studentNumber))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrStudentNotFound
		}
		return nil, err
	}
	return rec, nil
}

// ListAll returns every score record, ordered by student number.
func (r *StudentRepository) ListAll(ctx context.Context) ([]*student.ScoreRecord, error) {
	query := `
		SELECT numero, nota_comportamento, ultima_atualizacao_comportamento,
			   created_at, updated_at
		FROM alunos
		ORDER BY numero
	`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	defer rows.Close()

	var out []*student.ScoreRecord
	for rows.Next() {
		rec, err := scanScoreRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan student row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ApplyDelta atomically adds delta to the stored score, clamped to [0, 10]
// and rounded to 2 decimals in the same statement. The clamp lives in SQL so
// two concurrent deltas still read-modify-write a single row atomically.
func (r *StudentRepository) ApplyDelta(ctx context.Context, studentNumber int, delta float64, at time.Time) (float64, error) {
	query := `
		UPDATE alunos SET
			nota_comportamento = LEAST(10.0, GREATEST(0.0,
				ROUND((nota_comportamento + $1)::numeric, 2)))::double precision,
			ultima_atualizacao_comportamento = $2,
			updated_at = $2
		WHERE numero = $3
		RETURNING nota_comportamento
	`

	var newScore float64
	err := r.conn.QueryRow(ctx, query, delta, at, studentNumber).Scan(&newScore)
	if err != nil {
		if IsNoRows(err) {
			return 0, shared.ErrStudentNotFound
		}
		return 0, fmt.Errorf("failed to apply score delta: %w", err)
	}

	return newScore, nil
}

func scanScoreRecord(row pgx.Row) (*student.ScoreRecord, error) {
	var rec student.ScoreRecord
	err := row.Scan(
		&rec.StudentNumber,
		&rec.Score,
		&rec.LastScoreUpdateAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fato-hub/comportamento-hub/internal/domain/occurrence"
	"github.com/fato-hub/comportamento-hub/internal/domain/shared"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// OCCURRENCE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// OccurrenceRepository implements occurrence.Repository for PostgreSQL.
type OccurrenceRepository struct {
	conn *Connection
}

// Compile-time interface check.
var _ occurrence.Repository = (*OccurrenceRepository)(nil)

// NewOccurrenceRepository creates a new OccurrenceRepository.
func NewOccurrenceRepository(conn *Connection) *OccurrenceRepository {
	return &OccurrenceRepository{conn: conn}
}

const occurrenceColumns = `
	id, numero_aluno, tipo, sancao_disciplinar, quantidade_dias, data_fato,
	status, variacao_comportamento, consolidado_em, nota_aplicada_em,
	removido_em, restaurado_em, numero_chamado, descricao, created_at, updated_at
`

// ─────────────────────────────────────────────────────────────────────────────
// CRUD Operations
// ─────────────────────────────────────────────────────────────────────────────

// Create inserts a new occurrence.
func (r *OccurrenceRepository) Create(ctx context.Context, o *occurrence.Occurrence) error {
	query := `
		INSERT INTO fatos (
			id, numero_aluno, tipo, sancao_disciplinar, quantidade_dias, data_fato,
			status, variacao_comportamento, consolidado_em, nota_aplicada_em,
			removido_em, restaurado_em, numero_chamado, descricao, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.conn.Exec(ctx, query,
		o.ID,
		o.StudentNumber,
		string(o.Kind),
		sanctionParam(o.Sanction),
		o.SanctionDays,
		o.FactDate,
		string(o.Status),
		o.ScoreDelta,
		o.ConsolidatedAt,
		o.ScoreAppliedAt,
		o.DeletedAt,
		o.RestoredAt,
		o.TicketNumber,
		o.Description,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("occurrence %s already exists: %w", o.ID, err)
		}
		if IsForeignKeyViolation(err) {
			return shared.ErrStudentNotFound
		}
		return fmt.Errorf("failed to create occurrence: %w", err)
	}

	return nil
}

// CreateMany inserts a batch of occurrences in one round trip. All inserts
// ride the same pgx.Batch; the first failing insert surfaces as the error.
func (r *OccurrenceRepository) CreateMany(ctx context.Context, occs []*occurrence.Occurrence) error {
	if len(occs) == 0 {
		return nil
	}

	query := `
		INSERT INTO fatos (
			id, numero_aluno, tipo, sancao_disciplinar, quantidade_dias, data_fato,
			status, variacao_comportamento, consolidado_em, nota_aplicada_em,
			removido_em, restaurado_em, numero_chamado, descricao, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	batch := &pgx.Batch{}
	for _, o := range occs {
		batch.Queue(query,
			o.ID,
			o.StudentNumber,
			string(o.Kind),
			sanctionParam(o.Sanction),
			o.SanctionDays,
			o.FactDate,
			string(o.Status),
			o.ScoreDelta,
			o.ConsolidatedAt,
			o.ScoreAppliedAt,
			o.DeletedAt,
			o.RestoredAt,
			o.TicketNumber,
			o.Description,
			o.CreatedAt,
			o.UpdatedAt,
		)
	}

	results := r.conn.SendBatch(ctx, batch)
	defer results.Close()

	for i := range occs {
		if _, err := results.Exec(); err != nil {
			if IsForeignKeyViolation(err) {
				return shared.ErrStudentNotFound
			}
			return fmt.Errorf("failed to create occurrence %s: %w", occs[i].ID, err)
		}
	}

	return nil
}

// GetByID returns an occurrence by its ID, including removed ones.
func (r *OccurrenceRepository) GetByID(ctx context.Context, id string) (*occurrence.Occurrence, error) {
	query := `SELECT ` + occurrenceColumns + ` FROM fatos WHERE id = $1`

	row := r.conn.QueryRow(ctx, query, id)
	o, err := scanOccurrence(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrOccurrenceNotFound
		}
		return nil, err
	}
	return o, nil
}

// List returns occurrences matching the filter, newest fact first.
func (r *OccurrenceRepository) List(ctx context.Context, filter occurrence.Filter) ([]*occurrence.Occurrence, error) {
	var (
		conditions []string
		args       []interface{}
	)

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.StudentNumber != 0 {
		conditions = append(conditions, "numero_aluno = "+arg(filter.StudentNumber))
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = "+arg(string(filter.Status)))
	}
	if filter.Kind != "" {
		conditions = append(conditions, "tipo = "+arg(string(filter.Kind)))
	}
	if !filter.FactFrom.IsZero() {
		conditions = append(conditions, "data_fato >= "+arg(filter.FactFrom))
	}
	if !filter.FactTo.IsZero() {
		conditions = append(conditions, "data_fato <= "+arg(filter.FactTo))
	}
	if !filter.IncludeRemoved && filter.Status != occurrence.StatusRemoved {
		conditions = append(conditions, "status <> "+arg(string(occurrence.StatusRemoved)))
	}

	query := `SELECT ` + occurrenceColumns + ` FROM fatos`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY data_fato DESC, created_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list occurrences: %w", err)
	}
	defer rows.Close()

	return scanOccurrences(rows)
}

// Update persists the mutable fields of an occurrence.
func (r *OccurrenceRepository) Update(ctx context.Context, o *occurrence.Occurrence) error {
	query := `
		UPDATE fatos SET
			sancao_disciplinar = $1,
			quantidade_dias = $2,
			status = $3,
			variacao_comportamento = $4,
			consolidado_em = $5,
			nota_aplicada_em = $6,
			removido_em = $7,
			restaurado_em = $8,
			numero_chamado = $9,
			descricao = $10,
			updated_at = $11
		WHERE id = $12
	`

	result, err := r.conn.Exec(ctx, query,
		sanctionParam(o.Sanction),
		o.SanctionDays,
		string(o.Status),
		o.ScoreDelta,
		o.ConsolidatedAt,
		o.ScoreAppliedAt,
		o.DeletedAt,
		o.RestoredAt,
		o.TicketNumber,
		o.Description,
		o.UpdatedAt,
		o.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update occurrence: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrOccurrenceNotFound
	}
	return nil
}

// Delete permanently erases an occurrence.
func (r *OccurrenceRepository) Delete(ctx context.Context, id string) error {
	result, err := r.conn.Exec(ctx, `DELETE FROM fatos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete occurrence: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrOccurrenceNotFound
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Consolidation Writes
// ─────────────────────────────────────────────────────────────────────────────

// Consolidate conditionally writes the consolidation outcome. The
// `variacao_comportamento IS NULL` guard makes the write idempotent under
// concurrency: the second of two racing consolidations hits zero rows and is
// rejected before it can double-apply a delta.
func (r *OccurrenceRepository) Consolidate(ctx context.Context, id string, delta float64, next occurrence.Status, at time.Time) error {
	query := `
		UPDATE fatos SET
			status = $1,
			variacao_comportamento = $2,
			consolidado_em = $3,
			updated_at = $3
		WHERE id = $4
		  AND variacao_comportamento IS NULL
	`

	result, err := r.conn.Exec(ctx, query, string(next), delta, at, id)
	if err != nil {
		return fmt.Errorf("failed to consolidate occurrence: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Either the row is gone or another consolidation already won.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return shared.ErrAlreadyConsolidated
	}
	return nil
}

// MarkScoreApplied records that the student-score write for a consolidated
// occurrence has landed.
func (r *OccurrenceRepository) MarkScoreApplied(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE fatos SET
			nota_aplicada_em = $1,
			updated_at = $1
		WHERE id = $2
		  AND variacao_comportamento IS NOT NULL
	`

	result, err := r.conn.Exec(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark score applied: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrOccurrenceNotFound
	}
	return nil
}

// ListUnapplied returns consolidated occurrences whose score delta has not yet
// been reflected on the student record, oldest consolidation first.
func (r *OccurrenceRepository) ListUnapplied(ctx context.Context, limit int) ([]*occurrence.Occurrence, error) {
	query := `SELECT ` + occurrenceColumns + `
		FROM fatos
		WHERE variacao_comportamento IS NOT NULL
		  AND nota_aplicada_em IS NULL
		ORDER BY consolidado_em ASC
	`

	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list unapplied occurrences: %w", err)
	}
	defer rows.Close()

	return scanOccurrences(rows)
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func sanctionParam(s occurrence.SanctionType) *string {
	if s == occurrence.SanctionNone {
		return nil
	}
	v := string(s)
	return &v
}

func scanOccurrence(row pgx.Row) (*occurrence.Occurrence, error) {
	var (
		o        occurrence.Occurrence
		kind     string
		sanction *string
		status   string
	)

	err := row.Scan(
		&o.ID,
		&o.StudentNumber,
		&kind,
		&sanction,
		&o.SanctionDays,
		&o.FactDate,
		&status,
		&o.ScoreDelta,
		&o.ConsolidatedAt,
		&o.ScoreAppliedAt,
		&o.DeletedAt,
		&o.RestoredAt,
		&o.TicketNumber,
		&o.Description,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Kind = occurrence.Kind(kind)
	o.Status = occurrence.Status(status)
	if sanction != nil {
		o.Sanction = occurrence.SanctionType(*sanction)
	}

	return &o, nil
}

func scanOccurrences(rows pgx.Rows) ([]*occurrence.Occurrence, error) {
	var out []*occurrence.Occurrence
	for rows.Next() {
		o, err := scanOccurrence(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan occurrence row: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

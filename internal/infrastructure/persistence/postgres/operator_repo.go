package postgres

import (
	"context"
	"fmt"

	"github.com/fato-hub/comportamento-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// OPERATOR REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// OperatorRepository stores back-office operator credentials.
type OperatorRepository struct {
	conn *Connection
}

// NewOperatorRepository creates a new OperatorRepository.
func NewOperatorRepository(conn *Connection) *OperatorRepository {
	return &OperatorRepository{conn: conn}
}

// GetByUsername returns the operator id and password hash.
func (r *OperatorRepository) GetByUsername(ctx context.Context, username string) (string, string, error) {
	query := `SELECT id, password_hash FROM operadores WHERE username = $1`

	var id, hash string
	err := r.conn.QueryRow(ctx, query, username).Scan(&id, &hash)
	if err != nil {
		if IsNoRows(err) {
			return "", "", shared.ErrNotFound
		}
		return "", "", fmt.Errorf("failed to look up operator: %w", err)
	}
	return id, hash, nil
}

// Create inserts an operator with an already-hashed password.
func (r *OperatorRepository) Create(ctx context.Context, id, username, passwordHash string) error {
	query := `INSERT INTO operadores (id, username, password_hash) VALUES ($1, $2, $3)`

	_, err := r.conn.Exec(ctx, query, id, username, passwordHash)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create operator: %w", err)
	}
	return nil
}

// UpdatePassword replaces an operator's password hash.
func (r *OperatorRepository) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	query := `UPDATE operadores SET password_hash = $1 WHERE username = $2`

	result, err := r.conn.Exec(ctx, query, passwordHash, username)
	if err != nil {
		return fmt.Errorf("failed to update operator password: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

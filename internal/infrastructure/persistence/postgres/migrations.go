package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION SUPPORT
// ══════════════════════════════════════════════════════════════════════════════

// Migration represents a database migration.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator handles database migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a new migrator with embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		tableName:  "schema_migrations",
	}
}

// EnsureMigrationTable creates the migration tracking table if it doesn't exist.
func (m *Migrator) EnsureMigrationTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, m.tableName)

	_, err := m.conn.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	return nil
}

// GetAppliedMigrations returns all applied migrations keyed by version.
func (m *Migrator) GetAppliedMigrations(ctx context.Context) (map[int]time.Time, error) {
	query := fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName)

	rows, err := m.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt time.Time

		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}

		applied[version] = appliedAt
	}

	return applied, rows.Err()
}

// Migrate applies all pending migrations in order, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, isApplied := applied[mig.Version]; isApplied {
			continue
		}

		if mig.UpSQL == "" {
			return fmt.Errorf("%w: missing up SQL for migration %d", ErrMigrationFailed, mig.Version)
		}

		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
			}

			insertQuery := fmt.Sprintf(
				"INSERT INTO %s (version, name) VALUES ($1, $2)",
				m.tableName,
			)
			_, err := tx.Exec(ctx, insertQuery, mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
	}

	return nil
}

// Status returns the migration list annotated with applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return nil, err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Migration, len(m.migrations))
	for i, mig := range m.migrations {
		if at, ok := applied[mig.Version]; ok {
			mig.IsApplied = true
			mig.AppliedAt = at
		}
		out[i] = mig
	}

	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEMA
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns the embedded schema migrations.
//
// Column names follow the upstream school-system vocabulary (numero,
// nota_comportamento, variacao_comportamento and so on) so that exported
// reports and the HTTP wire format line up with the database without a
// mapping layer.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_alunos",
			UpSQL: `
				CREATE TABLE IF NOT EXISTS alunos (
					numero INTEGER PRIMARY KEY,
					nota_comportamento DOUBLE PRECISION NOT NULL DEFAULT 10.0
						CHECK (nota_comportamento >= 0.0 AND nota_comportamento <= 10.0),
					ultima_atualizacao_comportamento TIMESTAMP WITH TIME ZONE,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				)
			`,
			DownSQL: `DROP TABLE IF EXISTS alunos`,
		},
		{
			Version: 2,
			Name:    "create_fatos",
			UpSQL: `
				CREATE TABLE IF NOT EXISTS fatos (
					id UUID PRIMARY KEY,
					numero_aluno INTEGER NOT NULL REFERENCES alunos(numero),
					tipo TEXT NOT NULL CHECK (tipo IN ('positivo', 'negativo', 'neutro')),
					sancao_disciplinar TEXT,
					quantidade_dias INTEGER NOT NULL DEFAULT 1 CHECK (quantidade_dias >= 1),
					data_fato DATE NOT NULL,
					status TEXT NOT NULL CHECK (status IN ('pendente', 'consolidar', 'concluir', 'encerrado', 'glpi')),
					variacao_comportamento DOUBLE PRECISION,
					consolidado_em TIMESTAMP WITH TIME ZONE,
					nota_aplicada_em TIMESTAMP WITH TIME ZONE,
					removido_em TIMESTAMP WITH TIME ZONE,
					restaurado_em TIMESTAMP WITH TIME ZONE,
					numero_chamado TEXT NOT NULL DEFAULT '',
					descricao TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				)
			`,
			DownSQL: `DROP TABLE IF EXISTS fatos`,
		},
		{
			Version: 3,
			Name:    "index_fatos_lookup",
			UpSQL: `
				CREATE INDEX IF NOT EXISTS idx_fatos_aluno_data ON fatos (numero_aluno, data_fato);
				CREATE INDEX IF NOT EXISTS idx_fatos_status ON fatos (status);
				CREATE INDEX IF NOT EXISTS idx_fatos_unapplied ON fatos (nota_aplicada_em)
					WHERE variacao_comportamento IS NOT NULL AND nota_aplicada_em IS NULL
			`,
			DownSQL: `
				DROP INDEX IF EXISTS idx_fatos_aluno_data;
				DROP INDEX IF EXISTS idx_fatos_status;
				DROP INDEX IF EXISTS idx_fatos_unapplied
			`,
		},
		{
			Version: 4,
			Name:    "create_operadores",
			UpSQL: `
				CREATE TABLE IF NOT EXISTS operadores (
					id UUID PRIMARY KEY,
					username TEXT NOT NULL UNIQUE,
					password_hash TEXT NOT NULL,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				)
			`,
			DownSQL: `DROP TABLE IF EXISTS operadores`,
		},
	}
}

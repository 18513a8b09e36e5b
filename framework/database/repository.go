package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// DefaultMigrationTable holds the ran migrations unless configured
// otherwise.
const DefaultMigrationTable = "migration"

// Record is one row of the migration table.
type Record struct {
	Migration string
	Batch     int
}

// Repository reads and writes the migration table.
type Repository struct {
	db    *sql.DB
	table string
}

// NewRepository creates a Repository for table.
func NewRepository(db *sql.DB, table string) *Repository {
	if table == "" {
		table = DefaultMigrationTable
	}
	return &Repository{db: db, table: table}
}

// Table returns the migration table name.
func (r *Repository) Table() string { return r.table }

func (r *Repository) quoted() string { return pq.QuoteIdentifier(r.table) }

// CreateRepository creates the migration table.
func (r *Repository) CreateRepository(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (migration VARCHAR(100) NOT NULL UNIQUE, batch INTEGER NOT NULL)`, r.quoted())
	if _, err := r.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("database: create migration table: %w", err)
	}
	return nil
}

// RepositoryExists reports whether the migration table exists.
func (r *Repository) RepositoryExists(ctx context.Context) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1)`,
		r.table).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("database: check migration table: %w", err)
	}
	return ok, nil
}

// GetRan returns the ran migrations, oldest first.
func (r *Repository) GetRan(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT migration FROM %s ORDER BY batch ASC, migration ASC`, r.quoted()))
	if err != nil {
		return nil, fmt.Errorf("database: read migrations: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// GetMigrations returns the last steps migrations, newest first.
func (r *Repository) GetMigrations(ctx context.Context, steps int) ([]Record, error) {
	return r.records(ctx,
		fmt.Sprintf(`SELECT migration, batch FROM %s WHERE batch >= 1 ORDER BY batch DESC, migration DESC LIMIT $1`, r.quoted()),
		steps)
}

// GetLast returns the migrations of the last batch, newest first.
func (r *Repository) GetLast(ctx context.Context) ([]Record, error) {
	q := fmt.Sprintf(`SELECT migration, batch FROM %[1]s WHERE batch = (SELECT MAX(batch) FROM %[1]s) ORDER BY migration DESC`, r.quoted())
	return r.records(ctx, q)
}

// GetMigrationBatches maps each ran migration to its batch.
func (r *Repository) GetMigrationBatches(ctx context.Context) (map[string]int, error) {
	recs, err := r.records(ctx,
		fmt.Sprintf(`SELECT migration, batch FROM %s ORDER BY batch ASC, migration ASC`, r.quoted()))
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(recs))
	for _, rec := range recs {
		out[rec.Migration] = rec.Batch
	}
	return out, nil
}

func (r *Repository) records(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("database: read migrations: %w", err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Migration, &rec.Batch); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LastBatchNumber returns the highest batch, or 0 when nothing has run.
func (r *Repository) LastBatchNumber(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COALESCE(MAX(batch), 0) FROM %s`, r.quoted())).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("database: read last batch: %w", err)
	}
	return n, nil
}

// NextBatchNumber returns the batch number for the next run.
func (r *Repository) NextBatchNumber(ctx context.Context) (int, error) {
	n, err := r.LastBatchNumber(ctx)
	return n + 1, err
}

// Log records a ran migration.
func (r *Repository) Log(ctx context.Context, ex Execer, name string, batch int) error {
	_, err := ex.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (migration, batch) VALUES ($1, $2)`, r.quoted()), name, batch)
	return err
}

// Delete removes a migration record.
func (r *Repository) Delete(ctx context.Context, ex Execer, name string) error {
	_, err := ex.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE migration = $1`, r.quoted()), name)
	return err
}

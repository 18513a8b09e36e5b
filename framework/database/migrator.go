package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// ErrNoMigrationTable is returned by rollbacks before migrate:install.
var ErrNoMigrationTable = errors.New("migration table not found")

// migrationFile matches "2026_01_02_150405_create_users_table.up.sql".
var migrationFile = regexp.MustCompile(`^(\d{4}_\d{2}_\d{2}_\d{6}_[a-z0-9_]+)\.(up|down)\.sql$`)

// Migration is one versioned schema change.
type Migration struct {
	Name string
	Up   string
	Down string
}

// Status is a migration and whether it has run.
type Status struct {
	Name  string
	Ran   bool
	Batch int
}

// LoadMigrations reads the migrations in dir sorted by name. A missing
// directory holds no migrations.
func LoadMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("database: read migrations: %w", err)
	}

	byName := map[string]*Migration{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := migrationFile.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		mig, ok := byName[m[1]]
		if !ok {
			mig = &Migration{Name: m[1]}
			byName[m[1]] = mig
		}
		if m[2] == "up" {
			mig.Up = string(raw)
		} else {
			mig.Down = string(raw)
		}
	}

	out := make([]Migration, 0, len(byName))
	for _, mig := range byName {
		out = append(out, *mig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Migrator applies and reverts the migrations in a directory.
type Migrator struct {
	db   *sql.DB
	repo *Repository
	dir  string
	log  *zap.Logger
}

// NewMigrator creates a Migrator.
func NewMigrator(db *sql.DB, repo *Repository, dir string, log *zap.Logger) *Migrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Migrator{db: db, repo: repo, dir: dir, log: log}
}

// Repository returns the migration repository.
func (m *Migrator) Repository() *Repository { return m.repo }

// Path returns the migrations directory.
func (m *Migrator) Path() string { return m.dir }

// DB returns the connection.
func (m *Migrator) DB() *sql.DB { return m.db }

// RunOptions control Run.
type RunOptions struct {
	// Step gives every migration its own batch so each can be rolled back
	// alone.
	Step bool
}

// Install creates the migration table when it is missing.
func (m *Migrator) Install(ctx context.Context) error {
	ok, err := m.repo.RepositoryExists(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return m.repo.CreateRepository(ctx)
}

// Pending returns the migrations that have not run.
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	all, err := LoadMigrations(m.dir)
	if err != nil {
		return nil, err
	}
	ran, err := m.repo.GetRan(ctx)
	if err != nil {
		return nil, err
	}
	var pending []Migration
	for _, mig := range all {
		if !slices.Contains(ran, mig.Name) {
			pending = append(pending, mig)
		}
	}
	return pending, nil
}

// Run applies every pending migration in one new batch and returns their
// names. Running with nothing pending changes nothing.
func (m *Migrator) Run(ctx context.Context, opts RunOptions) ([]string, error) {
	if err := m.Install(ctx); err != nil {
		return nil, err
	}
	pending, err := m.Pending(ctx)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		m.log.Info("nothing to migrate")
		return nil, nil
	}
	batch, err := m.repo.NextBatchNumber(ctx)
	if err != nil {
		return nil, err
	}

	var done []string
	for _, mig := range pending {
		if err := m.up(ctx, mig, batch); err != nil {
			return done, err
		}
		done = append(done, mig.Name)
		if opts.Step {
			batch++
		}
	}
	return done, nil
}

func (m *Migrator) up(ctx context.Context, mig Migration, batch int) error {
	m.log.Info("migrating", zap.String("migration", mig.Name), zap.Int("batch", batch))
	err := m.inTx(ctx, func(tx *sql.Tx) error {
		if strings.TrimSpace(mig.Up) != "" {
			if _, err := tx.ExecContext(ctx, mig.Up); err != nil {
				return err
			}
		}
		return m.repo.Log(ctx, tx, mig.Name, batch)
	})
	if err != nil {
		return fmt.Errorf("database: migrate %s: %w", mig.Name, err)
	}
	return nil
}

func (m *Migrator) down(ctx context.Context, mig Migration) error {
	m.log.Info("rolling back", zap.String("migration", mig.Name))
	err := m.inTx(ctx, func(tx *sql.Tx) error {
		if strings.TrimSpace(mig.Down) != "" {
			if _, err := tx.ExecContext(ctx, mig.Down); err != nil {
				return err
			}
		}
		return m.repo.Delete(ctx, tx, mig.Name)
	})
	if err != nil {
		return fmt.Errorf("database: rollback %s: %w", mig.Name, err)
	}
	return nil
}

func (m *Migrator) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Rollback reverts the last batch, or the last steps migrations when steps
// is positive, and returns the reverted names. Records without a migration
// file are skipped.
func (m *Migrator) Rollback(ctx context.Context, steps int) ([]string, error) {
	if err := m.requireRepository(ctx); err != nil {
		return nil, err
	}
	var (
		recs []Record
		err  error
	)
	if steps > 0 {
		recs, err = m.repo.GetMigrations(ctx, steps)
	} else {
		recs, err = m.repo.GetLast(ctx)
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, len(recs))
	for i, r := range recs {
		names[i] = r.Migration
	}
	return m.revert(ctx, names)
}

// Reset reverts every ran migration, newest first.
func (m *Migrator) Reset(ctx context.Context) ([]string, error) {
	if err := m.requireRepository(ctx); err != nil {
		return nil, err
	}
	ran, err := m.repo.GetRan(ctx)
	if err != nil {
		return nil, err
	}
	slices.Reverse(ran)
	return m.revert(ctx, ran)
}

func (m *Migrator) revert(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		m.log.Info("nothing to rollback")
		return nil, nil
	}
	all, err := LoadMigrations(m.dir)
	if err != nil {
		return nil, err
	}
	files := make(map[string]Migration, len(all))
	for _, mig := range all {
		files[mig.Name] = mig
	}

	var done []string
	for _, name := range names {
		mig, ok := files[name]
		if !ok {
			m.log.Warn("migration not found", zap.String("migration", name))
			continue
		}
		if err := m.down(ctx, mig); err != nil {
			return done, err
		}
		done = append(done, name)
	}
	return done, nil
}

func (m *Migrator) requireRepository(ctx context.Context) error {
	ok, err := m.repo.RepositoryExists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoMigrationTable
	}
	return nil
}

// Status lists every migration file and whether it has run.
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	if err := m.requireRepository(ctx); err != nil {
		return nil, err
	}
	all, err := LoadMigrations(m.dir)
	if err != nil {
		return nil, err
	}
	batches, err := m.repo.GetMigrationBatches(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Status, len(all))
	for i, mig := range all {
		b, ran := batches[mig.Name]
		out[i] = Status{Name: mig.Name, Ran: ran, Batch: b}
	}
	return out, nil
}

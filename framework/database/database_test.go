package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/km-arc/go-foundation/framework/config"
)

const (
	usersMigration = "2026_01_01_000000_create_users_table"
	postsMigration = "2026_01_02_000000_create_posts_table"
)

// writeMigrations lays out two migrations in a temp dir.
func writeMigrations(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		usersMigration + ".up.sql":   "CREATE TABLE users (id int);",
		usersMigration + ".down.sql": "DROP TABLE users;",
		postsMigration + ".up.sql":   "CREATE TABLE posts (id int);",
		postsMigration + ".down.sql": "DROP TABLE posts;",
		"README.md":                  "not a migration",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func newMigrator(t *testing.T, dir string) (*Migrator, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewMigrator(db, NewRepository(db, ""), dir, zap.NewNop()), mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func expectTable(mock sqlmock.Sqlmock, exists bool) {
	mock.ExpectQuery(q("SELECT EXISTS")).
		WithArgs("migration").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(exists))
}

func expectRan(mock sqlmock.Sqlmock, names ...string) {
	rows := sqlmock.NewRows([]string{"migration"})
	for _, n := range names {
		rows.AddRow(n)
	}
	mock.ExpectQuery(q(`SELECT migration FROM "migration" ORDER BY batch ASC`)).WillReturnRows(rows)
}

func expectUp(mock sqlmock.Sqlmock, table, name string, batch int) {
	mock.ExpectBegin()
	mock.ExpectExec(q("CREATE TABLE " + table)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q(`INSERT INTO "migration" (migration, batch) VALUES ($1, $2)`)).
		WithArgs(name, batch).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

func expectDown(mock sqlmock.Sqlmock, table, name string) {
	mock.ExpectBegin()
	mock.ExpectExec(q("DROP TABLE " + table)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q(`DELETE FROM "migration" WHERE migration = $1`)).
		WithArgs(name).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

// ── Connection ───────────────────────────────────────────────────────────────

func TestDSN(t *testing.T) {
	dsn := DSN(config.DBConfig{
		Host:     "db",
		Port:     "5432",
		Username: "app",
		Password: "it's secret",
		Database: "shop",
	})
	assert.Equal(t, `host=db port=5432 user=app password='it\'s secret' dbname=shop sslmode=disable`, dsn)
}

func TestOpen(t *testing.T) {
	db, err := Open(config.DBConfig{Driver: "postgres", Host: "localhost", Port: "5432", MaxOpenConns: 7})
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, 7, db.Stats().MaxOpenConnections)

	_, err = Open(config.DBConfig{Driver: "mysql"})
	assert.EqualError(t, err, "database: driver [mysql] is not supported")
}

func TestDropAllTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(q("SELECT tablename FROM pg_tables")).
		WillReturnRows(sqlmock.NewRows([]string{"tablename"}).AddRow("migration").AddRow("users"))
	mock.ExpectExec(q(`DROP TABLE IF EXISTS "migration", "users" CASCADE`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	tables, err := DropAllTables(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, []string{"migration", "users"}, tables)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ── Files ────────────────────────────────────────────────────────────────────

func TestLoadMigrations(t *testing.T) {
	migs, err := LoadMigrations(writeMigrations(t))
	require.NoError(t, err)
	require.Len(t, migs, 2)
	assert.Equal(t, usersMigration, migs[0].Name)
	assert.Equal(t, "CREATE TABLE users (id int);", migs[0].Up)
	assert.Equal(t, "DROP TABLE users;", migs[0].Down)
	assert.Equal(t, postsMigration, migs[1].Name)

	none, err := LoadMigrations(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCreator(t *testing.T) {
	dir := t.TempDir()
	c := NewCreator(dir)
	c.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }

	paths, err := c.Create("create_orders_table")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "2026_03_04_050607_create_orders_table.up.sql"),
		filepath.Join(dir, "2026_03_04_050607_create_orders_table.down.sql"),
	}, paths)

	up, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Contains(t, string(up), "CREATE TABLE IF NOT EXISTS orders (")
	down, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.Equal(t, "DROP TABLE IF EXISTS orders;\n", string(down))

	_, err = c.Create("create_orders_table")
	assert.EqualError(t, err, "database: a migration named [create_orders_table] already exists")

	_, err = c.Create("CreateOrders")
	assert.Error(t, err)

	paths, err = c.Create("add_total_to_orders_table")
	require.NoError(t, err)
	up, _ = os.ReadFile(paths[0])
	assert.Equal(t, "-- ALTER TABLE orders ADD COLUMN ...;\n", string(up))
}

// ── Migrator ─────────────────────────────────────────────────────────────────

func TestMigrator_Run(t *testing.T) {
	m, mock := newMigrator(t, writeMigrations(t))

	expectTable(mock, false)
	mock.ExpectExec(q(`CREATE TABLE IF NOT EXISTS "migration"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	expectRan(mock)
	mock.ExpectQuery(q(`SELECT COALESCE(MAX(batch), 0) FROM "migration"`)).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(0))
	expectUp(mock, "users", usersMigration, 1)
	expectUp(mock, "posts", postsMigration, 1)

	done, err := m.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{usersMigration, postsMigration}, done)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_RunTwiceIsNoop(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	dir := writeMigrations(t)
	m, mock := newMigrator(t, dir)
	m.log = zap.New(core)

	// Everything already ran: no batch lookup, no transaction, no insert.
	expectTable(mock, true)
	expectRan(mock, usersMigration, postsMigration)

	done, err := m.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, done)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 1, logs.FilterMessage("nothing to migrate").Len())
}

func TestMigrator_RunStep(t *testing.T) {
	m, mock := newMigrator(t, writeMigrations(t))

	expectTable(mock, true)
	expectRan(mock)
	mock.ExpectQuery(q("SELECT COALESCE(MAX(batch), 0)")).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(3))
	expectUp(mock, "users", usersMigration, 4)
	expectUp(mock, "posts", postsMigration, 5)

	_, err := m.Run(context.Background(), RunOptions{Step: true})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_RunFailureRollsBackTransaction(t *testing.T) {
	m, mock := newMigrator(t, writeMigrations(t))

	expectTable(mock, true)
	expectRan(mock)
	mock.ExpectQuery(q("SELECT COALESCE(MAX(batch), 0)")).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(0))
	expectUp(mock, "users", usersMigration, 1)
	mock.ExpectBegin()
	mock.ExpectExec(q("CREATE TABLE posts")).WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	done, err := m.Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), postsMigration)
	assert.Contains(t, err.Error(), "syntax error")
	assert.Equal(t, []string{usersMigration}, done)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_Rollback(t *testing.T) {
	m, mock := newMigrator(t, writeMigrations(t))

	expectTable(mock, true)
	mock.ExpectQuery(q(`WHERE batch = (SELECT MAX(batch) FROM "migration")`)).
		WillReturnRows(sqlmock.NewRows([]string{"migration", "batch"}).AddRow(postsMigration, 2))
	expectDown(mock, "posts", postsMigration)

	done, err := m.Rollback(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{postsMigration}, done)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_RollbackSteps(t *testing.T) {
	m, mock := newMigrator(t, writeMigrations(t))

	expectTable(mock, true)
	mock.ExpectQuery(q("ORDER BY batch DESC, migration DESC LIMIT $1")).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"migration", "batch"}).
			AddRow(postsMigration, 2).
			AddRow(usersMigration, 1))
	expectDown(mock, "posts", postsMigration)
	expectDown(mock, "users", usersMigration)

	done, err := m.Rollback(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{postsMigration, usersMigration}, done)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_RollbackWithoutTable(t *testing.T) {
	m, mock := newMigrator(t, writeMigrations(t))
	expectTable(mock, false)

	_, err := m.Rollback(context.Background(), 0)
	assert.ErrorIs(t, err, ErrNoMigrationTable)
}

func TestMigrator_Reset(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	m, mock := newMigrator(t, writeMigrations(t))
	m.log = zap.New(core)

	expectTable(mock, true)
	expectRan(mock, usersMigration, postsMigration, "2026_01_03_000000_deleted_file")
	expectDown(mock, "posts", postsMigration)
	expectDown(mock, "users", usersMigration)

	done, err := m.Reset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{postsMigration, usersMigration}, done)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 1, logs.FilterMessage("migration not found").Len())
}

func TestMigrator_Status(t *testing.T) {
	m, mock := newMigrator(t, writeMigrations(t))

	expectTable(mock, true)
	mock.ExpectQuery(q(`SELECT migration, batch FROM "migration" ORDER BY batch ASC`)).
		WillReturnRows(sqlmock.NewRows([]string{"migration", "batch"}).AddRow(usersMigration, 1))

	st, err := m.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Status{
		{Name: usersMigration, Ran: true, Batch: 1},
		{Name: postsMigration},
	}, st)
}

// ── Seeders ──────────────────────────────────────────────────────────────────

type UserSeeder struct{ ran bool }

func (s *UserSeeder) Run(context.Context, *sql.DB) error {
	s.ran = true
	return nil
}

func TestSeed(t *testing.T) {
	users := &UserSeeder{}
	calls := 0
	seeders := []Seeder{
		users,
		NewSeeder(DefaultSeeder, func(context.Context, *sql.DB) error {
			calls++
			return nil
		}),
		NewSeeder("Broken", func(context.Context, *sql.DB) error { return errors.New("no rows") }),
	}
	ctx := context.Background()

	require.NoError(t, Seed(ctx, nil, seeders, ""))
	assert.Equal(t, 1, calls)

	require.NoError(t, Seed(ctx, nil, seeders, "UserSeeder"))
	assert.True(t, users.ran)

	assert.EqualError(t, Seed(ctx, nil, seeders, "Broken"), "database: seeder [Broken]: no rows")
	assert.EqualError(t, Seed(ctx, nil, seeders, "Missing"), "database: seeder [Missing] not found")
}

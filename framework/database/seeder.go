package database

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
)

// DefaultSeeder runs when db:seed is given no class.
const DefaultSeeder = "DatabaseSeeder"

// SeederTag is the container tag seeders are registered under.
const SeederTag = "seeders"

// Seeder fills the database with data.
type Seeder interface {
	Run(ctx context.Context, db *sql.DB) error
}

type namedSeeder struct {
	name string
	fn   func(ctx context.Context, db *sql.DB) error
}

func (s namedSeeder) Run(ctx context.Context, db *sql.DB) error { return s.fn(ctx, db) }
func (s namedSeeder) Name() string                              { return s.name }

// NewSeeder names a seeder function.
func NewSeeder(name string, fn func(ctx context.Context, db *sql.DB) error) Seeder {
	return namedSeeder{name: name, fn: fn}
}

// SeederName returns the Name() of s, or its type name.
func SeederName(s Seeder) string {
	if n, ok := s.(interface{ Name() string }); ok {
		return n.Name()
	}
	t := reflect.TypeOf(s)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// Seed runs the seeder called class, or DatabaseSeeder when class is empty.
func Seed(ctx context.Context, db *sql.DB, seeders []Seeder, class string) error {
	if class == "" {
		class = DefaultSeeder
	}
	for _, s := range seeders {
		if SeederName(s) != class {
			continue
		}
		if err := s.Run(ctx, db); err != nil {
			return fmt.Errorf("database: seeder [%s]: %w", class, err)
		}
		return nil
	}
	return fmt.Errorf("database: seeder [%s] not found", class)
}

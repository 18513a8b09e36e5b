package database

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var (
	migrationName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	createTable   = regexp.MustCompile(`^create_(\w+?)_table$`)
	changeTable   = regexp.MustCompile(`_(?:to|from|in)_(\w+?)_table$`)
)

// Creator writes new migration file pairs.
type Creator struct {
	dir string
	now func() time.Time
}

// NewCreator creates a Creator for dir.
func NewCreator(dir string) *Creator {
	return &Creator{dir: dir, now: time.Now}
}

// Create writes "<timestamp>_<name>.up.sql" and its down file and returns
// both paths.
func (c *Creator) Create(name string) ([]string, error) {
	name = strings.TrimSpace(name)
	if !migrationName.MatchString(name) {
		return nil, fmt.Errorf("database: invalid migration name [%s]: use snake_case", name)
	}
	existing, err := LoadMigrations(c.dir)
	if err != nil {
		return nil, err
	}
	for _, m := range existing {
		if strings.HasSuffix(m.Name, "_"+name) && len(m.Name) == len(name)+18 {
			return nil, fmt.Errorf("database: a migration named [%s] already exists", name)
		}
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return nil, err
	}

	up, down := stubs(name)
	base := c.now().Format("2006_01_02_150405") + "_" + name
	paths := []string{
		filepath.Join(c.dir, base+".up.sql"),
		filepath.Join(c.dir, base+".down.sql"),
	}
	if err := os.WriteFile(paths[0], []byte(up), 0o644); err != nil {
		return nil, err
	}
	if err := os.WriteFile(paths[1], []byte(down), 0o644); err != nil {
		return nil, err
	}
	return paths, nil
}

func stubs(name string) (up, down string) {
	if m := createTable.FindStringSubmatch(name); m != nil {
		up = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    id BIGSERIAL PRIMARY KEY,\n    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),\n    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()\n);\n", m[1])
		down = fmt.Sprintf("DROP TABLE IF EXISTS %s;\n", m[1])
		return up, down
	}
	if m := changeTable.FindStringSubmatch(name); m != nil {
		up = fmt.Sprintf("-- ALTER TABLE %s ADD COLUMN ...;\n", m[1])
		down = fmt.Sprintf("-- ALTER TABLE %s DROP COLUMN ...;\n", m[1])
		return up, down
	}
	return "-- " + name + "\n", "-- " + name + "\n"
}

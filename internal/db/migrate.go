package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

//go:embed migrations
var migrations embed.FS

// Migrations lists the embedded DDL files for a driver in apply order.
func Migrations(driver string) ([]string, error) {
	dir := path.Join("migrations", driver)
	entries, err := fs.ReadDir(migrations, dir)
	if err != nil {
		return nil, fmt.Errorf("no migrations for %s: %w", driver, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, path.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// Migrate applies every embedded migration for driver. Each file holds one
// idempotent statement.
func Migrate(ctx context.Context, db *sqlx.DB, driver string) ([]string, error) {
	files, err := Migrations(driver)
	if err != nil {
		return nil, err
	}

	for _, f := range files {
		stmt, err := fs.ReadFile(migrations, f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		if _, err := db.ExecContext(ctx, string(stmt)); err != nil {
			return nil, fmt.Errorf("exec %s: %w", f, err)
		}
	}
	return files, nil
}

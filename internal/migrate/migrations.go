// Package migrate brings a workspace database up to the current schema.
// Migrations are embedded SQL files named NNN_description.sql; the numeric
// prefix is the version, files apply in version order, and a one-row
// schema_version table records how far a database has progressed.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var schemaFS embed.FS

// Migrate applies every embedded migration newer than the database's
// recorded version, all inside one transaction. Safe to call on every open.
func Migrate(db *sql.DB) error {
	entries, err := fs.ReadDir(schemaFS, "sql")
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	applied, err := currentVersion(tx)
	if err != nil {
		return err
	}
	for _, name := range names {
		version, err := versionOf(name)
		if err != nil {
			return err
		}
		if version <= applied {
			continue
		}
		script, err := schemaFS.ReadFile("sql/" + name)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(script)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version = ?`, version); err != nil {
			return fmt.Errorf("record %s: %w", name, err)
		}
		applied = version
	}
	return tx.Commit()
}

// currentVersion reads the schema_version row, seeding it at zero on a
// fresh database.
func currentVersion(tx *sql.Tx) (int, error) {
	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return 0, fmt.Errorf("create schema_version: %w", err)
	}
	var v int
	switch err := tx.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&v); {
	case err == sql.ErrNoRows:
		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return 0, fmt.Errorf("init schema_version: %w", err)
		}
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("read schema_version: %w", err)
	}
	return v, nil
}

func versionOf(name string) (int, error) {
	prefix, _, ok := strings.Cut(name, "_")
	if !ok {
		return 0, fmt.Errorf("migration %s: missing version prefix", name)
	}
	v, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, fmt.Errorf("migration %s: bad version prefix: %w", name, err)
	}
	return v, nil
}

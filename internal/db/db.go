// Package db opens the per-workspace SQLite store. A workspace keeps all
// of its state under a .bookline directory, so deleting that directory
// resets the workspace.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	workspaceDir = ".bookline"
	storeName    = "bookline.db"
)

type Config struct {
	Workspace string
}

// Path reports where the workspace's database file lives. An empty
// workspace means the current directory.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, workspaceDir, storeName)
}

// EnsureWorkspace creates the .bookline directory if missing and returns
// its path.
func EnsureWorkspace(workspace string) (string, error) {
	dir := filepath.Join(workspace, workspaceDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Open ensures the workspace exists and opens its database with foreign
// key enforcement on. Callers are expected to run migrations before use.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)", Path(cfg.Workspace))
	return sql.Open("sqlite", dsn)
}

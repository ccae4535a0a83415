package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const DefaultPath = "data/baulot.db"

type Config struct {
	Path string
}

// pragmas are applied per connection through the DSN so every pooled
// connection shares the same settings.
var pragmas = []string{
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
}

// DSN builds the modernc sqlite connection string for path. Write
// transactions take the lock up front so read-modify-write sequences do
// not fail on upgrade.
func DSN(path string) string {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate", path)
	for _, p := range pragmas {
		dsn += "&_pragma=" + p
	}
	return dsn
}

// Open opens the SQLite database, creating its directory if missing.
func Open(cfg Config) (*sql.DB, error) {
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	conn, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return conn, nil
}

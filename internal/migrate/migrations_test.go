package migrate

import (
	"context"
	"path/filepath"
	"testing"

	"baulot/internal/db"
)

func TestMigrateCreatesSchemaAndIsRepeatable(t *testing.T) {
	// Given: a fresh database
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "baulot.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	ctx := context.Background()

	// When: migrations run twice
	if err := Migrate(ctx, conn); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := Migrate(ctx, conn); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	// Then: every table exists and the version is recorded
	for _, table := range []string{"users", "projects", "trades", "tasks", "photos", "comments", "events"} {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
	v, err := Version(ctx, conn)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != 1 {
		t.Fatalf("expected version 1, got %d", v)
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	conn, err := db.Open(db.Config{Path: filepath.Join(t.TempDir(), "baulot.db")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	_, err = conn.Exec(`INSERT INTO trades(id,project_id,name,created_at) VALUES ('t1','missing','Elektro','2024-01-01T00:00:00Z')`)
	if err == nil {
		t.Fatalf("expected foreign key violation")
	}
}

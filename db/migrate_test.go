package db

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateCreatesSchema(t *testing.T) {
	db := openMemoryDB(t)

	if err := Migrate(db, nil); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	for _, table := range []string{"entities", "signals", "fusion_results", "enrichment_cursors", "recompute_jobs"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing after migration: %v", table, err)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openMemoryDB(t)

	if err := Migrate(db, nil); err != nil {
		t.Fatalf("first Migrate: %v", err)
	}
	if err := Migrate(db, nil); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("count schema_migrations: %v", err)
	}
	if count != 6 {
		t.Errorf("schema_migrations rows = %d, want 6", count)
	}
}

func TestSignalsTableRejectsOutOfRangeConfidence(t *testing.T) {
	db := openMemoryDB(t)
	if err := Migrate(db, nil); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	_, err := db.Exec(`INSERT INTO signals (id, entity_id, claim_type, confidence, source, created_at)
		VALUES ('sig_bad', 'acct_1', 'budget_freeze', 1.5, 'email', CURRENT_TIMESTAMP)`)
	if err == nil {
		t.Error("expected CHECK constraint to reject confidence 1.5")
	}
}

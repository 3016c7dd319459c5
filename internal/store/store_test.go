package store

import (
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestOpen_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open(%q): %v", path, err)
	}
	defer s.Close()

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		t.Errorf("%s missing after Open", path)
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.db")
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("close #%d: %v", i+1, err)
		}
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got := catalog(t, s.db, "table", "")
	for _, want := range []string{"snapshots", "snapshot_entries"} {
		if !slices.Contains(got, want) {
			t.Errorf("table %s lost after reopening; have %v", want, got)
		}
	}
}

func TestOpen_UnwritableDir(t *testing.T) {
	if _, err := Open("/nonexistent/dir/snap.db"); err == nil {
		t.Error("Open succeeded in a missing directory")
	}
}

func TestClose_ZeroStore(t *testing.T) {
	var s Store
	if err := s.Close(); err != nil {
		t.Errorf("Close on zero Store: %v", err)
	}
}

func TestDB_Usable(t *testing.T) {
	s := createTestStore(t)
	if s.DB() == nil {
		t.Fatal("DB() is nil")
	}
	if err := s.DB().Ping(); err != nil {
		t.Errorf("ping: %v", err)
	}
}

func TestConnectionPragmas(t *testing.T) {
	s := createTestStore(t)

	for name, want := range map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"busy_timeout": "5000",
		"foreign_keys": "1",
	} {
		got, err := s.pragma(name)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("PRAGMA %s = %q, want %q", name, got, want)
		}
	}
}

func TestSchema_Columns(t *testing.T) {
	s := createTestStore(t)

	tests := map[string][]string{
		"snapshots":        {"id", "seq", "device", "label"},
		"snapshot_entries": {"snapshot_id", "idx", "total_ns", "count"},
	}
	for table, want := range tests {
		got := columnNames(t, s.db, table)
		for _, col := range want {
			if !slices.Contains(got, col) {
				t.Errorf("%s has no column %s (columns: %v)", table, col, got)
			}
		}
	}
}

func TestMigration_V1Index(t *testing.T) {
	s := createTestStore(t)

	if idx := catalog(t, s.db, "index", "snapshot_entries"); !slices.Contains(idx, "idx_snapshot_entries_idx") {
		t.Errorf("snapshot_entries indexes = %v, want idx_snapshot_entries_idx", idx)
	}

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestMigration_UpgradesVersionZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, stmt := range []string{"DROP INDEX idx_snapshot_entries_idx", "PRAGMA user_version = 0"} {
		if _, err := s.db.Exec(stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	if !slices.Contains(catalog(t, s.db, "index", "snapshot_entries"), "idx_snapshot_entries_idx") {
		t.Error("index not recreated on upgrade")
	}
	if v, _ := s.pragma("user_version"); v != "1" {
		t.Errorf("user_version = %s, want 1", v)
	}
}

func TestConstraint_IndexDomain(t *testing.T) {
	s := createTestStore(t)

	if _, err := s.db.Exec(`INSERT INTO snapshots (id, seq, device) VALUES ('s1', 1, 'fibonacci')`); err != nil {
		t.Fatalf("insert snapshot: %v", err)
	}
	_, err := s.db.Exec(`INSERT INTO snapshot_entries (snapshot_id, idx, total_ns, count) VALUES ('s1', 93, 1, 1)`)
	if err == nil {
		t.Error("idx 93 accepted")
	}
}

func TestConstraint_EntryRequiresSnapshot(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`INSERT INTO snapshot_entries (snapshot_id, idx, total_ns, count) VALUES ('missing', 1, 1, 1)`)
	if err == nil {
		t.Error("orphan entry accepted")
	}
}

// catalog lists sqlite_master names of the given type, optionally limited
// to one table.
func catalog(t *testing.T, db *sql.DB, kind, table string) []string {
	t.Helper()
	q := "SELECT name FROM sqlite_master WHERE type = ?"
	args := []any{kind}
	if table != "" {
		q += " AND tbl_name = ?"
		args = append(args, table)
	}
	return scanNames(t, db, q, args...)
}

func columnNames(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	return scanNames(t, db, "SELECT name FROM pragma_table_info(?)", table)
}

func scanNames(t *testing.T, db *sql.DB, q string, args ...any) []string {
	t.Helper()
	rows, err := db.Query(q, args...)
	if err != nil {
		t.Fatalf("%s: %v", q, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			t.Fatalf("scan: %v", err)
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
	return names
}

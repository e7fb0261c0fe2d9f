package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
)

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	migrations, err := LoadMigrations(os.DirFS(filepath.Join("..", "..", "db", "migrations")))
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("no migrations discovered")
	}
	for i := 1; i < len(migrations); i++ {
		if migrations[i-1].Version >= migrations[i].Version {
			t.Fatalf("migrations out of order: %s before %s", migrations[i-1].Version, migrations[i].Version)
		}
	}
}

func TestEventLogMigrationBlocksUpdates(t *testing.T) {
	migrations, err := LoadMigrations(os.DirFS(filepath.Join("..", "..", "db", "migrations")))
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	up := migrations[0].Up
	for _, fragment := range []string{
		"CREATE TABLE event_logs",
		"event_logs_append_only_guard",
		"BEFORE UPDATE ON event_logs",
		"object_not_in_prerequisite_state",
	} {
		if !strings.Contains(up, fragment) {
			t.Fatalf("expected initial migration to contain %q", fragment)
		}
	}
	if !strings.Contains(migrations[0].Down, "DROP TABLE IF EXISTS event_logs") {
		t.Fatalf("expected down migration to drop event_logs")
	}
}

func TestLoadMigrationsRejectsMissingDown(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_init.up.sql":   {Data: []byte("SELECT 1;")},
		"0001_init.down.sql": {Data: []byte("SELECT 1;")},
		"0002_extra.up.sql":  {Data: []byte("SELECT 2;")},
		"README.md":          {Data: []byte("ignored")},
	}
	if _, err := LoadMigrations(fsys); err == nil {
		t.Fatal("expected missing down file to fail")
	}

	fsys["0002_extra.down.sql"] = &fstest.MapFile{Data: []byte("SELECT 2;")}
	migrations, err := LoadMigrations(fsys)
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	if len(migrations) != 2 || migrations[1].Name != "0002_extra.up.sql" {
		t.Fatalf("unexpected migrations: %+v", migrations)
	}
}

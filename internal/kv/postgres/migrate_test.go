package postgres

import (
	"testing"
	"testing/fstest"

	"opd/opd-service/migrations"
)

func TestLoadMigrationsOrdersByVersion(t *testing.T) {
	dir := fstest.MapFS{
		"0010_later.sql":     {Data: []byte("SELECT 10")},
		"0002_second.sql":    {Data: []byte("SELECT 2")},
		"0001_first.sql":     {Data: []byte("SELECT 1")},
		"README.md":          {Data: []byte("notes")},
		"seed.sql":           {Data: []byte("SELECT 0")},
		"draft_changes.sql":  {Data: []byte("SELECT 0")},
		"0000_zero.sql":      {Data: []byte("SELECT 0")},
		"archive/0003_x.sql": {Data: []byte("SELECT 3")},
	}

	got, err := LoadMigrations(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []struct {
		version int
		name    string
	}{
		{1, "0001_first.sql"},
		{2, "0002_second.sql"},
		{10, "0010_later.sql"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d migrations, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].Version != w.version || got[i].Name != w.name {
			t.Fatalf("migration %d = %d %s, want %d %s", i, got[i].Version, got[i].Name, w.version, w.name)
		}
	}
	if got[0].SQL != "SELECT 1" {
		t.Fatalf("unexpected sql %q", got[0].SQL)
	}
}

func TestLoadMigrationsRejectsDuplicateVersions(t *testing.T) {
	dir := fstest.MapFS{
		"0001_a.sql":  {Data: []byte("SELECT 1")},
		"001_b.sql":   {Data: []byte("SELECT 1")},
		"0002_ok.sql": {Data: []byte("SELECT 2")},
	}
	if _, err := LoadMigrations(dir); err == nil {
		t.Fatalf("expected duplicate version error")
	}
}

func TestEmbeddedMigrationsLoad(t *testing.T) {
	got, err := LoadMigrations(migrations.Files)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) == 0 || got[0].Version != 1 {
		t.Fatalf("expected the embedded set to start at version 1, got %+v", got)
	}
}

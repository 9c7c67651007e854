package db

import (
	"testing"
	"testing/fstest"
	"time"
)

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"001_reference.sql": {Data: []byte("CREATE TABLE organizations (id UUID PRIMARY KEY);")},
		"002_billing.sql":   {Data: []byte("CREATE TABLE encounters (id UUID PRIMARY KEY);")},
		"003_payments.sql":  {Data: []byte("CREATE TABLE payments (id UUID PRIMARY KEY);")},
	}

	migrations, err := NewMigrator(nil, fsys).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[0].Name != "001_reference.sql" {
		t.Errorf("unexpected first migration: %+v", migrations[0])
	}
	if migrations[2].SQL != "CREATE TABLE payments (id UUID PRIMARY KEY);" {
		t.Errorf("unexpected SQL content: %s", migrations[2].SQL)
	}
}

func TestLoadMigrations_SortOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"010_tables.sql": {Data: []byte("SELECT 10;")},
		"002_second.sql": {Data: []byte("SELECT 2;")},
		"001_first.sql":  {Data: []byte("SELECT 1;")},
		"005_middle.sql": {Data: []byte("SELECT 5;")},
	}

	migrations, err := NewMigrator(nil, fsys).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}

	expected := []int{1, 2, 5, 10}
	if len(migrations) != len(expected) {
		t.Fatalf("expected %d migrations, got %d", len(expected), len(migrations))
	}
	for i, v := range expected {
		if migrations[i].Version != v {
			t.Errorf("migration[%d]: expected version %d, got %d", i, v, migrations[i].Version)
		}
	}
}

func TestLoadMigrations_SkipsInvalidNames(t *testing.T) {
	fsys := fstest.MapFS{
		"001_valid.sql":      {Data: []byte("SELECT 1;")},
		"readme.sql":         {Data: []byte("-- no version prefix")},
		"notes.txt":          {Data: []byte("not sql")},
		"abc_invalid.sql":    {Data: []byte("-- non-numeric prefix")},
		"002_also_valid.sql": {Data: []byte("SELECT 2;")},
	}

	migrations, err := NewMigrator(nil, fsys).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 valid migrations, got %d", len(migrations))
	}
}

func TestPendingAndStatus(t *testing.T) {
	migrations := []Migration{
		{Version: 1, Name: "001_reference.sql"},
		{Version: 2, Name: "002_billing.sql"},
		{Version: 3, Name: "003_payments.sql"},
	}
	applied := map[int]time.Time{1: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}

	pending := PendingMigrations(migrations, applied)
	if len(pending) != 2 || pending[0].Version != 2 {
		t.Fatalf("unexpected pending set: %+v", pending)
	}

	statuses := BuildStatus(migrations, applied)
	if !statuses[0].Applied || statuses[0].AppliedAt == nil {
		t.Error("expected migration 001 to be applied with a timestamp")
	}
	if statuses[1].Applied || statuses[1].AppliedAt != nil {
		t.Error("expected migration 002 to be pending")
	}
}

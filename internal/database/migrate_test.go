// Package database provides connection setup for MariaDB and Redis.
// This file validates migration SQL files to catch schema mismatches early.
package database

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
)

// migrationsDir returns the absolute path to db/migrations/ from the project root.
func migrationsDir(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot determine test file path")
	}
	// thisFile is internal/database/migrate_test.go, project root is two dirs up.
	projectRoot := filepath.Join(filepath.Dir(thisFile), "..", "..")
	dir := filepath.Join(projectRoot, "db", "migrations")
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("migrations directory not found at %s: %v", dir, err)
	}
	return dir
}

func migrationFiles(t *testing.T, suffix string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(migrationsDir(t), "*"+suffix))
	if err != nil {
		t.Fatalf("globbing migrations: %v", err)
	}
	sort.Strings(matches)
	return matches
}

// TestMigrations_UpDownPairs verifies every up migration has a matching
// down migration. golang-migrate refuses to roll back otherwise.
func TestMigrations_UpDownPairs(t *testing.T) {
	ups := migrationFiles(t, ".up.sql")
	if len(ups) == 0 {
		t.Fatal("no up migrations found")
	}

	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := os.Stat(down); err != nil {
			t.Errorf("missing down migration for %s", filepath.Base(up))
		}
	}
}

// TestMigrations_SequentialVersions verifies migration numbers form a gapless
// sequence starting at 000001. A gap usually means a botched rename.
func TestMigrations_SequentialVersions(t *testing.T) {
	ups := migrationFiles(t, ".up.sql")

	for i, up := range ups {
		want := fmt.Sprintf("%06d_", i+1)
		if base := filepath.Base(up); !strings.HasPrefix(base, want) {
			t.Errorf("migration %s out of sequence, want prefix %s", base, want)
		}
	}
}

// TestMigrations_AccountDefaults verifies the column defaults in the accounts
// migration match the values the account package writes. Update both together.
func TestMigrations_AccountDefaults(t *testing.T) {
	data, err := os.ReadFile(filepath.Join(migrationsDir(t), "000001_create_accounts.up.sql"))
	if err != nil {
		t.Fatalf("reading accounts migration: %v", err)
	}
	sql := string(data)

	// Must match account.RoleMember and account.StatePending.
	for _, want := range []string{"DEFAULT 'member'", "DEFAULT 'pending'"} {
		if !strings.Contains(sql, want) {
			t.Errorf("accounts migration missing %q", want)
		}
	}
}

// TestMigrations_SMTPSingletonSeed verifies the smtp_settings migration seeds
// the id=1 row the repository's singleton queries depend on.
func TestMigrations_SMTPSingletonSeed(t *testing.T) {
	data, err := os.ReadFile(filepath.Join(migrationsDir(t), "000007_create_smtp_settings.up.sql"))
	if err != nil {
		t.Fatalf("reading smtp migration: %v", err)
	}
	if !strings.Contains(string(data), "INSERT INTO smtp_settings (id) VALUES (1)") {
		t.Error("smtp_settings migration does not seed the singleton row")
	}
}

// TestMigrations_DevicesUniqueKey verifies the devices table constrains
// (account_id, uid) to one row. The device repository's upsert relies on
// this key to turn concurrent first-time sign-ins into a single record.
func TestMigrations_DevicesUniqueKey(t *testing.T) {
	data, err := os.ReadFile(filepath.Join(migrationsDir(t), "000003_create_devices.up.sql"))
	if err != nil {
		t.Fatalf("reading devices migration: %v", err)
	}
	if !strings.Contains(string(data), "UNIQUE KEY uniq_devices_account_uid (account_id, uid)") {
		t.Error("devices migration missing the (account_id, uid) unique key")
	}
}

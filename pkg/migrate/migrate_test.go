package migrate

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/angelmondragon/packfinderz-events/pkg/config"
	"github.com/angelmondragon/packfinderz-events/pkg/db"
	"github.com/angelmondragon/packfinderz-events/pkg/logger"
	"github.com/google/uuid"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "migrate-test", Output: io.Discard})
}

func newSQLiteClient(t *testing.T) *db.Client {
	t.Helper()
	client, err := db.New(context.Background(), config.DBConfig{
		Driver: config.DBDriverSQLite,
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	}, nil)
	if err != nil {
		t.Fatalf("db.New() error: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestEmbeddedMigrationsContainEventsSchema(t *testing.T) {
	migrations, err := List(EmbeddedFS())
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(migrations) == 0 || migrations[0].Name != "create_events_table" {
		t.Fatalf("unexpected embedded migrations %+v", migrations)
	}

	data, err := fs.ReadFile(EmbeddedFS(), migrations[0].File)
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS events",
		"record JSONB NOT NULL",
		"CREATE INDEX IF NOT EXISTS idx_events_type_created",
		"CREATE INDEX IF NOT EXISTS idx_events_status_created",
		"CREATE INDEX IF NOT EXISTS idx_events_tenant_created",
		"DROP TABLE IF EXISTS events",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestListRejectsMalformedMigrations(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"bad filename": {
			"bad-name.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
		"duplicate version": {
			"20260101000000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
			"20260101000000_b.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
		"missing down": {
			"20260101000000_a.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")},
		},
		"down before up": {
			"20260101000000_a.sql": {Data: []byte("-- +goose Down\n-- +goose Up\n")},
		},
		"unbalanced block": {
			"20260101000000_a.sql": {Data: []byte("-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n")},
		},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			if err := ValidateFS(fsys); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestListOrdersByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"20260102000000_second.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		"20260101000000_first.sql":  {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		"README.md":                 {Data: []byte("ignored")},
	}
	migrations, err := List(fsys)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(migrations) != 2 || migrations[0].Name != "first" || migrations[1].Version != 20260102000000 {
		t.Fatalf("unexpected order %+v", migrations)
	}
}

func TestValidateDir(t *testing.T) {
	if err := ValidateDir(""); err != nil {
		t.Fatalf("embedded migrations invalid: %v", err)
	}
	if err := ValidateDir("migrations"); err != nil {
		t.Fatalf("ValidateDir() error: %v", err)
	}
	if err := ValidateDir(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	path, err := CreateSQLMigration(dir, "Add Events Payload Index", now)
	if err != nil {
		t.Fatalf("CreateSQLMigration() error: %v", err)
	}
	if filepath.Base(path) != "20261019120000_add_events_payload_index.sql" {
		t.Fatalf("unexpected filename: %s", path)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("created migration failed validation: %v", err)
	}

	if _, err := CreateSQLMigration(dir, "older", now.Add(-time.Hour)); err == nil {
		t.Fatalf("expected error for a version older than the latest migration")
	}
	if _, err := CreateSQLMigration(dir, "  !!  ", now.Add(time.Hour)); err == nil {
		t.Fatalf("expected error for empty sanitized name")
	}
}

func writeMigration(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestRunnerUpDownAndMigrateTo(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeMigration(t, dir, "20260101000000_create_widgets.sql",
		"-- +goose Up\nCREATE TABLE widgets (id INTEGER PRIMARY KEY);\n\n-- +goose Down\nDROP TABLE widgets;\n")
	writeMigration(t, dir, "20260102000000_create_gadgets.sql",
		"-- +goose Up\nCREATE TABLE gadgets (id INTEGER PRIMARY KEY);\n\n-- +goose Down\nDROP TABLE gadgets;\n")

	client := newSQLiteClient(t)
	sqlDB, err := client.DB().DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	runner, err := NewRunner(sqlDB, config.DBDriverSQLite, os.DirFS(dir), testLogger())
	if err != nil {
		t.Fatalf("NewRunner() error: %v", err)
	}

	applied, err := runner.Up(ctx)
	if err != nil || applied != 2 {
		t.Fatalf("Up() = %d, %v", applied, err)
	}
	if v, _ := runner.Version(ctx); v != 20260102000000 {
		t.Fatalf("unexpected version %d", v)
	}
	statuses, err := runner.Status(ctx)
	if err != nil || len(statuses) != 2 || !statuses[0].Applied || !statuses[1].Applied {
		t.Fatalf("unexpected status %+v, %v", statuses, err)
	}

	if err := runner.MigrateTo(ctx, "20260101000000"); err != nil {
		t.Fatalf("MigrateTo() error: %v", err)
	}
	if client.DB().Migrator().HasTable("gadgets") {
		t.Fatalf("expected gadgets to be rolled back")
	}
	if err := runner.MigrateTo(ctx, "20260101000000"); err != nil {
		t.Fatalf("MigrateTo() at current version: %v", err)
	}

	if err := runner.Down(ctx); err != nil {
		t.Fatalf("Down() error: %v", err)
	}
	if v, _ := runner.Version(ctx); v != 0 {
		t.Fatalf("expected version 0 after full rollback, got %d", v)
	}
	if err := runner.MigrateTo(ctx, "latest"); err == nil {
		t.Fatalf("expected error for non-numeric version")
	}
}

func TestNewRunnerValidation(t *testing.T) {
	client := newSQLiteClient(t)
	sqlDB, _ := client.DB().DB()

	if _, err := NewRunner(nil, config.DBDriverSQLite, EmbeddedFS(), testLogger()); err == nil {
		t.Fatalf("expected error for nil db")
	}
	if _, err := NewRunner(sqlDB, "mysql", EmbeddedFS(), testLogger()); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
	if _, err := NewRunner(sqlDB, config.DBDriverSQLite, EmbeddedFS(), nil); err == nil {
		t.Fatalf("expected error for nil logger")
	}
}

func TestMaybeRunDevMigratesSQLite(t *testing.T) {
	ctx := context.Background()
	client := newSQLiteClient(t)

	cfg := &config.Config{App: config.AppConfig{Env: config.AppEnvProd}}
	if err := MaybeRunDev(ctx, cfg, testLogger(), client); err != nil {
		t.Fatalf("MaybeRunDev() error: %v", err)
	}
	if !client.DB().Migrator().HasTable("events") {
		t.Fatalf("expected events table to exist")
	}
}

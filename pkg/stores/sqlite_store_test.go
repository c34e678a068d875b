package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/featurekit/pkg/dependencies"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := Open(context.Background(), ":memory:", zerolog.New(nil).Level(zerolog.Disabled))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "options.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("health check should fail before Init")
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	// Migrations are idempotent.
	for i := 0; i < 2; i++ {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("migration %d failed: %v", i, err)
		}
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, table := range []string{"options", "option_changes"} {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

func TestOptionCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.GetOption(ctx, "woo_currency"); !errors.Is(err, ErrOptionNotFound) {
		t.Fatalf("expected ErrOptionNotFound, got %v", err)
	}

	if err := store.SetOption(ctx, "woo_currency", "EUR", "test"); err != nil {
		t.Fatalf("failed to set option: %v", err)
	}
	opt, err := store.GetOption(ctx, "woo_currency")
	if err != nil {
		t.Fatalf("failed to get option: %v", err)
	}
	if opt.Value != "EUR" || !opt.Autoload {
		t.Errorf("unexpected option: %+v", opt)
	}
	if opt.CreatedAt.IsZero() || opt.UpdatedAt.IsZero() {
		t.Error("timestamps should be set")
	}

	if err := store.SetOption(ctx, "woo_currency", "USD", "test"); err != nil {
		t.Fatalf("failed to update option: %v", err)
	}
	opt, _ = store.GetOption(ctx, "woo_currency")
	if opt.Value != "USD" {
		t.Errorf("expected updated value USD, got %s", opt.Value)
	}

	if err := store.DeleteOption(ctx, "woo_currency", "test"); err != nil {
		t.Fatalf("failed to delete option: %v", err)
	}
	if _, err := store.GetOption(ctx, "woo_currency"); !errors.Is(err, ErrOptionNotFound) {
		t.Errorf("expected option to be deleted, got %v", err)
	}
	if err := store.DeleteOption(ctx, "woo_currency", "test"); !errors.Is(err, ErrOptionNotFound) {
		t.Errorf("deleting a missing option should fail with ErrOptionNotFound, got %v", err)
	}
}

func TestSetOptionsRejectsEmptyName(t *testing.T) {
	store := setupTestStore(t)

	err := store.SetOptions(context.Background(), map[string]string{"": "x"}, "test")
	if err == nil {
		t.Error("expected error for empty option name")
	}
}

func TestListOptions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.SetOptions(ctx, map[string]string{
		"shop_currency": "EUR",
		"shop_country":  "NL",
		"blog_public":   "1",
	}, "test")
	if err != nil {
		t.Fatalf("failed to set options: %v", err)
	}

	shop, err := store.ListOptions(ctx, "shop_", 10, 0)
	if err != nil {
		t.Fatalf("failed to list options: %v", err)
	}
	if len(shop) != 2 || shop[0].Name != "shop_country" || shop[1].Name != "shop_currency" {
		t.Errorf("unexpected options: %+v", shop)
	}

	all, _ := store.ListOptions(ctx, "", 10, 0)
	if len(all) != 3 {
		t.Errorf("expected 3 options, got %d", len(all))
	}

	page, _ := store.ListOptions(ctx, "", 1, 1)
	if len(page) != 1 || page[0].Name != "shop_country" {
		t.Errorf("unexpected page: %+v", page)
	}
}

func TestAutoloadOptions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_ = store.SetOptions(ctx, map[string]string{"a": "1", "b": "2"}, "test")
	if err := store.SetAutoload(ctx, "b", false); err != nil {
		t.Fatalf("failed to set autoload: %v", err)
	}
	if err := store.SetAutoload(ctx, "missing", false); !errors.Is(err, ErrOptionNotFound) {
		t.Errorf("expected ErrOptionNotFound, got %v", err)
	}

	values, err := store.AutoloadOptions(ctx)
	if err != nil {
		t.Fatalf("failed to load options: %v", err)
	}
	if len(values) != 1 || values["a"] != "1" {
		t.Errorf("unexpected autoload set: %v", values)
	}
}

func TestOptionChanges(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_ = store.SetOption(ctx, "mode", "a", "alice")
	_ = store.SetOption(ctx, "mode", "a", "alice") // unchanged, not recorded
	_ = store.SetOption(ctx, "mode", "b", "bob")
	_ = store.DeleteOption(ctx, "mode", "carol")
	_ = store.SetOption(ctx, "other", "x", "dave")

	name := "mode"
	changes, err := store.ListChanges(ctx, &name, 10, 0)
	if err != nil {
		t.Fatalf("failed to list changes: %v", err)
	}
	if len(changes) != 3 {
		t.Fatalf("expected 3 changes, got %d", len(changes))
	}

	deleted, updated, created := changes[0], changes[1], changes[2]
	if deleted.Actor != "carol" || deleted.NewValue != nil || *deleted.OldValue != "b" {
		t.Errorf("unexpected delete record: %+v", deleted)
	}
	if *updated.OldValue != "a" || *updated.NewValue != "b" {
		t.Errorf("unexpected update record: %+v", updated)
	}
	if created.OldValue != nil || *created.NewValue != "a" || created.ID == "" {
		t.Errorf("unexpected create record: %+v", created)
	}

	all, _ := store.ListChanges(ctx, nil, 10, 0)
	if len(all) != 4 {
		t.Errorf("expected 4 changes in total, got %d", len(all))
	}
}

func TestSettingsLookup(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_ = store.SetOption(ctx, "woo_currency", "EUR", "test")

	env := dependencies.WithSettings(&dependencies.StaticEnvironment{
		Settings: map[string]string{"woo_currency": "USD", "blog_public": "1"},
	}, store.SettingsLookup(ctx))

	if v, ok := env.Setting("woo_currency"); !ok || v != "EUR" {
		t.Errorf("store value should win, got %q %v", v, ok)
	}
	if v, ok := env.Setting("blog_public"); !ok || v != "1" {
		t.Errorf("base environment should be consulted, got %q %v", v, ok)
	}
	if _, ok := env.Setting("unknown"); ok {
		t.Error("unknown setting should not be found")
	}
}

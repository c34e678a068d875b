package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfroyo/featurekit/pkg/dependencies"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const memoryPath = ":memory:"

// SQLiteStore implements the OptionStore interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	cfg    Config
	logger zerolog.Logger
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Logger          zerolog.Logger
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// Every connection to :memory: opens a distinct database.
	if cfg.Path == memoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "option-store").Logger(),
	}, nil
}

// Open creates, initializes and migrates a store at path.
func Open(ctx context.Context, path string, logger zerolog.Logger) (*SQLiteStore, error) {
	store, err := NewSQLiteStore(Config{Path: path, Logger: logger})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// Init initializes the database connection and enables WAL mode for file
// databases.
func (s *SQLiteStore) Init(ctx context.Context) error {
	pragmas := []string{"busy_timeout(5000)", "foreign_keys(1)"}
	if s.cfg.Path != memoryPath {
		pragmas = append(pragmas, "journal_mode(WAL)", "synchronous(NORMAL)")
	}
	params := make([]string, 0, len(pragmas)+1)
	for _, p := range pragmas {
		params = append(params, "_pragma="+p)
	}
	params = append(params, "_txlock=immediate")
	dsn := s.cfg.Path + "?" + strings.Join(params, "&")

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	s.logger.Debug().Str("path", s.cfg.Path).Msg("Option store opened")
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction.
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// CommitTx commits a transaction.
func (s *SQLiteStore) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// RollbackTx rolls back a transaction.
func (s *SQLiteStore) RollbackTx(tx *sql.Tx) error {
	return tx.Rollback()
}

// GetOption retrieves an option by name.
func (s *SQLiteStore) GetOption(ctx context.Context, name string) (*Option, error) {
	query := `
		SELECT name, value, autoload, created_at, updated_at
		FROM options
		WHERE name = ?
	`

	opt := &Option{}
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&opt.Name,
		&opt.Value,
		&opt.Autoload,
		&opt.CreatedAt,
		&opt.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrOptionNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get option: %w", err)
	}

	return opt, nil
}

// SetOption creates or updates an option and records the change.
func (s *SQLiteStore) SetOption(ctx context.Context, name, value, actor string) error {
	return s.SetOptions(ctx, map[string]string{name: value}, actor)
}

// SetOptions writes several options in a single transaction. Changes are
// recorded in name order.
func (s *SQLiteStore) SetOptions(ctx context.Context, values map[string]string, actor string) error {
	names := make([]string, 0, len(values))
	for name := range values {
		if name == "" {
			return fmt.Errorf("option name is required")
		}
		names = append(names, name)
	}
	sort.Strings(names)

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = s.RollbackTx(tx) }()

	now := time.Now().UTC()
	for _, name := range names {
		value := values[name]

		old, err := currentValue(ctx, tx, name)
		if err != nil {
			return err
		}
		if old != nil && *old == value {
			continue
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO options (name, value, autoload, created_at, updated_at)
			VALUES (?, ?, 1, ?, ?)
			ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, name, value, now, now)
		if err != nil {
			return fmt.Errorf("failed to set option %s: %w", name, err)
		}

		if err := recordChange(ctx, tx, name, old, &value, actor, now); err != nil {
			return err
		}
	}

	if err := s.CommitTx(tx); err != nil {
		return fmt.Errorf("failed to commit options: %w", err)
	}

	s.logger.Debug().Int("count", len(names)).Str("actor", actor).Msg("Options written")
	return nil
}

// DeleteOption deletes an option by name and records the change.
func (s *SQLiteStore) DeleteOption(ctx context.Context, name, actor string) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = s.RollbackTx(tx) }()

	old, err := currentValue(ctx, tx, name)
	if err != nil {
		return err
	}
	if old == nil {
		return fmt.Errorf("%w: %s", ErrOptionNotFound, name)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM options WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete option: %w", err)
	}
	if err := recordChange(ctx, tx, name, old, nil, actor, time.Now().UTC()); err != nil {
		return err
	}

	if err := s.CommitTx(tx); err != nil {
		return fmt.Errorf("failed to commit option delete: %w", err)
	}
	return nil
}

// SetAutoload marks whether an option is included in AutoloadOptions.
func (s *SQLiteStore) SetAutoload(ctx context.Context, name string, autoload bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE options SET autoload = ? WHERE name = ?`, autoload, name)
	if err != nil {
		return fmt.Errorf("failed to update autoload: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrOptionNotFound, name)
	}
	return nil
}

// ListOptions lists options whose name starts with prefix, ordered by name.
func (s *SQLiteStore) ListOptions(ctx context.Context, prefix string, limit, offset int) ([]*Option, error) {
	query := `
		SELECT name, value, autoload, created_at, updated_at
		FROM options
		WHERE substr(name, 1, length(?)) = ?
		ORDER BY name
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, prefix, prefix, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list options: %w", err)
	}
	defer rows.Close()

	options := []*Option{}
	for rows.Next() {
		opt := &Option{}
		if err := rows.Scan(&opt.Name, &opt.Value, &opt.Autoload, &opt.CreatedAt, &opt.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan option: %w", err)
		}
		options = append(options, opt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating options: %w", err)
	}

	return options, nil
}

// AutoloadOptions returns every autoloaded option as a name to value map.
func (s *SQLiteStore) AutoloadOptions(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM options WHERE autoload = 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to load options: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan option: %w", err)
		}
		values[name] = value
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating options: %w", err)
	}

	return values, nil
}

// ListChanges lists recorded option changes, newest first, optionally
// filtered by option name.
func (s *SQLiteStore) ListChanges(ctx context.Context, name *string, limit, offset int) ([]*OptionChange, error) {
	query := `
		SELECT id, name, old_value, new_value, actor, changed_at
		FROM option_changes
		WHERE 1=1
	`
	args := []interface{}{}

	if name != nil {
		query += " AND name = ?"
		args = append(args, *name)
	}

	query += " ORDER BY changed_at DESC, rowid DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list option changes: %w", err)
	}
	defer rows.Close()

	changes := []*OptionChange{}
	for rows.Next() {
		c := &OptionChange{}
		if err := rows.Scan(&c.ID, &c.Name, &c.OldValue, &c.NewValue, &c.Actor, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan option change: %w", err)
		}
		changes = append(changes, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating option changes: %w", err)
	}

	return changes, nil
}

// SettingsLookup returns a settings lookup backed by the store, for use with
// dependencies.WithSettings. Lookup failures are logged and reported as an
// unknown setting.
func (s *SQLiteStore) SettingsLookup(ctx context.Context) dependencies.SettingsLookup {
	return func(name string) (string, bool) {
		opt, err := s.GetOption(ctx, name)
		if err != nil {
			if !errors.Is(err, ErrOptionNotFound) {
				s.logger.Warn().Err(err).Str("option", name).Msg("Option lookup failed")
			}
			return "", false
		}
		return opt.Value, true
	}
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

func currentValue(ctx context.Context, tx *sql.Tx, name string) (*string, error) {
	var value string
	err := tx.QueryRowContext(ctx, `SELECT value FROM options WHERE name = ?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read option %s: %w", name, err)
	}
	return &value, nil
}

func recordChange(ctx context.Context, tx *sql.Tx, name string, oldValue, newValue *string, actor string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO option_changes (id, name, old_value, new_value, actor, changed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, uuid.New().String(), name, oldValue, newValue, actor, at)
	if err != nil {
		return fmt.Errorf("failed to record change of %s: %w", name, err)
	}
	return nil
}

package stores

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrOptionNotFound is returned when an option does not exist.
var ErrOptionNotFound = errors.New("option not found")

// Option is a persisted runtime setting.
type Option struct {
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	Autoload  bool      `json:"autoload"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OptionChange records a single write or delete of an option.
type OptionChange struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OldValue  *string   `json:"old_value,omitempty"` // nil when the option was created
	NewValue  *string   `json:"new_value,omitempty"` // nil when the option was deleted
	Actor     string    `json:"actor"`
	ChangedAt time.Time `json:"changed_at"`
}

// OptionStore defines the interface for the option persistence layer.
type OptionStore interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Option operations
	GetOption(ctx context.Context, name string) (*Option, error)
	SetOption(ctx context.Context, name, value, actor string) error
	SetOptions(ctx context.Context, values map[string]string, actor string) error
	DeleteOption(ctx context.Context, name, actor string) error
	ListOptions(ctx context.Context, prefix string, limit, offset int) ([]*Option, error)
	AutoloadOptions(ctx context.Context) (map[string]string, error)

	// Change log
	ListChanges(ctx context.Context, name *string, limit, offset int) ([]*OptionChange, error)

	// Utility
	HealthCheck(ctx context.Context) error
}

// Package store provides the storage interface and implementations for
// the ModelRelay gateway. The in-memory store is the default; a
// PostgreSQL-backed store is selected when DATABASE_URL is set.
package store

import (
	"context"
	"time"

	"github.com/modelrelay/modelrelay/gateway/pkg/models"
)

// Store is the primary storage interface for the gateway.
// All handler code depends on this interface, making it easy to swap
// between in-memory (tests, local dev) and PostgreSQL (production).
type Store interface {
	UserSettingsStore
	ChatRecordStore

	// Ping checks if the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the store.
	Close() error

	// Migrate runs schema migrations.
	Migrate(ctx context.Context) error
}

// ── User Settings Store ─────────────────────────────────────

// UserSettingsStore persists per-user credentials for tool connectors
// and providers. Keys are caller-supplied user IDs.
type UserSettingsStore interface {
	GetUserSettings(ctx context.Context, userID string) (*models.UserSettings, error)
	PutUserSettings(ctx context.Context, settings *models.UserSettings) error
	DeleteUserSettings(ctx context.Context, userID string) error
}

// ── Chat Record Store ───────────────────────────────────────

// ChatRecordStore persists per-turn chat summaries. Records are written
// best-effort after a stream completes and purged by the retention
// janitor.
type ChatRecordStore interface {
	CreateChatRecord(ctx context.Context, record *models.ChatRecord) error
	ListChatRecords(ctx context.Context, userID string, filter ListFilter) ([]models.ChatRecord, error)

	// ListExpiredChatRecords returns records created before the cutoff,
	// oldest first, up to limit. The retention janitor uses it to
	// archive records ahead of deletion.
	ListExpiredChatRecords(ctx context.Context, cutoff time.Time, limit int) ([]models.ChatRecord, error)

	// DeleteChatRecordsBefore removes records created before the cutoff
	// and returns how many were deleted.
	DeleteChatRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ── Errors ──────────────────────────────────────────────────

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// ── Filter helpers ──────────────────────────────────────────

// ListFilter provides common pagination/filter options.
type ListFilter struct {
	Limit  int
	Offset int
	Since  *time.Time
}

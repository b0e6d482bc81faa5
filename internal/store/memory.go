// Package store — in-memory Store implementation.
// Used as a fallback when PostgreSQL is not available (local dev, tests).
// Supports file-based snapshot persistence so data survives restarts.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/modelrelay/modelrelay/gateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// snapshot is the JSON-serializable shape written to disk.
type snapshot struct {
	Settings map[string]*models.UserSettings `json:"settings"`
	Records  map[string]*models.ChatRecord   `json:"records"`
}

// MemoryStore implements Store with in-memory maps.
type MemoryStore struct {
	mu       sync.RWMutex
	settings map[string]*models.UserSettings // key: user_id
	records  map[string]*models.ChatRecord   // key: id

	// Persistence
	snapshotPath string        // empty = no persistence
	saveMu       sync.Mutex    // guards file writes
	saveCh       chan struct{} // debounce channel
	doneCh       chan struct{} // signals the save goroutine to stop
	closeOnce    sync.Once
}

// NewMemoryStore creates a new in-memory store.
// If MODELRELAY_DATA_DIR is set, data is persisted to a JSON file in
// that directory; otherwise the store is purely volatile.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{
		settings: make(map[string]*models.UserSettings),
		records:  make(map[string]*models.ChatRecord),
		saveCh:   make(chan struct{}, 1),
		doneCh:   make(chan struct{}),
	}

	if dataDir := os.Getenv("MODELRELAY_DATA_DIR"); dataDir != "" {
		m.snapshotPath = filepath.Join(dataDir, "data.json")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			log.Warn().Err(err).Str("dir", dataDir).Msg("Cannot create data dir, persistence disabled")
			m.snapshotPath = ""
		}
	}

	if m.snapshotPath != "" {
		m.loadSnapshot()
		go m.saveLoop()
	}

	log.Info().Str("snapshot", m.snapshotPath).Msg("Memory store configured")
	return m
}

// requestSave signals the background goroutine to persist data.
// Non-blocking: coalesces multiple rapid writes into one disk flush.
func (m *MemoryStore) requestSave() {
	if m.snapshotPath == "" {
		return
	}
	select {
	case m.saveCh <- struct{}{}:
	default:
		// Already pending
	}
}

// saveLoop runs in a goroutine, debouncing save requests (max 1 write per 500ms).
func (m *MemoryStore) saveLoop() {
	for {
		select {
		case <-m.doneCh:
			return
		case <-m.saveCh:
			time.Sleep(500 * time.Millisecond) // debounce
			m.saveSnapshot()
		}
	}
}

// saveSnapshot persists all data to disk as JSON.
func (m *MemoryStore) saveSnapshot() {
	m.mu.RLock()
	snap := snapshot{
		Settings: m.settings,
		Records:  m.records,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	m.mu.RUnlock()

	if err != nil {
		log.Warn().Err(err).Msg("Snapshot marshal failed")
		return
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	tmp := m.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		log.Warn().Err(err).Msg("Snapshot write failed")
		return
	}
	if err := os.Rename(tmp, m.snapshotPath); err != nil {
		log.Warn().Err(err).Msg("Snapshot rename failed")
	}
}

// loadSnapshot restores data from disk if a snapshot exists.
func (m *MemoryStore) loadSnapshot() {
	data, err := os.ReadFile(m.snapshotPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Msg("Snapshot read failed")
		}
		return
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Warn().Err(err).Msg("Snapshot parse failed, starting empty")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if snap.Settings != nil {
		m.settings = snap.Settings
	}
	if snap.Records != nil {
		m.records = snap.Records
	}
	log.Info().Int("settings", len(m.settings)).Int("records", len(m.records)).Msg("Snapshot loaded")
}

// ── Lifecycle ───────────────────────────────────────────────

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() {
		close(m.doneCh)
		if m.snapshotPath != "" {
			m.saveSnapshot()
		}
	})
	return nil
}

func (m *MemoryStore) Migrate(_ context.Context) error { return nil }

// ── User Settings ───────────────────────────────────────────

func (m *MemoryStore) GetUserSettings(_ context.Context, userID string) (*models.UserSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.settings[userID]
	if !ok {
		return nil, &ErrNotFound{Entity: "user settings", Key: userID}
	}
	cp := *s
	cp.APIKeys = make(map[string]string, len(s.APIKeys))
	for k, v := range s.APIKeys {
		cp.APIKeys[k] = v
	}
	return &cp, nil
}

func (m *MemoryStore) PutUserSettings(_ context.Context, settings *models.UserSettings) error {
	m.mu.Lock()
	cp := *settings
	cp.APIKeys = make(map[string]string, len(settings.APIKeys))
	for k, v := range settings.APIKeys {
		cp.APIKeys[k] = v
	}
	cp.UpdatedAt = time.Now().UTC()
	m.settings[settings.UserID] = &cp
	m.mu.Unlock()

	m.requestSave()
	return nil
}

func (m *MemoryStore) DeleteUserSettings(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.settings[userID]; !ok {
		return &ErrNotFound{Entity: "user settings", Key: userID}
	}
	delete(m.settings, userID)
	m.requestSave()
	return nil
}

// ── Chat Records ────────────────────────────────────────────

func (m *MemoryStore) CreateChatRecord(_ context.Context, record *models.ChatRecord) error {
	m.mu.Lock()
	cp := *record
	m.records[record.ID] = &cp
	m.mu.Unlock()

	m.requestSave()
	return nil
}

func (m *MemoryStore) ListChatRecords(_ context.Context, userID string, filter ListFilter) ([]models.ChatRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.ChatRecord, 0, len(m.records))
	for _, r := range m.records {
		if userID != "" && r.UserID != userID {
			continue
		}
		if filter.Since != nil && r.CreatedAt.Before(*filter.Since) {
			continue
		}
		out = append(out, *r)
	}

	// newest first
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []models.ChatRecord{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) ListExpiredChatRecords(_ context.Context, cutoff time.Time, limit int) ([]models.ChatRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.ChatRecord, 0)
	for _, r := range m.records {
		if r.CreatedAt.Before(cutoff) {
			out = append(out, *r)
		}
	}

	// oldest first
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) DeleteChatRecordsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	var deleted int64
	for id, r := range m.records {
		if r.CreatedAt.Before(cutoff) {
			delete(m.records, id)
			deleted++
		}
	}
	m.mu.Unlock()

	if deleted > 0 {
		m.requestSave()
	}
	return deleted, nil
}

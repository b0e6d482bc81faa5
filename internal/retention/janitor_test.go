package retention_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modelrelay/modelrelay/gateway/internal/config"
	"github.com/modelrelay/modelrelay/gateway/internal/retention"
	"github.com/modelrelay/modelrelay/gateway/internal/store"
	"github.com/modelrelay/modelrelay/gateway/pkg/models"
)

func newTestStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	t.Setenv("MODELRELAY_DATA_DIR", "")
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStart_DisabledReturnsImmediately(t *testing.T) {
	j := retention.NewJanitor(newTestStore(t), config.RetentionConfig{Days: 0})

	done := make(chan struct{})
	go func() {
		j.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start() with retention disabled did not return")
	}
}

func TestStart_PurgesOnStartup(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Now().UTC()
	s.CreateChatRecord(ctx, &models.ChatRecord{ID: "old", UserID: "u1", CreatedAt: now.AddDate(0, 0, -10)})
	s.CreateChatRecord(ctx, &models.ChatRecord{ID: "fresh", UserID: "u1", CreatedAt: now})

	j := retention.NewJanitor(s, config.RetentionConfig{Days: 7, Interval: time.Hour})
	go j.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		records, err := s.ListChatRecords(ctx, "u1", store.ListFilter{})
		if err != nil {
			t.Fatalf("ListChatRecords() error = %v", err)
		}
		if len(records) == 1 {
			if records[0].ID != "fresh" {
				t.Fatalf("surviving record = %q, want fresh", records[0].ID)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("records = %v, want the old one purged by the startup sweep", records)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStart_ArchivesBeforePurge(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Now().UTC()
	s.CreateChatRecord(ctx, &models.ChatRecord{
		ID:        "expired",
		UserID:    "u1",
		Provider:  "lovable",
		Prompt:    "what is the capital of France?",
		Answer:    "Paris.",
		CreatedAt: now.AddDate(0, 0, -30),
	})

	dir := t.TempDir()
	j := retention.NewJanitor(s, config.RetentionConfig{
		Days:       7,
		Interval:   time.Hour,
		ArchiveDir: dir,
	})
	go j.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		records, err := s.ListChatRecords(ctx, "u1", store.ListFilter{})
		if err != nil {
			t.Fatalf("ListChatRecords() error = %v", err)
		}
		if len(records) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expired record was not purged")
		}
		time.Sleep(10 * time.Millisecond)
	}

	files, err := filepath.Glob(filepath.Join(dir, "chats", "*.jsonl"))
	if err != nil {
		t.Fatalf("Glob() error = %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("archive files = %v, want exactly one", files)
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), `"id":"expired"`) {
		t.Errorf("archive file does not contain the purged record: %s", data)
	}
}

func TestArchiveChatRecords_EmptyBatchWritesNothing(t *testing.T) {
	dir := t.TempDir()
	a := retention.NewLocalFileArchiver(dir, false)

	path, err := a.ArchiveChatRecords(context.Background(), nil)
	if err != nil {
		t.Fatalf("ArchiveChatRecords() error = %v", err)
	}
	if path != "" {
		t.Errorf("ArchiveChatRecords() path = %q, want empty", path)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("archive dir entries = %d, want 0", len(entries))
	}
}

func TestLocalFileArchiver_HealthCheck(t *testing.T) {
	a := retention.NewLocalFileArchiver(t.TempDir(), false)
	if err := a.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

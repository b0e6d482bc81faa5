package retention

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/modelrelay/modelrelay/gateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// LocalFileArchiver writes expiring chat records as JSONL files before
// the janitor purges them from the store.
//
// Directory structure:
//
//	{basePath}/chats/2026-08-20T15-04-05Z.jsonl[.gz]
type LocalFileArchiver struct {
	basePath string
	compress bool
}

// NewLocalFileArchiver creates a file-based archiver rooted at basePath.
func NewLocalFileArchiver(basePath string, compress bool) *LocalFileArchiver {
	return &LocalFileArchiver{basePath: basePath, compress: compress}
}

// ArchiveChatRecords writes one JSONL file holding the given records and
// returns its path. An empty batch writes nothing.
func (a *LocalFileArchiver) ArchiveChatRecords(_ context.Context, records []models.ChatRecord) (string, error) {
	if len(records) == 0 {
		return "", nil
	}

	dir := filepath.Join(a.basePath, "chats")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	filename := time.Now().UTC().Format("2006-01-02T15-04-05Z") + ".jsonl"
	if a.compress {
		filename += ".gz"
	}
	fpath := filepath.Join(dir, filename)

	f, err := os.Create(fpath)
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	if a.compress {
		gw := gzip.NewWriter(f)
		defer gw.Close()
		enc = json.NewEncoder(gw)
	}

	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return "", fmt.Errorf("encode chat record %s: %w", r.ID, err)
		}
	}

	log.Debug().
		Str("path", fpath).
		Int("count", len(records)).
		Msg("Archived chat records to local file")

	return fpath, nil
}

// HealthCheck verifies the archive path is writable.
func (a *LocalFileArchiver) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(a.basePath, 0o755); err != nil {
		return fmt.Errorf("archive path not writable: %w", err)
	}
	testFile := filepath.Join(a.basePath, ".healthcheck")
	if err := os.WriteFile(testFile, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("archive path not writable: %w", err)
	}
	os.Remove(testFile)
	return nil
}

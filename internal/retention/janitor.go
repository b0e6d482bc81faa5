// Package retention purges chat records that have aged past the
// configured window. The janitor runs as a background goroutine and
// respects context cancellation for graceful shutdown.
package retention

import (
	"context"
	"time"

	"github.com/modelrelay/modelrelay/gateway/internal/config"
	"github.com/modelrelay/modelrelay/gateway/internal/store"
	"github.com/rs/zerolog/log"
)

// DefaultRetentionDays is the chat record retention window.
const DefaultRetentionDays = 7

// archiveBatchLimit caps how many expired records a single cycle
// archives. A full batch purges only what was written and leaves
// the remainder for the next cycle.
const archiveBatchLimit = 10000

// Janitor periodically deletes expired chat records, optionally
// archiving them to local files first.
type Janitor struct {
	store    store.Store
	archiver *LocalFileArchiver
	days     int
	interval time.Duration
}

// NewJanitor creates a retention janitor. Days <= 0 disables purging.
func NewJanitor(s store.Store, cfg config.RetentionConfig) *Janitor {
	interval := cfg.Interval
	if interval < time.Minute {
		interval = time.Hour // minimum 1 hour
	}
	j := &Janitor{
		store:    s,
		days:     cfg.Days,
		interval: interval,
	}
	if cfg.ArchiveDir != "" {
		j.archiver = NewLocalFileArchiver(cfg.ArchiveDir, cfg.ArchiveCompress)
	}
	return j
}

// Start runs the janitor. It blocks until ctx is canceled.
func (j *Janitor) Start(ctx context.Context) {
	if j.days <= 0 {
		log.Info().Msg("Retention disabled, chat records are kept indefinitely")
		return
	}

	log.Info().
		Int("days", j.days).
		Dur("interval", j.interval).
		Msg("Retention janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run once immediately on startup
	j.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Retention janitor stopped")
			return
		case <-ticker.C:
			j.runCycle(ctx)
		}
	}
}

// runCycle performs one retention sweep.
func (j *Janitor) runCycle(ctx context.Context) {
	start := time.Now()
	cutoff := time.Now().AddDate(0, 0, -j.days)

	if j.archiver != nil {
		records, err := j.store.ListExpiredChatRecords(ctx, cutoff, archiveBatchLimit)
		if err != nil {
			log.Warn().Err(err).Msg("Retention cycle failed to list expired records")
			return
		}
		if len(records) > 0 {
			if _, err := j.archiver.ArchiveChatRecords(ctx, records); err != nil {
				log.Warn().Err(err).Msg("Archive failed, keeping expired records")
				return
			}
			if len(records) == archiveBatchLimit {
				// Large backlog: purge only what was archived, pick up
				// the rest next cycle.
				cutoff = records[len(records)-1].CreatedAt
			}
		}
	}

	purged, err := j.store.DeleteChatRecordsBefore(ctx, cutoff)
	if err != nil {
		log.Warn().Err(err).Msg("Retention cycle failed")
		return
	}

	if purged > 0 {
		log.Info().
			Int64("purged", purged).
			Time("cutoff", cutoff).
			Dur("elapsed", time.Since(start)).
			Msg("Retention cycle complete")
	}
}

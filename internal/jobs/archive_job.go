package jobs

import (
	"context"
	"log"
	"time"

	"contextd/internal/store"
)

// ArchiveJob flags conversations idle beyond the configured age as archived.
// Pinned conversations are exempt.
type ArchiveJob struct {
	store    *store.Store
	maxIdle  time.Duration
	interval time.Duration
}

// NewArchiveJob creates the auto-archive job
func NewArchiveJob(st *store.Store, maxIdle, interval time.Duration) *ArchiveJob {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ArchiveJob{store: st, maxIdle: maxIdle, interval: interval}
}

// Run archives idle conversations
func (j *ArchiveJob) Run(ctx context.Context) error {
	archived := j.store.ArchiveIdle(j.maxIdle)
	if archived > 0 {
		log.Printf("🗄️  [ARCHIVE] Archived %d conversations idle for more than %v", archived, j.maxIdle)
	}
	return nil
}

// GetNextRunTime returns when this job should run next
func (j *ArchiveJob) GetNextRunTime() time.Time {
	return time.Now().Add(j.interval)
}

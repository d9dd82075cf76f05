package jobs

import (
	"context"
	"time"

	"contextd/internal/store"
)

// BackupJob periodically writes a timestamped copy of the store document
type BackupJob struct {
	store    *store.Store
	dir      string
	interval time.Duration
}

// NewBackupJob creates the periodic backup job
func NewBackupJob(st *store.Store, dir string, interval time.Duration) *BackupJob {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &BackupJob{store: st, dir: dir, interval: interval}
}

// Run writes a backup of the current document
func (j *BackupJob) Run(ctx context.Context) error {
	return j.store.Backup(j.dir)
}

// GetNextRunTime returns when this job should run next
func (j *BackupJob) GetNextRunTime() time.Time {
	return time.Now().Add(j.interval)
}

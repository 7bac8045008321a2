package jobs

import (
	"context"
	"log"
	"time"

	"voltdesk/internal/session"
)

// HydrationJob periodically reconciles on-disk session documents into the
// relational mirror, catching files dropped in while the server runs.
type HydrationJob struct {
	metadata    *session.Metadata
	sessionsDir string
	interval    time.Duration
}

// NewHydrationJob creates a hydration job with the given scan interval.
func NewHydrationJob(metadata *session.Metadata, sessionsDir string, interval time.Duration) *HydrationJob {
	if interval <= 0 {
		interval = time.Hour
	}
	return &HydrationJob{
		metadata:    metadata,
		sessionsDir: sessionsDir,
		interval:    interval,
	}
}

// Run performs one reconciliation scan.
func (j *HydrationJob) Run(ctx context.Context) error {
	n, err := session.Hydrate(ctx, j.metadata, j.sessionsDir)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Printf("💧 [HYDRATION-JOB] Reconciled %d session row(s)", n)
	}
	return nil
}

// NextRunTime returns the next scheduled scan.
func (j *HydrationJob) NextRunTime() time.Time {
	return time.Now().Add(j.interval)
}

// Package retention runs the market's housekeeping sweeps. On every cycle
// it removes jobs past the validation registry's retention window and
// refunds escrows whose deadline has passed.
//
// Both sweeps go through the same permissionless entry points any caller
// could use (clean_old_jobs and refund), signed by the keeper's own
// account. When an archiver is registered, expired jobs are archived first
// and the purge is skipped if archiving fails.
package retention

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentoven/agentmarket/internal/escrow"
	"github.com/agentoven/agentmarket/internal/ledger"
	"github.com/agentoven/agentmarket/internal/validation"
)

// DefaultBatchSize caps the job ids sent in one clean_old_jobs call.
const DefaultBatchSize = 100

// JobSweeper is the part of the validation registry the keeper uses.
type JobSweeper interface {
	ListJobs(ctx context.Context, expiredAt time.Time) ([]validation.Job, error)
	CleanOldJobs(ctx context.Context, caller ledger.Address, jobIDs []string) ([]string, *ledger.Receipt, error)
}

// EscrowSweeper is the part of the escrow the keeper uses.
type EscrowSweeper interface {
	List(ctx context.Context) ([]escrow.Record, error)
	Refund(ctx context.Context, caller ledger.Address, jobID string) (*ledger.Receipt, error)
}

// CycleStats tracks what happened in a single cycle.
type CycleStats struct {
	JobsExpired  int
	JobsArchived int
	JobsPurged   int
	Refunded     int
	ArchiveURIs  []string
	Errors       []error
}

// Keeper periodically sweeps expired jobs and overdue escrows.
type Keeper struct {
	jobs      JobSweeper
	escrows   EscrowSweeper
	clock     ledger.Clock
	caller    ledger.Address
	interval  time.Duration
	batchSize int
	archiver  Archiver
}

// Option configures a Keeper.
type Option func(*Keeper)

// WithArchiver archives expired jobs before they are purged.
func WithArchiver(a Archiver) Option { return func(k *Keeper) { k.archiver = a } }

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(k *Keeper) {
		if n > 0 {
			k.batchSize = n
		}
	}
}

// NewKeeper creates a keeper signing as caller. Either sweeper may be nil.
func NewKeeper(jobs JobSweeper, escrows EscrowSweeper, clock ledger.Clock, caller ledger.Address, interval time.Duration, opts ...Option) *Keeper {
	if interval < time.Second {
		interval = time.Minute
	}
	k := &Keeper{
		jobs:      jobs,
		escrows:   escrows,
		clock:     clock,
		caller:    caller,
		interval:  interval,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Start runs cycles until ctx is canceled.
func (k *Keeper) Start(ctx context.Context) {
	archiver := "none"
	if k.archiver != nil {
		archiver = k.archiver.Kind()
	}
	log.Info().
		Dur("interval", k.interval).
		Str("caller", k.caller.Short()).
		Str("archiver", archiver).
		Msg("🧹 Keeper started")

	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	k.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Keeper stopped")
			return
		case <-ticker.C:
			k.RunCycle(ctx)
		}
	}
}

// RunCycle performs one sweep and returns what it did.
func (k *Keeper) RunCycle(ctx context.Context) CycleStats {
	start := time.Now()
	var stats CycleStats
	if k.jobs != nil {
		k.sweepJobs(ctx, &stats)
	}
	if k.escrows != nil {
		k.sweepEscrows(ctx, &stats)
	}

	for _, err := range stats.Errors {
		log.Warn().Err(err).Msg("Keeper cycle error")
	}
	if stats.JobsPurged > 0 || stats.Refunded > 0 {
		log.Info().
			Int("jobs_purged", stats.JobsPurged).
			Int("jobs_archived", stats.JobsArchived).
			Int("refunded", stats.Refunded).
			Dur("elapsed", time.Since(start)).
			Msg("Keeper cycle complete")
	}
	return stats
}

func (k *Keeper) sweepJobs(ctx context.Context, stats *CycleStats) {
	expired, err := k.jobs.ListJobs(ctx, k.clock.Now())
	if err != nil {
		stats.Errors = append(stats.Errors, err)
		return
	}
	stats.JobsExpired = len(expired)

	for i := 0; i < len(expired); i += k.batchSize {
		end := min(i+k.batchSize, len(expired))
		batch := expired[i:end]

		if k.archiver != nil {
			uri, err := k.archiver.ArchiveJobs(ctx, batch)
			if err != nil {
				log.Warn().Err(err).Int("batch_size", len(batch)).Msg("Archive failed, skipping purge")
				stats.Errors = append(stats.Errors, err)
				continue
			}
			stats.JobsArchived += len(batch)
			stats.ArchiveURIs = append(stats.ArchiveURIs, uri)
		}

		ids := make([]string, len(batch))
		for j, job := range batch {
			ids[j] = job.JobID
		}
		deleted, _, err := k.jobs.CleanOldJobs(ctx, k.caller, ids)
		if err != nil {
			stats.Errors = append(stats.Errors, err)
			continue
		}
		stats.JobsPurged += len(deleted)
	}
}

func (k *Keeper) sweepEscrows(ctx context.Context, stats *CycleStats) {
	records, err := k.escrows.List(ctx)
	if err != nil {
		stats.Errors = append(stats.Errors, err)
		return
	}
	now := k.clock.Now()
	for _, rec := range records {
		if !rec.Overdue(now) {
			continue
		}
		if _, err := k.escrows.Refund(ctx, k.caller, rec.JobID); err != nil {
			stats.Errors = append(stats.Errors, err)
			continue
		}
		stats.Refunded++
	}
}

// Package worker bootstraps the River job queue and the periodic jobs that
// keep the file store and the refresh token table tidy.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"gorm.io/gorm"

	"github.com/YoussefKhaledS/Document-Repository/internal/auth"
	"github.com/YoussefKhaledS/Document-Repository/internal/model"
	"github.com/YoussefKhaledS/Document-Repository/internal/storage"
)

// SweepArgs is the periodic job that removes stored files no version record
// references (left behind by failed ingests) and purges dead refresh tokens.
type SweepArgs struct{}

// Kind returns the unique job type identifier for sweep jobs.
func (SweepArgs) Kind() string { return "storage_sweep" }

type sweepWorker struct {
	river.WorkerDefaults[SweepArgs]
	sweeper *Sweeper
}

func (w *sweepWorker) Work(ctx context.Context, _ *river.Job[SweepArgs]) error {
	return w.sweeper.Run(ctx)
}

// Sweeper does the actual cleanup and is shared by the River job and the
// ticker fallback used when River is unavailable. Files younger than grace are
// left alone: an ingest saves its blob before the metadata transaction
// commits, so a fresh unreferenced file may belong to an in-flight upload.
type Sweeper struct {
	db    *gorm.DB
	store storage.Store
	grace time.Duration
	log   *slog.Logger
}

// NewSweeper creates a Sweeper.
func NewSweeper(db *gorm.DB, store storage.Store, grace time.Duration, log *slog.Logger) *Sweeper {
	return &Sweeper{db: db, store: store, grace: grace, log: log}
}

// Run removes orphaned files and expired refresh tokens.
func (s *Sweeper) Run(ctx context.Context) error {
	removed, err := s.sweepFiles(ctx)
	if err != nil {
		return err
	}
	purged, err := auth.NewRefreshStore(s.db).PurgeExpired(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("purge refresh tokens: %w", err)
	}
	if removed > 0 || purged > 0 {
		s.log.Info("sweep complete", "files_removed", removed, "tokens_purged", purged)
	}
	return nil
}

func (s *Sweeper) sweepFiles(ctx context.Context) (int, error) {
	objects, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stored files: %w", err)
	}

	referenced := []string{}
	if err := s.db.WithContext(ctx).Model(&model.DocumentVersion{}).
		Pluck("filepath", &referenced).Error; err != nil {
		return 0, fmt.Errorf("load referenced paths: %w", err)
	}
	keep := make(map[string]struct{}, len(referenced))
	for _, p := range referenced {
		keep[p] = struct{}{}
	}

	cutoff := time.Now().Add(-s.grace)
	removed := 0
	for _, obj := range objects {
		if _, ok := keep[obj.Path]; ok {
			continue
		}
		if obj.ModTime.After(cutoff) {
			continue
		}
		if err := s.store.Remove(ctx, obj.Path); err != nil {
			s.log.Warn("could not remove orphaned file", "path", obj.Path, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// Queue is the interface exposed by both the real River client and tickerQueue.
type Queue interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Client wraps river.Client and exposes a Start/Stop lifecycle.
type Client struct {
	client *river.Client[pgx.Tx]
	log    *slog.Logger
}

// Start begins processing queued jobs.
func (c *Client) Start(ctx context.Context) error { return c.client.Start(ctx) }

// Stop gracefully shuts down the worker client.
func (c *Client) Stop(ctx context.Context) error { return c.client.Stop(ctx) }

// tickerQueue runs the sweep on a plain ticker when River is unavailable
// (DB_DRIVER=sqlite). It provides the same cleanup without a job table.
type tickerQueue struct {
	sweeper *Sweeper
	period  time.Duration
	log     *slog.Logger
	cancel  context.CancelFunc
	done    chan struct{}
}

func (t *tickerQueue) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.cancel = cancel
	t.done = make(chan struct{})
	t.log.Info("worker queue disabled (sqlite driver — River requires postgres); using in-process sweep ticker", "period", t.period)
	go func() {
		defer close(t.done)
		ticker := time.NewTicker(t.period)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if err := t.sweeper.Run(runCtx); err != nil {
					t.log.Error("sweep failed", "error", err)
				}
			}
		}
	}()
	return nil
}

func (t *tickerQueue) Stop(_ context.Context) error {
	if t.cancel != nil {
		t.cancel()
		<-t.done
	}
	return nil
}

// New creates a queue implementation appropriate for the given driver.
//   - "postgres": returns a River client backed by pool with the sweep job
//     registered and scheduled periodically.
//   - anything else: returns a ticker-based queue running the same sweep.
//
// pool may be nil when driver != "postgres".
func New(_ context.Context, pool *pgxpool.Pool, driver string, sweeper *Sweeper, concurrency int, sweepPeriod time.Duration, log *slog.Logger) (Queue, error) {
	if driver != "postgres" {
		return &tickerQueue{sweeper: sweeper, period: sweepPeriod, log: log}, nil
	}
	workers := river.NewWorkers()
	river.AddWorker(workers, &sweepWorker{sweeper: sweeper})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: concurrency},
		},
		Workers: workers,
		Logger:  log,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(sweepPeriod),
				func() (river.JobArgs, *river.InsertOpts) {
					return SweepArgs{}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}
	return &Client{client: client, log: log}, nil
}

// MigrateRiver runs River's built-in schema migrations against the given pool.
// Only call this when DB_DRIVER=postgres.
func MigrateRiver(ctx context.Context, db *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(db), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("run river migrations: %w", err)
	}
	return nil
}

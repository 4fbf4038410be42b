// Package sweeper runs the periodic reconciliation between the file catalog
// and blob storage.
//
// Each run has four independent passes:
//  1. purge binned files whose retention has elapsed (record, then blob)
//  2. delete blobs no record points at, once they are older than the grace
//     period; younger blobs may belong to an upload still in flight
//  3. drop records whose blob has disappeared
//  4. delete expired refresh tokens
//
// A failure on one item is logged and counted; the pass moves on.
package sweeper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dmitrijs2005/gophdrop/internal/common"
	"github.com/dmitrijs2005/gophdrop/internal/dbx"
	"github.com/dmitrijs2005/gophdrop/internal/logging"
	"github.com/dmitrijs2005/gophdrop/internal/server/config"
	"github.com/dmitrijs2005/gophdrop/internal/server/lock"
	"github.com/dmitrijs2005/gophdrop/internal/server/models"
	"github.com/dmitrijs2005/gophdrop/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophdrop/internal/server/storage"
)

const batchSize = 100

var (
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gophdrop_sweep_runs_total",
		Help: "Number of completed sweeps.",
	})

	sweepItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gophdrop_sweep_items_total",
		Help: "Items removed by the sweeper, by pass.",
	}, []string{"pass"})

	sweepErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gophdrop_sweep_errors_total",
		Help: "Per-item failures during sweeps.",
	})

	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gophdrop_sweep_duration_seconds",
		Help:    "Sweep duration in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	})
)

// Result summarizes one sweep.
type Result struct {
	Purged        int
	Orphans       int
	Dangling      int
	TokensExpired int64
	Errors        int
	// Skipped is set when another replica held the lock.
	Skipped  bool
	Duration time.Duration
}

type Sweeper struct {
	tx          dbx.Transactor
	repomanager repomanager.RepositoryManager
	store       storage.Store
	locker      lock.Locker
	log         logging.Logger
	now         func() time.Time

	interval    time.Duration
	retention   time.Duration
	orphanGrace time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(tx dbx.Transactor, m repomanager.RepositoryManager, store storage.Store, locker lock.Locker, cfg *config.Config, log logging.Logger) *Sweeper {
	return &Sweeper{
		tx:          tx,
		repomanager: m,
		store:       store,
		locker:      locker,
		log:         log.With("component", "sweeper"),
		now:         time.Now,
		interval:    cfg.SweepInterval,
		retention:   cfg.Retention,
		orphanGrace: cfg.OrphanGrace,
	}
}

// Start launches the background loop. The first sweep runs immediately.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx)

	s.log.Info(ctx, "sweeper started", "interval", s.interval.String())
}

// Stop cancels the loop and waits for the current sweep to return.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.log.Info(context.Background(), "sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep. Concurrent calls are serialized.
func (s *Sweeper) RunOnce(ctx context.Context) *Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result := &Result{}

	lease, err := s.locker.Acquire(ctx)
	if err != nil {
		if errors.Is(err, lock.ErrBusy) {
			s.log.Info(ctx, "sweep skipped, lock held elsewhere")
		} else {
			s.log.Error(ctx, "sweep lock failed", "error", err)
		}
		result.Skipped = true
		return result
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn(ctx, "sweep lock release failed", "error", err)
		}
	}()

	now := s.now().UTC()

	result.Purged = s.purgeExpired(ctx, now, result)
	result.Orphans = s.deleteOrphans(ctx, now, result)
	result.Dangling = s.dropDangling(ctx, result)
	result.TokensExpired = s.deleteExpiredTokens(ctx, now, result)
	result.Duration = time.Since(start)

	sweepRunsTotal.Inc()
	sweepItemsTotal.WithLabelValues("retention").Add(float64(result.Purged))
	sweepItemsTotal.WithLabelValues("orphan").Add(float64(result.Orphans))
	sweepItemsTotal.WithLabelValues("dangling").Add(float64(result.Dangling))
	sweepItemsTotal.WithLabelValues("tokens").Add(float64(result.TokensExpired))
	sweepErrorsTotal.Add(float64(result.Errors))
	sweepDurationSeconds.Observe(result.Duration.Seconds())

	s.log.Info(ctx, "sweep finished",
		"purged", result.Purged,
		"orphans", result.Orphans,
		"dangling", result.Dangling,
		"tokens_expired", result.TokensExpired,
		"errors", result.Errors,
		"duration", result.Duration.String(),
	)

	return result
}

func (s *Sweeper) purgeExpired(ctx context.Context, now time.Time, result *Result) int {
	cutoff := now.Add(-s.retention)
	files := s.repomanager.Files(s.tx.Conn())

	purged := 0
	for ctx.Err() == nil {
		batch, err := files.ListBinnedBefore(ctx, cutoff, batchSize)
		if err != nil {
			s.log.Error(ctx, "list expired files failed", "error", err)
			result.Errors++
			return purged
		}

		progress := 0
		for _, f := range batch {
			if err := s.deleteRecord(ctx, f); err != nil {
				s.log.Error(ctx, "purge expired file failed", "token", f.AccessToken, "error", err)
				result.Errors++
				continue
			}
			if err := s.store.Delete(ctx, f.StoredPath); err != nil && !errors.Is(err, common.ErrBlobNotFound) {
				// the orphan pass will retry
				s.log.Warn(ctx, "blob delete failed", "path", f.StoredPath, "error", err)
			}
			progress++
		}
		purged += progress

		if len(batch) < batchSize || progress == 0 {
			return purged
		}
	}
	return purged
}

func (s *Sweeper) deleteOrphans(ctx context.Context, now time.Time, result *Result) int {
	files := s.repomanager.Files(s.tx.Conn())

	deleted := 0
	err := s.store.Walk(ctx, func(o storage.Object) error {
		if now.Sub(o.ModTime) < s.orphanGrace {
			return nil
		}
		known, err := files.ExistsByStoredPath(ctx, o.Path)
		if err != nil {
			s.log.Error(ctx, "orphan check failed", "path", o.Path, "error", err)
			result.Errors++
			return nil
		}
		if known {
			return nil
		}
		if err := s.store.Delete(ctx, o.Path); err != nil && !errors.Is(err, common.ErrBlobNotFound) {
			s.log.Error(ctx, "orphan delete failed", "path", o.Path, "error", err)
			result.Errors++
			return nil
		}
		s.log.Debug(ctx, "orphan blob deleted", "path", o.Path)
		deleted++
		return nil
	})
	if err != nil {
		s.log.Error(ctx, "blob walk failed", "error", err)
		result.Errors++
	}
	return deleted
}

func (s *Sweeper) dropDangling(ctx context.Context, result *Result) int {
	files := s.repomanager.Files(s.tx.Conn())

	dropped := 0
	after := ""
	for ctx.Err() == nil {
		page, err := files.ListPage(ctx, after, batchSize)
		if err != nil {
			s.log.Error(ctx, "list files failed", "error", err)
			result.Errors++
			return dropped
		}
		for _, f := range page {
			after = f.ID
			ok, err := s.store.Exists(ctx, f.StoredPath)
			if err != nil {
				s.log.Error(ctx, "blob check failed", "path", f.StoredPath, "error", err)
				result.Errors++
				continue
			}
			if ok {
				continue
			}
			if err := s.deleteRecord(ctx, f); err != nil {
				if !errors.Is(err, common.ErrFileNotFound) {
					s.log.Error(ctx, "drop dangling record failed", "token", f.AccessToken, "error", err)
					result.Errors++
				}
				continue
			}
			s.log.Warn(ctx, "dangling record dropped", "token", f.AccessToken, "path", f.StoredPath)
			dropped++
		}
		if len(page) < batchSize {
			return dropped
		}
	}
	return dropped
}

func (s *Sweeper) deleteExpiredTokens(ctx context.Context, now time.Time, result *Result) int64 {
	n, err := s.repomanager.RefreshTokens(s.tx.Conn()).DeleteExpired(ctx, now)
	if err != nil {
		s.log.Error(ctx, "delete expired refresh tokens failed", "error", err)
		result.Errors++
		return 0
	}
	return n
}

func (s *Sweeper) deleteRecord(ctx context.Context, f *models.File) error {
	return s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Shares(tx).DeleteByFile(ctx, f.ID); err != nil {
			return err
		}
		return s.repomanager.Files(tx).Delete(ctx, f.ID)
	})
}

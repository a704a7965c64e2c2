// Package janitor runs the background sweep that frees writer slots held by
// crashed clients. An active recording whose heartbeat has gone silent past
// the configured threshold is forced to interrupted with a stale reason, so
// a later narration attempt on its path can start or resume cleanly.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"fabula/internal/config"
	"fabula/internal/logging"
	"fabula/internal/recording"
)

// Janitor periodically reclaims stale recordings. It is flock-guarded so at
// most one instance sweeps a given database.
type Janitor struct {
	cfg   *config.Config
	store *recording.Store
	log   *slog.Logger

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex

	sweeps    atomic.Int64
	reclaimed atomic.Int64
}

// New constructs a janitor with initialized dependencies.
func New(cfg *config.Config, store *recording.Store, logger *slog.Logger) (*Janitor, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("janitor requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.JanitorLockPath()
	return &Janitor{
		cfg:      cfg,
		store:    store,
		log:      logger.With(logging.String(logging.FieldComponent, "janitor")),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock and launches the sweep loop. It fails
// when another janitor already holds the lock for this database.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running.Load() {
		return errors.New("janitor already running")
	}

	ok, err := j.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire janitor lock: %w", err)
	}
	if !ok {
		return errors.New("another janitor instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.done = make(chan struct{})
	j.running.Store(true)

	interval := j.cfg.Engine.JanitorSweepInterval()
	j.log.Info("janitor started",
		logging.String("lock", j.lockPath),
		logging.Duration("sweep_interval", interval),
	)
	go j.run(runCtx, interval)
	return nil
}

// Stop halts the sweep loop and releases the instance lock.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.running.Load() {
		return
	}
	j.cancel()
	<-j.done
	if err := j.lock.Unlock(); err != nil {
		j.log.Warn("failed to release janitor lock", logging.Error(err))
	}
	j.cancel = nil
	j.running.Store(false)
	j.log.Info("janitor stopped",
		logging.Int64("sweeps", j.sweeps.Load()),
		logging.Int64("reclaimed", j.reclaimed.Load()),
	)
}

// Running reports whether the sweep loop is active.
func (j *Janitor) Running() bool {
	return j.running.Load()
}

// SweepOnce performs a single reclamation pass immediately.
func (j *Janitor) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-j.cfg.Engine.StaleRecordingTimeout())
	count, err := j.store.ReclaimStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	j.sweeps.Add(1)
	j.reclaimed.Add(count)
	if count > 0 {
		j.log.Info("reclaimed stale recordings", logging.Int64("count", count))
	}
	return count, nil
}

func (j *Janitor) run(ctx context.Context, interval time.Duration) {
	defer close(j.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.SweepOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				j.log.Warn("sweep failed", logging.Error(err))
			}
		}
	}
}

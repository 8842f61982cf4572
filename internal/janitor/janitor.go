// Package janitor periodically removes expired sessions so the session file
// does not grow with tokens nobody presents again.
package janitor

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Purger removes expired sessions and reports how many were dropped.
type Purger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

// Janitor runs a Purger on a fixed interval until shut down.
type Janitor interface {
	Start(ctx context.Context) error
	Shutdown()
	// RunOnce purges immediately.
	RunOnce(ctx context.Context) (int, error)
}

type Config struct {
	Interval time.Duration
	Logger   *logrus.Logger
}

type janitor struct {
	cfg    Config
	purger Purger

	wg     sync.WaitGroup
	mu     sync.Mutex
	cancel context.CancelFunc
}

func New(cfg Config, purger Purger) Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &janitor{
		cfg:    cfg,
		purger: purger,
	}
}

func (j *janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.loop(runCtx)
	}()

	j.cfg.Logger.Infof("session janitor started, interval: %s", j.cfg.Interval)
	return nil
}

func (j *janitor) Shutdown() {
	j.mu.Lock()
	cancel := j.cancel
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	j.wg.Wait()
	j.cfg.Logger.Info("session janitor stopped")
}

func (j *janitor) RunOnce(ctx context.Context) (int, error) {
	return j.purger.PurgeExpired(ctx)
}

func (j *janitor) loop(ctx context.Context) {
	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := j.RunOnce(ctx)
			if err != nil {
				j.cfg.Logger.Warnf("purge expired sessions: %v", err)
				continue
			}
			if purged > 0 {
				j.cfg.Logger.WithField("purged", purged).Info("expired sessions removed")
			}
		}
	}
}

var _ Janitor = (*janitor)(nil)

// Package reaper reclaims output artifacts after their retention period.
// Artifacts must outlive the request that produced them long enough to be
// streamed, so the handler never deletes them; without a reaper the output
// directory grows without bound under sustained traffic.
package reaper

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/banshee-data/meshcleanup/internal/timeutil"
)

// Config contains configuration for a Reaper.
type Config struct {
	// Dir is the artifact directory to sweep.
	Dir string
	// Retention is how long artifacts are kept after creation.
	Retention time.Duration
	// Interval is how often to sweep.
	Interval time.Duration
	// Logger is optional; if nil, uses log.Default().
	Logger *log.Logger
	// Clock is optional; if nil, uses the real time source.
	Clock timeutil.Clock
}

// Reaper periodically deletes artifact directories older than the retention
// period. It provides context-aware lifecycle management for the output
// directory.
type Reaper struct {
	dir       string
	retention time.Duration
	interval  time.Duration
	logger    *log.Logger
	clock     timeutil.Clock
	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// New creates a Reaper from cfg.
func New(cfg Config) *Reaper {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Reaper{
		dir:       cfg.Dir,
		retention: cfg.Retention,
		interval:  cfg.Interval,
		logger:    logger,
		clock:     clock,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Run starts the periodic sweep loop. It blocks until the context is
// cancelled or Stop() is called. Returns nil on clean shutdown.
func (r *Reaper) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil // already running
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	defer func() {
		close(r.doneCh)
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	if r.interval <= 0 {
		r.logger.Printf("reaper: interval is zero or negative, not starting")
		return nil
	}

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.stopCh:
			return nil
		case <-ticker.C():
			if n, err := r.Sweep(); err != nil {
				r.logger.Printf("reaper: sweep failed: %v", err)
			} else if n > 0 {
				r.logger.Printf("reaper: reclaimed %d artifact(s)", n)
			}
		}
	}
}

// Stop signals the loop to exit and waits for it to finish.
func (r *Reaper) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	stopCh := r.stopCh
	doneCh := r.doneCh
	r.mu.Unlock()

	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
	<-doneCh
}

// Sweep removes every entry in the artifact directory whose modification
// time is older than the retention period, returning the number removed.
// A missing directory is not an error; nothing has been served yet.
func (r *Reaper) Sweep() (int, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := r.clock.Now().Add(-r.retention)
	removed := 0
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(r.dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			r.logger.Printf("reaper: removing %s: %v", path, err)
			continue
		}
		removed++
	}
	return removed, nil
}

package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/focus-leaderboard/internal/config"
	"github.com/focus-leaderboard/internal/domain"
)

// EntrySource lists every durable leaderboard entry
type EntrySource interface {
	ListEntries(ctx context.Context) ([]domain.LeaderboardEntry, error)
}

// IndexRebuilder replaces the whole ranking index and rewrites single entries
type IndexRebuilder interface {
	ReplaceAll(ctx context.Context, entries []domain.LeaderboardEntry) error
	SetEntry(ctx context.Context, entry domain.LeaderboardEntry) error
}

// SyncWorker periodically rebuilds the ranking index from the durable
// leaderboard entries, so the index converges after missed writes
type SyncWorker struct {
	source  EntrySource
	index   IndexRebuilder
	config  *config.SyncConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(
	source EntrySource,
	index IndexRebuilder,
	cfg *config.SyncConfig,
	logger *slog.Logger,
) *SyncWorker {
	return &SyncWorker{
		source: source,
		index:  index,
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the background rebuild loop
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("sync worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background rebuild loop
func (w *SyncWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("sync worker stopped")
	return nil
}

func (w *SyncWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if err := w.RebuildIndex(ctx); err != nil {
				w.logger.Error("ranking index rebuild failed", "error", err)
			}
		}
	}
}

// RebuildIndex replaces the ranking index with the current durable entries
func (w *SyncWorker) RebuildIndex(ctx context.Context) error {
	start := time.Now()

	entries, err := w.source.ListEntries(ctx)
	if err != nil {
		return fmt.Errorf("listing leaderboard entries: %w", err)
	}
	if err := w.index.ReplaceAll(ctx, entries); err != nil {
		return err
	}

	// Writes that landed between the read and the replace were overwritten
	current, err := w.source.ListEntries(ctx)
	if err != nil {
		return fmt.Errorf("re-reading leaderboard entries: %w", err)
	}
	snapshot := make(map[string]domain.LeaderboardEntry, len(entries))
	for _, e := range entries {
		snapshot[e.UserID] = e
	}
	reapplied := 0
	for _, e := range current {
		if prev, ok := snapshot[e.UserID]; ok && sameScores(prev, e) {
			continue
		}
		if err := w.index.SetEntry(ctx, e); err != nil {
			return fmt.Errorf("reapplying entry for %s: %w", e.UserID, err)
		}
		reapplied++
	}

	w.logger.Info("ranking index rebuilt",
		"entries", len(entries),
		"reapplied", reapplied,
		"duration", time.Since(start),
	)
	return nil
}

func sameScores(a, b domain.LeaderboardEntry) bool {
	for _, p := range domain.Periods {
		if a.Score(p) != b.Score(p) {
			return false
		}
	}
	return true
}

// IsRunning returns whether the worker is currently running
func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

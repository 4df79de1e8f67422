package worker

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/focus-leaderboard/internal/config"
	"github.com/focus-leaderboard/internal/domain"
	"github.com/focus-leaderboard/internal/metrics"
)

// ErrPoolStopped is returned when an event is dispatched after Stop
var ErrPoolStopped = errors.New("worker pool stopped")

// Processor runs the side effects of one completion event
type Processor interface {
	Process(ctx context.Context, event domain.CompletionEvent) error
}

// Pool processes completion events in the background. Events for the same
// user always land on the same shard, so they are handled in order.
type Pool struct {
	processor Processor
	config    *config.WorkerConfig
	logger    *slog.Logger
	shards    []chan domain.CompletionEvent
	wg        sync.WaitGroup
	mu        sync.RWMutex
	running   bool
}

// NewPool creates a new completion worker pool
func NewPool(processor Processor, cfg *config.WorkerConfig, logger *slog.Logger) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	shards := make([]chan domain.CompletionEvent, workers)
	for i := range shards {
		shards[i] = make(chan domain.CompletionEvent, cfg.QueueSize)
	}
	return &Pool{
		processor: processor,
		config:    cfg,
		logger:    logger,
		shards:    shards,
	}
}

// Start launches one goroutine per shard
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true

	for i, ch := range p.shards {
		p.wg.Add(1)
		go p.run(i, ch)
	}
	p.logger.Info("completion worker pool started", "workers", len(p.shards))
}

// Stop refuses new events, drains the queued ones and waits for the workers
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	for _, ch := range p.shards {
		close(ch)
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("completion worker pool stopped")
}

// Dispatch queues an event, blocking while its shard is full
func (p *Pool) Dispatch(ctx context.Context, event domain.CompletionEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running {
		return ErrPoolStopped
	}

	select {
	case p.shards[p.shardFor(event.UserID)] <- event:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queueing completion event: %w", ctx.Err())
	}
}

func (p *Pool) shardFor(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(len(p.shards)))
}

func (p *Pool) run(shard int, events <-chan domain.CompletionEvent) {
	defer p.wg.Done()
	for event := range events {
		err := p.handle(event)
		metrics.ObserveJob("pool", err)
		if err != nil {
			p.logger.Error("completion event failed",
				"shard", shard,
				"session_id", event.SessionID,
				"user_id", event.UserID,
				"error", err,
			)
		}
	}
}

// handle runs one event with a per-attempt timeout, retrying on failure
func (p *Pool) handle(event domain.CompletionEvent) error {
	attempts := p.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = p.attempt(event)
		if err == nil {
			return nil
		}
		if attempt < attempts {
			p.logger.Warn("retrying completion event",
				"session_id", event.SessionID,
				"attempt", attempt,
				"error", err,
			)
			time.Sleep(p.config.RetryDelay)
		}
	}
	return err
}

func (p *Pool) attempt(event domain.CompletionEvent) error {
	ctx := context.Background()
	if p.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.JobTimeout)
		defer cancel()
	}
	return p.processor.Process(ctx, event)
}

package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/focus-leaderboard/internal/config"
	"github.com/focus-leaderboard/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingProcessor struct {
	calls    int
	failures int
	last     domain.CompletionEvent
}

func (p *countingProcessor) Process(_ context.Context, ev domain.CompletionEvent) error {
	p.calls++
	p.last = ev
	if p.calls <= p.failures {
		return errors.New("transient")
	}
	return nil
}

func newTestConsumer(proc Processor) *Consumer {
	return &Consumer{
		config:    &config.KafkaConfig{RetryAttempts: 3, RetryDelay: time.Millisecond},
		processor: proc,
		logger:    testLogger(),
	}
}

func encode(t *testing.T, ev domain.CompletionEvent) []byte {
	t.Helper()
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestHandleMessage(t *testing.T) {
	ev := domain.CompletionEvent{SessionID: "s1", UserID: "alice", Type: domain.SessionTypeFocus, Duration: 25}

	testCases := []struct {
		name      string
		value     []byte
		failures  int
		wantCalls int
		wantErr   bool
	}{
		{name: "processed", value: encode(t, ev), wantCalls: 1},
		{name: "retried then processed", value: encode(t, ev), failures: 2, wantCalls: 3},
		{name: "gives up", value: encode(t, ev), failures: 5, wantCalls: 3, wantErr: true},
		{name: "malformed json dropped", value: []byte("{not json"), wantCalls: 0},
		{name: "missing ids dropped", value: encode(t, domain.CompletionEvent{Duration: 25}), wantCalls: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			proc := &countingProcessor{failures: tc.failures}
			c := newTestConsumer(proc)

			err := c.handleMessage(context.Background(), &sarama.ConsumerMessage{Value: tc.value})
			if (err != nil) != tc.wantErr {
				t.Fatalf("handleMessage() error = %v, wantErr %v", err, tc.wantErr)
			}
			if proc.calls != tc.wantCalls {
				t.Errorf("Process calls = %d, want %d", proc.calls, tc.wantCalls)
			}
		})
	}
}

func TestHandleMessageDecodesEvent(t *testing.T) {
	proc := &countingProcessor{}
	c := newTestConsumer(proc)
	ev := domain.CompletionEvent{SessionID: "s1", UserID: "alice", TaskID: strPtr("t1"), Type: domain.SessionTypeFocus, Duration: 25}

	if err := c.handleMessage(context.Background(), &sarama.ConsumerMessage{Value: encode(t, ev)}); err != nil {
		t.Fatalf("handleMessage() error = %v", err)
	}
	if proc.last.TaskID == nil || *proc.last.TaskID != "t1" || proc.last.Duration != 25 {
		t.Errorf("decoded event = %+v", proc.last)
	}
}

func strPtr(v string) *string { return &v }

func TestProducerDispatch(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev domain.CompletionEvent
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.SessionID != "s1" || ev.UserID != "alice" {
			return errors.New("unexpected event payload")
		}
		return nil
	})
	p := newProducer(mock, "pomodoro-completions", testLogger())

	if err := p.Dispatch(context.Background(), domain.CompletionEvent{SessionID: "s1", UserID: "alice"}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestProducerDispatchFailure(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	p := newProducer(mock, "pomodoro-completions", testLogger())

	err := p.Dispatch(context.Background(), domain.CompletionEvent{SessionID: "s1", UserID: "alice"})
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Errorf("Dispatch() error = %v, want ErrOutOfBrokers", err)
	}
	_ = p.Close()
}

func TestProducerDispatchCancelled(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	p := newProducer(mock, "pomodoro-completions", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Dispatch(ctx, domain.CompletionEvent{SessionID: "s1", UserID: "alice"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Dispatch() error = %v, want context.Canceled", err)
	}
	_ = p.Close()
}

// fakeGroup fails the first failures joins, then holds each session open
// until the context ends. A negative failures value never joins.
type fakeGroup struct {
	mu       sync.Mutex
	failures int
	calls    int
	closed   bool
	errs     chan error
}

func newFakeGroup(failures int) *fakeGroup {
	return &fakeGroup{failures: failures, errs: make(chan error)}
}

func (g *fakeGroup) Consume(ctx context.Context, _ []string, handler sarama.ConsumerGroupHandler) error {
	g.mu.Lock()
	g.calls++
	n := g.calls
	g.mu.Unlock()

	if g.failures < 0 || n <= g.failures {
		return sarama.ErrNotCoordinatorForConsumer
	}
	if err := handler.Setup(nil); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (g *fakeGroup) Errors() <-chan error { return g.errs }

func (g *fakeGroup) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		g.closed = true
		close(g.errs)
	}
	return nil
}

func (g *fakeGroup) Pause(map[string][]int32)  {}
func (g *fakeGroup) Resume(map[string][]int32) {}
func (g *fakeGroup) PauseAll()                 {}
func (g *fakeGroup) ResumeAll()                {}

func (g *fakeGroup) stats() (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls, g.closed
}

func TestConsumerStartGivesUpWhenGroupNeverJoins(t *testing.T) {
	group := newFakeGroup(-1)
	cfg := &config.KafkaConfig{Topic: "pomodoro-completions", RetryDelay: 20 * time.Millisecond, StartTimeout: 100 * time.Millisecond}
	c := newConsumer(cfg, group, &countingProcessor{}, testLogger())

	done := make(chan error, 1)
	go func() { done <- c.Start() }()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Start() error = nil, want timeout")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return")
	}

	calls, closed := group.stats()
	if !closed {
		t.Error("consumer group not closed after failed start")
	}
	if calls > 10 {
		t.Errorf("Consume called %d times, want retries spaced by the retry delay", calls)
	}
}

func TestConsumerStartAfterFailedJoins(t *testing.T) {
	group := newFakeGroup(2)
	cfg := &config.KafkaConfig{Topic: "pomodoro-completions", RetryDelay: time.Millisecond, StartTimeout: 5 * time.Second}
	c := newConsumer(cfg, group, &countingProcessor{}, testLogger())

	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	calls, closed := group.stats()
	if calls != 3 {
		t.Errorf("Consume calls = %d, want 3", calls)
	}
	if !closed {
		t.Error("consumer group not closed after Stop")
	}
}

package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/focus-leaderboard/internal/config"
	"github.com/focus-leaderboard/internal/domain"
)

var errStoreDown = errors.New("store unavailable")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testLeaderboardConfig() *config.LeaderboardConfig {
	return &config.LeaderboardConfig{
		DefaultLimit:   10,
		MaxLimit:       100,
		BroadcastLimit: 10,
		WeeklyWindow:   7 * 24 * time.Hour,
		MonthlyWindow:  30 * 24 * time.Hour,
	}
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// memStore implements the session, task and leaderboard repositories in memory
type memStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	synced   map[string]bool
	tasks    map[string]*domain.Task
	entries  map[string]domain.LeaderboardEntry
	users    map[string]domain.UserInfo

	failTotals bool
	failUpsert bool
	upserts    int
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]*domain.Session),
		synced:   make(map[string]bool),
		tasks:    make(map[string]*domain.Task),
		entries:  make(map[string]domain.LeaderboardEntry),
		users:    make(map[string]domain.UserInfo),
	}
}

func (m *memStore) CreateSession(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memStore) GetActiveSession(_ context.Context, sessionID, userID string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.UserID != userID || s.Status != domain.StatusInProgress {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) FinishSession(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[s.ID]
	if !ok || cur.UserID != s.UserID || cur.Status != domain.StatusInProgress {
		return domain.ErrNotFound
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memStore) ListSessions(_ context.Context, userID string, page domain.Page) ([]domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Session, 0)
	for _, s := range m.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if page.Offset > len(out) {
		return []domain.Session{}, nil
	}
	out = out[page.Offset:]
	if page.Limit > 0 && page.Limit < len(out) {
		out = out[:page.Limit]
	}
	return out, nil
}

func (m *memStore) GetSessionStats(_ context.Context, userID string) (domain.SessionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats domain.SessionStats
	for _, s := range m.sessions {
		if s.UserID == userID && s.Status == domain.StatusCompleted {
			stats.TotalCompletedSessions++
			stats.TotalFocusTime += int64(s.Duration)
			stats.TotalCycles += int64(s.CompletedCycles)
		}
	}
	return stats, nil
}

func (m *memStore) GetFocusTotals(_ context.Context, userID string, weekStart, monthStart time.Time) (domain.FocusTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTotals {
		return domain.FocusTotals{}, errStoreDown
	}
	var totals domain.FocusTotals
	for _, s := range m.sessions {
		if s.UserID != userID || s.Status != domain.StatusCompleted || s.Type != domain.SessionTypeFocus {
			continue
		}
		totals.TotalMinutes += int64(s.Duration)
		totals.SessionCount++
		if !s.EndTime.Before(weekStart) {
			totals.WeeklyMinutes += int64(s.Duration)
		}
		if !s.EndTime.Before(monthStart) {
			totals.MonthlyMinutes += int64(s.Duration)
		}
	}
	return totals, nil
}

func (m *memStore) ClaimTaskSync(_ context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.Status != domain.StatusCompleted || m.synced[sessionID] {
		return false, nil
	}
	m.synced[sessionID] = true
	return true, nil
}

func (m *memStore) FindTask(_ context.Context, taskID string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) UpdateRemainingTime(_ context.Context, taskID string, remaining int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return domain.ErrNotFound
	}
	t.RemainingTime = intPtr(remaining)
	return nil
}

func (m *memStore) UpdateTaskTimes(_ context.Context, task *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[task.ID]
	if !ok || t.UserID != task.UserID {
		return domain.ErrNotFound
	}
	t.EstimatedTime = task.EstimatedTime
	t.RemainingTime = task.RemainingTime
	return nil
}

func (m *memStore) CountTasksByStatus(_ context.Context, userID, status string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.tasks {
		if t.UserID == userID && t.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *memStore) UpsertEntry(_ context.Context, e domain.LeaderboardEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpsert {
		return errStoreDown
	}
	m.upserts++
	m.entries[e.UserID] = e
	return nil
}

func (m *memStore) withUser(e domain.LeaderboardEntry) domain.LeaderboardEntry {
	if u, ok := m.users[e.UserID]; ok {
		e.User = &u
	}
	return e
}

func (m *memStore) GetEntry(_ context.Context, userID string) (*domain.LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	e = m.withUser(e)
	return &e, nil
}

func (m *memStore) GetEntries(_ context.Context, userIDs []string) ([]domain.LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.LeaderboardEntry, 0, len(userIDs))
	for _, id := range userIDs {
		if e, ok := m.entries[id]; ok {
			out = append(out, m.withUser(e))
		}
	}
	return out, nil
}

func (m *memStore) entry(userID string) (domain.LeaderboardEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[userID]
	return e, ok
}

// memIndex orders members like a Redis sorted set read in reverse:
// score descending, then member descending
type memIndex struct {
	mu     sync.Mutex
	scores map[domain.Period]map[string]int64
	fail   bool
}

func newMemIndex() *memIndex {
	idx := &memIndex{scores: make(map[domain.Period]map[string]int64)}
	for _, p := range domain.Periods {
		idx.scores[p] = make(map[string]int64)
	}
	return idx
}

func (idx *memIndex) SetEntry(_ context.Context, e domain.LeaderboardEntry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.fail {
		return errStoreDown
	}
	for _, p := range domain.Periods {
		idx.scores[p][e.UserID] = e.Score(p)
	}
	return nil
}

func (idx *memIndex) TopN(_ context.Context, p domain.Period, n int) ([]domain.RankedScore, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.fail {
		return nil, errStoreDown
	}
	out := make([]domain.RankedScore, 0, len(idx.scores[p]))
	for id, s := range idx.scores[p] {
		out = append(out, domain.RankedScore{UserID: id, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].UserID > out[j].UserID
	})
	if n < len(out) {
		out = out[:n]
	}
	return out, nil
}

func (idx *memIndex) CountAbove(_ context.Context, p domain.Period, score int64) (int64, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.fail {
		return 0, errStoreDown
	}
	var n int64
	for _, s := range idx.scores[p] {
		if s > score {
			n++
		}
	}
	return n, nil
}

// seed stores an entry in both the repository and the index
func seed(ctx context.Context, store *memStore, idx *memIndex, e domain.LeaderboardEntry) {
	_ = store.UpsertEntry(ctx, e)
	_ = idx.SetEntry(ctx, e)
}

type recordingPublisher struct {
	mu        sync.Mutex
	snapshots []domain.LeaderboardSnapshot
	err       error
}

func (p *recordingPublisher) BroadcastLeaderboardUpdate(s domain.LeaderboardSnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.snapshots = append(p.snapshots, s)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snapshots)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []domain.CompletionEvent
	err    error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, ev domain.CompletionEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
	return d.err
}

// inlineDispatcher runs the processor on the caller's goroutine
type inlineDispatcher struct {
	processor *CompletionProcessor
}

func (d *inlineDispatcher) Dispatch(ctx context.Context, ev domain.CompletionEvent) error {
	return d.processor.Process(ctx, ev)
}

package service

import (
	"context"
	"time"

	"github.com/focus-leaderboard/internal/domain"
)

// SessionRepository persists pomodoro sessions
type SessionRepository interface {
	CreateSession(ctx context.Context, s *domain.Session) error
	GetActiveSession(ctx context.Context, sessionID, userID string) (*domain.Session, error)
	FinishSession(ctx context.Context, s *domain.Session) error
	ListSessions(ctx context.Context, userID string, page domain.Page) ([]domain.Session, error)
	GetSessionStats(ctx context.Context, userID string) (domain.SessionStats, error)
	GetFocusTotals(ctx context.Context, userID string, weekStart, monthStart time.Time) (domain.FocusTotals, error)
	ClaimTaskSync(ctx context.Context, sessionID string) (bool, error)
}

// TaskRepository is the slice of the task store used by the focus pipeline
type TaskRepository interface {
	FindTask(ctx context.Context, taskID string) (*domain.Task, error)
	UpdateRemainingTime(ctx context.Context, taskID string, remaining int) error
	UpdateTaskTimes(ctx context.Context, task *domain.Task) error
	CountTasksByStatus(ctx context.Context, userID, status string) (int64, error)
}

// LeaderboardRepository is the durable store of leaderboard entries
type LeaderboardRepository interface {
	UpsertEntry(ctx context.Context, entry domain.LeaderboardEntry) error
	GetEntry(ctx context.Context, userID string) (*domain.LeaderboardEntry, error)
	GetEntries(ctx context.Context, userIDs []string) ([]domain.LeaderboardEntry, error)
}

// RankingIndex orders users by period score
type RankingIndex interface {
	SetEntry(ctx context.Context, entry domain.LeaderboardEntry) error
	TopN(ctx context.Context, p domain.Period, n int) ([]domain.RankedScore, error)
	CountAbove(ctx context.Context, p domain.Period, score int64) (int64, error)
}

// Dispatcher hands completion events to background processing
type Dispatcher interface {
	Dispatch(ctx context.Context, event domain.CompletionEvent) error
}

// Publisher pushes a leaderboard snapshot to every connected client
type Publisher interface {
	BroadcastLeaderboardUpdate(snapshot domain.LeaderboardSnapshot) error
}

// SnapshotEmitter re-reads and pushes the leaderboard after a recompute
type SnapshotEmitter interface {
	EmitLeaderboardUpdate(ctx context.Context) error
}

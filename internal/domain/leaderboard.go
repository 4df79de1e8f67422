package domain

import (
	"time"
)

// Period selects which leaderboard score a ranking is ordered by
type Period string

const (
	PeriodAll     Period = "all"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// Periods lists every period in broadcast order
var Periods = []Period{PeriodAll, PeriodWeekly, PeriodMonthly}

// ParsePeriod maps a query value to a period. Unknown and empty values fall back to all.
func ParsePeriod(s string) Period {
	switch Period(s) {
	case PeriodWeekly:
		return PeriodWeekly
	case PeriodMonthly:
		return PeriodMonthly
	default:
		return PeriodAll
	}
}

// LeaderboardEntry is the cached per-user aggregate row
type LeaderboardEntry struct {
	UserID            string    `json:"userId"`
	User              *UserInfo `json:"user,omitempty"`
	TotalFocusTime    int64     `json:"totalFocusTime"`
	CompletedSessions int64     `json:"completedSessions"`
	CompletedTasks    int64     `json:"completedTasks"`
	WeeklyScore       int64     `json:"weeklyScore"`
	MonthlyScore      int64     `json:"monthlyScore"`
	LastUpdated       time.Time `json:"lastUpdated"`
}

// Score returns the value the entry is ranked by for a period
func (e *LeaderboardEntry) Score(p Period) int64 {
	switch p {
	case PeriodWeekly:
		return e.WeeklyScore
	case PeriodMonthly:
		return e.MonthlyScore
	default:
		return e.TotalFocusTime
	}
}

// RankedEntry is a leaderboard entry annotated with its 1-based rank
type RankedEntry struct {
	LeaderboardEntry
	Rank int64 `json:"rank"`
}

// RankedScore is one member of a ranking index read
type RankedScore struct {
	UserID string
	Score  int64
}

// FocusTotals is the raw aggregate over a user's completed focus sessions
type FocusTotals struct {
	TotalMinutes   int64
	SessionCount   int64
	WeeklyMinutes  int64
	MonthlyMinutes int64
}

// LeaderboardSnapshot is the full payload of a leaderboard update push
type LeaderboardSnapshot struct {
	AllTime []RankedEntry `json:"allTime"`
	Weekly  []RankedEntry `json:"weekly"`
	Monthly []RankedEntry `json:"monthly"`
}

// Set stores the ranked list for a period
func (s *LeaderboardSnapshot) Set(p Period, entries []RankedEntry) {
	switch p {
	case PeriodWeekly:
		s.Weekly = entries
	case PeriodMonthly:
		s.Monthly = entries
	default:
		s.AllTime = entries
	}
}

// CompletionEvent is emitted once a focus session is durably completed
type CompletionEvent struct {
	SessionID   string      `json:"sessionId"`
	UserID      string      `json:"userId"`
	TaskID      *string     `json:"taskId,omitempty"`
	Type        SessionType `json:"type"`
	Duration    int         `json:"duration"`
	CompletedAt time.Time   `json:"completedAt"`
}

// NewCompletionEvent builds the event for a completed session
func NewCompletionEvent(s *Session) CompletionEvent {
	ev := CompletionEvent{
		SessionID: s.ID,
		UserID:    s.UserID,
		TaskID:    s.TaskID,
		Type:      s.Type,
		Duration:  s.Duration,
	}
	if s.EndTime != nil {
		ev.CompletedAt = *s.EndTime
	}
	return ev
}

package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a pomodoro session
type SessionStatus string

const (
	StatusInProgress SessionStatus = "in-progress"
	StatusCompleted  SessionStatus = "completed"
	StatusCancelled  SessionStatus = "cancelled"
)

// IsTerminal reports whether no further transition may leave this status
func (s SessionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// SessionType distinguishes focus intervals from breaks
type SessionType string

const (
	SessionTypeFocus      SessionType = "focus"
	SessionTypeShortBreak SessionType = "short_break"
	SessionTypeLongBreak  SessionType = "long_break"
)

// Valid reports whether t is a known session type
func (t SessionType) Valid() bool {
	switch t {
	case SessionTypeFocus, SessionTypeShortBreak, SessionTypeLongBreak:
		return true
	}
	return false
}

// Session is one timed focus or break interval
type Session struct {
	ID              string        `json:"id"`
	UserID          string        `json:"userId"`
	Type            SessionType   `json:"type"`
	StartTime       time.Time     `json:"startTime"`
	EndTime         *time.Time    `json:"endTime,omitempty"`
	Duration        int           `json:"duration"`
	Status          SessionStatus `json:"status"`
	CompletedCycles int           `json:"completedCycles"`
	TaskID          *string       `json:"taskId,omitempty"`
}

// StartSessionRequest is the body of a session start call
type StartSessionRequest struct {
	Duration int         `json:"duration"`
	Type     SessionType `json:"type,omitempty"`
	TaskID   *string     `json:"taskId,omitempty"`
}

// CompleteSessionRequest is the body of a session completion call
type CompleteSessionRequest struct {
	CompletedCycles *int `json:"completedCycles,omitempty"`
}

// NewSession validates a start request and returns an in-progress session
func NewSession(userID string, req StartSessionRequest, now time.Time) (*Session, error) {
	if req.Duration < 1 {
		return nil, fmt.Errorf("%w: duration must be at least 1 minute", ErrValidation)
	}

	sessionType := req.Type
	if sessionType == "" {
		sessionType = SessionTypeFocus
	}
	if !sessionType.Valid() {
		return nil, fmt.Errorf("%w: unknown session type %q", ErrValidation, req.Type)
	}

	var taskID *string
	if req.TaskID != nil && *req.TaskID != "" {
		id := *req.TaskID
		taskID = &id
	}

	return &Session{
		ID:              uuid.New().String(),
		UserID:          userID,
		Type:            sessionType,
		StartTime:       now,
		Duration:        req.Duration,
		Status:          StatusInProgress,
		CompletedCycles: 0,
		TaskID:          taskID,
	}, nil
}

// Complete moves an in-progress session to completed.
// A nil cycles pointer keeps the current count.
func (s *Session) Complete(at time.Time, cycles *int) error {
	if s.Status.IsTerminal() {
		return fmt.Errorf("complete session %s: %w", s.ID, ErrInvalidTransition)
	}
	if cycles != nil {
		if *cycles < 0 {
			return fmt.Errorf("%w: completedCycles must not be negative", ErrValidation)
		}
		s.CompletedCycles = *cycles
	}
	s.Status = StatusCompleted
	s.EndTime = &at
	return nil
}

// Cancel moves an in-progress session to cancelled
func (s *Session) Cancel(at time.Time) error {
	if s.Status.IsTerminal() {
		return fmt.Errorf("cancel session %s: %w", s.ID, ErrInvalidTransition)
	}
	s.Status = StatusCancelled
	s.EndTime = &at
	return nil
}

// CountsTowardScore reports whether a completion feeds task sync and the leaderboard
func (s *Session) CountsTowardScore() bool {
	return s.Type == SessionTypeFocus && s.Status == StatusCompleted
}

// SessionStats summarises a user's completed sessions
type SessionStats struct {
	TotalCompletedSessions int64 `json:"totalCompletedSessions"`
	TotalFocusTime         int64 `json:"totalFocusTime"`
	TotalCycles            int64 `json:"totalCycles"`
}

// Page limits a history listing. Limit 0 means unbounded.
type Page struct {
	Limit  int
	Offset int
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/focus-leaderboard/internal/domain"
)

type queryExpectation struct {
	expect *regexp.Regexp
	args   []any
	values []any
	err    error
}

type execExpectation struct {
	expect *regexp.Regexp
	args   []any
	tag    string
	err    error
}

type mockPool struct {
	t       *testing.T
	queries []queryExpectation
	execs   []execExpectation
}

func (m *mockPool) nextQuery(sql string, args []any) queryExpectation {
	if len(m.queries) == 0 {
		m.t.Fatalf("unexpected query: %s", sql)
	}
	exp := m.queries[0]
	m.queries = m.queries[1:]
	if !exp.expect.MatchString(sql) {
		m.t.Fatalf("query mismatch: %s", sql)
	}
	assertArgs(m.t, exp.args, args)
	return exp
}

func (m *mockPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	exp := m.nextQuery(sql, args)
	return mockRow{values: exp.values, err: exp.err}
}

func (m *mockPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	exp := m.nextQuery(sql, args)
	if exp.err != nil {
		return nil, exp.err
	}
	return &emptyRows{}, nil
}

func (m *mockPool) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	if len(m.execs) == 0 {
		m.t.Fatalf("unexpected exec: %s", sql)
	}
	exp := m.execs[0]
	m.execs = m.execs[1:]
	if !exp.expect.MatchString(sql) {
		m.t.Fatalf("exec mismatch: %s", sql)
	}
	assertArgs(m.t, exp.args, arguments)
	return pgconn.NewCommandTag(exp.tag), exp.err
}

func (m *mockPool) Ping(ctx context.Context) error { return nil }

func (m *mockPool) Close() {}

func (m *mockPool) assertDone() {
	if len(m.queries) != 0 {
		m.t.Fatalf("pending queries: %v", m.queries)
	}
	if len(m.execs) != 0 {
		m.t.Fatalf("pending execs: %v", m.execs)
	}
}

type mockRow struct {
	values []any
	err    error
}

func (m mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) != len(m.values) {
		return fmt.Errorf("unexpected dest count: %d", len(dest))
	}
	for i, v := range m.values {
		switch ptr := dest[i].(type) {
		case *int64:
			n, ok := v.(int64)
			if !ok {
				return fmt.Errorf("expected int64 value at %d", i)
			}
			*ptr = n
		case *string:
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("expected string value at %d", i)
			}
			*ptr = s
		default:
			return fmt.Errorf("unsupported destination %T", ptr)
		}
	}
	return nil
}

type emptyRows struct {
	closed bool
}

func (r *emptyRows) Close()                                       { r.closed = true }
func (r *emptyRows) Err() error                                   { return nil }
func (r *emptyRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT 0") }
func (r *emptyRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *emptyRows) Next() bool                                   { return false }
func (r *emptyRows) Scan(dest ...any) error                       { return errors.New("unexpected scan") }
func (r *emptyRows) Values() ([]any, error)                       { return nil, nil }
func (r *emptyRows) RawValues() [][]byte                          { return nil }
func (r *emptyRows) Conn() *pgx.Conn                              { return nil }

func assertArgs(t *testing.T, expected, actual []any) {
	t.Helper()
	if expected == nil {
		return
	}
	if len(expected) != len(actual) {
		t.Fatalf("argument length mismatch: expected %d got %d", len(expected), len(actual))
	}
	for i, exp := range expected {
		if exp != actual[i] {
			t.Fatalf("argument mismatch at %d: expected %v got %v", i, exp, actual[i])
		}
	}
}

func newTestRepository(pool *mockPool) *Repository {
	return &Repository{
		pool:   pool,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestGetFocusTotalsQuery(t *testing.T) {
	weekStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	monthStart := time.Date(2026, 2, 6, 0, 0, 0, 0, time.UTC)
	pool := &mockPool{
		t: t,
		queries: []queryExpectation{
			{
				expect: regexp.MustCompile(`(?s)FILTER \(WHERE end_time >= \$4\).*FILTER \(WHERE end_time >= \$5\).*status = \$2 AND session_type = \$3`),
				args:   []any{"alice", "completed", "focus", weekStart, monthStart},
				values: []any{int64(105), int64(4), int64(25), int64(75)},
			},
		},
	}
	repo := newTestRepository(pool)

	totals, err := repo.GetFocusTotals(context.Background(), "alice", weekStart, monthStart)
	if err != nil {
		t.Fatalf("GetFocusTotals() error = %v", err)
	}
	want := domain.FocusTotals{TotalMinutes: 105, SessionCount: 4, WeeklyMinutes: 25, MonthlyMinutes: 75}
	if totals != want {
		t.Errorf("GetFocusTotals() = %+v, want %+v", totals, want)
	}
	pool.assertDone()
}

func TestGetSessionStatsCountsCompleted(t *testing.T) {
	pool := &mockPool{
		t: t,
		queries: []queryExpectation{
			{
				expect: regexp.MustCompile(`WHERE user_id = \$1 AND status = \$2\s*$`),
				args:   []any{"alice", "completed"},
				values: []any{int64(2), int64(75), int64(3)},
			},
		},
	}
	repo := newTestRepository(pool)

	stats, err := repo.GetSessionStats(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetSessionStats() error = %v", err)
	}
	if stats != (domain.SessionStats{TotalCompletedSessions: 2, TotalFocusTime: 75, TotalCycles: 3}) {
		t.Errorf("GetSessionStats() = %+v", stats)
	}
	pool.assertDone()
}

func TestListSessionsPaging(t *testing.T) {
	testCases := []struct {
		name   string
		page   domain.Page
		expect *regexp.Regexp
		args   []any
	}{
		{
			name:   "whole history",
			page:   domain.Page{},
			expect: regexp.MustCompile(`ORDER BY start_time DESC\s+OFFSET \$2\s*$`),
			args:   []any{"alice", 0},
		},
		{
			name:   "limited",
			page:   domain.Page{Limit: 5, Offset: 10},
			expect: regexp.MustCompile(`ORDER BY start_time DESC\s+OFFSET \$2\s+LIMIT \$3$`),
			args:   []any{"alice", 10, 5},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pool := &mockPool{t: t, queries: []queryExpectation{{expect: tc.expect, args: tc.args}}}
			repo := newTestRepository(pool)

			sessions, err := repo.ListSessions(context.Background(), "alice", tc.page)
			if err != nil {
				t.Fatalf("ListSessions() error = %v", err)
			}
			if sessions == nil || len(sessions) != 0 {
				t.Errorf("ListSessions() = %v, want empty slice", sessions)
			}
			pool.assertDone()
		})
	}
}

func TestFinishSessionOnlyFromInProgress(t *testing.T) {
	end := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	session := &domain.Session{ID: "s1", UserID: "alice", Status: domain.StatusCompleted, EndTime: &end, CompletedCycles: 1}

	testCases := []struct {
		name    string
		tag     string
		wantErr error
	}{
		{name: "applied", tag: "UPDATE 1"},
		{name: "already terminal", tag: "UPDATE 0", wantErr: domain.ErrNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pool := &mockPool{
				t: t,
				execs: []execExpectation{
					{
						expect: regexp.MustCompile(`WHERE id = \$1 AND user_id = \$2 AND status = \$3`),
						args:   []any{"s1", "alice", "in-progress", "completed", session.EndTime, 1},
						tag:    tc.tag,
					},
				},
			}
			repo := newTestRepository(pool)

			err := repo.FinishSession(context.Background(), session)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("FinishSession() error = %v, want %v", err, tc.wantErr)
			}
			pool.assertDone()
		})
	}
}

func TestClaimTaskSync(t *testing.T) {
	testCases := []struct {
		name string
		tag  string
		want bool
	}{
		{name: "first claim", tag: "UPDATE 1", want: true},
		{name: "already claimed", tag: "UPDATE 0", want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pool := &mockPool{
				t: t,
				execs: []execExpectation{
					{
						expect: regexp.MustCompile(`SET task_synced = TRUE\s+WHERE id = \$1 AND status = \$2 AND task_synced = FALSE`),
						args:   []any{"s1", "completed"},
						tag:    tc.tag,
					},
				},
			}
			repo := newTestRepository(pool)

			claimed, err := repo.ClaimTaskSync(context.Background(), "s1")
			if err != nil {
				t.Fatalf("ClaimTaskSync() error = %v", err)
			}
			if claimed != tc.want {
				t.Errorf("ClaimTaskSync() = %v, want %v", claimed, tc.want)
			}
			pool.assertDone()
		})
	}
}

func TestGetEntryMissingIsNotFound(t *testing.T) {
	pool := &mockPool{
		t: t,
		queries: []queryExpectation{
			{expect: regexp.MustCompile(`WHERE e.user_id = \$1`), args: []any{"nobody"}, err: pgx.ErrNoRows},
		},
	}
	repo := newTestRepository(pool)

	if _, err := repo.GetEntry(context.Background(), "nobody"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetEntry() error = %v, want ErrNotFound", err)
	}
	pool.assertDone()
}

func TestGetEntriesWithoutIDsSkipsQuery(t *testing.T) {
	pool := &mockPool{t: t}
	repo := newTestRepository(pool)

	entries, err := repo.GetEntries(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetEntries() error = %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("GetEntries() = %v, want empty slice", entries)
	}
}

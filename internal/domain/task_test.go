package domain

import (
	"errors"
	"testing"
)

func intPtr(v int) *int { return &v }

func TestConsumeMinutesIsMonotonic(t *testing.T) {
	task := &Task{ID: "t1", EstimatedTime: intPtr(60)}
	durations := []int{25, 25, 25, 5}
	want := []int{35, 10, 0, 0}

	prev := task.CurrentBudget()
	for i, d := range durations {
		got := task.ConsumeMinutes(d)
		if got != want[i] {
			t.Errorf("after completion %d: remaining = %d, want %d", i+1, got, want[i])
		}
		if got > prev {
			t.Errorf("remaining increased from %d to %d", prev, got)
		}
		if got < 0 {
			t.Errorf("remaining went negative: %d", got)
		}
		prev = got
	}
}

func TestCurrentBudget(t *testing.T) {
	testCases := []struct {
		name string
		task Task
		want int
	}{
		{name: "remaining wins", task: Task{EstimatedTime: intPtr(100), RemainingTime: intPtr(40)}, want: 40},
		{name: "falls back to estimate", task: Task{EstimatedTime: intPtr(100)}, want: 100},
		{name: "no times", task: Task{}, want: 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.task.CurrentBudget(); got != tc.want {
				t.Errorf("CurrentBudget() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestReestimate(t *testing.T) {
	testCases := []struct {
		name          string
		task          Task
		newEstimate   int
		wantEstimated int
		wantRemaining int
	}{
		{
			name:          "preserves progress ratio",
			task:          Task{EstimatedTime: intPtr(100), RemainingTime: intPtr(40)},
			newEstimate:   50,
			wantEstimated: 50,
			wantRemaining: 20,
		},
		{
			name:          "no prior times",
			task:          Task{},
			newEstimate:   45,
			wantEstimated: 45,
			wantRemaining: 45,
		},
		{
			name:          "estimate without remaining",
			task:          Task{EstimatedTime: intPtr(30)},
			newEstimate:   60,
			wantEstimated: 60,
			wantRemaining: 60,
		},
		{
			name:          "old estimate zero",
			task:          Task{EstimatedTime: intPtr(0), RemainingTime: intPtr(0)},
			newEstimate:   80,
			wantEstimated: 80,
			wantRemaining: 80,
		},
		{
			name:          "remaining above estimate clamps ratio",
			task:          Task{EstimatedTime: intPtr(20), RemainingTime: intPtr(30)},
			newEstimate:   40,
			wantEstimated: 40,
			wantRemaining: 40,
		},
		{
			name:          "rounds to nearest minute",
			task:          Task{EstimatedTime: intPtr(30), RemainingTime: intPtr(10)},
			newEstimate:   25,
			wantEstimated: 25,
			wantRemaining: 8,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			task := tc.task
			if err := task.Reestimate(tc.newEstimate); err != nil {
				t.Fatalf("Reestimate() error = %v", err)
			}
			if *task.EstimatedTime != tc.wantEstimated {
				t.Errorf("EstimatedTime = %d, want %d", *task.EstimatedTime, tc.wantEstimated)
			}
			if *task.RemainingTime != tc.wantRemaining {
				t.Errorf("RemainingTime = %d, want %d", *task.RemainingTime, tc.wantRemaining)
			}
		})
	}
}

func TestReestimateRejectsNegative(t *testing.T) {
	task := Task{EstimatedTime: intPtr(10), RemainingTime: intPtr(5)}
	if err := task.Reestimate(-1); !errors.Is(err, ErrValidation) {
		t.Fatalf("Reestimate() error = %v, want ErrValidation", err)
	}
	if *task.EstimatedTime != 10 || *task.RemainingTime != 5 {
		t.Error("task mutated on rejected re-estimate")
	}
}

package task

import "testing"

func TestStatus_CanTransitionTo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusPending, StatusCancelled, true},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusFailed, false},
		{StatusCompleted, StatusRunning, false},
		{StatusFailed, StatusPending, false},
		{StatusCancelled, StatusRunning, false},
		{StatusCompleted, StatusCancelled, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	t.Parallel()

	terminal := []Status{StatusCompleted, StatusFailed, StatusCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusRunning} {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
	}
}

package workflow

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	legal := map[State][]State{
		Pending:       {AutoReplied, ManualPending, Completed},
		AutoReplied:   {Completed},
		ManualPending: {Completed, Escalated},
		Escalated:     {Completed},
		Completed:     {ManualPending},
	}

	for _, from := range AllStates() {
		for _, to := range AllStates() {
			expected := false
			for _, s := range legal[from] {
				if s == to {
					expected = true
				}
			}
			if got := CanTransition(from, to); got != expected {
				t.Errorf("CanTransition(%s, %s) = %v, expected %v", from, to, got, expected)
			}
		}
	}
}

func TestCanTransition_UnknownState(t *testing.T) {
	if CanTransition("ARCHIVED", Completed) {
		t.Error("unknown source state should not transition")
	}
	if CanTransition(Pending, "ARCHIVED") {
		t.Error("unknown target state should not be reachable")
	}
}

func TestParseState(t *testing.T) {
	if s, err := ParseState("MANUAL_PENDING"); err != nil || s != ManualPending {
		t.Errorf("ParseState(MANUAL_PENDING) = %q, %v", s, err)
	}
	if _, err := ParseState("manual_pending"); err == nil {
		t.Error("ParseState should be case sensitive")
	}
}

func TestStateNext_ReturnsCopy(t *testing.T) {
	next := Pending.Next()
	next[0] = Escalated
	if !CanTransition(Pending, AutoReplied) {
		t.Error("mutating Next() result changed the transition table")
	}
}

func TestTransitionError(t *testing.T) {
	err := error(&TransitionError{ReviewID: 9, From: Completed, To: AutoReplied})
	if !errors.Is(err, ErrIllegalTransition) {
		t.Error("TransitionError should unwrap to ErrIllegalTransition")
	}
	expected := "review 9: illegal transition from COMPLETED to AUTO_REPLIED"
	if err.Error() != expected {
		t.Errorf("Error() = %q, expected %q", err.Error(), expected)
	}
}

func TestNextReminderDelay(t *testing.T) {
	tests := []struct {
		sent     int
		expected time.Duration
	}{
		{-1, 15 * time.Minute},
		{0, 15 * time.Minute},
		{1, 2 * time.Hour},
		{2, 6 * time.Hour},
		{3, 12 * time.Hour},
		{4, 24 * time.Hour},
		{5, 24 * time.Hour},
		{12, 24 * time.Hour},
	}

	for _, tt := range tests {
		if got := NextReminderDelay(tt.sent); got != tt.expected {
			t.Errorf("NextReminderDelay(%d) = %v, expected %v", tt.sent, got, tt.expected)
		}
	}
}

func TestFirstReminderDue(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	if got := FirstReminderDue(now); !got.Equal(now.Add(15 * time.Minute)) {
		t.Errorf("FirstReminderDue() = %v, expected +15m", got)
	}
}

package calls

import (
	"errors"
	"testing"
)

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusRinging, false},
		{StatusAnswered, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusBusy, true},
		{StatusNoAnswer, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("Terminal(%s) = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{"ringing to answered", StatusRinging, StatusAnswered, false},
		{"ringing to completed", StatusRinging, StatusCompleted, false},
		{"ringing to busy", StatusRinging, StatusBusy, false},
		{"ringing to no-answer", StatusRinging, StatusNoAnswer, false},
		{"answered to completed", StatusAnswered, StatusCompleted, false},
		{"answered to failed", StatusAnswered, StatusFailed, false},
		{"answered to busy rejected", StatusAnswered, StatusBusy, true},
		{"answered to ringing rejected", StatusAnswered, StatusRinging, true},
		{"self transition rejected", StatusRinging, StatusRinging, true},
		{"out of completed rejected", StatusCompleted, StatusAnswered, true},
		{"out of failed rejected", StatusFailed, StatusCompleted, true},
		{"unknown target rejected", StatusRinging, Status("bogus"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateTransition(%s, %s) error = %v, wantErr %v", tt.from, tt.to, err, tt.wantErr)
			}
			if err != nil {
				var te *TransitionError
				if !errors.As(err, &te) {
					t.Fatalf("error type = %T, want *TransitionError", err)
				}
				if te.From != tt.from || te.To != tt.to {
					t.Errorf("TransitionError = %v -> %v, want %v -> %v", te.From, te.To, tt.from, tt.to)
				}
			}
		})
	}
}

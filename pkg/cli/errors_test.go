package cli

import (
	"errors"
	"fmt"
	"testing"
)

func TestConfigError(t *testing.T) {
	err := NewConfigError("storage.driver", "unknown driver")

	expected := "config error in storage.driver: unknown driver"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestCommandError(t *testing.T) {
	inner := errors.New("database locked")
	err := NewCommandError("accounts add", inner)

	if err.Error() != "command accounts add failed: database locked" {
		t.Errorf("unexpected message: %q", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("CommandError should unwrap to its cause")
	}
	if NewCommandError("noop", nil) != nil {
		t.Error("nil cause should produce nil error")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitOK},
		{name: "generic", err: errors.New("boom"), want: ExitFailure},
		{name: "config", err: NewConfigError("f", "m"), want: ExitConfig},
		{name: "wrapped config", err: fmt.Errorf("load: %w", NewConfigError("f", "m")), want: ExitConfig},
		{name: "command", err: NewCommandError("run", errors.New("x")), want: ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

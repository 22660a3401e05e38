package xerrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapKeepsSentinel(t *testing.T) {
	err := Wrap(ErrNotFound, "load session")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected wrapped error to match ErrNotFound")
	}
	if err.Error() != "load session: resource not found" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if Wrap(nil, "noop") != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestIsAny(t *testing.T) {
	err := fmt.Errorf("refresh: %w", ErrInvalidRefreshToken)
	if !IsAny(err, ErrInvalidCredentials, ErrInvalidRefreshToken) {
		t.Fatalf("expected match")
	}
	if IsAny(err, ErrNotFound, ErrConflictingLink) {
		t.Fatalf("unexpected match")
	}
}

func TestValidation(t *testing.T) {
	err := Validation("Device ID is required.")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation")
	}
}

func TestNamedNotFound(t *testing.T) {
	for _, err := range []error{ErrUserNotFound, ErrSessionNotFound} {
		if !errors.Is(fmt.Errorf("lookup: %w", err), ErrNotFound) {
			t.Fatalf("%v must match ErrNotFound", err)
		}
	}
	if errors.Is(ErrUserNotFound, ErrSessionNotFound) {
		t.Fatal("subjects must stay distinct")
	}
}

package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppErrorMessage(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewAppErrorWithDetails(ErrNetwork, "analysis request failed", "status 502", cause)

	if got := err.Error(); got != "analysis request failed: status 502: connection reset" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to find the cause")
	}
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("document a.pdf: %w", NewAppError(ErrPatch, "redact failed", nil))

	if got := CodeOf(wrapped); got != ErrPatch {
		t.Errorf("CodeOf(wrapped) = %s, want %s", got, ErrPatch)
	}
	if got := CodeOf(errors.New("plain")); got != ErrInternal {
		t.Errorf("CodeOf(plain) = %s, want %s", got, ErrInternal)
	}
	if !IsCode(wrapped, ErrPatch) || IsCode(wrapped, ErrConfig) {
		t.Error("IsCode did not match the wrapped code exactly")
	}
}

func TestErrorf(t *testing.T) {
	err := Errorf(ErrInvalidInput, "bad policy %q", "most")
	if err.Code != ErrInvalidInput || err.Message != `bad policy "most"` {
		t.Errorf("Errorf built %+v", err)
	}
}

package bberrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(CodeCacheError, "failed to write blob", cause)

	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find wrapped cause")
	}
	code, ok := CodeOf(err)
	if !ok || code != CodeCacheError {
		t.Fatalf("expected CodeCacheError, got %v ok=%v", code, ok)
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if _, ok := CodeOf(errors.New("plain")); ok {
		t.Fatalf("expected CodeOf to fail on a plain error")
	}
}

func TestWithContextDoesNotMutateOriginal(t *testing.T) {
	base := New(CodeConflict, "duplicate file").WithContext("path", "/a")
	derived := base.WithContext("recipe", "zlib")

	if _, ok := base.Context["recipe"]; ok {
		t.Fatalf("WithContext must not mutate the receiver")
	}
	if derived.Context["path"] != "/a" || derived.Context["recipe"] != "zlib" {
		t.Fatalf("derived context missing merged keys: %+v", derived.Context)
	}
}

func TestRetryable(t *testing.T) {
	if !CodeTimeout.Retryable() {
		t.Fatalf("timeout should be retryable")
	}
	if CodeCycle.Retryable() {
		t.Fatalf("cycle should not be retryable")
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Wrap(CodeSandboxError, "exec failed", fmt.Errorf("exit status 1"))
	msg := err.Error()
	if msg == "" {
		t.Fatalf("expected non-empty message")
	}
}

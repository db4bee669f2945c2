package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIncludesInternal(t *testing.T) {
	internal := stdErrors.New("boom")
	err := Wrap(internal, "failed")

	if err.Error() != "failed: boom" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
	if !stdErrors.Is(err, internal) {
		t.Fatal("expected wrapped error to unwrap to the internal cause")
	}
}

func TestWithInternalCopies(t *testing.T) {
	base := New("TEST", "test", 400)
	with := base.WithInternal(stdErrors.New("oops"))

	if with == base {
		t.Fatal("expected WithInternal to return a copy")
	}
	if base.Internal != nil {
		t.Fatal("expected original error to remain unchanged")
	}
	if with.Internal == nil {
		t.Fatal("expected internal error to be set")
	}
}

func TestFromError(t *testing.T) {
	if out := FromError(ErrNotFound); out != ErrNotFound {
		t.Fatal("expected FromError to return the same AppError instance")
	}

	out := FromError(stdErrors.New("raw"))
	if out.Code != ErrInternalServer.Code {
		t.Fatalf("expected internal server code, got %s", out.Code)
	}
	if out.Internal == nil {
		t.Fatal("expected internal error to be attached")
	}
}

func TestSentinelMatchesThroughCopiesAndWrapping(t *testing.T) {
	conflict := NewConflict("request already accepted")
	if !stdErrors.Is(conflict, ErrConflict) {
		t.Fatal("expected conflict copy to match the sentinel")
	}

	wrapped := fmt.Errorf("service requests: accept: %w", conflict)
	if !stdErrors.Is(wrapped, ErrConflict) {
		t.Fatal("expected wrapped conflict to match the sentinel")
	}
	if stdErrors.Is(wrapped, ErrNotFound) {
		t.Fatal("conflict must not match not found")
	}
	if FromError(wrapped).StatusCode != http.StatusConflict {
		t.Fatal("expected FromError to surface the conflict status")
	}
}

func TestNewBadRequest(t *testing.T) {
	err := NewBadRequest("invalid payload")
	if err.Code != ErrBadRequest.Code {
		t.Fatalf("expected %s, got %s", ErrBadRequest.Code, err.Code)
	}
	if err.Message != "invalid payload" {
		t.Fatalf("unexpected message: %s", err.Message)
	}
	if err.StatusCode != ErrBadRequest.StatusCode {
		t.Fatalf("unexpected status: %d", err.StatusCode)
	}
}

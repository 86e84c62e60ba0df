package api

import (
	"errors"
	"fmt"
	"testing"
)

func TestFailureFromError_PreservesTaskFailureKind(t *testing.T) {
	err := &TaskFailedError{
		TaskID:  3,
		Details: FailureDetails{Kind: FailureRetryExhausted, Message: "gave up"},
	}

	f := FailureFromError(fmt.Errorf("wrapped: %w", err))
	if f.Kind != FailureRetryExhausted || f.Message != "gave up" {
		t.Fatalf("unexpected failure: %+v", f)
	}
}

func TestFailureFromError_NonDeterminism(t *testing.T) {
	err := &NonDeterminismError{TaskID: 1, Reason: "diverged"}

	f := FailureFromError(err)
	if f.Kind != FailureNonDeterminism {
		t.Fatalf("expected non-determinism kind, got %s", f.Kind)
	}
}

func TestFailureFromError_PlainErrorIsLogic(t *testing.T) {
	f := FailureFromError(errors.New("boom"))
	if f.Kind != FailureLogic || f.Message != "boom" {
		t.Fatalf("unexpected failure: %+v", f)
	}
}

func TestIsNonDeterminism(t *testing.T) {
	nd := &NonDeterminismError{TaskID: 2, Reason: "x"}
	if !IsNonDeterminism(fmt.Errorf("outer: %w", nd)) {
		t.Fatalf("expected wrapped NonDeterminismError to be detected")
	}
	if IsNonDeterminism(errors.New("other")) {
		t.Fatalf("plain error misdetected as non-determinism")
	}
}

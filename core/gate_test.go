package orchestration

import (
	"context"
	"errors"
	"testing"
	"time"
)

type gateKey struct{}

func TestGateCancelIsIdempotent(t *testing.T) {
	gate := NewGate(context.Background())

	if gate.Cancelled() {
		t.Fatalf("expected new gate to be open")
	}
	if !gate.Cancel() {
		t.Fatalf("expected first cancel to report the transition")
	}
	if gate.Cancel() {
		t.Fatalf("expected second cancel to be a no-op")
	}

	select {
	case <-gate.Done():
	default:
		t.Fatalf("expected done channel to be closed")
	}
	if cause := context.Cause(gate.Context()); !errors.Is(cause, ErrCancelled) {
		t.Fatalf("expected ErrCancelled cause, got %v", cause)
	}
}

func TestGateFollowsParentAndKeepsValues(t *testing.T) {
	parent, cancel := context.WithCancel(context.WithValue(context.Background(), gateKey{}, "value"))
	gate := NewGate(parent)

	if got := gate.Context().Value(gateKey{}); got != "value" {
		t.Fatalf("expected parent values to be kept, got %v", got)
	}

	cancel()
	select {
	case <-gate.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for parent cancellation to reach the gate")
	}
	if !gate.Cancelled() {
		t.Fatalf("expected gate to be cancelled by its parent")
	}
}

func TestGateReleaseDoesNotCountAsCancel(t *testing.T) {
	gate := NewGate(context.Background())
	gate.release()

	<-gate.Done()
	if gate.Cancelled() {
		t.Fatalf("expected released gate not to be cancelled")
	}
	if !gate.Cancel() {
		t.Fatalf("expected cancel after release to still transition once")
	}
}

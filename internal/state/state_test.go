package state

import (
	"errors"
	"testing"

	"github.com/danmuck/layermirror/internal/testutil/testlog"
	"github.com/google/go-cmp/cmp"
)

func TestStatusTransitions(t *testing.T) {
	testlog.Start(t)
	m := NewManager()
	var seen []Status
	m.Subscribe(func(s Status) { seen = append(seen, s) })

	if m.Status() != StatusDisabled {
		t.Fatalf("new manager should be disabled, got %s", m.Status())
	}
	m.Activate(3)
	if m.Status() != StatusDisabled {
		t.Fatalf("enabled but unfocused document should read disabled, got %s", m.Status())
	}
	m.SetActiveDocument(3)
	m.RenderStarted()
	m.RenderStarted()
	m.RenderFinished()
	m.RenderFinished()
	m.RenderFinished()
	m.Deactivate(3)

	want := []Status{StatusIdle, StatusActive, StatusIdle, StatusDisabled}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Fatalf("status transitions mismatch (-want +got):\n%s", diff)
	}
}

func TestActivateActiveRequiresFocus(t *testing.T) {
	testlog.Start(t)
	m := NewManager()
	if err := m.ActivateActive(); !errors.Is(err, ErrNoActiveDocument) {
		t.Fatalf("expected ErrNoActiveDocument, got %v", err)
	}
	if err := m.DeactivateActive(); !errors.Is(err, ErrNoActiveDocument) {
		t.Fatalf("expected ErrNoActiveDocument, got %v", err)
	}
	m.SetActiveDocument(7)
	if err := m.ActivateActive(); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if !m.Enabled() || !m.IsEnabled(7) || m.IsEnabled(8) {
		t.Fatalf("unexpected enabled flags")
	}
	if err := m.DeactivateActive(); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if m.Enabled() {
		t.Fatalf("document 7 should be disabled")
	}
}

func TestForgetClearsFocus(t *testing.T) {
	testlog.Start(t)
	m := NewManager()
	m.SetActiveDocument(1)
	m.Activate(1)
	m.Activate(2)
	m.Forget(1)
	if _, ok := m.ActiveDocument(); ok {
		t.Fatalf("focus should be cleared")
	}
	if m.IsEnabled(1) || !m.IsEnabled(2) {
		t.Fatalf("forget touched the wrong document")
	}
	m.SetActiveDocument(2)
	if m.Status() != StatusIdle {
		t.Fatalf("expected idle, got %s", m.Status())
	}
	m.Forget(2)
	if m.Status() != StatusDisabled || m.Enabled() {
		t.Fatalf("expected disabled, got %s", m.Status())
	}
}

func TestUnsubscribe(t *testing.T) {
	testlog.Start(t)
	m := NewManager()
	calls := 0
	cancel := m.Subscribe(func(Status) { calls++ })
	m.SetActiveDocument(1)
	m.Activate(1)
	cancel()
	m.Deactivate(1)
	if calls != 1 {
		t.Fatalf("calls=%d", calls)
	}
}

package core

import (
	"testing"
	"time"
)

// mustEvent waits for the next event of kind, discarding others.
func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	timeout := time.NewTimer(2 * time.Second)
	defer timeout.Stop()
	for {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				return ev
			}
		case <-timeout.C:
			t.Fatalf("expected event %s not received", kind)
			return nil
		}
	}
}

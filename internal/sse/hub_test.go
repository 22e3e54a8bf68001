package sse

import (
	"testing"
	"time"

	"github.com/repolens/repolens-backend/internal/logger"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() { log.Sync() })
	return log
}

func recvEvent(t *testing.T, ch <-chan LogEvent, timeout time.Duration) LogEvent {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for event")
	}
	return LogEvent{}
}

func TestHubBroadcastOrderingAndUnsubscribe(t *testing.T) {
	hub := NewHub(mustTestLogger(t))

	client := hub.Subscribe()
	if got := hub.SubscriberCount(); got != 1 {
		t.Fatalf("subscriber count: want=1 got=%d", got)
	}

	hub.Notify("scan started", LevelInfo)
	hub.Notify("scan finished", LevelSuccess)

	first := recvEvent(t, client.Outbound, time.Second)
	second := recvEvent(t, client.Outbound, time.Second)
	if first.Message != "scan started" || first.Level != LevelInfo {
		t.Fatalf("first event: got message=%q level=%q", first.Message, first.Level)
	}
	if second.Message != "scan finished" || second.Level != LevelSuccess {
		t.Fatalf("second event: got message=%q level=%q", second.Message, second.Level)
	}
	if first.Time.IsZero() {
		t.Fatalf("event time should be stamped")
	}
	if first.Origin != hub.Origin() {
		t.Fatalf("event origin: want=%s got=%s", hub.Origin(), first.Origin)
	}

	hub.Unsubscribe(client)
	if got := hub.SubscriberCount(); got != 0 {
		t.Fatalf("subscriber count after unsubscribe: want=0 got=%d", got)
	}
	select {
	case _, ok := <-client.Outbound:
		if ok {
			t.Fatalf("outbound should be closed after unsubscribe")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for outbound close")
	}

	// Unsubscribing twice must not panic.
	hub.Unsubscribe(client)
}

func TestHubDropsEventsForSlowConsumer(t *testing.T) {
	hub := NewHub(mustTestLogger(t))
	slow := hub.Subscribe()

	for i := 0; i < clientBuffer+10; i++ {
		hub.Notify("event", LevelInfo)
	}

	// Broadcast must not have blocked; the buffer holds at most clientBuffer.
	if got := len(slow.Outbound); got != clientBuffer {
		t.Fatalf("buffered events: want=%d got=%d", clientBuffer, got)
	}
	hub.Unsubscribe(slow)
}

func TestHubMirrorSeesLocalEventsOnly(t *testing.T) {
	hub := NewHub(mustTestLogger(t))

	var mirrored []LogEvent
	hub.SetMirror(func(ev LogEvent) { mirrored = append(mirrored, ev) })

	hub.Notify("local", LevelInfo)
	hub.Deliver(LogEvent{Message: "remote", Level: LevelInfo, Origin: "other"})

	if len(mirrored) != 1 {
		t.Fatalf("mirrored events: want=1 got=%d", len(mirrored))
	}
	if mirrored[0].Message != "local" {
		t.Fatalf("mirrored message: want=local got=%s", mirrored[0].Message)
	}
}

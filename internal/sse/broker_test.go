package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "status", Data: map[string]string{"state": "ready"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: status") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"state":"ready"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func drain(ch chan []byte) map[string]int {
	counts := make(map[string]int)
	for {
		select {
		case msg := <-ch:
			s := string(msg)
			switch {
			case strings.Contains(s, "event: "+EventGraphUpdated):
				counts[EventGraphUpdated]++
			case strings.Contains(s, "event: "+EventRefreshFailed):
				counts[EventRefreshFailed]++
			case strings.Contains(s, "event: "+EventRefreshed):
				counts[EventRefreshed]++
			}
		default:
			return counts
		}
	}
}

func TestPublishRefresh_GraphThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// First refresh should trigger graph.updated.
	b.PublishRefresh(RefreshEvent{SnapshotID: "a", Documents: 3})
	// Second refresh immediately should NOT trigger another graph.updated.
	b.PublishRefresh(RefreshEvent{SnapshotID: "b", Documents: 4})

	time.Sleep(50 * time.Millisecond)
	counts := drain(ch)

	if counts[EventRefreshed] != 2 {
		t.Errorf("refresh events = %d, want 2", counts[EventRefreshed])
	}
	if counts[EventGraphUpdated] != 1 {
		t.Errorf("graph events = %d, want 1 (throttled)", counts[EventGraphUpdated])
	}
}

func TestPublishRefresh_Failure(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishRefresh(RefreshEvent{Error: "registry: refresh: io error"})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: "+EventRefreshFailed) {
			t.Errorf("missing failure event in %q", s)
		}
		if !strings.Contains(s, `"error":"registry: refresh: io error"`) {
			t.Errorf("missing error text in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
	time.Sleep(50 * time.Millisecond)
	if counts := drain(ch); counts[EventGraphUpdated] != 0 {
		t.Errorf("failed refresh must not emit graph.updated")
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	// Start handler in background.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishRefresh(RefreshEvent{SnapshotID: "x", Documents: 1})
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: registry.refreshed") {
		t.Errorf("handler output missing event: %q", body)
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for range 70 {
		b.PublishRefresh(RefreshEvent{SnapshotID: "x"})
	}
	// If we reach here without deadlock, the test passes.
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: "status", Data: map[string]string{"state": "ready"}})
	b.PublishRefresh(RefreshEvent{SnapshotID: "x"})
}

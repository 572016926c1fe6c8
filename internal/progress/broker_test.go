// File path: internal/progress/broker_test.go
package progress

import (
	"testing"
	"time"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case event, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed before event")
		}
		return event
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return Event{}
}

func TestSubscribeReplaysLatestSnapshot(t *testing.T) {
	broker := NewBroker()
	broker.Publish(Event{RunID: "run-1", Phase: "loading", Percent: 10})
	broker.Publish(Event{RunID: "run-1", Phase: "embedding", Percent: 45})

	ch, cancel := broker.Subscribe("run-1")
	defer cancel()
	got := receive(t, ch)
	if got.Phase != "embedding" || got.Percent != 45 {
		t.Fatalf("expected latest snapshot replayed, got %+v", got)
	}
}

func TestSubscribersReceiveLiveEvents(t *testing.T) {
	broker := NewBroker()
	ch, cancel := broker.Subscribe("run-1")
	defer cancel()

	broker.Publish(Event{RunID: "run-1", Phase: "loading", Percent: 5})
	if got := receive(t, ch); got.Percent != 5 {
		t.Fatalf("expected live event, got %+v", got)
	}
}

func TestTerminalEventClosesSubscribers(t *testing.T) {
	broker := NewBroker()
	ch, cancel := broker.Subscribe("run-1")
	defer cancel()

	broker.Publish(Event{RunID: "run-1", Phase: "finalizing", Percent: 100, Done: true, Success: true})
	got := receive(t, ch)
	if !got.Done || !got.Success {
		t.Fatalf("expected terminal event, got %+v", got)
	}
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel closed after terminal event")
	}
}

func TestSubscribeAfterTerminalDeliversAndCloses(t *testing.T) {
	broker := NewBroker()
	broker.Publish(Event{RunID: "run-1", Percent: 100, Done: true, Success: true})

	ch, cancel := broker.Subscribe("run-1")
	defer cancel()
	got := receive(t, ch)
	if !got.Done {
		t.Fatalf("expected replayed terminal event, got %+v", got)
	}
	if _, ok := <-ch; ok {
		t.Fatalf("expected immediate close for finished run")
	}
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	broker := NewBroker()
	_, cancel := broker.Subscribe("run-1")
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*4; i++ {
			broker.Publish(Event{RunID: "run-1", Percent: i})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on a slow subscriber")
	}
	if last, ok := broker.Last("run-1"); !ok || last.Percent != subscriberBuffer*4-1 {
		t.Fatalf("expected last snapshot retained, got %+v (%v)", last, ok)
	}
}

func TestCancelIsSafeAfterTerminal(t *testing.T) {
	broker := NewBroker()
	ch, cancel := broker.Subscribe("run-1")
	broker.Publish(Event{RunID: "run-1", Done: true})
	receive(t, ch)
	// channel already closed by the terminal publish
	cancel()
	cancel()
}

func TestForgetDropsTopic(t *testing.T) {
	broker := NewBroker()
	broker.Publish(Event{RunID: "run-1", Percent: 50})
	broker.Forget("run-1")
	if _, ok := broker.Last("run-1"); ok {
		t.Fatalf("expected topic forgotten")
	}
}

// File path: internal/progress/broker.go
package progress

import (
	"sync"
)

// Event is one progress update for a run. Terminal events carry Done plus
// the outcome; intermediate events carry phase and counters.
type Event struct {
	RunID     string `json:"run_id"`
	Phase     string `json:"phase"`
	Percent   int    `json:"percent"`
	Generated int    `json:"generated"`
	Rejected  int    `json:"rejected"`
	Done      bool   `json:"done,omitempty"`
	Success   bool   `json:"success,omitempty"`
	Message   string `json:"message,omitempty"`
}

const subscriberBuffer = 16

// Broker fans progress events out to per-run subscribers. Publishes never
// block: a subscriber that falls behind loses intermediate events but always
// receives the latest snapshot on subscribe and the terminal event before
// its channel closes.
type Broker struct {
	mu   sync.Mutex
	runs map[string]*runTopic
}

type runTopic struct {
	last        *Event
	terminal    bool
	subscribers map[chan Event]struct{}
}

func NewBroker() *Broker {
	return &Broker{runs: make(map[string]*runTopic)}
}

// Subscribe registers a listener for a run. The latest known event is
// replayed immediately so late subscribers see current state; if the run
// already finished the channel delivers the terminal event and closes.
func (b *Broker) Subscribe(runID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	topic, ok := b.runs[runID]
	if !ok {
		topic = &runTopic{subscribers: make(map[chan Event]struct{})}
		b.runs[runID] = topic
	}
	if topic.last != nil {
		ch <- *topic.last
	}
	if topic.terminal {
		close(ch)
		b.mu.Unlock()
		return ch, func() {}
	}
	topic.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		current, ok := b.runs[runID]
		if !ok {
			return
		}
		if _, subscribed := current.subscribers[ch]; subscribed {
			delete(current.subscribers, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber of the run without
// blocking. A terminal event closes all subscriber channels and marks the
// topic finished for future subscribers.
func (b *Broker) Publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	topic, ok := b.runs[event.RunID]
	if !ok {
		topic = &runTopic{subscribers: make(map[chan Event]struct{})}
		b.runs[event.RunID] = topic
	}
	if topic.terminal {
		return
	}
	snapshot := event
	topic.last = &snapshot
	for ch := range topic.subscribers {
		select {
		case ch <- event:
		default:
			// slow subscriber, it will catch up from a later event
		}
	}
	if event.Done {
		topic.terminal = true
		for ch := range topic.subscribers {
			close(ch)
		}
		topic.subscribers = make(map[chan Event]struct{})
	}
}

// Last returns the latest event published for a run, if any.
func (b *Broker) Last(runID string) (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	topic, ok := b.runs[runID]
	if !ok || topic.last == nil {
		return Event{}, false
	}
	return *topic.last, true
}

// Forget drops a finished run's topic. Callers use it to bound memory after
// terminal events have been consumed.
func (b *Broker) Forget(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	topic, ok := b.runs[runID]
	if !ok {
		return
	}
	for ch := range topic.subscribers {
		close(ch)
	}
	delete(b.runs, runID)
}

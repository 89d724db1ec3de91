package event

import (
	"sync"

	"go.uber.org/zap"
)

// Recorder is a Sink that keeps every event in memory. Tests use it to
// observe what a component published.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Named returns the recorded events with the given event name.
func (r *Recorder) Named(name string) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.EventName() == name {
			out = append(out, ev)
		}
	}
	return out
}

// LogSink writes events to a logger at debug level. It is wired next to the
// UI broadcaster so the event stream is visible in daemon logs.
type LogSink struct {
	Logger *zap.SugaredLogger
}

func (s LogSink) Emit(ev Event) {
	s.Logger.Debugw("emit", "event", ev.EventName(), "payload", ev)
}

package engine

import (
	"sync"
	"time"
)

type Level int

const (
	Info Level = iota
	Success
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Event is one log entry for the shell.
type Event struct {
	Level   Level
	Message string
	Time    time.Time
}

// Sink receives events and the current status line. Learning runs in the
// background, so implementations must be safe for concurrent use.
type Sink interface {
	Emit(Event)
	Status(string)
}

type discard struct{}

func (discard) Emit(Event)    {}
func (discard) Status(string) {}

// Recorder keeps everything it receives. Handy in tests and for replaying a
// session.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	status string
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Status(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = s
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) CurrentStatus() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

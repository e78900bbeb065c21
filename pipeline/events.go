package pipeline

import (
	"sync"
	"time"
)

// EventSink is the display boundary. Workers call it from their own
// goroutines, so implementations must only enqueue and never touch widgets
// directly.
type EventSink interface {
	Status(text string)
	Line(text string, clearFirst bool)
	ButtonLabel(text string)
	State(s State)
}

type EventKind int

const (
	EventStatus EventKind = iota
	EventLine
	EventButton
	EventState
)

type Event struct {
	Kind  EventKind
	Text  string
	Clear bool
	State State
}

// Queue is an unbounded EventSink. A UI loop drains it with Drain after
// each Notify signal.
type Queue struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

func (q *Queue) push(e Event) {
	q.mu.Lock()
	q.events = append(q.events, e)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue) Status(text string)                { q.push(Event{Kind: EventStatus, Text: text}) }
func (q *Queue) Line(text string, clearFirst bool) { q.push(Event{Kind: EventLine, Text: text, Clear: clearFirst}) }
func (q *Queue) ButtonLabel(text string)           { q.push(Event{Kind: EventButton, Text: text}) }
func (q *Queue) State(s State)                     { q.push(Event{Kind: EventState, State: s}) }

// Notify fires at least once after any push since the last receive.
func (q *Queue) Notify() <-chan struct{} { return q.notify }

// Drain removes and returns everything queued so far, oldest first.
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = nil
	return out
}

// View is the display state produced by applying events in order. Both UI
// front ends render from it.
type View struct {
	Status string
	Text   string
	Button string
	State  State
	Lines  int
}

func NewView() View {
	return View{Status: "Ready", Button: LabelStart, State: Idle}
}

func (v *View) Apply(e Event) {
	switch e.Kind {
	case EventStatus:
		v.Status = e.Text
	case EventLine:
		if e.Clear {
			v.Text = ""
			v.Lines = 0
		} else {
			v.Lines++
		}
		v.Text += e.Text
	case EventButton:
		v.Button = e.Text
	case EventState:
		v.State = e.State
	}
}

// ViewSink keeps a View current under a lock. Headless front ends and
// tests read it with Snapshot.
type ViewSink struct {
	mu   sync.Mutex
	view View
	q    *Queue
}

func NewViewSink() *ViewSink {
	return &ViewSink{view: NewView(), q: NewQueue()}
}

func (s *ViewSink) apply(e Event) {
	s.mu.Lock()
	s.view.Apply(e)
	s.mu.Unlock()
	s.q.push(e)
}

func (s *ViewSink) Status(text string)                { s.apply(Event{Kind: EventStatus, Text: text}) }
func (s *ViewSink) Line(text string, clearFirst bool) { s.apply(Event{Kind: EventLine, Text: text, Clear: clearFirst}) }
func (s *ViewSink) ButtonLabel(text string)           { s.apply(Event{Kind: EventButton, Text: text}) }
func (s *ViewSink) State(st State)                    { s.apply(Event{Kind: EventState, State: st}) }

func (s *ViewSink) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Events exposes the raw event stream in addition to the folded view.
func (s *ViewSink) Events() *Queue { return s.q }

// WaitFor polls until cond holds for the current view or timeout elapses.
func (s *ViewSink) WaitFor(timeout time.Duration, cond func(View) bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if cond(s.Snapshot()) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

package karaoke

import "sync"

// Event is a progress notification for one utterance.
type Event interface {
	// UtteranceID identifies the utterance the event belongs to.
	UtteranceID() string
}

// BoundaryEvent reports that the engine started voicing the word at
// CharIndex.
type BoundaryEvent struct {
	Utterance string
	CharIndex int
}

// UtteranceID implements Event.
func (e BoundaryEvent) UtteranceID() string { return e.Utterance }

// TimeUpdateEvent is a playback tick from decoded audio.
type TimeUpdateEvent struct {
	Utterance string
	State     PlaybackState
}

// UtteranceID implements Event.
func (e TimeUpdateEvent) UtteranceID() string { return e.Utterance }

// Source delivers progress events. The channel is closed when the source
// has nothing more to deliver.
type Source interface {
	Events() <-chan Event
}

// Session holds the highlight of a single utterance. Each event replaces
// the previous span; events are not reordered or buffered. Once stopped or
// finished, the session ignores all further events.
type Session struct {
	id   string
	text string
	mode Mode

	mu      sync.Mutex
	current Span
	active  bool
	closed  bool
	updates int
}

// NewSession starts a session for utterance id over text, which must be the
// exact string the engine is speaking.
func NewSession(id, text string, mode Mode) *Session {
	return &Session{
		id:      id,
		text:    text,
		mode:    mode,
		current: Span{Text: text},
		active:  true,
	}
}

// ID returns the utterance id.
func (s *Session) ID() string { return s.id }

// Text returns the base text of the session.
func (s *Session) Text() string { return s.text }

// Mode returns how the session derives highlights.
func (s *Session) Mode() Mode { return s.mode }

// Apply feeds one event into the session and reports whether the highlight
// changed. Events for other utterances, events that do not match the
// session's mode, and events after Stop are dropped.
func (s *Session) Apply(ev Event) bool {
	if ev == nil || ev.UtteranceID() != s.id {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	var span Span
	switch e := ev.(type) {
	case BoundaryEvent:
		if s.mode != ModeExact {
			return false
		}
		span = BoundarySpan(s.text, e.CharIndex)

	case TimeUpdateEvent:
		if s.mode != ModeApproximate {
			return false
		}
		var ok bool
		if span, ok = EstimateSpan(s.text, e.State); !ok {
			return false
		}

	default:
		return false
	}

	s.current = span
	s.updates++
	return true
}

// Stop deactivates the session and resets its span. It is safe to call more
// than once.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.active = false
	s.current = Span{Text: s.text}
}

// Finish deactivates the session at the end of the utterance but keeps the
// last span visible.
func (s *Session) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.active = false
}

// Highlight returns the current highlight.
func (s *Session) Highlight() Highlight {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Highlight{Span: s.current, Mode: s.mode, Active: s.active}
}

// Updates returns how many events changed the highlight.
func (s *Session) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

// Drain applies events from src until the channel closes or stop is
// closed, calling fn after every change. It returns when either happens.
func (s *Session) Drain(src Source, stop <-chan struct{}, fn func(Highlight)) {
	events := src.Events()
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if s.Apply(ev) && fn != nil {
				fn(s.Highlight())
			}
		}
	}
}

package stream

import "iter"

// Stream is a lazy, finite, single-pass sequence of events. Consuming a
// stream exhausts it; callers that need more than one pass must materialize
// it with Events first.
//
// Abandoning a stream before exhaustion is always safe; Close releases
// whatever the producer still holds.
type Stream struct {
	next func() (Event, bool)
	stop func()
	err  func() error
}

// New wraps a pull function in a Stream.
func New(next func() (Event, bool)) *Stream {
	return &Stream{next: next}
}

// FromSlice returns a stream over the given events.
func FromSlice(events []Event) *Stream {
	i := 0
	return &Stream{next: func() (Event, bool) {
		if i >= len(events) {
			return Event{}, false
		}
		ev := events[i]
		i++
		return ev, true
	}}
}

// Empty returns a stream that yields nothing.
func Empty() *Stream {
	return FromSlice(nil)
}

// Generate runs fn as a suspended producer: each yield hands one event to
// the consumer and blocks until the next pull. The error fn returns is
// reported by Err once the stream is exhausted, so transformation errors
// surface to the consumer instead of vanishing.
func Generate(fn func(yield func(Event) bool) error) *Stream {
	var genErr error
	next, stop := iter.Pull(func(yield func(Event) bool) {
		genErr = fn(yield)
	})
	return &Stream{
		next: next,
		stop: stop,
		err:  func() error { return genErr },
	}
}

// Next returns the next event, or false when the stream is exhausted or
// failed. Check Err after a false return.
func (s *Stream) Next() (Event, bool) {
	return s.next()
}

// Err returns the error that terminated the stream, if any. It is only
// meaningful after Next has returned false.
func (s *Stream) Err() error {
	if s.err == nil {
		return nil
	}
	return s.err()
}

// Close abandons the stream. It is safe to call at any point, including
// after exhaustion.
func (s *Stream) Close() {
	if s.stop != nil {
		s.stop()
	}
}

// Events drains the stream into a slice.
func (s *Stream) Events() ([]Event, error) {
	var out []Event
	for {
		ev, ok := s.Next()
		if !ok {
			return out, s.Err()
		}
		out = append(out, ev)
	}
}

// Pipe feeds every remaining event of s to yield, stopping early when yield
// returns false, and returns the stream error. It is the building block for
// writing stream transformers with Generate.
func (s *Stream) Pipe(yield func(Event) bool) error {
	for {
		ev, ok := s.Next()
		if !ok {
			return s.Err()
		}
		if !yield(ev) {
			return nil
		}
	}
}

// Subtree consumes events from s until the EndElement matching an already
// consumed StartElement is seen, yielding every event up to but excluding
// that end event, which is returned. The caller has already read the start
// event; depth bookkeeping starts at one.
func (s *Stream) Subtree(yield func(Event) bool) (Event, error) {
	depth := 1
	for {
		ev, ok := s.Next()
		if !ok {
			return Event{}, s.Err()
		}
		switch ev.Kind {
		case StartElement:
			depth++
		case EndElement:
			depth--
			if depth == 0 {
				return ev, nil
			}
		}
		if !yield(ev) {
			return Event{}, nil
		}
	}
}

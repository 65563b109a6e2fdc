// Package marker maintains the bounded, ordered set of command-boundary
// markers built from decoded shell-integration events, and resolves the
// command/output line ranges those markers delimit.
package marker

import (
	"errors"
	"sync"
	"time"

	"github.com/Gaurav-Gosain/shellmark/internal/config"
	"github.com/Gaurav-Gosain/shellmark/internal/osc"
)

// ErrNotFound is returned when a marker id no longer resolves. Eviction is a
// normal occurrence under load, so callers must tolerate this without
// treating it as a fault.
var ErrNotFound = errors.New("marker not found")

// OpaqueID is a handle into a render-layer decoration object. The store never
// interprets it; it only guarantees the owning callbacks fire exactly once
// per marker.
type OpaqueID uint64

// Callbacks let a render layer own decoration objects without the store
// depending on its types. Both are optional. Callbacks are invoked outside
// the store's lock, so they may re-enter it (History, Ranges, Get).
type Callbacks struct {
	// Created is invoked when a marker is added. A returned handle is
	// attached to the marker and passed back on release.
	Created func(m Marker) (OpaqueID, bool)
	// Released is invoked exactly once when a marker leaves the store
	// (FIFO eviction, trim, or teardown).
	Released func(m Marker)
}

// Marker is one detected command boundary.
type Marker struct {
	ID        uint64
	StartLine int
	// CommandStartLine is set from OSC 133;B when the shell emits it; it
	// refines where typed command text begins on the prompt line.
	CommandStartLine *int
	// OutputStartLine is set by the first OSC 133;C for this marker.
	// Invariant: when set, it is never resolved below StartLine+1.
	OutputStartLine *int
	// ExitCode is set by OSC 133;D. Unset while the command is running.
	ExitCode     *int
	CreatedAt    time.Time
	RenderHandle *OpaqueID
}

// HasOutput reports whether an output-start event was observed.
func (m Marker) HasOutput() bool {
	return m.OutputStartLine != nil
}

// Range is an inclusive [Start, End] span of absolute line numbers.
// A range with End < Start is empty.
type Range struct {
	Start int
	End   int
}

// Empty reports whether the range covers no lines.
func (r Range) Empty() bool {
	return r.End < r.Start
}

// Summary is one entry of the navigable command history.
type Summary struct {
	MarkerID  uint64
	Line      int
	ExitCode  *int
	Timestamp time.Time
	HasOutput bool
}

// Store is an insertion-ordered, bounded collection of markers. It is safe
// for concurrent use, though in practice all mutation happens on the
// session's single stream goroutine; the lock exists for readers (history,
// range queries) arriving from other goroutines.
type Store struct {
	mu      sync.Mutex
	markers []*Marker
	max     int
	nextID  uint64
	current *Marker
	cb      Callbacks

	// now is overridable for tests.
	now func() time.Time
}

// NewStore creates a store with the given capacity, clamped to the
// configured bounds.
func NewStore(maxMarkers int, cb Callbacks) *Store {
	return &Store{
		markers: make([]*Marker, 0, 64),
		max:     config.ClampMaxMarkers(maxMarkers),
		cb:      cb,
		now:     time.Now,
	}
}

// OnEvent applies one decoded event to the store. Events must arrive in
// stream order; marker finalization and first-wins tie-breaks depend on it.
func (s *Store) OnEvent(ev osc.Event) {
	var created *Marker
	var released []Marker

	s.mu.Lock()
	switch ev.Kind {
	case osc.EventPromptStart:
		// A new prompt always finalizes the previous current marker: it
		// stops listening for output-start and command-end events.
		s.current = nil
		m := &Marker{
			ID:        s.nextID,
			StartLine: ev.Line,
			CreatedAt: s.now(),
		}
		s.nextID++
		s.markers = append(s.markers, m)
		s.current = m
		released = s.evictLocked()
		created = m

	case osc.EventCommandStart:
		if s.current != nil && s.current.CommandStartLine == nil {
			line := ev.Line
			s.current.CommandStartLine = &line
		}

	case osc.EventCommandOutputStart:
		// First wins: shell hooks may re-fire C for the same command.
		if s.current != nil && s.current.OutputStartLine == nil {
			line := max(ev.Line, s.current.StartLine)
			s.current.OutputStartLine = &line
		}

	case osc.EventCommandEnd:
		if s.current != nil {
			code := ev.ExitCode
			s.current.ExitCode = &code
			s.current = nil
		}
	}
	s.mu.Unlock()

	if created != nil && s.cb.Created != nil {
		if h, ok := s.cb.Created(*created); ok {
			s.attachHandle(created.ID, h)
		}
	}
	s.fireReleased(released)
}

// evictLocked drops oldest markers until the store fits its capacity,
// returning copies whose release callbacks the caller fires after unlocking.
func (s *Store) evictLocked() []Marker {
	var out []Marker
	for len(s.markers) > s.max {
		oldest := s.markers[0]
		s.markers = s.markers[1:]
		if oldest == s.current {
			s.current = nil
		}
		out = append(out, *oldest)
		oldest.RenderHandle = nil
	}
	return out
}

// attachHandle binds a freshly created render handle to a live marker. If
// the marker was already released (teardown racing the stream goroutine),
// the handle is handed straight back so it is still released exactly once.
func (s *Store) attachHandle(id uint64, h OpaqueID) {
	s.mu.Lock()
	for _, m := range s.markers {
		if m.ID == id {
			handle := h
			m.RenderHandle = &handle
			s.mu.Unlock()
			return
		}
	}
	s.mu.Unlock()

	if s.cb.Released != nil {
		handle := h
		s.cb.Released(Marker{ID: id, RenderHandle: &handle})
	}
}

// fireReleased hands released markers back to the render layer, outside the
// store lock.
func (s *Store) fireReleased(released []Marker) {
	if s.cb.Released == nil {
		return
	}
	for _, m := range released {
		s.cb.Released(m)
	}
}

// Get returns a copy of the marker with the given id.
func (s *Store) Get(id uint64) (Marker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.markers {
		if m.ID == id {
			return *m, nil
		}
	}
	return Marker{}, ErrNotFound
}

// Len returns the number of retained markers.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.markers)
}

// Markers returns a copy of all retained markers, oldest first.
func (s *Store) Markers() []Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Marker, len(s.markers))
	for i, m := range s.markers {
		out[i] = *m
	}
	return out
}

// History returns up to limit summaries, most recent first. limit <= 0 means
// no limit.
func (s *Store) History(limit int) []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.markers)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Summary, 0, n)
	for i := len(s.markers) - 1; i >= 0 && len(out) < n; i-- {
		m := s.markers[i]
		out = append(out, Summary{
			MarkerID:  m.ID,
			Line:      m.StartLine,
			ExitCode:  m.ExitCode,
			Timestamp: m.CreatedAt,
			HasOutput: m.OutputStartLine != nil,
		})
	}
	return out
}

// Ranges resolves the command and output line ranges for a marker.
// lastLine is the last line currently held by the text buffer; it bounds the
// output range for the newest marker.
//
// Tie-breaks: output can never start on or before the marker's own prompt
// line, and a marker's output ends the line before the next marker's prompt.
func (s *Store) Ranges(id uint64, lastLine int) (command, output Range, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, m := range s.markers {
		if m.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Range{}, Range{}, ErrNotFound
	}
	m := s.markers[idx]

	outStart := m.StartLine + 1
	if m.OutputStartLine != nil {
		outStart = max(*m.OutputStartLine, m.StartLine+1)
	}

	outEnd := lastLine
	if idx+1 < len(s.markers) {
		outEnd = s.markers[idx+1].StartLine - 1
	}

	command = Range{Start: m.StartLine, End: outStart - 1}
	output = Range{Start: outStart, End: outEnd}
	return command, output, nil
}

// AdjustForTrim shifts marker lines down after the text buffer trimmed
// linesRemoved lines off its head. Markers that fall before the new origin
// are released.
func (s *Store) AdjustForTrim(linesRemoved int) {
	if linesRemoved <= 0 {
		return
	}
	var released []Marker
	s.mu.Lock()
	n := 0
	for _, m := range s.markers {
		m.StartLine -= linesRemoved
		if m.CommandStartLine != nil {
			*m.CommandStartLine -= linesRemoved
		}
		if m.OutputStartLine != nil {
			*m.OutputStartLine -= linesRemoved
		}
		if m.StartLine >= 0 {
			s.markers[n] = m
			n++
			continue
		}
		if m == s.current {
			s.current = nil
		}
		released = append(released, *m)
		m.RenderHandle = nil
	}
	s.markers = s.markers[:n]
	s.mu.Unlock()

	s.fireReleased(released)
}

// Close releases every marker. The store is empty afterwards; it remains
// usable, though session teardown is the only expected caller.
func (s *Store) Close() {
	var released []Marker
	s.mu.Lock()
	for _, m := range s.markers {
		released = append(released, *m)
		m.RenderHandle = nil
	}
	s.markers = s.markers[:0]
	s.current = nil
	s.mu.Unlock()

	s.fireReleased(released)
}

package marker

import (
	"errors"
	"testing"

	"github.com/Gaurav-Gosain/shellmark/internal/osc"
)

func promptAt(line int) osc.Event {
	return osc.Event{Kind: osc.EventPromptStart, Line: line}
}

func outputAt(line int) osc.Event {
	return osc.Event{Kind: osc.EventCommandOutputStart, Line: line}
}

func endWith(line, code int) osc.Event {
	return osc.Event{Kind: osc.EventCommandEnd, Line: line, ExitCode: code}
}

func TestSingleCommandLifecycle(t *testing.T) {
	s := NewStore(0, Callbacks{})

	// ...\e]133;A BEL / $ ls\n \e]133;C BEL / file.txt\n \e]133;D;0 BEL
	s.OnEvent(promptAt(0))
	s.OnEvent(outputAt(1))
	s.OnEvent(endWith(2, 0))

	markers := s.Markers()
	if len(markers) != 1 {
		t.Fatalf("store holds %d markers, want 1", len(markers))
	}
	m := markers[0]
	if m.StartLine != 0 {
		t.Errorf("StartLine = %d, want 0", m.StartLine)
	}
	if m.OutputStartLine == nil || *m.OutputStartLine != 1 {
		t.Errorf("OutputStartLine = %v, want 1", m.OutputStartLine)
	}
	if m.ExitCode == nil || *m.ExitCode != 0 {
		t.Errorf("ExitCode = %v, want 0", m.ExitCode)
	}

	command, output, err := s.Ranges(m.ID, 2)
	if err != nil {
		t.Fatalf("Ranges: %v", err)
	}
	if command.Start != 0 || command.End != 0 {
		t.Errorf("command range = %+v, want [0,0]", command)
	}
	if output.Start != 1 || output.End != 2 {
		t.Errorf("output range = %+v, want [1,2]", output)
	}
}

func TestFirstOutputStartWins(t *testing.T) {
	s := NewStore(0, Callbacks{})
	s.OnEvent(promptAt(0))
	s.OnEvent(outputAt(3))
	s.OnEvent(outputAt(7)) // re-triggered shell hook: must be a no-op

	m := s.Markers()[0]
	if m.OutputStartLine == nil || *m.OutputStartLine != 3 {
		t.Errorf("OutputStartLine = %v, want 3 (first wins)", m.OutputStartLine)
	}
}

func TestPromptFinalizesPreviousMarker(t *testing.T) {
	s := NewStore(0, Callbacks{})
	s.OnEvent(promptAt(0))
	s.OnEvent(promptAt(5))
	// Events for the old command must not reach the finalized marker.
	s.OnEvent(outputAt(6))
	s.OnEvent(endWith(7, 1))

	markers := s.Markers()
	if len(markers) != 2 {
		t.Fatalf("store holds %d markers, want 2", len(markers))
	}
	if markers[0].OutputStartLine != nil || markers[0].ExitCode != nil {
		t.Errorf("finalized marker mutated: %+v", markers[0])
	}
	if markers[1].OutputStartLine == nil || markers[1].ExitCode == nil {
		t.Errorf("current marker missed events: %+v", markers[1])
	}
}

func TestOutputNeverStartsOnPromptLine(t *testing.T) {
	s := NewStore(0, Callbacks{})
	s.OnEvent(promptAt(4))
	s.OnEvent(outputAt(4)) // C on the prompt line itself

	_, output, err := s.Ranges(s.Markers()[0].ID, 10)
	if err != nil {
		t.Fatalf("Ranges: %v", err)
	}
	if output.Start != 5 {
		t.Errorf("output.Start = %d, want 5 (never on the prompt line)", output.Start)
	}
}

func TestFIFOEvictionKeepsMostRecent(t *testing.T) {
	released := []uint64{}
	s := NewStore(20, Callbacks{
		Released: func(m Marker) { released = append(released, m.ID) },
	})

	const n = 50
	for i := range n {
		s.OnEvent(promptAt(i))
	}

	if s.Len() != 20 {
		t.Fatalf("store holds %d markers, want 20", s.Len())
	}
	markers := s.Markers()
	for i, m := range markers {
		if want := uint64(n - 20 + i); m.ID != want {
			t.Errorf("marker[%d].ID = %d, want %d (most recent retained)", i, m.ID, want)
		}
	}
	if len(released) != n-20 {
		t.Errorf("%d markers released, want %d", len(released), n-20)
	}
	for i, id := range released {
		if id != uint64(i) {
			t.Errorf("released[%d] = %d, want %d (oldest first)", i, id, i)
		}
	}
}

func TestRenderHandleReleasedExactlyOnce(t *testing.T) {
	handles := map[OpaqueID]int{}
	var next OpaqueID
	s := NewStore(20, Callbacks{
		Created: func(m Marker) (OpaqueID, bool) {
			next++
			return next, true
		},
		Released: func(m Marker) {
			if m.RenderHandle != nil {
				handles[*m.RenderHandle]++
			}
		},
	})

	for i := range 25 {
		s.OnEvent(promptAt(i))
	}
	s.Close()
	s.Close() // teardown twice must not double-release

	if len(handles) != 25 {
		t.Fatalf("%d handles released, want 25", len(handles))
	}
	for h, count := range handles {
		if count != 1 {
			t.Errorf("handle %d released %d times, want exactly once", h, count)
		}
	}
}

// TestCallbacksMayReenterStore drives creation, eviction, trim and teardown
// with callbacks that call back into the store. Re-entry must not deadlock:
// a render layer commonly queries history or ranges while reacting to a
// release.
func TestCallbacksMayReenterStore(t *testing.T) {
	var s *Store
	createdSeen := 0
	releasedSeen := 0
	s = NewStore(20, Callbacks{
		Created: func(m Marker) (OpaqueID, bool) {
			createdSeen++
			_ = s.Len()
			_ = s.History(5)
			return OpaqueID(m.ID), true
		},
		Released: func(m Marker) {
			releasedSeen++
			if _, _, err := s.Ranges(m.ID, 100); !errors.Is(err, ErrNotFound) {
				t.Errorf("released marker %d still resolves", m.ID)
			}
		},
	})

	for i := range 30 {
		s.OnEvent(promptAt(i))
	}
	s.AdjustForTrim(15)
	s.Close()

	if createdSeen != 30 {
		t.Errorf("Created fired %d times, want 30", createdSeen)
	}
	if releasedSeen != 30 {
		t.Errorf("Released fired %d times, want 30", releasedSeen)
	}
}

func TestEvictedMarkerIsNotFound(t *testing.T) {
	s := NewStore(20, Callbacks{})
	for i := range 30 {
		s.OnEvent(promptAt(i))
	}

	// Marker 0 was evicted; a UI still holding its id gets not-found, not a
	// crash.
	if _, err := s.Get(0); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(0) err = %v, want ErrNotFound", err)
	}
	if _, _, err := s.Ranges(0, 100); !errors.Is(err, ErrNotFound) {
		t.Errorf("Ranges(0) err = %v, want ErrNotFound", err)
	}
}

func TestHistoryMostRecentFirst(t *testing.T) {
	s := NewStore(0, Callbacks{})
	s.OnEvent(promptAt(0))
	s.OnEvent(outputAt(1))
	s.OnEvent(endWith(2, 0))
	s.OnEvent(promptAt(3))
	s.OnEvent(outputAt(4))
	s.OnEvent(endWith(5, 2))
	s.OnEvent(promptAt(6)) // still running

	history := s.History(2)
	if len(history) != 2 {
		t.Fatalf("history has %d entries, want 2", len(history))
	}
	if history[0].Line != 6 || history[0].ExitCode != nil || history[0].HasOutput {
		t.Errorf("history[0] = %+v, want running command at line 6", history[0])
	}
	if history[1].Line != 3 || history[1].ExitCode == nil || *history[1].ExitCode != 2 {
		t.Errorf("history[1] = %+v, want exit 2 at line 3", history[1])
	}
}

func TestRangesBoundedByNextMarker(t *testing.T) {
	s := NewStore(0, Callbacks{})
	s.OnEvent(promptAt(0))
	s.OnEvent(outputAt(1))
	s.OnEvent(endWith(4, 0))
	s.OnEvent(promptAt(5))

	first := s.Markers()[0]
	_, output, err := s.Ranges(first.ID, 42)
	if err != nil {
		t.Fatalf("Ranges: %v", err)
	}
	if output.End != 4 {
		t.Errorf("output.End = %d, want 4 (line before next prompt)", output.End)
	}

	// The last marker's output extends to the end of the buffer.
	last := s.Markers()[1]
	_, output, err = s.Ranges(last.ID, 42)
	if err != nil {
		t.Fatalf("Ranges: %v", err)
	}
	if output.End != 42 {
		t.Errorf("output.End = %d, want 42 (end of buffer)", output.End)
	}
}

func TestAdjustForTrim(t *testing.T) {
	released := 0
	s := NewStore(0, Callbacks{
		Released: func(Marker) { released++ },
	})
	s.OnEvent(promptAt(2))
	s.OnEvent(promptAt(10))

	s.AdjustForTrim(5)

	markers := s.Markers()
	if len(markers) != 1 {
		t.Fatalf("store holds %d markers after trim, want 1", len(markers))
	}
	if markers[0].StartLine != 5 {
		t.Errorf("StartLine = %d, want 5", markers[0].StartLine)
	}
	if released != 1 {
		t.Errorf("%d markers released, want 1", released)
	}
}

package osc

import (
	"testing"
)

func feedAll(d *Decoder, chunks ...string) []Event {
	var events []Event
	for _, c := range chunks {
		events = append(events, d.Feed([]byte(c))...)
	}
	return events
}

func TestDecodePromptLifecycle(t *testing.T) {
	d := NewDecoder()
	events := feedAll(d,
		"\x1b]133;A\x07$ ls\n",
		"\x1b]133;C\x07file.txt\n",
		"\x1b]133;D;0\x07",
	)

	want := []Event{
		{Kind: EventPromptStart, Line: 0},
		{Kind: EventCommandOutputStart, Line: 1},
		{Kind: EventCommandEnd, Line: 2, ExitCode: 0},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(want), events)
	}
	for i, ev := range events {
		if ev != want[i] {
			t.Errorf("event[%d] = %+v, want %+v", i, ev, want[i])
		}
	}
}

// TestChunkBoundaryInvariance verifies that splitting the stream at every
// possible byte boundary yields the same event sequence as the unsplit case.
func TestChunkBoundaryInvariance(t *testing.T) {
	stream := "before\n\x1b]133;A\x07$ make\n\x1b]133;B\x1b\\\x1b]133;C\x07ok\n\x1b]133;D;2\x07\x1b]1337;RemoteHost=alice@box1\x07"

	whole := NewDecoder().Feed([]byte(stream))
	if len(whole) != 5 {
		t.Fatalf("unsplit decode produced %d events, want 5: %+v", len(whole), whole)
	}

	for split := 1; split < len(stream); split++ {
		d := NewDecoder()
		events := feedAll(d, stream[:split], stream[split:])
		if len(events) != len(whole) {
			t.Fatalf("split at %d: got %d events, want %d", split, len(events), len(whole))
		}
		for i := range events {
			if events[i] != whole[i] {
				t.Errorf("split at %d: event[%d] = %+v, want %+v", split, i, events[i], whole[i])
			}
		}
	}
}

func TestDecodeMalformedPayloads(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"non-numeric exit code", "\x1b]133;D;zero\x07"},
		{"missing exit code", "\x1b]133;D\x07"},
		{"unknown subcommand", "\x1b]133;Z\x07"},
		{"unknown family", "\x1b]9;whatever\x07"},
		{"1337 without RemoteHost", "\x1b]1337;SetBadge=hi\x07"},
		{"633 without H", "\x1b]633;X;label\x07"},
		{"empty payload", "\x1b]\x07"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder()
			events := d.Feed([]byte(tt.input))
			if len(events) != 0 {
				t.Errorf("expected no events, got %+v", events)
			}
			// The decoder must recover: a well-formed sequence after the
			// malformed one still decodes.
			events = d.Feed([]byte("\x1b]133;A\x07"))
			if len(events) != 1 || events[0].Kind != EventPromptStart {
				t.Errorf("decoder did not recover after malformed input: %+v", events)
			}
		})
	}
}

func TestDecodeSTTerminator(t *testing.T) {
	d := NewDecoder()
	events := d.Feed([]byte("\x1b]133;D;130\x1b\\"))
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Kind != EventCommandEnd || events[0].ExitCode != 130 {
		t.Errorf("got %+v, want CommandEnd exit 130", events[0])
	}
}

func TestDecodeRemoteHostFamilies(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		payload string
	}{
		{"iterm2 family", "\x1b]1337;RemoteHost=alice@box1\x07", "alice@box1"},
		{"iterm2 with ip", "\x1b]1337;RemoteHost=alice@box1:10.0.0.5\x07", "alice@box1:10.0.0.5"},
		{"iterm2 empty resets", "\x1b]1337;RemoteHost=\x07", ""},
		{"legacy 633 family", "\x1b]633;H;bob@web2\x07", "bob@web2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := NewDecoder().Feed([]byte(tt.input))
			if len(events) != 1 {
				t.Fatalf("got %d events, want 1", len(events))
			}
			ev := events[0]
			if ev.Kind != EventRemoteHostAnnounce || ev.HostPayload != tt.payload {
				t.Errorf("got %+v, want RemoteHostAnnounce payload %q", ev, tt.payload)
			}
		})
	}
}

func TestLineTrackingIgnoresNewlinesInPayload(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("one\ntwo\n"))
	if d.Line() != 2 {
		t.Fatalf("line = %d, want 2", d.Line())
	}
	// Newlines inside an OSC payload are not visible output and must not
	// advance the line counter.
	d.Feed([]byte("\x1b]633;H;multi\nline\x07three\n"))
	if d.Line() != 3 {
		t.Errorf("line = %d, want 3", d.Line())
	}
}

func TestLabelTracker(t *testing.T) {
	tr := NewLabelTracker()
	if tr.Label() != LocalLabel {
		t.Fatalf("initial label = %q, want %q", tr.Label(), LocalLabel)
	}

	label, changed := tr.Apply(Event{Kind: EventRemoteHostAnnounce, HostPayload: "alice@box1"})
	if !changed || label != "🔒 alice@box1" {
		t.Errorf("got (%q, %v), want (🔒 alice@box1, true)", label, changed)
	}

	// IP suffix is dropped from the display label.
	label, _ = tr.Apply(Event{Kind: EventRemoteHostAnnounce, HostPayload: "alice@box1:10.0.0.5"})
	if label != "🔒 alice@box1" {
		t.Errorf("label = %q, want 🔒 alice@box1", label)
	}

	// Empty payload resets to local.
	label, changed = tr.Apply(Event{Kind: EventRemoteHostAnnounce, HostPayload: ""})
	if !changed || label != LocalLabel {
		t.Errorf("got (%q, %v), want (%q, true)", label, changed, LocalLabel)
	}

	// Unrelated events are ignored.
	if _, changed := tr.Apply(Event{Kind: EventPromptStart}); changed {
		t.Error("PromptStart must not change the label")
	}
}

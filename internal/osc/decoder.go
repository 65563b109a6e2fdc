package osc

import (
	"strconv"
	"strings"
)

// DebugLogFunc can be set to capture decoder diagnostic output.
var DebugLogFunc func(format string, args ...any)

func debugLog(format string, args ...any) {
	if DebugLogFunc != nil {
		DebugLogFunc(format, args...)
	}
}

const (
	esc = 0x1b
	bel = 0x07

	// maxSequenceLen bounds how much of an unterminated OSC payload the
	// decoder will buffer across chunks before giving up on it.
	maxSequenceLen = 4096
)

// decoder states. A sequence may be split at any byte boundary, including
// between ESC and ']' or between the payload's trailing ESC and '\', so the
// state survives across Feed calls.
type state int

const (
	stGround state = iota
	stEscape       // saw ESC, waiting for ']'
	stPayload      // inside an OSC payload, waiting for BEL or ESC '\'
	stPayloadEscape
)

// Decoder is an incremental decoder for shell-integration OSC sequences.
// Feed it raw PTY chunks in arrival order; it emits the same event sequence
// regardless of how the stream is chunked. Not safe for concurrent use.
type Decoder struct {
	st   state
	seq  []byte // payload bytes of the sequence being collected
	line int    // absolute line number (newlines seen in visible output)
}

// NewDecoder returns a decoder positioned at line 0.
func NewDecoder() *Decoder {
	return &Decoder{seq: make([]byte, 0, 64)}
}

// Line returns the absolute line number of the last visible byte processed.
func (d *Decoder) Line() int {
	return d.line
}

// Rebase shifts the line counter down after the owning line buffer trimmed
// linesRemoved lines off its head, keeping event lines and buffer indices in
// the same coordinate space.
func (d *Decoder) Rebase(linesRemoved int) {
	if linesRemoved > 0 {
		d.line = max(d.line-linesRemoved, 0)
	}
}

// Feed processes one raw chunk and returns the events it completed, in
// stream order. Malformed sequences are dropped; Feed never fails.
func (d *Decoder) Feed(chunk []byte) []Event {
	var events []Event
	for _, b := range chunk {
		switch d.st {
		case stGround:
			switch b {
			case esc:
				d.st = stEscape
			case '\n':
				d.line++
			}
		case stEscape:
			if b == ']' {
				d.st = stPayload
				d.seq = d.seq[:0]
			} else {
				// Not an OSC introducer. CSI and friends are rendering
				// concerns; fall back to ground without counting the ESC.
				d.st = stGround
				if b == '\n' {
					d.line++
				}
			}
		case stPayload:
			switch b {
			case bel:
				if ev, ok := d.parse(string(d.seq)); ok {
					events = append(events, ev)
				}
				d.st = stGround
			case esc:
				d.st = stPayloadEscape
			default:
				d.seq = append(d.seq, b)
				if len(d.seq) > maxSequenceLen {
					debugLog("osc: abandoning oversized sequence (%d bytes)", len(d.seq))
					d.seq = d.seq[:0]
					d.st = stGround
				}
			}
		case stPayloadEscape:
			if b == '\\' {
				// ST terminator (ESC \)
				if ev, ok := d.parse(string(d.seq)); ok {
					events = append(events, ev)
				}
				d.st = stGround
			} else {
				// Stray ESC inside a payload: keep collecting. The ESC
				// itself is not part of any payload we care about.
				d.st = stPayload
				d.seq = append(d.seq, b)
			}
		}
	}
	return events
}

// parse converts a complete OSC payload into an event. The bool result is
// false for families we don't handle or payloads that fail to parse; decode
// failures never propagate past this boundary.
func (d *Decoder) parse(payload string) (Event, bool) {
	code, rest, _ := strings.Cut(payload, ";")
	switch code {
	case "133":
		return d.parsePromptLifecycle(rest)
	case "633":
		// Legacy host label family: 633;H;<label>
		sub, label, _ := strings.Cut(rest, ";")
		if sub != "H" {
			return Event{}, false
		}
		return Event{Kind: EventRemoteHostAnnounce, Line: d.line, HostPayload: label}, true
	case "1337":
		value, ok := strings.CutPrefix(rest, "RemoteHost=")
		if !ok {
			return Event{}, false
		}
		return Event{Kind: EventRemoteHostAnnounce, Line: d.line, HostPayload: value}, true
	}
	return Event{}, false
}

func (d *Decoder) parsePromptLifecycle(rest string) (Event, bool) {
	sub, params, _ := strings.Cut(rest, ";")
	switch sub {
	case "A":
		return Event{Kind: EventPromptStart, Line: d.line}, true
	case "B":
		return Event{Kind: EventCommandStart, Line: d.line}, true
	case "C":
		return Event{Kind: EventCommandOutputStart, Line: d.line}, true
	case "D":
		code, err := strconv.Atoi(params)
		if err != nil {
			debugLog("osc: dropping 133;D with bad exit code %q: %v", params, err)
			return Event{}, false
		}
		return Event{Kind: EventCommandEnd, Line: d.line, ExitCode: code}, true
	}
	debugLog("osc: unhandled 133 subcommand %q", sub)
	return Event{}, false
}

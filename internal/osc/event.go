// Package osc decodes the narrow set of OSC escape sequences that carry
// shell-integration lifecycle events (OSC 133 prompt markers, OSC 1337/633
// host announcements) out of a raw PTY output stream.
package osc

// EventKind identifies the lifecycle event carried by a decoded sequence.
type EventKind int

const (
	// EventPromptStart is OSC 133;A - a command-line prompt begins.
	EventPromptStart EventKind = iota
	// EventCommandStart is OSC 133;B - command input begins (after the prompt).
	EventCommandStart
	// EventCommandOutputStart is OSC 133;C - the shell is about to echo output.
	EventCommandOutputStart
	// EventCommandEnd is OSC 133;D;<code> - command finished with an exit code.
	EventCommandEnd
	// EventRemoteHostAnnounce is OSC 1337 RemoteHost= or legacy OSC 633;H -
	// the shell announced the identity of the current session.
	EventRemoteHostAnnounce
)

func (k EventKind) String() string {
	switch k {
	case EventPromptStart:
		return "PromptStart"
	case EventCommandStart:
		return "CommandStart"
	case EventCommandOutputStart:
		return "CommandOutputStart"
	case EventCommandEnd:
		return "CommandEnd"
	case EventRemoteHostAnnounce:
		return "RemoteHostAnnounce"
	default:
		return "Unknown"
	}
}

// Event is a single decoded lifecycle event. Events carry no references into
// the chunk they were decoded from; all fields are owned copies.
type Event struct {
	Kind EventKind

	// Line is the absolute line number (count of newlines seen since the
	// decoder was created) at which the sequence fired.
	Line int

	// ExitCode is only meaningful for EventCommandEnd.
	ExitCode int

	// HostPayload is only meaningful for EventRemoteHostAnnounce. An empty
	// payload means the session is local.
	HostPayload string
}

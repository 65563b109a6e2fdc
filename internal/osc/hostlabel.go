package osc

import "strings"

// LocalLabel is the label reported when no remote host has been announced,
// or after an empty announcement reset the session to local.
const LocalLabel = "Local"

// LabelTracker maps RemoteHostAnnounce events to a human-readable session
// label. Only the latest announcement matters; no history is retained.
type LabelTracker struct {
	label string
}

// NewLabelTracker returns a tracker reporting LocalLabel.
func NewLabelTracker() *LabelTracker {
	return &LabelTracker{label: LocalLabel}
}

// Apply updates the tracker from an event. It returns the current label and
// whether this event changed it. Events other than RemoteHostAnnounce are
// ignored.
func (t *LabelTracker) Apply(ev Event) (string, bool) {
	if ev.Kind != EventRemoteHostAnnounce {
		return t.label, false
	}
	next := FormatHostLabel(ev.HostPayload)
	changed := next != t.label
	t.label = next
	return t.label, changed
}

// Label returns the current session label.
func (t *LabelTracker) Label() string {
	return t.label
}

// FormatHostLabel renders a RemoteHost payload ("user@host" with an optional
// ":ip" suffix) as a display label. An empty payload means local.
func FormatHostLabel(payload string) string {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return LocalLabel
	}
	// Drop the optional ":ip" suffix; the user@host part is the label.
	if host, _, ok := strings.Cut(payload, ":"); ok {
		payload = host
	}
	return "🔒 " + payload
}

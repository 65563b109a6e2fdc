// Package config provides configuration constants and user settings for
// shellmark.
package config

import "time"

// =============================================================================
// Marker Store
// =============================================================================

const (
	// DefaultMaxMarkers is the default capacity of a session's marker store.
	DefaultMaxMarkers = 200

	// MinMaxMarkers is the smallest capacity the store can be configured to.
	MinMaxMarkers = 20

	// MaxMaxMarkers is the largest capacity the store can be configured to.
	MaxMaxMarkers = 2000
)

// ClampMaxMarkers clamps a requested marker capacity into the supported
// range. Zero or negative values fall back to the default.
func ClampMaxMarkers(n int) int {
	if n <= 0 {
		return DefaultMaxMarkers
	}
	if n < MinMaxMarkers {
		return MinMaxMarkers
	}
	if n > MaxMaxMarkers {
		return MaxMaxMarkers
	}
	return n
}

// =============================================================================
// Sentinel Capture
// =============================================================================

const (
	// DefaultCaptureTimeout is how long a capture waits for its end sentinel
	// before rejecting.
	DefaultCaptureTimeout = 30 * time.Second

	// DefaultCaptureDebounce is the settle window after the end sentinel is
	// seen. Chunked transports may deliver the sentinel before trailing bytes
	// of the same write arrive.
	DefaultCaptureDebounce = 50 * time.Millisecond
)

// =============================================================================
// Line Buffer
// =============================================================================

const (
	// DefaultLineBufferLines is the number of plain-text lines retained per
	// session for range extraction.
	DefaultLineBufferLines = 10000

	// MinLineBufferLines is the smallest usable line buffer.
	MinLineBufferLines = 100
)

// ClampLineBufferLines clamps a requested line buffer size.
func ClampLineBufferLines(n int) int {
	if n <= 0 {
		return DefaultLineBufferLines
	}
	if n < MinLineBufferLines {
		return MinLineBufferLines
	}
	return n
}

// =============================================================================
// Stream Plumbing
// =============================================================================

const (
	// SubscriptionBufferSize is the channel depth of a stream subscription.
	// Deep enough that a briefly stalled subscriber doesn't drop chunks.
	SubscriptionBufferSize = 1000

	// PTYReadBufferSize is the read buffer for the session's PTY pump.
	PTYReadBufferSize = 4096

	// ProcessWaitDelay is the delay when waiting for process cleanup, giving
	// final output a chance to be captured.
	ProcessWaitDelay = 50 * time.Millisecond
)

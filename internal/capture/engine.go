// Package capture implements the sentinel-based synchronous command-capture
// protocol: wrap a command with unique begin/end tokens, write it to the PTY,
// and scan the output stream until exactly that command's output has been
// recovered.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/Gaurav-Gosain/shellmark/internal/config"
	"github.com/Gaurav-Gosain/shellmark/internal/stream"
)

// DebugLogFunc can be set to capture engine diagnostic output.
var DebugLogFunc func(format string, args ...any)

func debugLog(format string, args ...any) {
	if DebugLogFunc != nil {
		DebugLogFunc(format, args...)
	}
}

// Sentinel token format. The timestamp makes tokens unique per invocation;
// the end token additionally carries the command's real exit status.
const (
	startSentinelFmt = "__SHELLMARK_START_%d__"
	endSentinelFmt   = "__SHELLMARK_END_%d_" // followed by the exit code and "__"
)

var (
	// ErrTimeout is returned when neither sentinel arrives in time.
	ErrTimeout = errors.New("capture timed out")
	// ErrStreamClosed is returned when the session's stream is torn down
	// while a capture is in flight.
	ErrStreamClosed = errors.New("capture stream closed")
)

// Result is a completed capture.
type Result struct {
	Output   string
	ExitCode int
}

// Subscriber provides ordered chunk subscriptions on a session's stream.
type Subscriber interface {
	Subscribe() *stream.Subscription
}

// Engine runs sentinel captures against one terminal session.
type Engine struct {
	subs     Subscriber
	pty      io.Writer
	timeout  time.Duration
	debounce time.Duration
}

// NewEngine creates an engine writing commands to pty and reading output via
// subs. Zero durations fall back to the configured defaults.
func NewEngine(subs Subscriber, pty io.Writer, timeout, debounce time.Duration) *Engine {
	if timeout <= 0 {
		timeout = config.DefaultCaptureTimeout
	}
	if debounce <= 0 {
		debounce = config.DefaultCaptureDebounce
	}
	return &Engine{subs: subs, pty: pty, timeout: timeout, debounce: debounce}
}

// wrap builds the single input line sent to the PTY: emit the start
// sentinel, run the command in a subshell grouping, then emit the end
// sentinel carrying $?.
func wrap(command, start, endPrefix string) string {
	return fmt.Sprintf("printf '\\n%s\\n'; { %s; }; printf '\\n%s%%d__\\n' \"$?\"\n",
		start, command, endPrefix)
}

// Execute runs command in the session's shell and returns exactly its
// output. timeout <= 0 uses the engine default. Cancellation via ctx clears
// all pending timers and releases the stream subscription; the subscription
// is released exactly once on every path.
func (e *Engine) Execute(ctx context.Context, command string, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = e.timeout
	}

	ts := time.Now().UnixNano()
	start := fmt.Sprintf(startSentinelFmt, ts)
	endPrefix := fmt.Sprintf(endSentinelFmt, ts)
	endPattern := regexp.MustCompile(regexp.QuoteMeta(endPrefix) + `(\d+)__`)

	// Subscribe before writing so no output can slip past us.
	sub := e.subs.Subscribe()
	defer sub.Cancel()

	if _, err := io.WriteString(e.pty, wrap(command, start, endPrefix)); err != nil {
		return Result{}, fmt.Errorf("write command: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// A single select loop arbitrates data, debounce, timeout and
	// cancellation, so no two completion paths can fire for one capture.
	var (
		buf       []byte
		capturing bool
		done      bool
		result    Result
		debounce  <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()

		case <-timer.C:
			if done {
				// The end sentinel already arrived; a timer that fired
				// concurrently with its detection must not reject the capture.
				continue
			}
			debugLog("capture: timeout after %v waiting for sentinels (cmd %q)", timeout, command)
			return Result{}, fmt.Errorf("%w after %v", ErrTimeout, timeout)

		case <-debounce:
			return result, nil

		case <-sub.Done():
			return Result{}, ErrStreamClosed

		case chunk := <-sub.Chunks():
			if done {
				// Trailing bytes during the debounce window; the result is
				// already fixed at everything before the end sentinel.
				continue
			}
			buf = append(buf, chunk...)

			if !capturing {
				idx := sentinelAtLineStart(buf, start)
				if idx < 0 {
					continue
				}
				// Discard everything up to and including the start
				// sentinel (and its trailing line break).
				buf = trimLeadingBreak(buf[idx+len(start):])
				capturing = true
			}

			var m []int
			for _, cand := range endPattern.FindAllSubmatchIndex(buf, -1) {
				if atLineStart(buf, cand[0]) {
					m = cand
					break
				}
			}
			if m == nil {
				continue
			}
			code, err := strconv.Atoi(string(buf[m[2]:m[3]]))
			if err != nil {
				// Unreachable given the pattern, but never trust the wire.
				code = -1
			}
			result = Result{Output: cleanOutput(buf[:m[0]]), ExitCode: code}
			done = true
			// The capture has succeeded; only the debounce window remains, so
			// the overall timeout no longer applies even if it is shorter.
			timer.Stop()
			debounce = time.After(e.debounce)
		}
	}
}

// sentinelAtLineStart finds the first occurrence of token that sits at the
// start of a line. The echoed command also contains the token text, but
// quoted mid-line; only the token the shell actually printed starts a line.
func sentinelAtLineStart(buf []byte, token string) int {
	from := 0
	for {
		idx := bytes.Index(buf[from:], []byte(token))
		if idx < 0 {
			return -1
		}
		idx += from
		if atLineStart(buf, idx) {
			return idx
		}
		from = idx + 1
	}
}

func atLineStart(buf []byte, idx int) bool {
	return idx == 0 || buf[idx-1] == '\n' || buf[idx-1] == '\r'
}

// trimLeadingBreak drops one leading line break (\r\n, \n or \r).
func trimLeadingBreak(buf []byte) []byte {
	if len(buf) > 0 && buf[0] == '\r' {
		buf = buf[1:]
	}
	if len(buf) > 0 && buf[0] == '\n' {
		buf = buf[1:]
	}
	return buf
}

// cleanOutput normalizes line endings, strips ANSI escape sequences and
// trims the blank edges left by the sentinel printfs.
func cleanOutput(raw []byte) string {
	s := string(raw)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = ansi.Strip(s)
	return strings.Trim(s, "\n")
}

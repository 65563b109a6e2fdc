package capture

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/Gaurav-Gosain/shellmark/internal/stream"
)

var sentinelRe = regexp.MustCompile(`__SHELLMARK_START_(\d+)__`)

// fakeShell mimics a shell on the far side of a PTY: it echoes whatever is
// written, then "runs" the wrapped command by emitting the start sentinel,
// the configured output, and the end sentinel with the configured exit code.
type fakeShell struct {
	b         *stream.Broadcaster
	output    string
	exitCode  int
	chunkSize int  // split responses into chunks of this size (0 = one chunk)
	silent    bool // echo only, never run the command
}

func (f *fakeShell) Write(p []byte) (int, error) {
	m := sentinelRe.FindStringSubmatch(string(p))
	if m == nil {
		return 0, fmt.Errorf("no sentinel in written command: %q", p)
	}
	ts := m[1]

	// Echo of the typed line: sentinels appear here mid-line, quoted. The
	// engine must not mistake them for the real ones.
	response := strings.ReplaceAll(string(p), "\n", "\r\n")
	if !f.silent {
		response += "\r\n__SHELLMARK_START_" + ts + "__\r\n" +
			f.output +
			"\r\n__SHELLMARK_END_" + ts + fmt.Sprintf("_%d__", f.exitCode) + "\r\n"
	}

	go func() {
		data := []byte(response)
		if f.chunkSize <= 0 {
			f.b.Publish(data)
			return
		}
		for len(data) > 0 {
			n := min(f.chunkSize, len(data))
			f.b.Publish(data[:n])
			data = data[n:]
		}
	}()

	return len(p), nil
}

func newTestEngine(shell *fakeShell) *Engine {
	shell.b = stream.NewBroadcaster()
	return NewEngine(shell.b, shell, 2*time.Second, 10*time.Millisecond)
}

func TestExecuteRoundTrip(t *testing.T) {
	shell := &fakeShell{output: "hello"}
	e := newTestEngine(shell)
	defer shell.b.Close()

	res, err := e.Execute(context.Background(), "echo hello", 0)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Output != "hello" {
		t.Errorf("Output = %q, want %q", res.Output, "hello")
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
}

func TestExecuteStripsANSIAndNormalizesLineEndings(t *testing.T) {
	shell := &fakeShell{output: "\x1b[1;32mgreen\x1b[0m\r\nplain"}
	e := newTestEngine(shell)
	defer shell.b.Close()

	res, err := e.Execute(context.Background(), "ls --color", 0)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Output != "green\nplain" {
		t.Errorf("Output = %q, want %q", res.Output, "green\nplain")
	}
}

// TestExecuteFragmentedStream delivers the response one byte at a time so
// both sentinels span many chunk boundaries.
func TestExecuteFragmentedStream(t *testing.T) {
	shell := &fakeShell{output: "multi\r\nline output", chunkSize: 1}
	e := newTestEngine(shell)
	defer shell.b.Close()

	res, err := e.Execute(context.Background(), "cat file", 0)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Output != "multi\nline output" {
		t.Errorf("Output = %q, want %q", res.Output, "multi\nline output")
	}
}

func TestExecuteThreadsExitCode(t *testing.T) {
	shell := &fakeShell{output: "grep: no match", exitCode: 1}
	e := newTestEngine(shell)
	defer shell.b.Close()

	res, err := e.Execute(context.Background(), "grep nope file", 0)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1 (real $? threaded through end sentinel)", res.ExitCode)
	}
}

// TestExecuteDebounceLongerThanRemainingTimeout verifies the timeout stops
// applying once the end sentinel is seen: both sentinels arrive almost
// immediately, but the debounce window extends past the timeout deadline.
func TestExecuteDebounceLongerThanRemainingTimeout(t *testing.T) {
	shell := &fakeShell{output: "hello"}
	shell.b = stream.NewBroadcaster()
	defer shell.b.Close()
	e := NewEngine(shell.b, shell, time.Second, 400*time.Millisecond)

	res, err := e.Execute(context.Background(), "echo hello", 150*time.Millisecond)
	if err != nil {
		t.Fatalf("Execute: %v (timeout fired after the end sentinel arrived)", err)
	}
	if res.Output != "hello" {
		t.Errorf("Output = %q, want %q", res.Output, "hello")
	}
}

func TestExecuteTimeout(t *testing.T) {
	shell := &fakeShell{silent: true}
	e := newTestEngine(shell)
	defer shell.b.Close()

	_, err := e.Execute(context.Background(), "sleep 999", 50*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("pty gone")
}

func TestExecuteWriteFailure(t *testing.T) {
	b := stream.NewBroadcaster()
	defer b.Close()
	e := NewEngine(b, failingWriter{}, time.Second, time.Millisecond)

	_, err := e.Execute(context.Background(), "echo hi", 0)
	if err == nil || !strings.Contains(err.Error(), "pty gone") {
		t.Fatalf("err = %v, want wrapped write failure", err)
	}
}

func TestExecuteCancellation(t *testing.T) {
	shell := &fakeShell{silent: true}
	e := newTestEngine(shell)
	defer shell.b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := e.Execute(ctx, "sleep 999", time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

// TestExecuteSequentialCaptures verifies subscriptions are released after
// each capture: a leak would deliver the second command's output to the
// first capture's dead subscriber and eventually stall the stream.
func TestExecuteSequentialCaptures(t *testing.T) {
	for i := range 3 {
		shell := &fakeShell{output: fmt.Sprintf("run %d", i)}
		e := newTestEngine(shell)

		res, err := e.Execute(context.Background(), "true", 0)
		if err != nil {
			t.Fatalf("Execute #%d: %v", i, err)
		}
		if want := fmt.Sprintf("run %d", i); res.Output != want {
			t.Errorf("Output = %q, want %q", res.Output, want)
		}
		shell.b.Close()
	}
}

func TestExecuteStreamTeardown(t *testing.T) {
	shell := &fakeShell{silent: true}
	e := newTestEngine(shell)

	done := make(chan error, 1)
	go func() {
		_, err := e.Execute(context.Background(), "sleep 999", time.Minute)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	shell.b.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrStreamClosed) {
			t.Fatalf("err = %v, want ErrStreamClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("capture did not observe stream teardown")
	}
}

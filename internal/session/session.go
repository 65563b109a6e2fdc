// Package session wires the escape decoder, marker store, line buffer and
// capture engine together for one terminal, and optionally owns the PTY the
// shell runs on.
package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/colorprofile"
	xpty "github.com/charmbracelet/x/xpty"
	"github.com/google/uuid"

	"github.com/Gaurav-Gosain/shellmark/internal/capture"
	"github.com/Gaurav-Gosain/shellmark/internal/config"
	"github.com/Gaurav-Gosain/shellmark/internal/linebuf"
	"github.com/Gaurav-Gosain/shellmark/internal/marker"
	"github.com/Gaurav-Gosain/shellmark/internal/osc"
	"github.com/Gaurav-Gosain/shellmark/internal/stream"
)

// DebugLogFunc can be set to capture session lifecycle diagnostics.
var DebugLogFunc func(format string, args ...any)

func debugLog(format string, args ...any) {
	if DebugLogFunc != nil {
		DebugLogFunc(format, args...)
	}
}

// RangeKind selects which part of a command block Range returns.
type RangeKind int

const (
	// RangeCommand is the typed command text (prompt line through the last
	// line before output).
	RangeCommand RangeKind = iota
	// RangeOutput is the command's output.
	RangeOutput
	// RangeBoth is command and output together.
	RangeBoth
)

// HistoryEntry is one navigable command in a session's history.
type HistoryEntry struct {
	MarkerID    uint64
	Line        int
	CommandText string
	ExitCode    *int
	Timestamp   time.Time
	HasOutput   bool
}

// Options configures a session.
type Options struct {
	// MaxMarkers is the marker store capacity (clamped; 0 = default).
	MaxMarkers int
	// LineBufferLines is the retained plain-text line count (0 = default).
	LineBufferLines int
	// Shell overrides shell detection for spawned sessions.
	Shell string
	// CaptureTimeout and CaptureDebounce override the capture defaults.
	CaptureTimeout  time.Duration
	CaptureDebounce time.Duration
	// MarkerCallbacks let a render layer own decoration objects per marker.
	MarkerCallbacks marker.Callbacks
	// Input receives injected input for sessions fed externally via
	// HandleChunk (sessions that spawn their own shell ignore it).
	Input io.Writer
	// OnExit is called with the session id after the spawned shell exits.
	OnExit func(id string)
	// Width and Height size the spawned PTY (default 80x24).
	Width, Height int
}

// Session is the command-boundary state for one terminal.
type Session struct {
	ID string

	feedMu  sync.Mutex // serializes HandleChunk; event order is load-bearing
	decoder *osc.Decoder
	store   *marker.Store
	lines   *linebuf.Buffer
	labels  *osc.LabelTracker

	broadcaster *stream.Broadcaster
	engine      *capture.Engine

	// Shell process state, nil/zero for externally fed sessions.
	pty    xpty.Pty
	cmd    *exec.Cmd
	cancel context.CancelFunc
	ioWg   sync.WaitGroup

	input io.Writer

	// Spawn parameters retained from Options for StartShell.
	shellPath     string
	width, height int

	closeOnce   sync.Once
	cmdWaitOnce sync.Once
	onExit      func(id string)
}

// New creates a session fed externally through HandleChunk. The PTY-owning
// collaborator delivers chunks in arrival order and, if input injection is
// wanted, provides opts.Input.
func New(opts Options) *Session {
	s := &Session{
		ID:          uuid.NewString(),
		decoder:     osc.NewDecoder(),
		store:       marker.NewStore(opts.MaxMarkers, opts.MarkerCallbacks),
		lines:       linebuf.New(opts.LineBufferLines),
		labels:      osc.NewLabelTracker(),
		broadcaster: stream.NewBroadcaster(),
		input:       opts.Input,
		shellPath:   opts.Shell,
		width:       opts.Width,
		height:      opts.Height,
		onExit:      opts.OnExit,
	}
	s.engine = capture.NewEngine(s.broadcaster, writerFunc(s.Write), opts.CaptureTimeout, opts.CaptureDebounce)
	return s
}

// writerFunc adapts Session.Write to io.Writer for the capture engine.
type writerFunc func([]byte) error

func (f writerFunc) Write(p []byte) (int, error) {
	if err := f(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// NewShell creates a session and spawns a shell on its own PTY. The session
// owns the process: Close tears it down.
func NewShell(opts Options) (*Session, error) {
	s := New(opts)
	if err := s.StartShell(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// StartShell spawns the configured shell on its own PTY and starts pumping
// its output through HandleChunk. Subscribe before calling it to observe the
// shell's very first output (banner, initial prompt).
func (s *Session) StartShell() error {
	if s.pty != nil {
		return fmt.Errorf("session %s already has a shell", s.ID)
	}

	shell := s.shellPath
	if shell == "" {
		shell = detectShell()
	}

	// #nosec G204 - shell is intentionally user-controlled
	cmd := exec.Command(shell)
	cmd.Env = append(os.Environ(), shellEnv()...)
	cmd.Env = append(cmd.Env, "SHELLMARK_SESSION_ID="+s.ID)

	width, height := s.width, s.height
	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = 24
	}
	pty, err := xpty.NewPty(width, height)
	if err != nil {
		return fmt.Errorf("create pty: %w", err)
	}
	if err := pty.Start(cmd); err != nil {
		_ = pty.Close()
		return fmt.Errorf("start shell: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.pty = pty
	s.cmd = cmd
	s.cancel = cancel

	s.ioWg.Add(1)
	go s.readPump(ctx)

	go func() {
		s.waitForCmd()
		// Give final output a chance to be captured before teardown.
		time.Sleep(config.ProcessWaitDelay)
		if s.onExit != nil {
			s.onExit(s.ID)
		}
	}()

	return nil
}

// readPump copies PTY output into HandleChunk until the PTY closes.
func (s *Session) readPump(ctx context.Context) {
	defer s.ioWg.Done()
	buf := make([]byte, config.PTYReadBufferSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := s.pty.Read(buf)
		if n > 0 {
			s.HandleChunk(buf[:n])
		}
		if err != nil {
			if err != io.EOF && !strings.Contains(err.Error(), "file already closed") &&
				!strings.Contains(err.Error(), "input/output error") {
				debugLog("session %s: pty read: %v", s.ID, err)
			}
			return
		}
	}
}

// HandleChunk processes one raw output chunk: decode lifecycle events,
// update the marker store and label tracker, grow the line buffer, and fan
// the chunk out to stream subscribers (capture engine, recorders).
func (s *Session) HandleChunk(data []byte) {
	s.feedMu.Lock()
	for _, ev := range s.decoder.Feed(data) {
		s.store.OnEvent(ev)
		s.labels.Apply(ev)
	}
	if trimmed := s.lines.Feed(data); trimmed > 0 {
		s.store.AdjustForTrim(trimmed)
		s.decoder.Rebase(trimmed)
	}
	s.feedMu.Unlock()

	s.broadcaster.Publish(data)
}

// Write injects input into the shell: the PTY for spawned sessions, the
// configured input writer otherwise.
func (s *Session) Write(data []byte) error {
	if s.pty != nil {
		if _, err := s.pty.Write(data); err != nil {
			return fmt.Errorf("write to pty: %w", err)
		}
		return nil
	}
	if s.input != nil {
		if _, err := s.input.Write(data); err != nil {
			return fmt.Errorf("write input: %w", err)
		}
		return nil
	}
	return fmt.Errorf("session %s has no input sink", s.ID)
}

// Capture runs command in the session's shell and returns exactly its
// output. timeout <= 0 uses the configured default.
func (s *Session) Capture(ctx context.Context, command string, timeout time.Duration) (capture.Result, error) {
	return s.engine.Execute(ctx, command, timeout)
}

// Subscribe exposes the raw chunk stream (recorders, mirrors).
func (s *Session) Subscribe() *stream.Subscription {
	return s.broadcaster.Subscribe()
}

// History returns up to limit commands, most recent first, with their typed
// text resolved from the line buffer.
func (s *Session) History(limit int) []HistoryEntry {
	summaries := s.store.History(limit)
	entries := make([]HistoryEntry, 0, len(summaries))
	for _, sum := range summaries {
		entry := HistoryEntry{
			MarkerID:  sum.MarkerID,
			Line:      sum.Line,
			ExitCode:  sum.ExitCode,
			Timestamp: sum.Timestamp,
			HasOutput: sum.HasOutput,
		}
		if command, _, err := s.store.Ranges(sum.MarkerID, s.lines.LastLine()); err == nil {
			entry.CommandText = strings.TrimSpace(s.lines.Text(command.Start, command.End))
		}
		entries = append(entries, entry)
	}
	return entries
}

// Range returns the text of a command block part. Evicted markers resolve
// to marker.ErrNotFound; callers tolerate it, eviction is routine.
func (s *Session) Range(markerID uint64, which RangeKind) (string, error) {
	command, output, err := s.store.Ranges(markerID, s.lines.LastLine())
	if err != nil {
		return "", err
	}
	switch which {
	case RangeCommand:
		return s.lines.Text(command.Start, command.End), nil
	case RangeOutput:
		if output.Empty() {
			return "", nil
		}
		return s.lines.Text(output.Start, output.End), nil
	default:
		end := output.End
		if output.Empty() {
			end = command.End
		}
		return s.lines.Text(command.Start, end), nil
	}
}

// Resize changes the PTY size for spawned sessions, no-op otherwise.
func (s *Session) Resize(width, height int) error {
	if s.pty == nil {
		return nil
	}
	if err := s.pty.Resize(width, height); err != nil {
		return fmt.Errorf("resize pty: %w", err)
	}
	return nil
}

// HostLabel returns the current session identity label ("Local" or the
// latest remote announcement).
func (s *Session) HostLabel() string {
	return s.labels.Label()
}

func (s *Session) waitForCmd() {
	s.cmdWaitOnce.Do(func() {
		if s.cmd != nil {
			_ = s.cmd.Wait()
		}
	})
}

// Close tears the session down: stops the pump, kills a spawned shell,
// closes the stream (rejecting in-flight captures) and releases every
// marker's render resources. Idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.pty != nil {
			_ = s.pty.Close()
		}

		done := make(chan struct{})
		go func() {
			s.ioWg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}

		if s.cmd != nil && s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
			s.waitForCmd()
		}

		s.broadcaster.Close()
		s.store.Close()
	})
	return nil
}

// shellEnv derives TERM and COLORTERM for the spawned shell from the
// capabilities of the terminal we are actually attached to.
func shellEnv() []string {
	parentTerm := os.Getenv("TERM")
	switch colorprofile.Detect(os.Stdout, os.Environ()) {
	case colorprofile.TrueColor:
		if parentTerm == "" {
			parentTerm = "xterm-256color"
		}
		return []string{"TERM=" + parentTerm, "COLORTERM=truecolor"}
	case colorprofile.ANSI256:
		if !strings.Contains(parentTerm, "256color") {
			parentTerm = "xterm-256color"
		}
		return []string{"TERM=" + parentTerm}
	case colorprofile.ANSI:
		if parentTerm == "" || parentTerm == "dumb" {
			parentTerm = "xterm"
		}
		return []string{"TERM=" + parentTerm}
	default:
		return []string{"TERM=xterm-256color"}
	}
}

func detectShell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	if runtime.GOOS == "windows" {
		for _, shell := range []string{"powershell.exe", "pwsh.exe", "cmd.exe"} {
			if _, err := exec.LookPath(shell); err == nil {
				return shell
			}
		}
		return "cmd.exe"
	}
	for _, shell := range []string{"/bin/bash", "/bin/zsh", "/bin/fish", "/bin/sh"} {
		if _, err := os.Stat(shell); err == nil {
			return shell
		}
	}
	return "/bin/sh"
}

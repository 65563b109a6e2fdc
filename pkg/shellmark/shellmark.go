// Package shellmark provides command-boundary detection and output capture
// for terminal sessions. It decodes the shell-integration escape sequences
// modern shells emit (prompt start, output start, command end with exit
// status), keeps a bounded history of command markers, and can run a command
// in a live shell and return exactly its output.
//
// # Basic Usage
//
// Spawn a shell and navigate its command history:
//
//	sess, err := shellmark.NewShellSession()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sess.Close()
//
//	for _, entry := range sess.History(10) {
//		fmt.Println(entry.CommandText)
//	}
//
// # Feeding an Existing Terminal
//
// Embedders that already own a PTY feed raw output chunks themselves:
//
//	sess := shellmark.NewSession(shellmark.WithInput(pty))
//	// in the PTY read loop:
//	sess.HandleChunk(buf[:n])
//
// # Synchronous Capture
//
// Run a command and get its output back, regardless of what else the
// terminal is printing:
//
//	res, err := sess.Capture(ctx, "git status --short", 0)
//	fmt.Println(res.Output, res.ExitCode)
package shellmark

import (
	"io"
	"time"

	"github.com/Gaurav-Gosain/shellmark/internal/capture"
	"github.com/Gaurav-Gosain/shellmark/internal/config"
	"github.com/Gaurav-Gosain/shellmark/internal/marker"
	"github.com/Gaurav-Gosain/shellmark/internal/osc"
	"github.com/Gaurav-Gosain/shellmark/internal/session"
)

// Session is a terminal session with command-boundary tracking.
type Session = session.Session

// Manager owns a set of sessions keyed by id.
type Manager = session.Manager

// HistoryEntry is one navigable command in a session's history.
type HistoryEntry = session.HistoryEntry

// Result is a completed synchronous capture.
type Result = capture.Result

// Marker records one detected command boundary.
type Marker = marker.Marker

// Callbacks let a render layer own a decoration object per marker.
type Callbacks = marker.Callbacks

// RangeKind selects which part of a command block Range returns.
type RangeKind = session.RangeKind

// Range kinds.
const (
	RangeCommand = session.RangeCommand
	RangeOutput  = session.RangeOutput
	RangeBoth    = session.RangeBoth
)

// ErrMarkerNotFound is returned for evicted or unknown marker ids.
var ErrMarkerNotFound = marker.ErrNotFound

// ErrCaptureTimeout is returned when a capture's sentinels never arrive.
var ErrCaptureTimeout = capture.ErrTimeout

// FormatHostLabel renders a raw RemoteHost payload ("user@host[:ip]") for
// display: "Local" when empty, otherwise a lock glyph plus user@host.
// Session.HostLabel already returns the formatted form.
func FormatHostLabel(payload string) string {
	return osc.FormatHostLabel(payload)
}

// Options configures a session.
type Options struct {
	// MaxMarkers bounds the marker store (default 200, clamped 20-2000).
	MaxMarkers int

	// LineBufferLines is the retained plain-text line count (default 10000).
	LineBufferLines int

	// Shell overrides shell detection for spawned sessions.
	Shell string

	// CaptureTimeout bounds a synchronous capture (default 30s).
	CaptureTimeout time.Duration

	// CaptureDebounce is the settle window after the end sentinel (default 50ms).
	CaptureDebounce time.Duration

	// MarkerCallbacks receive marker create/release notifications.
	MarkerCallbacks Callbacks

	// Input receives injected input for externally fed sessions.
	Input io.Writer

	// OnExit is called with the session id after a spawned shell exits.
	OnExit func(id string)

	// Width and Height size the spawned PTY (default 80x24).
	Width, Height int

	// UserConfig overrides the on-disk configuration. If nil the config
	// file is loaded, falling back to defaults.
	UserConfig *config.UserConfig
}

// Option is a functional option for configuring a session.
type Option func(*Options)

// WithMaxMarkers bounds the marker store.
func WithMaxMarkers(n int) Option {
	return func(o *Options) {
		o.MaxMarkers = n
	}
}

// WithLineBufferLines sets the retained plain-text line count.
func WithLineBufferLines(n int) Option {
	return func(o *Options) {
		o.LineBufferLines = n
	}
}

// WithShell overrides shell detection for spawned sessions.
func WithShell(shell string) Option {
	return func(o *Options) {
		o.Shell = shell
	}
}

// WithCaptureTimeout bounds synchronous captures.
func WithCaptureTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.CaptureTimeout = d
	}
}

// WithCaptureDebounce sets the settle window after the end sentinel.
func WithCaptureDebounce(d time.Duration) Option {
	return func(o *Options) {
		o.CaptureDebounce = d
	}
}

// WithMarkerCallbacks installs marker create/release notifications.
func WithMarkerCallbacks(cb Callbacks) Option {
	return func(o *Options) {
		o.MarkerCallbacks = cb
	}
}

// WithInput sets the input sink for externally fed sessions.
func WithInput(w io.Writer) Option {
	return func(o *Options) {
		o.Input = w
	}
}

// WithOnExit installs a shell-exit callback for spawned sessions.
func WithOnExit(fn func(id string)) Option {
	return func(o *Options) {
		o.OnExit = fn
	}
}

// WithSize sets the spawned PTY size.
func WithSize(width, height int) Option {
	return func(o *Options) {
		o.Width = width
		o.Height = height
	}
}

// WithUserConfig overrides the on-disk configuration.
func WithUserConfig(cfg *config.UserConfig) Option {
	return func(o *Options) {
		o.UserConfig = cfg
	}
}

// NewSession creates a session fed externally through HandleChunk.
func NewSession(opts ...Option) *Session {
	return session.New(buildOptions(opts))
}

// NewShellSession creates a session and spawns a shell on its own PTY.
func NewShellSession(opts ...Option) (*Session, error) {
	return session.NewShell(buildOptions(opts))
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return session.NewManager()
}

// buildOptions applies functional options on top of the user config file.
func buildOptions(opts []Option) session.Options {
	var options Options
	for _, opt := range opts {
		opt(&options)
	}

	cfg := options.UserConfig
	if cfg == nil {
		var err error
		cfg, err = config.LoadUserConfig()
		if err != nil {
			cfg = config.DefaultConfig()
		}
	}

	out := session.Options{
		MaxMarkers:      cfg.Markers.MaxMarkers,
		LineBufferLines: cfg.Markers.LineBuffer,
		Shell:           cfg.Shell.PreferredShell,
		CaptureTimeout:  cfg.CaptureTimeout(),
		CaptureDebounce: cfg.CaptureDebounce(),
		MarkerCallbacks: options.MarkerCallbacks,
		Input:           options.Input,
		OnExit:          options.OnExit,
		Width:           options.Width,
		Height:          options.Height,
	}
	if options.MaxMarkers > 0 {
		out.MaxMarkers = options.MaxMarkers
	}
	if options.LineBufferLines > 0 {
		out.LineBufferLines = options.LineBufferLines
	}
	if options.Shell != "" {
		out.Shell = options.Shell
	}
	if options.CaptureTimeout > 0 {
		out.CaptureTimeout = options.CaptureTimeout
	}
	if options.CaptureDebounce > 0 {
		out.CaptureDebounce = options.CaptureDebounce
	}
	return out
}

// Config re-exports the config package so embedders can manage the
// configuration file without importing internal packages.
var Config = struct {
	// LoadUserConfig loads the user's configuration file.
	LoadUserConfig func() (*config.UserConfig, error)
	// DefaultConfig returns the default configuration.
	DefaultConfig func() *config.UserConfig
	// GetConfigPath returns the path to the configuration file.
	GetConfigPath func() (string, error)
}{
	LoadUserConfig: config.LoadUserConfig,
	DefaultConfig:  config.DefaultConfig,
	GetConfigPath:  config.GetConfigPath,
}

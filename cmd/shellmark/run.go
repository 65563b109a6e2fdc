package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	lipgloss "charm.land/lipgloss/v2"
	"github.com/charmbracelet/colorprofile"
	"golang.org/x/term"

	"github.com/Gaurav-Gosain/shellmark/internal/capture"
	"github.com/Gaurav-Gosain/shellmark/internal/osc"
	"github.com/Gaurav-Gosain/shellmark/internal/session"
	"github.com/Gaurav-Gosain/shellmark/pkg/shellmark"
)

// enableDebugLogging routes the internal debug hooks to a log file.
func enableDebugLogging() {
	f, err := os.OpenFile("/tmp/shellmark-debug.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	logger := log.New(f, "", log.Ltime|log.Lmicroseconds)
	hook := func(format string, args ...any) {
		logger.Printf(format, args...)
	}
	osc.DebugLogFunc = hook
	capture.DebugLogFunc = hook
	session.DebugLogFunc = hook
}

func runInteractive() error {
	if debugMode {
		enableDebugLogging()
	}

	stdinFd := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFd) {
		return fmt.Errorf("stdin is not a terminal")
	}

	width, height, err := term.GetSize(stdinFd)
	if err != nil {
		width, height = 80, 24
	}

	exited := make(chan struct{})
	opts := []shellmark.Option{
		shellmark.WithSize(width, height),
		shellmark.WithOnExit(func(string) { close(exited) }),
	}
	if shellOverride != "" {
		opts = append(opts, shellmark.WithShell(shellOverride))
	}
	if maxMarkers > 0 {
		opts = append(opts, shellmark.WithMaxMarkers(maxMarkers))
	}

	sess := shellmark.NewSession(opts...)
	defer sess.Close()

	var record *os.File
	if recordPath != "" {
		record, err = os.Create(recordPath)
		if err != nil {
			return fmt.Errorf("create recording: %w", err)
		}
		defer func() {
			if closeErr := record.Close(); closeErr != nil {
				log.Printf("Warning: failed to close recording: %v", closeErr)
			}
		}()
	}

	oldState, err := term.MakeRaw(stdinFd)
	if err != nil {
		return fmt.Errorf("enter raw mode: %w", err)
	}
	defer func() {
		_ = term.Restore(stdinFd, oldState)
	}()

	// Mirror session output to our terminal (and the recording). Registered
	// before the shell starts so its first output is not lost.
	sub := sess.Subscribe()
	defer sub.Cancel()
	go func() {
		for {
			select {
			case chunk := <-sub.Chunks():
				_, _ = os.Stdout.Write(chunk)
				if record != nil {
					_, _ = record.Write(chunk)
				}
			case <-sub.Done():
				return
			}
		}
	}()

	if err := sess.StartShell(); err != nil {
		_ = term.Restore(stdinFd, oldState)
		return fmt.Errorf("start shell: %w", err)
	}

	// Forward our stdin to the shell. The goroutine leaks a blocked Read on
	// teardown; the process is exiting anyway.
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				if werr := sess.Write(buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGWINCH)
	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGWINCH {
				if w, h, sizeErr := term.GetSize(stdinFd); sizeErr == nil {
					_ = sess.Resize(w, h)
				}
				continue
			}
			_ = term.Restore(stdinFd, oldState)
			return nil
		case <-exited:
			_ = term.Restore(stdinFd, oldState)
			printHistoryTable(sess)
			return nil
		}
	}
}

// printHistoryTable renders the session's command history after the shell
// exits, newest last, through a color-downsampling writer so it degrades
// gracefully on dumb terminals.
func printHistoryTable(sess *shellmark.Session) {
	entries := sess.History(20)
	if len(entries) == 0 {
		return
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	w := colorprofile.NewWriter(os.Stdout, os.Environ())

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, headerStyle.Render("Session history")+
		dimStyle.Render("  ("+sess.HostLabel()+")"))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		status := dimStyle.Render("  ...")
		if e.ExitCode != nil {
			if *e.ExitCode == 0 {
				status = okStyle.Render("    0")
			} else {
				status = failStyle.Render(fmt.Sprintf("%5d", *e.ExitCode))
			}
		}
		command := e.CommandText
		if command == "" {
			command = dimStyle.Render("(prompt)")
		}
		_, _ = fmt.Fprintf(w, "  %s  %s  %s\n",
			status,
			dimStyle.Render(e.Timestamp.Format("15:04:05")),
			command)
	}
}

func runExec(ctx context.Context, command string, timeout time.Duration) error {
	if debugMode {
		enableDebugLogging()
	}

	opts := []shellmark.Option{}
	if shellOverride != "" {
		opts = append(opts, shellmark.WithShell(shellOverride))
	}

	sess, err := shellmark.NewShellSession(opts...)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.Close()

	res, err := sess.Capture(ctx, command, timeout)
	if err != nil {
		return fmt.Errorf("capture %q: %w", command, err)
	}

	if res.Output != "" {
		fmt.Println(res.Output)
	}
	if res.ExitCode != 0 {
		_ = sess.Close()
		os.Exit(res.ExitCode)
	}
	return nil
}

// feedRecording replays a raw session recording through a fresh decoder.
func feedRecording(path string) (*shellmark.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recording: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("recording %s is empty", path)
	}

	sess := shellmark.NewSession()
	// Feed in PTY-sized chunks so the decoder sees a realistic stream.
	for len(data) > 0 {
		n := min(4096, len(data))
		sess.HandleChunk(data[:n])
		data = data[n:]
	}
	return sess, nil
}

// commandLabel is a one-line display form of a history entry.
func commandLabel(e shellmark.HistoryEntry) string {
	command := strings.TrimSpace(e.CommandText)
	if command == "" {
		command = "(prompt)"
	}
	return command
}

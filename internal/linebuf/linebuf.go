// Package linebuf keeps a bounded buffer of plain-text output lines so that
// marker ranges can be resolved back into text. It consumes the same raw
// chunks as the escape decoder, dropping escape sequences and applying
// carriage-return overwrites the way a terminal would.
package linebuf

import (
	"strings"
	"sync"

	"github.com/Gaurav-Gosain/shellmark/internal/config"
)

type state int

const (
	stGround state = iota
	stEscape
	stCSI
	stOSC
	stOSCEscape
)

// Buffer is a bounded line buffer. Line indices are relative to the oldest
// retained line; Feed reports how many lines were trimmed so callers can
// rebase anything holding line numbers.
type Buffer struct {
	mu    sync.Mutex
	lines []string
	cur   []byte
	col   int
	max   int
	st    state
}

// New creates a buffer retaining at most maxLines lines (clamped to the
// configured minimum).
func New(maxLines int) *Buffer {
	return &Buffer{
		lines: make([]string, 0, 256),
		max:   config.ClampLineBufferLines(maxLines),
	}
}

// Feed consumes one raw chunk and returns the number of lines trimmed off
// the head of the buffer to stay within capacity.
func (b *Buffer) Feed(chunk []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, c := range chunk {
		switch b.st {
		case stGround:
			b.consume(c)
		case stEscape:
			switch c {
			case '[':
				b.st = stCSI
			case ']':
				b.st = stOSC
			default:
				// Two-byte escape (charset selection etc.), done.
				b.st = stGround
			}
		case stCSI:
			// CSI ends on a final byte in 0x40-0x7E.
			if c >= 0x40 && c <= 0x7e {
				b.st = stGround
			}
		case stOSC:
			switch c {
			case 0x07:
				b.st = stGround
			case 0x1b:
				b.st = stOSCEscape
			}
		case stOSCEscape:
			if c == '\\' {
				b.st = stGround
			} else {
				b.st = stOSC
			}
		}
	}

	// Trim from the head, keeping the in-progress line intact.
	trimmed := 0
	if total := len(b.lines) + 1; total > b.max {
		trimmed = total - b.max
		b.lines = append(b.lines[:0], b.lines[trimmed:]...)
	}
	return trimmed
}

// consume handles one visible byte.
func (b *Buffer) consume(c byte) {
	switch c {
	case 0x1b:
		b.st = stEscape
	case '\n':
		b.lines = append(b.lines, string(b.cur))
		b.cur = b.cur[:0]
		b.col = 0
	case '\r':
		b.col = 0
	case '\b':
		if b.col > 0 {
			b.col--
		}
	case 0x07:
		// stray BEL
	default:
		if c < 0x20 && c != '\t' {
			return
		}
		if b.col < len(b.cur) {
			b.cur[b.col] = c
		} else {
			for len(b.cur) < b.col {
				b.cur = append(b.cur, ' ')
			}
			b.cur = append(b.cur, c)
		}
		b.col++
	}
}

// LastLine returns the index of the current (last) line.
func (b *Buffer) LastLine() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// Line returns the text of one line. The in-progress line is readable at
// index LastLine().
func (b *Buffer) Line(n int) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case n < 0 || n > len(b.lines):
		return "", false
	case n == len(b.lines):
		return strings.TrimRight(string(b.cur), " "), true
	default:
		return strings.TrimRight(b.lines[n], " "), true
	}
}

// Text joins the lines in [from, to] (inclusive, clamped) with newlines.
func (b *Buffer) Text(from, to int) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	last := len(b.lines)
	if from < 0 {
		from = 0
	}
	if to > last {
		to = last
	}
	if to < from {
		return ""
	}

	parts := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		if i == last {
			parts = append(parts, strings.TrimRight(string(b.cur), " "))
		} else {
			parts = append(parts, strings.TrimRight(b.lines[i], " "))
		}
	}
	return strings.Join(parts, "\n")
}

package main

import (
	"fmt"
	"strings"

	tea "charm.land/bubbletea/v2"
	lipgloss "charm.land/lipgloss/v2"

	"github.com/Gaurav-Gosain/shellmark/pkg/shellmark"
)

// replayModel browses the commands of a recorded session: a selectable list
// on top, the selected command's output below.
type replayModel struct {
	sess     *shellmark.Session
	entries  []shellmark.HistoryEntry
	selected int
	width    int
	height   int
}

func newReplayModel(sess *shellmark.Session) *replayModel {
	entries := sess.History(0)
	// History is newest-first; a replay reads top to bottom.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return &replayModel{sess: sess, entries: entries, selected: len(entries) - 1}
}

func (m *replayModel) Init() tea.Cmd {
	return nil
}

func (m *replayModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tea.KeyPressMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.entries)-1 {
				m.selected++
			}
		case "g", "home":
			m.selected = 0
		case "G", "end":
			m.selected = len(m.entries) - 1
		}
	}
	return m, nil
}

func (m *replayModel) View() tea.View {
	var view tea.View
	view.AltScreen = true

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	selectedStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 1)
	normalStyle := lipgloss.NewStyle().Padding(0, 1)
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	outputStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("8")).
		Padding(0, 1)

	var lines []string
	lines = append(lines, titleStyle.Render("Replay")+
		dimStyle.Render(fmt.Sprintf("  %d commands", len(m.entries))))
	lines = append(lines, "")

	if len(m.entries) == 0 {
		lines = append(lines, dimStyle.Render("No command boundaries in this recording."))
		lines = append(lines, "")
		lines = append(lines, dimStyle.Render("The recorded shell must emit OSC 133 sequences (see shell integration docs)."))
		view.SetContent(strings.Join(lines, "\n"))
		return view
	}

	// Keep the selection visible in a window of list rows.
	listRows := max(m.height/3, 5)
	first := 0
	if m.selected >= listRows {
		first = m.selected - listRows + 1
	}
	for i := first; i < len(m.entries) && i < first+listRows; i++ {
		e := m.entries[i]
		status := dimStyle.Render("...")
		if e.ExitCode != nil {
			if *e.ExitCode == 0 {
				status = okStyle.Render("ok")
			} else {
				status = failStyle.Render(fmt.Sprintf("%d", *e.ExitCode))
			}
		}
		row := fmt.Sprintf("%-3s %s", status, commandLabel(e))
		if i == m.selected {
			lines = append(lines, selectedStyle.Render(row))
		} else {
			lines = append(lines, normalStyle.Render(row))
		}
	}

	lines = append(lines, "")
	output, err := m.sess.Range(m.entries[m.selected].MarkerID, shellmark.RangeOutput)
	switch {
	case err != nil:
		lines = append(lines, dimStyle.Render("output no longer retained"))
	case output == "":
		lines = append(lines, dimStyle.Render("no output"))
	default:
		outLines := strings.Split(output, "\n")
		maxOut := max(m.height-len(lines)-4, 3)
		if len(outLines) > maxOut {
			outLines = append(outLines[:maxOut], dimStyle.Render("..."))
		}
		lines = append(lines, outputStyle.Render(strings.Join(outLines, "\n")))
	}

	lines = append(lines, "")
	lines = append(lines, dimStyle.Render("j/k Move  g/G First/Last  q Quit"))

	view.SetContent(strings.Join(lines, "\n"))
	return view
}

func runReplay(path string) error {
	if debugMode {
		enableDebugLogging()
	}

	sess, err := feedRecording(path)
	if err != nil {
		return err
	}
	defer sess.Close()

	p := tea.NewProgram(newReplayModel(sess))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("replay browser: %w", err)
	}
	return nil
}

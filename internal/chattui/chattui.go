// Package chattui is the single-screen outline-review prompt shown
// during a chat conversation's AWAITING_FEEDBACK pause (spec §4.O): it
// displays the current outline and collects a free-text or /k, /r
// feedback line, grounded on the teacher's internal/tui model/Update/
// View shape and lipgloss color palette, scaled down to the one screen
// this engine needs.
package chattui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("105"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	normalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("71"))
)

type model struct {
	outline   string
	input     string
	cancelled bool
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch keyMsg.String() {
	case "ctrl+c", "esc":
		m.cancelled = true
		return m, tea.Quit
	case "enter":
		return m, tea.Quit
	case "backspace":
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
	default:
		if len(keyMsg.String()) == 1 {
			m.input += keyMsg.String()
		}
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Research outline") + "\n\n")
	b.WriteString(normalStyle.Render(m.outline) + "\n\n")
	b.WriteString(headerStyle.Render("Feedback") + "\n")
	b.WriteString(statusStyle.Render("Type /k <topics> to keep only those, /r <topics> to remove and replace, or free text. Enter to submit, Esc to cancel.") + "\n\n")
	b.WriteString("> " + m.input)
	if m.cancelled {
		b.WriteString("\n\n" + errorStyle.Render("cancelled"))
	}
	return b.String()
}

// ReviewOutline renders outline and blocks for one line of feedback.
// ok is false if the user cancelled (ctrl+c/esc) rather than submitted.
func ReviewOutline(outline string) (feedback string, ok bool, err error) {
	program := tea.NewProgram(model{outline: outline})
	final, err := program.Run()
	if err != nil {
		return "", false, fmt.Errorf("run outline review: %w", err)
	}
	m := final.(model)
	return m.input, !m.cancelled, nil
}

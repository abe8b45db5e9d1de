package output

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles used by a renderer.
type Styles struct {
	Header  lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}

func newStyles(lr *lipgloss.Renderer) *Styles {
	return &Styles{
		Header:  lr.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Bold:    lr.NewStyle().Bold(true),
		Muted:   lr.NewStyle().Foreground(lipgloss.Color("8")),
		Success: lr.NewStyle().Foreground(lipgloss.Color("10")),
		Warning: lr.NewStyle().Foreground(lipgloss.Color("11")),
		Error:   lr.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

// State returns the style for a condition state.
func (s *Styles) State(state string) lipgloss.Style {
	switch state {
	case "evaluated":
		return s.Success
	case "failed":
		return s.Error
	case "invalid":
		return s.Warning
	default:
		return s.Muted
	}
}

// Severity returns the style for a report entry severity.
func (s *Styles) Severity(sev string) lipgloss.Style {
	if sev == "warning" {
		return s.Warning
	}
	return s.Error
}

// Status returns the style for a run status.
func (s *Styles) Status(status string) lipgloss.Style {
	switch status {
	case "completed":
		return s.Success
	case "failed":
		return s.Error
	case "cancelled":
		return s.Warning
	default:
		return s.Muted
	}
}

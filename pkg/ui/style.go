package ui

import "github.com/charmbracelet/lipgloss"

type Style struct {
	Header           lipgloss.Style
	Subtitle         lipgloss.Style
	UserMessage      lipgloss.Style
	AssistantMessage lipgloss.Style
	Placeholder      lipgloss.Style
	Typing           lipgloss.Style
	FocusedInput     lipgloss.Style
	DisabledInput    lipgloss.Style
	Error            lipgloss.Style
	Status           lipgloss.Style
}

func DefaultStyles() *Style {
	return &Style{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")),
		Subtitle: lipgloss.NewStyle().
			Faint(true),
		UserMessage: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1),
		AssistantMessage: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("205")).
			Padding(0, 1),
		Placeholder: lipgloss.NewStyle().
			Faint(true).
			Padding(1, 2),
		Typing: lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Padding(0, 2),
		FocusedInput: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")),
		DisabledInput: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")),
		Error: lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")),
		Status: lipgloss.NewStyle().
			Faint(true),
	}
}

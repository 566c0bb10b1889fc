package main

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "63", Dark: "205"})

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "240", Dark: "250"})

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "160", Dark: "9"}).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "34", Dark: "10"}).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "172", Dark: "214"})

	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func okMark() string   { return successStyle.Render("✓") }
func failMark() string { return errorStyle.Render("✗") }
func warnMark() string { return warnStyle.Render("⚠") }

// statusStyle colorea un estado krak u outcome
func statusStyle(s string) lipgloss.Style {
	switch s {
	case "kraked", "apply", "completed":
		return successStyle
	case "abort_batch", "aborted":
		return errorStyle
	case "ineligible", "skip_item":
		return mutedStyle
	default:
		return warnStyle
	}
}

// newTable arma una tabla con bordes redondeados y el header dado
func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

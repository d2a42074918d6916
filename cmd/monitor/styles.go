package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Style definitions.
var (
	// TitleStyle for headers.
	TitleStyle = lipgloss.NewStyle().Bold(true)

	// HelpStyle for help text.
	HelpStyle = lipgloss.NewStyle().Faint(true)

	// ErrorStyle for error messages.
	ErrorStyle = lipgloss.NewStyle().Bold(true)
)

// FormatProfit formats an account-currency amount with a direction marker.
func FormatProfit(amount float64) string {
	formatted := fmt.Sprintf("%.2f", amount)

	if amount > 0 {
		return formatted + " ▲"
	} else if amount < 0 {
		return formatted + " ▼"
	}

	return formatted
}

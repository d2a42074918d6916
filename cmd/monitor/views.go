package main

import (
	"fmt"
	"strings"
)

// View implements tea.Model.
func (m Model) View() string {
	switch m.state {
	case StateConfigInput:
		return m.viewConfigInput()
	case StatePreloading:
		return m.viewPreloading()
	case StateRunning:
		return m.viewRunning()
	case StateDone:
		return m.viewDone()
	}

	return ""
}

func (m Model) viewConfigInput() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("Replay Monitor"))
	b.WriteString("\n\nConfig file:\n")
	b.WriteString(m.configInput.View())
	b.WriteString("\n\n")
	b.WriteString(HelpStyle.Render("enter: start replay • ctrl+c: quit"))

	return b.String()
}

func (m Model) viewPreloading() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("Preloading cache"))
	b.WriteString("\n\n")
	b.WriteString(m.preload.ViewAs(m.preloadPct))
	b.WriteString("\n")

	if m.preloadMsg != "" {
		b.WriteString(m.preloadMsg)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("q: abort"))

	return b.String()
}

func (m Model) viewRunning() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("Replaying "))
	b.WriteString(m.spin.View())
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("Step      %d\n", m.step))

	if !m.simTime.IsZero() {
		b.WriteString(fmt.Sprintf("Sim time  %s\n", m.simTime.Format("2006-01-02 15:04:05")))
	}

	b.WriteString(fmt.Sprintf("Balance   %.2f\n", m.accountNow.Balance))
	b.WriteString(fmt.Sprintf("Equity    %.2f\n", m.accountNow.Equity))
	b.WriteString(fmt.Sprintf("Floating  %s\n", FormatProfit(m.accountNow.FloatingPnL)))
	b.WriteString(fmt.Sprintf("Open      %d\n", m.accountNow.OpenPositions))
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("q: abort"))

	return b.String()
}

func (m Model) viewDone() string {
	var b strings.Builder

	if m.err != nil {
		b.WriteString(ErrorStyle.Render("Replay failed"))
		b.WriteString("\n\n")
		b.WriteString(m.err.Error())
		b.WriteString("\n\n")
		b.WriteString(HelpStyle.Render("q: quit"))

		return b.String()
	}

	b.WriteString(TitleStyle.Render("Replay finished"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("%-12s %8s %8s %10s\n", "SYMBOL", "TRADES", "WIN%", "PROFIT"))

	for _, s := range m.finalStats {
		b.WriteString(fmt.Sprintf("%-12s %8d %7.1f%% %10s\n",
			s.Symbol,
			s.Summary.NumberOfTrades,
			s.Summary.WinRate*100,
			FormatProfit(s.Summary.TotalProfit)))
	}

	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("q: quit"))

	return b.String()
}

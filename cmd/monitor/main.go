package main

import (
	"flag"
	"log"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	results := flag.String("results", "results", "directory replay results are written to")
	flag.Parse()

	m := NewModel(*results)
	p := tea.NewProgram(m, tea.WithAltScreen())
	program = p

	if _, err := p.Run(); err != nil {
		log.Fatalf("monitor crashed: %v", err)
	}
}

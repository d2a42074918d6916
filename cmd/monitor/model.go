package main

import (
	"context"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	engine "github.com/rxtech-lab/argo-replay/internal/replay/engine_v1"
	"github.com/rxtech-lab/argo-replay/internal/replay/engine_v1/venue"
	"github.com/rxtech-lab/argo-replay/internal/types"
)

// Application states.
const (
	StateConfigInput = iota
	StatePreloading
	StateRunning
	StateDone
)

// progressEvery is how many steps pass between progress messages; sending
// one per step would flood the UI on long replays.
const progressEvery = 250

// Model is the main Bubble Tea model for the replay monitor.
type Model struct {
	state       int
	configInput textinput.Model
	preload     progress.Model
	spin        spinner.Model

	configPath string
	results    string

	preloadPct  float64
	preloadMsg  string
	step        uint64
	simTime     time.Time
	accountNow  types.AccountStatistics
	finalStats  []types.ReplayStats
	err         error
	width       int
	height      int

	replayCtx    context.Context
	replayCancel context.CancelFunc
}

// program is the running tea.Program, set by main before Run. The replay
// goroutine sends messages through it; nil (as in tests) drops them.
var program *tea.Program

// NewModel creates a new Model with initial state.
func NewModel(results string) Model {
	input := textinput.New()
	input.Placeholder = "path/to/replay_config.yaml"
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		state:       StateConfigInput,
		configInput: input,
		preload:     progress.New(progress.WithDefaultGradient()),
		spin:        sp,
		results:     results,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if m.replayCancel != nil {
				m.replayCancel()
			}
			return m, tea.Quit
		case "q":
			// Only quit on 'q' if not in text input mode
			if m.state != StateConfigInput {
				if m.replayCancel != nil {
					m.replayCancel()
				}
				return m, tea.Quit
			}
		case "enter":
			if m.state == StateConfigInput {
				return m.startReplay()
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.preload.Width = msg.Width - 4
		return m, nil

	case PreloadMsg:
		if msg.Total > 0 {
			m.preloadPct = msg.Current / msg.Total
		}
		m.preloadMsg = msg.Message
		return m, nil

	case ReplayProgressMsg:
		m.state = StateRunning
		m.step = msg.Step
		m.simTime = msg.SimTime
		m.accountNow = msg.Stats
		return m, nil

	case ReplayDoneMsg:
		m.state = StateDone
		m.finalStats = msg.Stats
		return m, nil

	case ReplayErrorMsg:
		m.state = StateDone
		m.err = msg.Err
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	if m.state == StateConfigInput {
		var cmd tea.Cmd
		m.configInput, cmd = m.configInput.Update(msg)
		return m, cmd
	}

	return m, nil
}

// startReplay validates the entered config path and launches the replay
// goroutine. UI updates arrive as messages through m.program.
func (m Model) startReplay() (tea.Model, tea.Cmd) {
	path := strings.TrimSpace(m.configInput.Value())
	if path == "" {
		return m, nil
	}

	m.configPath = path
	m.state = StatePreloading
	m.replayCtx, m.replayCancel = context.WithCancel(context.Background())

	go m.runReplay(m.replayCtx, path)

	return m, m.spin.Tick
}

// runReplay drives the engine off the UI goroutine, reporting through the
// program's message queue.
func (m *Model) runReplay(ctx context.Context, configPath string) {
	send := func(msg tea.Msg) {
		if program != nil {
			program.Send(msg)
		}
	}

	config, err := os.ReadFile(configPath)
	if err != nil {
		send(ReplayErrorMsg{Err: err})
		return
	}

	e := engine.NewReplayEngineV1()
	defer e.Cleanup()

	if err := e.Initialize(string(config)); err != nil {
		send(ReplayErrorMsg{Err: err})
		return
	}

	if err := e.SetResultsFolder(m.results); err != nil {
		send(ReplayErrorMsg{Err: err})
		return
	}

	err = e.Preload(ctx, func(current float64, total float64, message string) {
		send(PreloadMsg{Current: current, Total: total, Message: message})
	})
	if err != nil {
		send(ReplayErrorMsg{Err: err})
		return
	}

	var steps atomic.Uint64

	err = e.Run(ctx, func(ctx context.Context, v *venue.Venue, symbol string, snap *venue.StepSnapshot) error {
		n := steps.Add(1)
		if n%progressEvery == 0 {
			send(ReplayProgressMsg{Step: snap.Step, SimTime: snap.Time, Stats: v.GetStatistics()})
		}

		return nil
	})
	if err != nil {
		send(ReplayErrorMsg{Err: err})
		return
	}

	stats, err := e.WriteResults()
	if err != nil {
		send(ReplayErrorMsg{Err: err})
		return
	}

	send(ReplayDoneMsg{Stats: stats})
}

package main

import (
	"time"

	"github.com/rxtech-lab/argo-replay/internal/types"
)

// PreloadMsg carries cache preload progress from the engine.
type PreloadMsg struct {
	Current float64
	Total   float64
	Message string
}

// ReplayProgressMsg carries a periodic account snapshot during the replay.
type ReplayProgressMsg struct {
	Step    uint64
	SimTime time.Time
	Stats   types.AccountStatistics
}

// ReplayDoneMsg signals the replay finished and results were written.
type ReplayDoneMsg struct {
	Stats []types.ReplayStats
}

// ReplayErrorMsg indicates the replay aborted.
type ReplayErrorMsg struct {
	Err error
}

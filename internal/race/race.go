package race

import (
	"math"
	"time"
)

// Status is the lifecycle state of the current race.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
)

// Track identifies one of the two physical lanes.
type Track int

const (
	Track1 Track = 1
	Track2 Track = 2
)

type trackState struct {
	lapStart time.Time // zero means no lap in progress
	laps     []float64
}

// State holds all race bookkeeping: the status and per-track lap data.
//
// State is not safe for concurrent use. It has exactly one writer domain;
// the coordinator serializes every mutation behind its own lock.
type State struct {
	status Status
	tracks map[Track]*trackState
}

// NewState creates an idle state with empty tracks.
func NewState() *State {
	s := &State{}
	s.Reset()
	return s
}

// Reset returns the state to idle and clears both tracks. It is always valid,
// regardless of the current status.
func (s *State) Reset() {
	s.status = StatusIdle
	s.tracks = map[Track]*trackState{
		Track1: {laps: []float64{}},
		Track2: {laps: []float64{}},
	}
}

// Status returns the current race status.
func (s *State) Status() Status {
	return s.status
}

// Start transitions to running. Returns ErrRaceAlreadyRunning if a race is
// already in progress. Lap timing is not armed here; that happens at
// lights-out via ArmLap.
func (s *State) Start() error {
	if s.status == StatusRunning {
		return ErrRaceAlreadyRunning
	}
	s.status = StatusRunning
	return nil
}

// ArmLap stamps the first-lap start time on both tracks. Called exactly once
// per race, at the lights-out instant.
func (s *State) ArmLap(start time.Time) {
	for _, ts := range s.tracks {
		ts.lapStart = start
	}
}

// RecordFinish closes the current lap on the given track and arms the next
// one. It returns the lap duration in seconds and true if a lap was recorded.
// Finish events outside a running race, or before ArmLap, are dropped; that
// is a normal occurrence for spurious sensor triggers, not an error.
func (s *State) RecordFinish(track Track, observedAt time.Time) (float64, bool) {
	if s.status != StatusRunning {
		return 0, false
	}
	ts, ok := s.tracks[track]
	if !ok || ts.lapStart.IsZero() {
		return 0, false
	}
	lap := roundSeconds(observedAt.Sub(ts.lapStart))
	ts.laps = append(ts.laps, lap)
	ts.lapStart = observedAt
	return lap, true
}

// Stop ends a running race and returns the final summary. While idle or
// finished it is a no-op returning false.
func (s *State) Stop() (Summary, bool) {
	if s.status != StatusRunning {
		return Summary{}, false
	}
	s.status = StatusFinished
	for _, ts := range s.tracks {
		ts.lapStart = time.Time{}
	}
	return Summary{
		Track1Laps:    s.lapsCopy(Track1),
		Track2Laps:    s.lapsCopy(Track2),
		Track1Fastest: fastest(s.tracks[Track1].laps),
		Track2Fastest: fastest(s.tracks[Track2].laps),
	}, true
}

// Snapshot returns a read-only projection of the current state, used to catch
// up viewers that join mid-race.
func (s *State) Snapshot() View {
	return View{
		Status:        s.status,
		Track1Laps:    s.lapsCopy(Track1),
		Track2Laps:    s.lapsCopy(Track2),
		Track1LastLap: lastLap(s.tracks[Track1].laps),
		Track2LastLap: lastLap(s.tracks[Track2].laps),
	}
}

func (s *State) lapsCopy(track Track) []float64 {
	laps := s.tracks[track].laps
	out := make([]float64, len(laps))
	copy(out, laps)
	return out
}

// Summary is the final result of a stopped race. Fastest laps are 0 when a
// track completed no laps.
type Summary struct {
	Track1Laps    []float64
	Track2Laps    []float64
	Track1Fastest float64
	Track2Fastest float64
}

// View is a read-only projection of the race state. Last laps are 0 when a
// track completed no laps.
type View struct {
	Status        Status
	Track1Laps    []float64
	Track2Laps    []float64
	Track1LastLap float64
	Track2LastLap float64
}

func fastest(laps []float64) float64 {
	if len(laps) == 0 {
		return 0
	}
	best := laps[0]
	for _, lap := range laps[1:] {
		if lap < best {
			best = lap
		}
	}
	return best
}

func lastLap(laps []float64) float64 {
	if len(laps) == 0 {
		return 0
	}
	return laps[len(laps)-1]
}

// roundSeconds converts a duration to seconds at millisecond precision,
// matching the 3-decimal display format on the dashboard.
func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}

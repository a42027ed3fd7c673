package protocol

import "github.com/da-stoaz/carrera-dash/internal/race"

// Inbound viewer command tokens. Anything else on the wire is ignored.
const (
	CommandStart = "start"
	CommandStop  = "stop"
	CommandReset = "reset"
)

// Message type discriminators.
const (
	TypeFullState    = "full_state"
	TypeReset        = "reset"
	TypeLight        = "light"
	TypeLightsOut    = "lights_out"
	TypeStartRace    = "start_race"
	TypeLapFinish    = "lap_finish"
	TypeRaceFinished = "race_finished"
	TypeError        = "error"
)

// Message is implemented by every outbound record. MessageType returns the
// "type" discriminator, used for logging and per-type metrics.
type Message interface {
	MessageType() string
}

// FullState carries the complete race state. Sent once, only to a newly
// joined viewer, so it can catch up mid-race.
type FullState struct {
	Type          string      `json:"type"`
	Status        race.Status `json:"status"`
	Track1Laps    []float64   `json:"track_1_laps"`
	Track2Laps    []float64   `json:"track_2_laps"`
	Track1LastLap float64     `json:"track_1_last_lap"`
	Track2LastLap float64     `json:"track_2_last_lap"`
}

// Reset instructs viewers to clear their UI.
type Reset struct {
	Type string `json:"type"`
}

// Light reports one countdown light turning on.
type Light struct {
	Type    string `json:"type"`
	LightID int    `json:"light_id"`
	State   string `json:"state"`
}

// LightsOut marks the end of the countdown hold.
type LightsOut struct {
	Type string `json:"type"`
}

// StartRace tells viewers to start their local lap timers.
type StartRace struct {
	Type string `json:"type"`
}

// LapFinish reports one completed lap.
type LapFinish struct {
	Type       string     `json:"type"`
	Track      race.Track `json:"track"`
	LapTimeSec float64    `json:"lap_time_sec"`
}

// RaceFinished carries the final summary of a stopped race.
type RaceFinished struct {
	Type          string    `json:"type"`
	Track1Laps    []float64 `json:"track_1_laps"`
	Track2Laps    []float64 `json:"track_2_laps"`
	Track1Fastest float64   `json:"track_1_fastest"`
	Track2Fastest float64   `json:"track_2_fastest"`
}

// Error notifies viewers of a degraded server condition, e.g. sensor bus loss.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (m FullState) MessageType() string    { return m.Type }
func (m Reset) MessageType() string        { return m.Type }
func (m Light) MessageType() string        { return m.Type }
func (m LightsOut) MessageType() string    { return m.Type }
func (m StartRace) MessageType() string    { return m.Type }
func (m LapFinish) MessageType() string    { return m.Type }
func (m RaceFinished) MessageType() string { return m.Type }
func (m Error) MessageType() string        { return m.Type }

func NewFullState(v race.View) FullState {
	return FullState{
		Type:          TypeFullState,
		Status:        v.Status,
		Track1Laps:    v.Track1Laps,
		Track2Laps:    v.Track2Laps,
		Track1LastLap: v.Track1LastLap,
		Track2LastLap: v.Track2LastLap,
	}
}

func NewReset() Reset {
	return Reset{Type: TypeReset}
}

func NewLight(lightID int) Light {
	return Light{Type: TypeLight, LightID: lightID, State: "on"}
}

func NewLightsOut() LightsOut {
	return LightsOut{Type: TypeLightsOut}
}

func NewStartRace() StartRace {
	return StartRace{Type: TypeStartRace}
}

func NewLapFinish(track race.Track, lapTimeSec float64) LapFinish {
	return LapFinish{Type: TypeLapFinish, Track: track, LapTimeSec: lapTimeSec}
}

func NewRaceFinished(s race.Summary) RaceFinished {
	return RaceFinished{
		Type:          TypeRaceFinished,
		Track1Laps:    s.Track1Laps,
		Track2Laps:    s.Track2Laps,
		Track1Fastest: s.Track1Fastest,
		Track2Fastest: s.Track2Fastest,
	}
}

func NewError(message string) Error {
	return Error{Type: TypeError, Message: message}
}

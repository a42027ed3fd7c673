package race

import "errors"

// ErrRaceAlreadyRunning is returned by Start while a race is in progress.
var ErrRaceAlreadyRunning = errors.New("race already running")

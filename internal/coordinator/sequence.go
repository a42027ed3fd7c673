package coordinator

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/da-stoaz/carrera-dash/internal/metrics"
	"github.com/da-stoaz/carrera-dash/internal/protocol"
	"github.com/da-stoaz/carrera-dash/internal/race"
)

const (
	lightCount        = 5
	lightStepInterval = 1 * time.Second
	holdMin           = 1 * time.Second
	holdMax           = 4 * time.Second
)

// defaultRandomHold draws the post-countdown hold uniformly from [1s, 4s).
func defaultRandomHold() time.Duration {
	return holdMin + rand.N(holdMax-holdMin)
}

// runLightSequence drives one countdown: five lights a second apart, a
// randomized hold, then lights-out. Every broadcast and the final arm step
// revalidate gen under the coordinator mutex; a stale generation discards
// the rest of the sequence without touching state.
func (c *Coordinator) runLightSequence(ctx context.Context, gen uint64) {
	for lightID := 1; lightID <= lightCount; lightID++ {
		if !c.sleep(ctx, lightStepInterval) {
			c.abortSequence(gen, "shutdown")
			return
		}
		if !c.broadcastLight(gen, lightID) {
			return
		}
	}

	if !c.sleep(ctx, c.randomHold()) {
		c.abortSequence(gen, "shutdown")
		return
	}

	c.lightsOut(ctx, gen)
}

// lightsOut performs the atomic start-of-race step: broadcast lights_out,
// arm both lap timers, publish the bus "go" signal, broadcast start_race.
// Order matters: viewers must see lights_out before start_race, and
// start_race before any lap_finish.
func (c *Coordinator) lightsOut(ctx context.Context, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || c.state.Status() != race.StatusRunning {
		slog.Debug("Discarding stale light sequence", "generation", gen, "current", c.generation)
		return
	}

	c.viewers.Publish(protocol.NewLightsOut())

	start := c.clock.Now()
	c.state.ArmLap(start)

	if err := c.control.PublishRaceStart(ctx); err != nil {
		// The sensor bridge never got the go signal; leaving the race
		// armed would strand viewers in a running-but-unlit state.
		slog.Error("Failed to publish race start, aborting race", "error", err)
		metrics.SequenceAbortsTotal.Inc()
		c.countingDown = false
		c.state.Reset()
		c.viewers.Publish(protocol.NewReset())
		return
	}

	c.countingDown = false
	metrics.RacesStartedTotal.Inc()
	slog.Info("Lights out, race underway", "generation", gen)
	c.viewers.Publish(protocol.NewStartRace())
}

// broadcastLight emits one countdown light if gen is still current. Returns
// false when the sequence has been superseded.
func (c *Coordinator) broadcastLight(gen uint64, lightID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || c.state.Status() != race.StatusRunning {
		slog.Debug("Discarding stale light broadcast", "generation", gen, "light_id", lightID)
		return false
	}

	c.viewers.Publish(protocol.NewLight(lightID))
	return true
}

// abortSequence resets state to idle if the aborted sequence is still the
// current one, so viewers never sit in an ambiguous counting-down state.
// A stale generation was already counted as an abort when it was superseded.
func (c *Coordinator) abortSequence(gen uint64, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return
	}

	metrics.SequenceAbortsTotal.Inc()

	slog.Warn("Light sequence aborted", "generation", gen, "reason", reason)
	c.countingDown = false
	c.state.Reset()
	c.viewers.Publish(protocol.NewReset())
}

// sleep waits d on the injected clock, returning false if ctx ends first.
func (c *Coordinator) sleep(ctx context.Context, d time.Duration) bool {
	timer := c.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.Chan():
		return true
	case <-ctx.Done():
		return false
	}
}

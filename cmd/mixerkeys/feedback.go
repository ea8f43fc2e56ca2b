package main

import (
	"log/slog"

	"github.com/gen2brain/beeep"
)

// Feedback plays the audible confirmation tone. The dispatch loop coalesces
// adjustments and calls Ring at most once per drained batch.
type Feedback interface {
	Ring()
}

// Beeper produces a short tone through the system beeper (or the desktop
// notification sound backend, depending on platform support).
type Beeper struct {
	logger     *slog.Logger
	freqHz     int
	durationMS int
}

// NewBeeper returns a Feedback that beeps at the given frequency and
// duration.
func NewBeeper(logger *slog.Logger, freqHz, durationMS int) *Beeper {
	return &Beeper{logger: logger, freqHz: freqHz, durationMS: durationMS}
}

// Ring plays the tone. Playback failures are logged and otherwise ignored;
// feedback is best effort and must never stall the dispatch loop for long.
func (b *Beeper) Ring() {
	if err := beeep.Beep(float64(b.freqHz), b.durationMS); err != nil {
		b.logger.Warn("feedback tone failed", "error", err)
	}
}

// silentFeedback is used with -silent: adjustments happen, nothing beeps.
type silentFeedback struct{}

func (silentFeedback) Ring() {}

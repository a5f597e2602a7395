package engine

import (
	"time"

	"driveguard/internal/model"
)

type DrowsinessEvent int

const (
	EventNone DrowsinessEvent = iota
	EventAlertBegin
	EventAlertEnd
)

// Drowsiness debounces the per-frame eyes-closed signal into an alert state.
// Transitions are driven by frame timestamps, so replayed footage evaluates
// identically to live frames. The machine must not be fed frames without a
// detected face; those freeze it by construction.
type Drowsiness struct {
	phase   model.DrowsinessPhase
	since   time.Time
	trigger time.Duration
}

func NewDrowsiness(trigger time.Duration) *Drowsiness {
	return &Drowsiness{phase: model.PhaseAwake, trigger: trigger}
}

func (d *Drowsiness) SetTrigger(trigger time.Duration) {
	if trigger > 0 {
		d.trigger = trigger
	}
}

// Observe advances the machine by one frame.
func (d *Drowsiness) Observe(now time.Time, eyesClosed bool) DrowsinessEvent {
	if eyesClosed {
		switch d.phase {
		case model.PhaseAwake:
			d.phase = model.PhaseClosing
			d.since = now
		case model.PhaseClosing:
			if now.Sub(d.since) >= d.trigger {
				// since is preserved: incident duration is measured from the
				// moment the eyes closed, not from the alert.
				d.phase = model.PhaseAlerting
				return EventAlertBegin
			}
		}
		return EventNone
	}

	wasAlerting := d.phase == model.PhaseAlerting
	d.phase = model.PhaseAwake
	d.since = time.Time{}
	if wasAlerting {
		return EventAlertEnd
	}
	return EventNone
}

func (d *Drowsiness) Phase() model.DrowsinessPhase {
	return d.phase
}

// Since reports when the current closure began; zero while awake.
func (d *Drowsiness) Since() time.Time {
	return d.since
}

package engine

import (
	"time"

	"driveguard/internal/model"
)

type PresenceEvent int

const (
	PresenceNone PresenceEvent = iota
	EventIdleBegin
	EventIdleEnd
)

// Presence debounces face absence into an idle state. Any frame with a face
// snaps back to active immediately; only the transition into idle is delayed.
type Presence struct {
	phase    model.PresencePhase
	lastSeen time.Time
	timeout  time.Duration
}

func NewPresence(timeout time.Duration) *Presence {
	return &Presence{phase: model.PresenceActive, timeout: timeout}
}

func (p *Presence) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		p.timeout = timeout
	}
}

// Observe advances the machine by one frame.
func (p *Presence) Observe(now time.Time, faceDetected bool) PresenceEvent {
	if faceDetected {
		p.lastSeen = now
		if p.phase == model.PresenceIdle {
			p.phase = model.PresenceActive
			return EventIdleEnd
		}
		return PresenceNone
	}

	if p.lastSeen.IsZero() {
		// No face seen yet; the grace period starts at the first frame.
		p.lastSeen = now
		return PresenceNone
	}
	if p.phase == model.PresenceActive && now.Sub(p.lastSeen) > p.timeout {
		p.phase = model.PresenceIdle
		return EventIdleBegin
	}
	return PresenceNone
}

func (p *Presence) Phase() model.PresencePhase {
	return p.phase
}

// LastSeen reports the timestamp of the most recent face-detected frame.
func (p *Presence) LastSeen() time.Time {
	return p.lastSeen
}

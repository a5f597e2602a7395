// Package engine orchestrates the per-frame pipeline: eye-state evaluation,
// drowsiness and presence state machines, and the side effects they drive.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"driveguard/internal/config"
	"driveguard/internal/model"
	"driveguard/internal/notifier"
	"driveguard/internal/recorder"
	"driveguard/internal/storage"
	"driveguard/internal/vision"
)

// IncidentPublisher mirrors closed incidents to an external bus.
type IncidentPublisher interface {
	Publish(entry model.IncidentEntry)
}

// Monitor processes one frame at a time to completion. It is the single
// owner of the state machines and the recorder; only the blocking side
// effects (disk, serial, kafka) happen off this path.
type Monitor struct {
	logger   *slog.Logger
	eval     *vision.Evaluator
	drowsy   *Drowsiness
	presence *Presence
	rec      *recorder.Recorder
	hw       *notifier.Notifier
	store    storage.Store
	pub      IncidentPublisher
	started  time.Time

	mu        sync.Mutex
	frames    uint64
	lastFrame time.Time
	lastSig   model.FrameSignal
}

func NewMonitor(cfg *config.Config, logger *slog.Logger, eval *vision.Evaluator, rec *recorder.Recorder, hw *notifier.Notifier, store storage.Store, pub IncidentPublisher) *Monitor {
	m := &Monitor{
		logger:   logger,
		eval:     eval,
		drowsy:   NewDrowsiness(cfg.Detection.TriggerDuration),
		presence: NewPresence(cfg.Detection.IdleTimeout),
		rec:      rec,
		hw:       hw,
		store:    store,
		pub:      pub,
		started:  time.Now().UTC(),
	}
	rec.SetOnIncident(m.mirror)
	return m
}

// UpdateConfig applies hot-reloaded detection thresholds.
func (m *Monitor) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eval.SetThreshold(cfg.Detection.EARThreshold)
	m.drowsy.SetTrigger(cfg.Detection.TriggerDuration)
	m.presence.SetTimeout(cfg.Detection.IdleTimeout)
}

// Run consumes frames until the context is cancelled.
func (m *Monitor) Run(ctx context.Context, in <-chan model.Frame) {
	for {
		select {
		case f := <-in:
			m.ProcessFrame(f)
		case <-ctx.Done():
			return
		}
	}
}

// ProcessFrame runs the full pipeline for one frame.
func (m *Monitor) ProcessFrame(f model.Frame) {
	now := f.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	m.mu.Lock()
	sig := m.eval.Evaluate(f)

	switch m.presence.Observe(now, sig.FaceDetected) {
	case EventIdleBegin:
		if m.hw != nil {
			m.hw.Idle()
		}
		if m.logger != nil {
			m.logger.Info("driver idle", "last_seen", m.presence.LastSeen())
		}
	case EventIdleEnd:
		if m.logger != nil {
			m.logger.Info("driver present again")
		}
	}
	idle := m.presence.Phase() == model.PresenceIdle

	var ev DrowsinessEvent
	if !idle && sig.FaceDetected {
		ev = m.drowsy.Observe(now, sig.EyesClosed)
	}
	alerting := m.drowsy.Phase() == model.PhaseAlerting

	m.frames++
	m.lastFrame = now
	m.lastSig = sig
	m.mu.Unlock()

	if idle {
		// Idle frames skip drowsiness and recording work entirely.
		return
	}

	switch ev {
	case EventAlertBegin:
		if m.logger != nil {
			m.logger.Warn("drowsiness alert", "avg_openness", sig.AvgOpenness)
		}
	case EventAlertEnd:
		m.rec.Stop(now, model.ReasonWoke)
	}

	// Alerting frames are always recorded. This one rule starts the session
	// on alert begin, restarts after a cap close without rollover, and
	// recovers after a sink-failure abort.
	if alerting && !m.rec.Active() {
		m.rec.Start(now)
	}

	if m.rec.Active() {
		m.rec.WriteFrame(now, f.Image)
		if m.rec.Expired(now) {
			m.rec.Stop(now, model.ReasonMaxDuration)
			// Rollover policy: a continuous alert spanning the cap produces
			// back-to-back incidents rather than one truncated entry.
			if m.rec.Rollover() && alerting {
				m.rec.Start(now)
			}
		}
	}
}

// Shutdown force-closes any active session so no recording is left
// undocumented in the log.
func (m *Monitor) Shutdown(now time.Time) {
	m.rec.Stop(now, model.ReasonShutdown)
}

func (m *Monitor) mirror(entry model.IncidentEntry) {
	if m.store != nil {
		if err := m.store.SaveIncident(context.Background(), entry); err != nil && m.logger != nil {
			m.logger.Warn("incident mirror write failed", "seq", entry.Seq, "err", err)
		}
	}
	if m.pub != nil {
		m.pub.Publish(entry)
	}
}

// Status is a point-in-time snapshot for the HTTP API.
type Status struct {
	Drowsiness  model.DrowsinessPhase  `json:"drowsiness"`
	Presence    model.PresencePhase    `json:"presence"`
	Frames      uint64                 `json:"frames"`
	LastFrame   time.Time              `json:"last_frame"`
	EyesClosed  bool                   `json:"eyes_closed"`
	AvgOpenness float64                `json:"avg_openness"`
	Session     model.RecordingSession `json:"session"`
	Started     time.Time              `json:"started"`
}

func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Drowsiness:  m.drowsy.Phase(),
		Presence:    m.presence.Phase(),
		Frames:      m.frames,
		LastFrame:   m.lastFrame,
		EyesClosed:  m.lastSig.EyesClosed,
		AvgOpenness: m.lastSig.AvgOpenness,
		Session:     m.rec.Session(),
		Started:     m.started,
	}
}

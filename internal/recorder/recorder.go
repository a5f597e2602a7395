// Package recorder owns the video sink lifecycle: one session per drowsiness
// episode, capped in duration, always accounted for in the accident log.
package recorder

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"driveguard/internal/config"
	"driveguard/internal/model"
)

// Sink receives encoded frames for one recording.
type Sink interface {
	Write(frame []byte) error
	Close() error
}

// SinkOpener creates a sink for a new session. The default is the MJPEG file
// opener; a GStreamer-backed opener can be substituted without touching the
// lifecycle logic.
type SinkOpener interface {
	Open(path string, fps float64, width, height int) (Sink, error)
}

// Appender is the slice of the log store the recorder needs.
type Appender interface {
	NextSeq() int
	Append(entry model.IncidentEntry)
}

// Signaler is the slice of the hardware notifier the recorder needs.
type Signaler interface {
	AlertOn()
	AlertOff()
}

type Recorder struct {
	opener SinkOpener
	log    Appender
	hw     Signaler
	logger *slog.Logger

	dir         string
	fps         float64
	width       int
	height      int
	maxDuration time.Duration
	rollover    bool

	onIncident func(model.IncidentEntry)

	mu      sync.Mutex
	session model.RecordingSession
	sink    Sink
}

func New(rec config.RecordingConfig, cam config.CameraConfig, opener SinkOpener, log Appender, hw Signaler, logger *slog.Logger) *Recorder {
	return &Recorder{
		opener:      opener,
		log:         log,
		hw:          hw,
		logger:      logger,
		dir:         rec.Dir,
		fps:         cam.FPS,
		width:       cam.Width,
		height:      cam.Height,
		maxDuration: rec.MaxDuration,
		rollover:    rec.Rollover,
	}
}

// SetOnIncident registers a hook invoked with every appended incident entry,
// regardless of which path closed the session. Set before processing starts.
func (r *Recorder) SetOnIncident(fn func(model.IncidentEntry)) {
	r.onIncident = fn
}

// Start opens a new session. It is a no-op while a session is active: at most
// one recording exists at a time, and that invariant lives here, not in the
// state machine. Returns true when a new session began.
func (r *Recorder) Start(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session.Active {
		return false
	}
	id := uuid.NewString()
	path := filepath.Join(r.dir, now.Format("20060102_150405")+"_"+id[:8]+".mjpeg")
	sink, err := r.opener.Open(path, r.fps, r.width, r.height)
	if err != nil {
		if r.logger != nil {
			r.logger.Error("video sink open failed", "path", path, "err", err)
		}
		return false
	}
	r.sink = sink
	r.session = model.RecordingSession{
		ID:        id,
		Seq:       r.log.NextSeq(),
		StartTime: now,
		FilePath:  path,
		Active:    true,
	}
	if r.hw != nil {
		r.hw.AlertOn()
	}
	if r.logger != nil {
		r.logger.Info("recording started", "seq", r.session.Seq, "path", path)
	}
	return true
}

// WriteFrame appends one frame to the active sink. A write failure aborts the
// session; the episode is still logged, marked not properly closed.
func (r *Recorder) WriteFrame(now time.Time, frame []byte) {
	r.mu.Lock()
	active := r.session.Active
	sink := r.sink
	r.mu.Unlock()
	if !active || len(frame) == 0 {
		return
	}
	if err := sink.Write(frame); err != nil {
		if r.logger != nil {
			r.logger.Error("video sink write failed", "seq", r.Session().Seq, "err", err)
		}
		r.Stop(now, model.ReasonSinkFailure)
	}
}

// Expired reports whether the active session has hit the duration cap.
func (r *Recorder) Expired(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.Active && now.Sub(r.session.StartTime) >= r.maxDuration
}

// Rollover reports whether a cap-closed session should restart immediately
// while the driver is still in the alerting state.
func (r *Recorder) Rollover() bool {
	return r.rollover
}

// Stop closes the active session and appends exactly one incident entry. The
// end time is recorded only for a proper wake-up; cap, shutdown and sink
// failures leave the entry open-ended. No-op when no session is active.
func (r *Recorder) Stop(now time.Time, reason model.StopReason) (model.IncidentEntry, bool) {
	r.mu.Lock()
	if !r.session.Active {
		r.mu.Unlock()
		return model.IncidentEntry{}, false
	}
	session := r.session
	sink := r.sink
	r.session = model.RecordingSession{}
	r.sink = nil
	r.mu.Unlock()

	if err := sink.Close(); err != nil && r.logger != nil {
		r.logger.Warn("video sink close failed", "seq", session.Seq, "err", err)
	}

	entry := model.IncidentEntry{
		Seq:             session.Seq,
		StartTime:       session.StartTime,
		ClosedProperly:  reason == model.ReasonWoke,
		DurationSeconds: int(now.Sub(session.StartTime).Seconds()),
		VideoPath:       session.FilePath,
		Reason:          reason,
	}
	if entry.ClosedProperly {
		end := now
		entry.EndTime = &end
	}
	r.log.Append(entry)
	if r.onIncident != nil {
		r.onIncident(entry)
	}
	if r.hw != nil {
		r.hw.AlertOff()
	}
	if r.logger != nil {
		r.logger.Info("recording stopped",
			"seq", entry.Seq,
			"reason", reason,
			"duration_sec", entry.DurationSeconds,
		)
	}
	return entry, true
}

func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.Active
}

// Session returns a snapshot of the current session; the zero value when idle.
func (r *Recorder) Session() model.RecordingSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

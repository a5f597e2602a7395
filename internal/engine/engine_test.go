package engine

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"driveguard/internal/config"
	"driveguard/internal/logstore"
	"driveguard/internal/model"
	"driveguard/internal/notifier"
	"driveguard/internal/recorder"
	"driveguard/internal/vision"
)

type fakeSink struct {
	writes    int
	closed    bool
	failWrite bool
}

func (s *fakeSink) Write(frame []byte) error {
	if s.failWrite {
		return errors.New("sink write failed")
	}
	s.writes++
	return nil
}

func (s *fakeSink) Close() error {
	s.closed = true
	return nil
}

type fakeOpener struct {
	sinks      []*fakeSink
	failWrites bool
}

func (o *fakeOpener) Open(path string, fps float64, width, height int) (recorder.Sink, error) {
	s := &fakeSink{failWrite: o.failWrites}
	o.sinks = append(o.sinks, s)
	return s, nil
}

func testMonitorConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Detection.TriggerDuration = 250 * time.Millisecond
	cfg.Detection.IdleTimeout = 1 * time.Second
	cfg.Recording.MaxDuration = 1 * time.Second
	cfg.Recording.Dir = t.TempDir()
	cfg.LogStore.Path = filepath.Join(t.TempDir(), "main.json")
	return cfg
}

func newTestMonitor(t *testing.T, cfg *config.Config, opener *fakeOpener) (*Monitor, *logstore.Store) {
	t.Helper()
	store, err := logstore.Open(cfg.LogStore.Path, nil)
	if err != nil {
		t.Fatalf("open log store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	hw := notifier.New(nil, nil)
	eval := vision.NewEvaluator(cfg.Detection.EARThreshold, cfg.Detection.Epsilon, cfg.Detection.NoLandmarkFrames)
	rec := recorder.New(cfg.Recording, cfg.Camera, opener, store, hw, nil)
	return NewMonitor(cfg, nil, eval, rec, hw, nil, nil), store
}

func eyePts(vertical float64) []model.Point {
	return []model.Point{
		{X: 100, Y: 110}, {X: 103, Y: 110 + vertical}, {X: 109, Y: 110 + vertical},
		{X: 112, Y: 110}, {X: 109, Y: 110 - vertical}, {X: 103, Y: 110 - vertical},
	}
}

func closedFrame(ts time.Time) model.Frame {
	return model.Frame{
		Timestamp:    ts,
		FaceDetected: true,
		LeftEye:      eyePts(0.5),
		RightEye:     eyePts(0.5),
		Width:        640,
		Height:       320,
		Image:        []byte{0xff, 0xd8},
	}
}

func openFrame(ts time.Time) model.Frame {
	f := closedFrame(ts)
	f.LeftEye = eyePts(4)
	f.RightEye = eyePts(4)
	return f
}

func noFaceFrame(ts time.Time) model.Frame {
	return model.Frame{Timestamp: ts, Width: 640, Height: 320}
}

func TestWakeClosesIncidentProperly(t *testing.T) {
	cfg := testMonitorConfig(t)
	cfg.Recording.MaxDuration = 10 * time.Second // keep the cap out of this test
	opener := &fakeOpener{}
	m, store := newTestMonitor(t, cfg, opener)

	base := time.Now()
	ts := base
	for i := 0; i < 5; i++ {
		m.ProcessFrame(openFrame(ts))
		ts = ts.Add(frameInterval)
	}
	for i := 0; i < 30; i++ {
		m.ProcessFrame(closedFrame(ts))
		ts = ts.Add(frameInterval)
	}
	wake := ts
	m.ProcessFrame(openFrame(wake))

	entries := store.List(0)
	if len(entries) != 1 {
		t.Fatalf("expected 1 incident, got %d", len(entries))
	}
	entry := entries[0]
	if !entry.ClosedProperly {
		t.Fatalf("wake-up must close the incident properly")
	}
	if entry.EndTime == nil || !entry.EndTime.Equal(wake) {
		t.Fatalf("bad end time: %v", entry.EndTime)
	}
	// Eyes closed at +0.25s, alert and recording at +0.50s, wake at +1.75s.
	if entry.DurationSeconds != 1 {
		t.Fatalf("duration = %d, want 1", entry.DurationSeconds)
	}
	if len(opener.sinks) != 1 {
		t.Fatalf("expected exactly one session, got %d", len(opener.sinks))
	}
	if !opener.sinks[0].closed {
		t.Fatalf("sink left open")
	}
	if opener.sinks[0].writes == 0 {
		t.Fatalf("no frames written to sink")
	}
	if st := m.Status(); st.Drowsiness != model.PhaseAwake || st.Session.Active {
		t.Fatalf("monitor not reset after wake: %+v", st)
	}
}

func TestDurationCapRollsOver(t *testing.T) {
	cfg := testMonitorConfig(t)
	opener := &fakeOpener{}
	m, store := newTestMonitor(t, cfg, opener)

	base := time.Now()
	ts := base
	for i := 0; i <= 60; i++ { // 3s of closed eyes at 20fps
		m.ProcessFrame(closedFrame(ts))
		ts = ts.Add(frameInterval)
	}
	m.ProcessFrame(openFrame(ts))

	entries := store.List(0)
	if len(entries) != 3 {
		t.Fatalf("expected 3 back-to-back incidents, got %d", len(entries))
	}
	for i, entry := range entries {
		if entry.Seq != i+1 {
			t.Fatalf("sequence ids not strictly increasing: %+v", entries)
		}
	}
	first := entries[0]
	if first.ClosedProperly || first.EndTime != nil {
		t.Fatalf("cap-closed entry must be open-ended: %+v", first)
	}
	if first.Reason != model.ReasonMaxDuration {
		t.Fatalf("bad reason %s", first.Reason)
	}
	last := entries[2]
	if !last.ClosedProperly {
		t.Fatalf("final wake entry must close properly")
	}
	// Rollover restarts in the same frame: sessions are seamless.
	if got := entries[1].StartTime.Sub(entries[0].StartTime); got != cfg.Recording.MaxDuration {
		t.Fatalf("rollover gap = %v, want %v", got, cfg.Recording.MaxDuration)
	}
}

func TestDurationCapWithoutRollover(t *testing.T) {
	cfg := testMonitorConfig(t)
	cfg.Recording.Rollover = false
	opener := &fakeOpener{}
	m, store := newTestMonitor(t, cfg, opener)

	base := time.Now()
	ts := base
	for i := 0; i <= 60; i++ {
		m.ProcessFrame(closedFrame(ts))
		ts = ts.Add(frameInterval)
	}
	m.ProcessFrame(openFrame(ts))

	entries := store.List(0)
	if len(entries) != 3 {
		t.Fatalf("expected 3 incidents, got %d", len(entries))
	}
	// Without rollover the restart waits for the next evaluated frame.
	want := cfg.Recording.MaxDuration + frameInterval
	if got := entries[1].StartTime.Sub(entries[0].StartTime); got != want {
		t.Fatalf("restart gap = %v, want %v", got, want)
	}
}

func TestShutdownFlushesOpenSession(t *testing.T) {
	cfg := testMonitorConfig(t)
	opener := &fakeOpener{}
	m, store := newTestMonitor(t, cfg, opener)

	base := time.Now()
	ts := base
	for i := 0; i < 20; i++ {
		m.ProcessFrame(closedFrame(ts))
		ts = ts.Add(frameInterval)
	}
	if !m.Status().Session.Active {
		t.Fatalf("setup: expected an active session")
	}
	m.Shutdown(ts)

	entries := store.List(0)
	if len(entries) != 1 {
		t.Fatalf("expected 1 incident after shutdown, got %d", len(entries))
	}
	entry := entries[0]
	if entry.ClosedProperly || entry.EndTime != nil {
		t.Fatalf("shutdown entry must be open-ended: %+v", entry)
	}
	if entry.Reason != model.ReasonShutdown {
		t.Fatalf("bad reason %s", entry.Reason)
	}
	if !opener.sinks[0].closed {
		t.Fatalf("sink left open after shutdown")
	}
}

func TestSinkWriteFailureAbortsSession(t *testing.T) {
	cfg := testMonitorConfig(t)
	opener := &fakeOpener{failWrites: true}
	m, store := newTestMonitor(t, cfg, opener)

	base := time.Now()
	ts := base
	for i := 0; i < 10; i++ {
		m.ProcessFrame(closedFrame(ts))
		ts = ts.Add(frameInterval)
	}

	entries := store.List(0)
	if len(entries) == 0 {
		t.Fatalf("aborted session must still be logged")
	}
	if entries[0].ClosedProperly {
		t.Fatalf("aborted entry must not be marked properly closed")
	}
	if entries[0].Reason != model.ReasonSinkFailure {
		t.Fatalf("bad reason %s", entries[0].Reason)
	}
}

func TestIdleSkipsDrowsinessAndRecording(t *testing.T) {
	cfg := testMonitorConfig(t)
	opener := &fakeOpener{}
	m, store := newTestMonitor(t, cfg, opener)

	base := time.Now()
	m.ProcessFrame(openFrame(base))
	// Face absent well past the idle timeout.
	ts := base
	for i := 0; i < 40; i++ {
		ts = ts.Add(frameInterval)
		m.ProcessFrame(noFaceFrame(ts))
	}
	if st := m.Status(); st.Presence != model.PresenceIdle {
		t.Fatalf("expected idle, got %s", st.Presence)
	}

	// First face frame flips straight back to active and resumes evaluation.
	ts = ts.Add(frameInterval)
	m.ProcessFrame(closedFrame(ts))
	st := m.Status()
	if st.Presence != model.PresenceActive {
		t.Fatalf("expected active on face return, got %s", st.Presence)
	}
	if st.Drowsiness != model.PhaseClosing {
		t.Fatalf("expected closing on first closed frame, got %s", st.Drowsiness)
	}
	if len(opener.sinks) != 0 || store.Count() != 0 {
		t.Fatalf("idle period must not record or log")
	}
}

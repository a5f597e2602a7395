package model

import "time"

// Point is a landmark coordinate in frame pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// EyePoints is the number of landmarks per eye, ordered
// [outer-corner, upper-outer, upper-inner, inner-corner, lower-inner, lower-outer].
const EyePoints = 6

// Frame is one sample from the camera/model collaborator.
type Frame struct {
	Timestamp    time.Time `json:"timestamp"`
	FaceDetected bool      `json:"face_detected"`
	LeftEye      []Point   `json:"left_eye,omitempty"`
	RightEye     []Point   `json:"right_eye,omitempty"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	Image        []byte    `json:"image,omitempty"`
	Source       string    `json:"source,omitempty"`
}

// FrameSignal is the evaluated eye state for a single frame. Not persisted.
type FrameSignal struct {
	FaceDetected    bool
	EyesClosed      bool
	AvgOpenness     float64
	LandmarksUsable bool
}

type DrowsinessPhase string

const (
	PhaseAwake    DrowsinessPhase = "awake"
	PhaseClosing  DrowsinessPhase = "closing"
	PhaseAlerting DrowsinessPhase = "alerting"
)

type PresencePhase string

const (
	PresenceActive PresencePhase = "active"
	PresenceIdle   PresencePhase = "idle"
)

// StopReason says why a recording session ended. Only ReasonWoke closes an
// incident properly; every other reason leaves the entry marked not opened.
type StopReason string

const (
	ReasonWoke        StopReason = "woke"
	ReasonMaxDuration StopReason = "max_duration"
	ReasonShutdown    StopReason = "shutdown"
	ReasonSinkFailure StopReason = "sink_failure"
)

// RecordingSession is the single in-flight recording, if any.
type RecordingSession struct {
	ID        string    `json:"id"`
	Seq       int       `json:"seq"`
	StartTime time.Time `json:"start_time"`
	FilePath  string    `json:"file_path"`
	Active    bool      `json:"active"`
}

// IncidentEntry is one completed or force-closed drowsiness episode.
// Immutable once created.
type IncidentEntry struct {
	Seq             int        `json:"seq"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	ClosedProperly  bool       `json:"closed_properly"`
	DurationSeconds int        `json:"duration_seconds"`
	VideoPath       string     `json:"video_path"`
	Reason          StopReason `json:"reason"`
}

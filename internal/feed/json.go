package feed

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"driveguard/internal/model"
)

// framePayload is the wire schema emitted by the detector: one JSON object
// per line. "ts" is unix seconds (fractional); "image" is base64 JPEG.
type framePayload struct {
	TS       float64     `json:"ts"`
	Face     bool        `json:"face"`
	LeftEye  [][]float64 `json:"left_eye"`
	RightEye [][]float64 `json:"right_eye"`
	Width    int         `json:"width"`
	Height   int         `json:"height"`
	Image    []byte      `json:"image"`
}

// ParseFrameLine decodes one detector line into a Frame. Eye sets with the
// wrong point count are dropped to nil; the evaluator treats them as missing
// landmarks rather than failing the frame.
func ParseFrameLine(data []byte) (model.Frame, error) {
	var p framePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return model.Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if p.Width <= 0 || p.Height <= 0 {
		return model.Frame{}, fmt.Errorf("frame missing dimensions")
	}
	f := model.Frame{
		Timestamp:    payloadTime(p.TS),
		FaceDetected: p.Face,
		Width:        p.Width,
		Height:       p.Height,
		Image:        p.Image,
	}
	f.LeftEye = eyePoints(p.LeftEye)
	f.RightEye = eyePoints(p.RightEye)
	return f, nil
}

func payloadTime(ts float64) time.Time {
	if ts <= 0 {
		return time.Now()
	}
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

func eyePoints(raw [][]float64) []model.Point {
	if len(raw) != model.EyePoints {
		return nil
	}
	pts := make([]model.Point, 0, model.EyePoints)
	for _, xy := range raw {
		if len(xy) != 2 {
			return nil
		}
		pts = append(pts, model.Point{X: xy[0], Y: xy[1]})
	}
	return pts
}

// Package feed bridges external frame producers (the landmark-detector
// process, or a TCP replay stream) into the monitor's frame channel.
package feed

import (
	"context"
	"log/slog"
	"time"

	"driveguard/internal/model"
)

// SendNonBlocking hands a frame to the monitor, dropping it when the channel
// is full. The frame loop sets the pace; a backed-up consumer loses frames
// rather than stalling the producer.
func SendNonBlocking(ctx context.Context, out chan<- model.Frame, f model.Frame, logger *slog.Logger) bool {
	select {
	case out <- f:
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("frame channel full, dropping frame", "source", f.Source, "timestamp", f.Timestamp)
		}
		return false
	}
}

// BackoffSleep waits d unless the context ends first.
func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

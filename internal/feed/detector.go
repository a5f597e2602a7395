package feed

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os/exec"

	"driveguard/internal/config"
	"driveguard/internal/model"
)

// Lines carrying a base64 JPEG can run to a few MB.
const maxLineBytes = 16 << 20

// StartDetector launches the external landmark-detector process and relays
// its stdout (one JSON frame per line) into the frame channel. Stderr is
// forwarded to the log. The subprocess dies with the context.
func StartDetector(ctx context.Context, cfg *config.Manager, out chan<- model.Frame, logger *slog.Logger) error {
	current := cfg.Get().Feed.Detector
	if !current.Enabled {
		if logger != nil {
			logger.Info("detector feed disabled")
		}
		return nil
	}
	cmd := exec.CommandContext(ctx, current.Command, current.Args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("detector stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("detector stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start detector: %w", err)
	}
	if logger != nil {
		logger.Info("detector feed enabled", "command", current.Command, "pid", cmd.Process.Pid)
	}

	go func() {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 1<<20), maxLineBytes)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			f, err := ParseFrameLine(line)
			if err != nil {
				if logger != nil {
					logger.Warn("detector frame parse error", "err", err)
				}
				continue
			}
			f.Source = "detector"
			SendNonBlocking(ctx, out, f, logger)
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil && logger != nil {
			logger.Warn("detector stdout read error", "err", err)
		}
	}()

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			if logger != nil {
				logger.Debug("detector stderr", "line", scanner.Text())
			}
		}
	}()

	go func() {
		err := cmd.Wait()
		if ctx.Err() != nil {
			return
		}
		if logger != nil {
			logger.Error("detector process exited", "err", err)
		}
	}()
	return nil
}

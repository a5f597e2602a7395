package feed

import (
	"bufio"
	"context"
	"log/slog"
	"net"

	"driveguard/internal/config"
	"driveguard/internal/model"
)

// StartTCPStream accepts newline-delimited JSON frames over TCP. Used for
// replaying recorded detector output against a live monitor.
func StartTCPStream(ctx context.Context, cfg *config.Manager, out chan<- model.Frame, logger *slog.Logger) {
	current := cfg.Get().Feed.TCPStream
	if !current.Enabled {
		if logger != nil {
			logger.Info("tcp frame stream disabled")
		}
		return
	}
	ln, err := net.Listen("tcp", current.Addr)
	if err != nil {
		if logger != nil {
			logger.Error("tcp frame stream listen failed", "addr", current.Addr, "err", err)
		}
		return
	}
	if logger != nil {
		logger.Info("tcp frame stream enabled", "addr", current.Addr)
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("tcp frame stream accept error", "err", err)
				}
				continue
			}
			go handleFrameConn(ctx, conn, out, logger)
		}
	}()
}

func handleFrameConn(ctx context.Context, conn net.Conn, out chan<- model.Frame, logger *slog.Logger) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 1<<20), maxLineBytes)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		f, err := ParseFrameLine(line)
		if err != nil {
			if logger != nil {
				logger.Warn("tcp frame parse error", "remote", conn.RemoteAddr().String(), "err", err)
			}
			continue
		}
		f.Source = "tcp"
		SendNonBlocking(ctx, out, f, logger)
	}
}

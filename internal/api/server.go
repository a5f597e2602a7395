// Package api exposes read-only monitoring endpoints. No authentication: the
// surface is local operator tooling only.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"driveguard/internal/config"
	"driveguard/internal/engine"
	"driveguard/internal/logstore"
)

type Server struct {
	cfg     *config.Manager
	log     *logstore.Store
	monitor *engine.Monitor
	logger  *slog.Logger
	version string
}

type statusResponse struct {
	Status            string          `json:"status"`
	Time              string          `json:"time"`
	Version           string          `json:"version"`
	ConfigPath        string          `json:"config_path"`
	HardwareConnected bool            `json:"hardware_connected"`
	Incidents         int             `json:"incidents"`
	Monitor           engine.Status   `json:"monitor"`
	Detection         detectionStatus `json:"detection"`
}

type detectionStatus struct {
	EARThreshold    float64 `json:"ear_threshold"`
	TriggerDuration string  `json:"trigger_duration"`
	IdleTimeout     string  `json:"idle_timeout"`
	MaxDuration     string  `json:"max_duration"`
	Rollover        bool    `json:"rollover"`
}

func Start(ctx context.Context, cfg *config.Manager, log *logstore.Store, monitor *engine.Monitor, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:     cfg,
		log:     log,
		monitor: monitor,
		logger:  logger,
		version: version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", server.handleStatus)
	mux.HandleFunc("/incidents", server.handleIncidents)
	mux.HandleFunc("/session", server.handleSession)
	mux.HandleFunc("/admin/flush", server.handleFlush)

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:            "ok",
		Time:              time.Now().UTC().Format(time.RFC3339Nano),
		Version:           s.version,
		ConfigPath:        s.cfg.Path(),
		HardwareConnected: s.log.HardwareConnected(),
		Incidents:         s.log.Count(),
		Monitor:           s.monitor.Status(),
		Detection: detectionStatus{
			EARThreshold:    cfg.Detection.EARThreshold,
			TriggerDuration: cfg.Detection.TriggerDuration.String(),
			IdleTimeout:     cfg.Detection.IdleTimeout.String(),
			MaxDuration:     cfg.Recording.MaxDuration.String(),
			Rollover:        cfg.Recording.Rollover,
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	list := s.log.List(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"incidents": list,
		"count":     len(list),
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session := s.monitor.Status().Session
	writeJSON(w, http.StatusOK, map[string]any{
		"active":  session.Active,
		"session": session,
	})
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := s.log.Flush(); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"status": "error", "err": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

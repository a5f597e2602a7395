package config

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel  string          `json:"log_level" yaml:"log_level"`
	Camera    CameraConfig    `json:"camera" yaml:"camera"`
	Detection DetectionConfig `json:"detection" yaml:"detection"`
	Recording RecordingConfig `json:"recording" yaml:"recording"`
	LogStore  LogStoreConfig  `json:"log_store" yaml:"log_store"`
	Hardware  HardwareConfig  `json:"hardware" yaml:"hardware"`
	Feed      FeedConfig      `json:"feed" yaml:"feed"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Publisher PublisherConfig `json:"publisher" yaml:"publisher"`
	API       APIConfig       `json:"api" yaml:"api"`
}

type CameraConfig struct {
	Width  int     `json:"width" yaml:"width"`
	Height int     `json:"height" yaml:"height"`
	FPS    float64 `json:"fps" yaml:"fps"`
}

type DetectionConfig struct {
	EARThreshold     float64       `json:"ear_threshold" yaml:"ear_threshold"`
	TriggerDuration  time.Duration `json:"trigger_duration" yaml:"trigger_duration"`
	NoLandmarkFrames int           `json:"no_landmark_frames" yaml:"no_landmark_frames"`
	IdleTimeout      time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	Epsilon          float64       `json:"epsilon" yaml:"epsilon"`
}

type RecordingConfig struct {
	Dir           string        `json:"dir" yaml:"dir"`
	MaxDuration   time.Duration `json:"max_duration" yaml:"max_duration"`
	Rollover      bool          `json:"rollover" yaml:"rollover"`
	RetentionDays int           `json:"retention_days" yaml:"retention_days"`
}

type LogStoreConfig struct {
	Path string `json:"path" yaml:"path"`
}

type HardwareConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    string `json:"port" yaml:"port"`
	Baud    int    `json:"baud" yaml:"baud"`
}

type FeedConfig struct {
	ChannelBuffer int             `json:"channel_buffer" yaml:"channel_buffer"`
	Detector      DetectorConfig  `json:"detector" yaml:"detector"`
	TCPStream     TCPStreamConfig `json:"tcp_stream" yaml:"tcp_stream"`
}

type DetectorConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Command string   `json:"command" yaml:"command"`
	Args    []string `json:"args" yaml:"args"`
}

type TCPStreamConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type PublisherConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Camera: CameraConfig{
			Width:  640,
			Height: 320,
			FPS:    20,
		},
		Detection: DetectionConfig{
			EARThreshold:     0.17,
			TriggerDuration:  1250 * time.Millisecond,
			NoLandmarkFrames: 10,
			IdleTimeout:      7 * time.Second,
			Epsilon:          0.0001,
		},
		Recording: RecordingConfig{
			Dir:           "saved/video",
			MaxDuration:   5 * time.Minute,
			Rollover:      true,
			RetentionDays: 30,
		},
		LogStore: LogStoreConfig{Path: "saved/main.json"},
		Hardware: HardwareConfig{Enabled: true, Port: "", Baud: 9600},
		Feed: FeedConfig{
			ChannelBuffer: 8,
			Detector:      DetectorConfig{Enabled: false},
			TCPStream:     TCPStreamConfig{Enabled: false, Addr: ":9400"},
		},
		Storage:   StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:driveguard.db?_pragma=busy_timeout(5000)"},
		Publisher: PublisherConfig{Enabled: false},
		API:       APIConfig{Enabled: true, Addr: ":8081"},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Camera.Width <= 0 {
		cfg.Camera.Width = 640
	}
	if cfg.Camera.Height <= 0 {
		cfg.Camera.Height = 320
	}
	if cfg.Camera.FPS <= 0 {
		cfg.Camera.FPS = 20
	}
	if cfg.Detection.Epsilon <= 0 {
		cfg.Detection.Epsilon = 0.0001
	}
	if cfg.Detection.NoLandmarkFrames <= 0 {
		cfg.Detection.NoLandmarkFrames = 10
	}
	if cfg.Feed.ChannelBuffer <= 0 {
		cfg.Feed.ChannelBuffer = 8
	}
	if cfg.Hardware.Baud <= 0 {
		cfg.Hardware.Baud = 9600
	}
}

func Validate(cfg *Config) error {
	if cfg.Detection.EARThreshold <= 0 || cfg.Detection.EARThreshold >= 1 {
		return errors.New("detection.ear_threshold must be in (0, 1)")
	}
	if cfg.Detection.TriggerDuration <= 0 {
		return errors.New("detection.trigger_duration must be > 0")
	}
	if cfg.Detection.IdleTimeout <= 0 {
		return errors.New("detection.idle_timeout must be > 0")
	}
	if cfg.Recording.MaxDuration <= 0 {
		return errors.New("recording.max_duration must be > 0")
	}
	if cfg.Recording.Dir == "" {
		return errors.New("recording.dir required")
	}
	if cfg.LogStore.Path == "" {
		return errors.New("log_store.path required")
	}
	if cfg.Feed.TCPStream.Enabled && cfg.Feed.TCPStream.Addr == "" {
		return errors.New("feed.tcp_stream.addr required when feed.tcp_stream.enabled is true")
	}
	if cfg.Feed.Detector.Enabled && cfg.Feed.Detector.Command == "" {
		return errors.New("feed.detector.command required when feed.detector.enabled is true")
	}
	if cfg.Publisher.Enabled {
		if len(cfg.Publisher.Brokers) == 0 || cfg.Publisher.Topic == "" {
			return errors.New("publisher requires brokers and topic")
		}
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps a fixed config with no backing file; Reload is a no-op.
func NewStaticManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return m.Get(), nil
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}

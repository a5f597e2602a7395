// Package logstore persists the accident log as a single JSON document,
// byte-compatible with the legacy schema read by external tooling.
package logstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"driveguard/internal/model"
)

const timeLayout = "02/01/2006 15:04:05"

// fileEntry is one accident record as written to disk.
type fileEntry struct {
	Time      string `json:"time"`
	Opened    bool   `json:"opened"`
	HowLong   string `json:"how-long"`
	VideoPath string `json:"video-path"`
}

type fileDoc struct {
	Accident     map[string]fileEntry `json:"accident"`
	ConnectedIno bool                 `json:"connected-ino"`
}

// Store is the append-only incident log. Entries live in memory keyed by
// sequence id; every mutation schedules an atomic rewrite of the whole file on
// a background goroutine, so a slow disk never stalls the frame loop. A failed
// write is logged and swallowed.
type Store struct {
	mu        sync.Mutex
	path      string
	entries   map[int]model.IncidentEntry
	connected bool
	nextSeq   int
	logger    *slog.Logger

	notify    chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Open loads the store from path. A missing, empty or corrupt file yields an
// empty store rather than an error; the sequence counter resumes from the
// highest persisted id plus one.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("log store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log store dir: %w", err)
	}
	s := &Store{
		path:    path,
		entries: make(map[int]model.IncidentEntry),
		nextSeq: 1,
		logger:  logger,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	s.load()
	s.wg.Add(1)
	go s.writeLoop()
	return s, nil
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil || len(data) == 0 {
		return
	}
	var doc fileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		if s.logger != nil {
			s.logger.Warn("accident log unreadable, starting empty", "path", s.path, "err", err)
		}
		return
	}
	s.connected = doc.ConnectedIno
	for key, fe := range doc.Accident {
		seq, ok := parseSeq(key)
		if !ok {
			continue
		}
		entry, err := decodeEntry(seq, fe)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("skipping malformed accident entry", "key", key, "err", err)
			}
			continue
		}
		s.entries[seq] = entry
		if seq >= s.nextSeq {
			s.nextSeq = seq + 1
		}
	}
}

// NextSeq allocates the next monotonic sequence id.
func (s *Store) NextSeq() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.nextSeq
	s.nextSeq++
	return seq
}

// Append inserts an incident entry and schedules a durable write.
func (s *Store) Append(entry model.IncidentEntry) {
	s.mu.Lock()
	s.entries[entry.Seq] = entry
	if entry.Seq >= s.nextSeq {
		s.nextSeq = entry.Seq + 1
	}
	s.mu.Unlock()
	s.schedule()
}

// SetHardwareConnected records the hardware probe result.
func (s *Store) SetHardwareConnected(connected bool) {
	s.mu.Lock()
	s.connected = connected
	s.mu.Unlock()
	s.schedule()
}

func (s *Store) HardwareConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// List returns entries in ascending sequence order, most recent last. A
// limit <= 0 returns everything.
func (s *Store) List(limit int) []model.IncidentEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.IncidentEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Flush writes the store to disk synchronously.
func (s *Store) Flush() error {
	return s.persist()
}

// Close flushes and stops the background writer. Safe to call twice.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		err = s.persist()
	})
	return err
}

func (s *Store) schedule() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Store) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.notify:
			if err := s.persist(); err != nil && s.logger != nil {
				s.logger.Warn("accident log write failed", "path", s.path, "err", err)
			}
		case <-s.done:
			return
		}
	}
}

func (s *Store) persist() error {
	s.mu.Lock()
	doc := fileDoc{Accident: make(map[string]fileEntry, len(s.entries)), ConnectedIno: s.connected}
	for seq, entry := range s.entries {
		doc.Accident["accident-"+strconv.Itoa(seq)] = encodeEntry(entry)
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func encodeEntry(entry model.IncidentEntry) fileEntry {
	howLong := "00:00:00"
	if entry.ClosedProperly {
		howLong = formatHMS(entry.DurationSeconds)
	}
	return fileEntry{
		Time:      entry.StartTime.Format(timeLayout),
		Opened:    entry.ClosedProperly,
		HowLong:   howLong,
		VideoPath: strings.ReplaceAll(entry.VideoPath, "\\", "/"),
	}
}

func decodeEntry(seq int, fe fileEntry) (model.IncidentEntry, error) {
	start, err := time.ParseInLocation(timeLayout, fe.Time, time.Local)
	if err != nil {
		return model.IncidentEntry{}, err
	}
	entry := model.IncidentEntry{
		Seq:            seq,
		StartTime:      start,
		ClosedProperly: fe.Opened,
		VideoPath:      fe.VideoPath,
	}
	if fe.Opened {
		secs, err := parseHMS(fe.HowLong)
		if err != nil {
			return model.IncidentEntry{}, err
		}
		entry.DurationSeconds = secs
		end := start.Add(time.Duration(secs) * time.Second)
		entry.EndTime = &end
		entry.Reason = model.ReasonWoke
	}
	return entry, nil
}

func parseSeq(key string) (int, bool) {
	const prefix = "accident-"
	if !strings.HasPrefix(key, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(key[len(prefix):])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func formatHMS(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds/60)%60, seconds%60)
}

func parseHMS(value string) (int, error) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("bad duration %q", value)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	sec, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, err
	}
	return h*3600 + m*60 + sec, nil
}

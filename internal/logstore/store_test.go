package logstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"driveguard/internal/model"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func properEntry(seq int, start time.Time, dur int) model.IncidentEntry {
	end := start.Add(time.Duration(dur) * time.Second)
	return model.IncidentEntry{
		Seq:             seq,
		StartTime:       start,
		EndTime:         &end,
		ClosedProperly:  true,
		DurationSeconds: dur,
		VideoPath:       "saved/video/clip.mjpeg",
		Reason:          model.ReasonWoke,
	}
}

func TestAppendAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.json")
	s := openTestStore(t, path)

	start := time.Date(2026, 8, 23, 14, 30, 5, 0, time.Local)
	s.Append(properEntry(s.NextSeq(), start, 125))
	s.Append(model.IncidentEntry{
		Seq:       s.NextSeq(),
		StartTime: start.Add(10 * time.Minute),
		VideoPath: "saved/video/clip2.mjpeg",
		Reason:    model.ReasonShutdown,
	})
	if err := s.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	reloaded := openTestStore(t, path)
	if reloaded.Count() != 2 {
		t.Fatalf("expected 2 entries after reload, got %d", reloaded.Count())
	}
	if seq := reloaded.NextSeq(); seq != 3 {
		t.Fatalf("counter must resume from max+1, got %d", seq)
	}
	entries := reloaded.List(0)
	if !entries[0].StartTime.Equal(start) {
		t.Fatalf("start time did not round-trip: %v", entries[0].StartTime)
	}
	if entries[0].DurationSeconds != 125 || !entries[0].ClosedProperly {
		t.Fatalf("proper entry did not round-trip: %+v", entries[0])
	}
	if entries[1].ClosedProperly || entries[1].EndTime != nil {
		t.Fatalf("open-ended entry did not round-trip: %+v", entries[1])
	}
}

func TestCorruptFileResetsToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}
	s := openTestStore(t, path)
	if s.Count() != 0 {
		t.Fatalf("corrupt file must yield an empty store")
	}
	if seq := s.NextSeq(); seq != 1 {
		t.Fatalf("counter must restart at 1, got %d", seq)
	}
	s.Append(properEntry(1, time.Now(), 3))
	if err := s.Flush(); err != nil {
		t.Fatalf("flush over corrupt file: %v", err)
	}
}

func TestSeqResumesFromSparseMax(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.json")
	doc := `{"accident": {"accident-7": {"time": "01/02/2026 10:00:00", "opened": true, "how-long": "00:01:00", "video-path": "v.avi"}}, "connected-ino": false}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	s := openTestStore(t, path)
	if seq := s.NextSeq(); seq != 8 {
		t.Fatalf("expected resume at 8, got %d", seq)
	}
}

func TestLegacySchemaOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.json")
	s := openTestStore(t, path)
	s.SetHardwareConnected(true)

	start := time.Date(2026, 1, 5, 9, 8, 7, 0, time.Local)
	entry := properEntry(1, start, 62)
	entry.VideoPath = `saved\video\20260105_090807_ab12cd34.mjpeg`
	s.Append(entry)
	if err := s.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("file is not valid json: %v", err)
	}
	if doc["connected-ino"] != true {
		t.Fatalf("connected-ino not persisted: %v", doc["connected-ino"])
	}
	accidents, ok := doc["accident"].(map[string]any)
	if !ok {
		t.Fatalf("missing accident object")
	}
	raw, ok := accidents["accident-1"].(map[string]any)
	if !ok {
		t.Fatalf("missing accident-1 key: %v", accidents)
	}
	if raw["time"] != "05/01/2026 09:08:07" {
		t.Fatalf("bad time format: %v", raw["time"])
	}
	if raw["how-long"] != "00:01:02" {
		t.Fatalf("bad duration format: %v", raw["how-long"])
	}
	if vp, _ := raw["video-path"].(string); strings.Contains(vp, `\`) {
		t.Fatalf("video path not normalized: %q", vp)
	}
	if raw["opened"] != true {
		t.Fatalf("opened flag wrong: %v", raw["opened"])
	}
}

func TestOpenEndedEntryWritesZeroDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.json")
	s := openTestStore(t, path)
	s.Append(model.IncidentEntry{
		Seq:             1,
		StartTime:       time.Now(),
		DurationSeconds: 42,
		VideoPath:       "v.mjpeg",
		Reason:          model.ReasonMaxDuration,
	})
	if err := s.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `"how-long": "00:00:00"`) {
		t.Fatalf("force-closed entry must write 00:00:00, got: %s", data)
	}
}

func TestBackgroundWriterPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.json")
	s := openTestStore(t, path)
	s.Append(properEntry(1, time.Now(), 1))
	// Close waits for the writer and performs a final flush.
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("store never written: %v", err)
	}
}

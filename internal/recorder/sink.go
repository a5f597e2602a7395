package recorder

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
)

// FileOpener writes sessions as MJPEG files: frames arrive from the detector
// already JPEG-encoded and are appended as-is. Players treat a concatenated
// JPEG stream at a fixed rate as a valid motion-JPEG clip.
type FileOpener struct{}

func (FileOpener) Open(path string, fps float64, width, height int) (Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create video dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open video sink: %w", err)
	}
	return &fileSink{f: f, w: bufio.NewWriterSize(f, 1<<16)}, nil
}

type fileSink struct {
	f *os.File
	w *bufio.Writer
}

func (s *fileSink) Write(frame []byte) error {
	_, err := s.w.Write(frame)
	return err
}

func (s *fileSink) Close() error {
	if err := s.w.Flush(); err != nil {
		_ = s.f.Close()
		return err
	}
	return s.f.Close()
}

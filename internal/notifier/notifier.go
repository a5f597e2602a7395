// Package notifier drives the in-cab alert device over a serial-like port.
// Every signal is a single byte, fire and forget: the device may be absent,
// wedged or unplugged mid-run and the frame loop must never notice.
package notifier

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

const (
	SignalAlertOn  = byte('1')
	SignalAlertOff = byte('0')
	SignalIdle     = byte('2')
)

// Port is the write side of the hardware channel.
type Port interface {
	io.WriteCloser
}

// Notifier queues signal bytes to a single drain goroutine. The queue drops
// on overflow rather than blocking the caller.
type Notifier struct {
	port      Port
	connected bool
	logger    *slog.Logger
	ch        chan byte
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New wraps an already-opened port. A nil port means no device was found;
// every signal becomes a no-op.
func New(port Port, logger *slog.Logger) *Notifier {
	n := &Notifier{
		port:      port,
		connected: port != nil,
		logger:    logger,
		ch:        make(chan byte, 16),
		done:      make(chan struct{}),
	}
	if n.connected {
		n.wg.Add(1)
		go n.drain()
	}
	return n
}

func (n *Notifier) Connected() bool {
	return n.connected
}

func (n *Notifier) AlertOn()  { n.send(SignalAlertOn) }
func (n *Notifier) AlertOff() { n.send(SignalAlertOff) }
func (n *Notifier) Idle()     { n.send(SignalIdle) }

func (n *Notifier) send(b byte) {
	if !n.connected {
		return
	}
	select {
	case n.ch <- b:
	default:
		if n.logger != nil {
			n.logger.Debug("hardware queue full, dropping signal", "signal", string(b))
		}
	}
}

func (n *Notifier) drain() {
	defer n.wg.Done()
	for {
		select {
		case b := <-n.ch:
			if _, err := n.port.Write([]byte{b}); err != nil && n.logger != nil {
				n.logger.Debug("hardware write failed", "signal", string(b), "err", err)
			}
		case <-n.done:
			// Flush anything already queued so a final alert-off is not lost
			// on shutdown.
			for {
				select {
				case b := <-n.ch:
					_, _ = n.port.Write([]byte{b})
				default:
					return
				}
			}
		}
	}
}

// Close stops the drain goroutine and closes the port.
func (n *Notifier) Close() error {
	var err error
	n.closeOnce.Do(func() {
		close(n.done)
		n.wg.Wait()
		if n.port != nil {
			err = n.port.Close()
		}
	})
	return err
}

// OpenPort opens the configured device path, or autodetects one when the path
// is empty. Failure to open is not an error to the caller: the notifier just
// runs disconnected.
func OpenPort(path string, logger *slog.Logger) Port {
	if path == "" {
		path = Autodetect()
	}
	if path == "" {
		if logger != nil {
			logger.Warn("no alert device detected")
		}
		return nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		if logger != nil {
			logger.Warn("alert device open failed", "port", path, "err", err)
		}
		return nil
	}
	if logger != nil {
		logger.Info("alert device connected", "port", path)
	}
	return f
}

// Autodetect scans for the first serial-like device node. Matching by device
// name pattern is deliberately loose; picking the wrong device costs one
// stray byte, not a crash.
func Autodetect() string {
	for _, pattern := range []string{"/dev/ttyUSB*", "/dev/ttyACM*"} {
		matches, err := filepath.Glob(pattern)
		if err != nil || len(matches) == 0 {
			continue
		}
		return matches[0]
	}
	return ""
}

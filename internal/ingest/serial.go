package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"

	"github.com/banshee-data/gyrohook/internal/calibration"
	"github.com/banshee-data/gyrohook/internal/monitoring"
)

// SerialPort is the minimal port a SerialSource reads from.
type SerialPort interface {
	io.Reader
	io.Closer
}

// SerialSource applies frames arriving on a serial line through the same
// Applier as the socket server.
type SerialSource struct {
	path    string
	port    SerialPort
	applier *Applier

	closeOnce sync.Once
	closeErr  error
}

// OpenSerialSource opens the serial device at path.
func OpenSerialSource(path string, opts PortOptions, applier *Applier) (*SerialSource, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	return NewSerialSource(path, port, applier), nil
}

// NewSerialSource wraps an already open port.
func NewSerialSource(path string, port SerialPort, applier *Applier) *SerialSource {
	return &SerialSource{path: path, port: port, applier: applier}
}

// Run reads frames until ctx is cancelled or the port reaches EOF. Malformed
// frames are logged and skipped.
func (s *SerialSource) Run(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)
	scan.Buffer(make([]byte, 0, DefaultMaxFrameBytes), DefaultMaxFrameBytes)

	lines := make(chan string)
	scanErr := make(chan error, 1)

	// The scanner blocks in Read, so it runs apart from the select below.
	go func() {
		defer close(lines)
		for scan.Scan() {
			select {
			case lines <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			scanErr <- err
		}
	}()

	from := Origin{Source: SourceSerial, Remote: s.path}
	monitoring.Logf("ingest: reading frames from serial port %s", s.path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErr:
			return &calibration.ConnectionError{Remote: s.path, Err: err}
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return &calibration.ConnectionError{Remote: s.path, Err: err}
				default:
					return nil
				}
			}
			s.apply(line, from)
		}
	}
}

func (s *SerialSource) apply(line string, from Origin) {
	u, ok, err := s.applier.ApplyFrame(line, from)
	switch {
	case err != nil:
		monitoring.Warnf("ingest: serial frame from %s: %v", s.path, err)
	case ok:
		monitoring.Logf("ingest: applied %s from serial %s", u.Profile.Offsets(), s.path)
	}
}

// Close closes the port, which also unblocks Run's reader.
func (s *SerialSource) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.port.Close()
	})
	return s.closeErr
}

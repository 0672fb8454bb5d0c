package transport

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate is the rate MeshCore companion firmware runs its
// USB serial port at.
const DefaultBaudRate = 115200

// Serial talks to a device attached as a local serial port, e.g.
// /dev/ttyUSB0 or /dev/ttyACM0.
type Serial struct {
	device string
	baud   int

	mu     sync.Mutex
	port   serial.Port
	closed bool
}

// NewSerial creates a transport for the given serial device. A baud of
// zero selects DefaultBaudRate.
func NewSerial(device string, baud int) *Serial {
	if baud == 0 {
		baud = DefaultBaudRate
	}
	return &Serial{device: device, baud: baud}
}

func (s *Serial) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.port != nil {
		return nil
	}

	mode := &serial.Mode{
		BaudRate: s.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(s.device, mode)
	if err != nil {
		return fmt.Errorf("opening %s: %w", s.device, err)
	}
	s.port = port
	return nil
}

func (s *Serial) ReadDeadline(p []byte, deadline time.Time) (int, error) {
	port, err := s.get()
	if err != nil {
		return 0, err
	}

	remaining := time.Until(deadline)
	if remaining <= 0 {
		return 0, nil
	}
	if err := port.SetReadTimeout(remaining); err != nil {
		return 0, fmt.Errorf("setting read timeout on %s: %w", s.device, err)
	}

	// go.bug.st/serial returns (0, nil) when the timeout expires with
	// no data, which is exactly the contract ReadDeadline promises.
	n, err := port.Read(p)
	if err != nil {
		return n, fmt.Errorf("reading from %s: %w", s.device, err)
	}
	return n, nil
}

func (s *Serial) Write(p []byte) error {
	port, err := s.get()
	if err != nil {
		return err
	}
	if _, err := port.Write(p); err != nil {
		return fmt.Errorf("writing to %s: %w", s.device, err)
	}
	if err := port.Drain(); err != nil {
		return fmt.Errorf("flushing %s: %w", s.device, err)
	}
	return nil
}

func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.port == nil {
		return nil
	}

	port := s.port
	s.port = nil
	if err := port.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", s.device, err)
	}
	return nil
}

func (s *Serial) get() (serial.Port, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil, ErrClosed
	}
	return s.port, nil
}

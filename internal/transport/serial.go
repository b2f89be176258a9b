package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/1ureka/nearchat/internal/util"
)

const (
	serialReadTimeout = 100 * time.Millisecond
	maxSerialLine     = 4096
)

// ErrLineBreak is returned for lines that would break newline framing.
var ErrLineBreak = errors.New("line contains a line break")

// Serial carries newline-terminated lines over a serial port, as exposed by
// BLE-UART bridge modules.
type Serial struct {
	port io.ReadWriteCloser
	name string

	writeMu sync.Mutex

	mu      sync.RWMutex
	handler func(peer, line string)

	ctx    context.Context
	cancel context.CancelFunc
}

var _ LineTransport = (*Serial)(nil)

// OpenSerial opens portName at baud (8N1) and starts reading lines.
func OpenSerial(ctx context.Context, portName string, baud int) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", portName, err)
	}
	util.LogInfo("opened serial port %s at %d baud", portName, baud)
	return newSerial(ctx, portName, port), nil
}

// newSerial wraps an already open port.
func newSerial(ctx context.Context, name string, port io.ReadWriteCloser) *Serial {
	sCtx, sCancel := context.WithCancel(ctx)
	s := &Serial{
		port:   port,
		name:   name,
		ctx:    sCtx,
		cancel: sCancel,
	}

	go func() {
		<-sCtx.Done()
		port.Close()
	}()
	go s.readLoop()

	return s
}

func (s *Serial) readLoop() {
	defer s.cancel()

	var split lineSplitter
	buf := make([]byte, 1024)
	for {
		n, err := s.port.Read(buf)
		if n > 0 {
			for _, line := range split.feed(buf[:n]) {
				s.deliver(line)
			}
		}
		if err != nil {
			if s.ctx.Err() == nil && !errors.Is(err, io.EOF) {
				util.LogWarning("serial read on %s failed: %v", s.name, err)
			}
			return
		}
		if s.ctx.Err() != nil {
			return
		}
	}
}

func (s *Serial) deliver(line string) {
	s.mu.RLock()
	fn := s.handler
	s.mu.RUnlock()
	if fn != nil {
		fn(s.name, line)
	}
}

// SendLine writes line followed by '\n'.
func (s *Serial) SendLine(_ context.Context, _ string, line string) error {
	if strings.ContainsAny(line, "\r\n") {
		return ErrLineBreak
	}
	if s.ctx.Err() != nil {
		return ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := io.WriteString(s.port, line+"\n")
	return err
}

// OnLine registers the inbound line callback.
func (s *Serial) OnLine(fn func(peer, line string)) {
	s.mu.Lock()
	s.handler = fn
	s.mu.Unlock()
}

// Done is closed when the port is closed or fails.
func (s *Serial) Done() <-chan struct{} { return s.ctx.Done() }

// Close releases the port.
func (s *Serial) Close() error {
	s.cancel()
	return nil
}

// lineSplitter accumulates bytes and cuts them into lines. Carriage returns
// are dropped and empty lines skipped. A line growing past maxSerialLine is
// discarded: it cannot be a protocol line.
type lineSplitter struct {
	pending  []byte
	skipping bool
}

func (l *lineSplitter) feed(b []byte) []string {
	var lines []string
	for _, c := range b {
		switch c {
		case '\r':
		case '\n':
			if !l.skipping && len(l.pending) > 0 {
				lines = append(lines, string(l.pending))
			}
			l.pending = l.pending[:0]
			l.skipping = false
		default:
			if l.skipping {
				continue
			}
			if len(l.pending) >= maxSerialLine {
				l.pending = l.pending[:0]
				l.skipping = true
				continue
			}
			l.pending = append(l.pending, c)
		}
	}
	return lines
}

// Package serial carries SMP frames over a UART console using the base64 line
// framing understood by mcumgr-capable bootloaders and applications.
package serial

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/goburrow/serial"

	"github.com/moffa90/go-mcumgr/logging"
	"github.com/moffa90/go-mcumgr/transport"
)

// Config holds the serial port settings.
type Config struct {
	// Address is the device path, e.g. /dev/ttyACM0 or COM3
	Address string

	// BaudRate defaults to 115200
	BaudRate int

	// DataBits defaults to 8
	DataBits int

	// StopBits defaults to 1
	StopBits int

	// Parity is "N", "E" or "O"; defaults to "N"
	Parity string

	// ReadTimeout bounds each port read so Disconnect is noticed promptly
	ReadTimeout time.Duration

	// MTU is the largest SMP frame sent in one packet
	MTU int
}

func (c Config) withDefaults() Config {
	if c.BaudRate == 0 {
		c.BaudRate = 115200
	}
	if c.DataBits == 0 {
		c.DataBits = 8
	}
	if c.StopBits == 0 {
		c.StopBits = 1
	}
	if c.Parity == "" {
		c.Parity = "N"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 100 * time.Millisecond
	}
	if c.MTU == 0 {
		c.MTU = transport.DefaultMTU
	}
	return c
}

type openFunc func(*serial.Config) (io.ReadWriteCloser, error)

func openPort(c *serial.Config) (io.ReadWriteCloser, error) {
	return serial.Open(c)
}

// Transport is a transport.Transport over a serial port.
type Transport struct {
	transport.Hub

	cfg  Config
	open openFunc
	log  logging.Logger

	mu      sync.Mutex
	port    io.ReadWriteCloser
	closing bool
	done    chan struct{}
}

// New returns a serial transport. It does not open the port.
func New(cfg Config, log logging.Logger) *Transport {
	return &Transport{
		cfg:  cfg.withDefaults(),
		open: openPort,
		log:  logging.Component(log, "serial"),
	}
}

// Connect opens the port and starts reading.
func (t *Transport) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &transport.ConnectError{Address: t.cfg.Address, Err: err}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port != nil {
		return nil
	}

	t.SetState(transport.Connecting)
	port, err := t.open(&serial.Config{
		Address:  t.cfg.Address,
		BaudRate: t.cfg.BaudRate,
		DataBits: t.cfg.DataBits,
		StopBits: t.cfg.StopBits,
		Parity:   t.cfg.Parity,
		Timeout:  t.cfg.ReadTimeout,
	})
	if err != nil {
		t.SetState(transport.Disconnected)
		return &transport.ConnectError{Address: t.cfg.Address, Err: err}
	}

	t.port = port
	t.closing = false
	t.done = make(chan struct{})
	go t.readLoop(port, t.done)

	t.log.Info("port opened", "address", t.cfg.Address, "baud", t.cfg.BaudRate)
	t.SetState(transport.Connected)
	return nil
}

// Send writes frame as console lines.
func (t *Transport) Send(frame []byte) error {
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()

	if port == nil {
		return transport.ErrNotConnected
	}

	for _, line := range encodeFrame(frame) {
		if _, err := port.Write(line); err != nil {
			return &transport.LinkError{Op: "send", Err: err}
		}
	}
	return nil
}

// MTU returns the configured frame size.
func (t *Transport) MTU() int {
	return t.cfg.MTU
}

// Disconnect closes the port and waits for the reader to exit.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	port, done := t.port, t.done
	if port == nil {
		t.mu.Unlock()
		return nil
	}
	t.closing = true
	t.port = nil
	t.mu.Unlock()

	t.SetState(transport.Closing)
	err := port.Close()
	<-done
	t.SetState(transport.Disconnected)
	return err
}

func (t *Transport) readLoop(port io.ReadWriteCloser, done chan struct{}) {
	defer close(done)

	r := bufio.NewReader(port)
	var dec frameDecoder
	var line []byte

	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)

		switch {
		case err == nil:
			frame, ferr := dec.feed(line[:len(line)-1])
			line = line[:0]
			if ferr != nil {
				t.log.Warn("dropped console frame", "error", ferr)
				continue
			}
			if frame != nil {
				t.Deliver(frame)
			}
		case errors.Is(err, bufio.ErrBufferFull), errors.Is(err, serial.ErrTimeout):
			if t.isClosing() {
				return
			}
		default:
			if !t.isClosing() {
				t.log.Error("port read failed", "error", err)
				t.mu.Lock()
				if t.port == port {
					t.port = nil
				}
				t.mu.Unlock()
				port.Close()
				t.SetState(transport.Disconnected)
			}
			return
		}
	}
}

func (t *Transport) isClosing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closing
}

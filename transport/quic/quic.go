// Package quic tunnels SMP frames to a remote gateway over one QUIC stream.
//
// The gateway end owns the physical link to the peripheral (typically BLE)
// and relays frames unchanged in both directions. Frames on the stream are
// self-delimiting through the SMP header length field.
package quic

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	quicgo "github.com/quic-go/quic-go"

	"github.com/moffa90/go-mcumgr/logging"
	"github.com/moffa90/go-mcumgr/transport"
)

// ALPN is the application protocol negotiated on the QUIC connection.
const ALPN = "mcumgr-smp"

// Config configures the client end of the tunnel.
type Config struct {
	// Address is the gateway "host:port"
	Address string

	// TLSConfig is used as is when set
	TLSConfig *tls.Config

	// Insecure skips gateway certificate verification
	Insecure bool

	// WriteTimeout bounds each stream write (0 = no timeout)
	WriteTimeout time.Duration

	// MTU is the largest SMP frame the gateway link carries
	MTU int
}

// Statistics counts tunnel traffic.
type Statistics struct {
	BytesSent     uint64
	BytesReceived uint64
	Connects      uint64
	Disconnects   uint64
}

// Transport is the client end of a QUIC tunnel.
type Transport struct {
	transport.Hub

	cfg Config
	log logging.Logger

	mu     sync.Mutex
	conn   *quicgo.Conn
	stream *quicgo.Stream
	done   chan struct{}

	stats struct {
		bytesSent     atomic.Uint64
		bytesReceived atomic.Uint64
		connects      atomic.Uint64
		disconnects   atomic.Uint64
	}
}

// New returns a QUIC transport. It does not dial.
func New(cfg Config, log logging.Logger) *Transport {
	if cfg.MTU == 0 {
		cfg.MTU = transport.DefaultMTU
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Transport{cfg: cfg, log: logging.Component(log, "quic")}
}

func (t *Transport) tlsConfig() *tls.Config {
	if t.cfg.TLSConfig != nil {
		return t.cfg.TLSConfig
	}
	return &tls.Config{
		NextProtos:         []string{ALPN},
		InsecureSkipVerify: t.cfg.Insecure,
	}
}

// Connect dials the gateway and opens the frame stream.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return nil
	}

	t.SetState(transport.Connecting)
	conn, err := quicgo.DialAddr(ctx, t.cfg.Address, t.tlsConfig(), nil)
	if err != nil {
		t.SetState(transport.Disconnected)
		return &transport.ConnectError{Address: t.cfg.Address, Err: err}
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "failed to open stream")
		t.SetState(transport.Disconnected)
		return &transport.ConnectError{Address: t.cfg.Address, Err: fmt.Errorf("open stream: %w", err)}
	}

	t.conn, t.stream = conn, stream
	t.done = make(chan struct{})
	t.stats.connects.Add(1)
	go t.readLoop(conn, stream, t.done)

	t.log.Info("tunnel open", "address", t.cfg.Address)
	t.SetState(transport.Connected)
	return nil
}

// Send writes frame to the stream.
func (t *Transport) Send(frame []byte) error {
	t.mu.Lock()
	conn, stream := t.conn, t.stream
	t.mu.Unlock()

	if stream == nil {
		return transport.ErrNotConnected
	}

	if t.cfg.WriteTimeout > 0 {
		stream.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	}
	if _, err := stream.Write(frame); err != nil {
		t.teardown(conn, "write error")
		return &transport.LinkError{Op: "send", Err: err}
	}
	t.stats.bytesSent.Add(uint64(len(frame)))
	return nil
}

// MTU returns the configured frame size.
func (t *Transport) MTU() int {
	return t.cfg.MTU
}

// Disconnect closes the tunnel.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	conn, done := t.conn, t.done
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	t.SetState(transport.Closing)
	t.teardown(conn, "closed")
	<-done
	return nil
}

// Statistics returns a snapshot of the traffic counters.
func (t *Transport) Statistics() Statistics {
	return Statistics{
		BytesSent:     t.stats.bytesSent.Load(),
		BytesReceived: t.stats.bytesReceived.Load(),
		Connects:      t.stats.connects.Load(),
		Disconnects:   t.stats.disconnects.Load(),
	}
}

func (t *Transport) teardown(conn *quicgo.Conn, reason string) {
	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.conn, t.stream = nil, nil
	t.mu.Unlock()

	conn.CloseWithError(0, reason)
	t.stats.disconnects.Add(1)
	t.SetState(transport.Disconnected)
}

func (t *Transport) readLoop(conn *quicgo.Conn, stream *quicgo.Stream, done chan struct{}) {
	defer close(done)

	err := relayFrames(stream, func(frame []byte) {
		t.stats.bytesReceived.Add(uint64(len(frame)))
		t.Deliver(frame)
	}, t.log)
	if err != nil && !errors.Is(err, io.EOF) {
		t.log.Debug("stream closed", "error", err)
	}
	t.teardown(conn, "read error")
}

// relayFrames reads r until it fails, handing each complete frame to deliver.
func relayFrames(r io.Reader, deliver func([]byte), log logging.Logger) error {
	var reasm transport.Reassembler
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			frames, ferr := reasm.Push(buf[:n])
			if ferr != nil {
				log.Warn("discarded stream bytes", "error", ferr)
			}
			for _, f := range frames {
				deliver(f)
			}
		}
		if err != nil {
			return err
		}
	}
}

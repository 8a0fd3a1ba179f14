package smp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/moffa90/go-mcumgr/logging"
	"github.com/moffa90/go-mcumgr/protocol"
	"github.com/moffa90/go-mcumgr/transport"
)

// ErrTimeout is returned when no matching response arrives in time.
var ErrTimeout = errors.New("smp: response timeout")

// ErrClosed is returned by requests issued after Close.
var ErrClosed = errors.New("smp: client closed")

// Stats counts client traffic.
type Stats struct {
	Sent         uint64
	Received     uint64
	Dropped      uint64
	DecodeErrors uint64
	Timeouts     uint64
}

type result struct {
	env *protocol.Envelope
	err error
}

type pendingRequest struct {
	req *protocol.Envelope
	ch  chan result
}

// Client issues SMP requests over one transport.
//
// Client is safe for concurrent use; concurrent requests are serialized so
// that one envelope at most is outstanding on the link.
type Client struct {
	tr  transport.Transport
	cfg Config
	log logging.Logger

	// slot admits one outstanding envelope at a time.
	slot chan struct{}

	mu        sync.Mutex
	seq       uint16
	pending   map[uint16]*pendingRequest
	connected bool
	closed    bool

	unsubscribe func()
	unwatch     func()

	stats struct {
		sent         atomic.Uint64
		received     atomic.Uint64
		dropped      atomic.Uint64
		decodeErrors atomic.Uint64
		timeouts     atomic.Uint64
	}
}

// New creates a client over tr and starts listening for frames.
func New(tr transport.Transport, opts ...Option) *Client {
	if tr == nil {
		panic("transport cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Client{
		tr:      tr,
		cfg:     cfg,
		log:     logging.Component(cfg.Logger, "smp"),
		slot:    make(chan struct{}, 1),
		pending: make(map[uint16]*pendingRequest),
	}
	c.unsubscribe = tr.Subscribe(c.onFrame)
	c.unwatch = tr.Watch(c.onState)
	return c
}

// Transport returns the underlying transport.
func (c *Client) Transport() transport.Transport {
	return c.tr
}

// Connect establishes the link. A failure is a *transport.ConnectError and
// is not retried.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	if c.tr.State() != transport.Connected {
		if err := c.tr.Connect(ctx); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

// Disconnect drops the link but keeps the client usable; pending requests
// fail with a *transport.LinkError.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return c.tr.Disconnect()
}

// Close disconnects and stops the client.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	c.mu.Unlock()

	err := c.tr.Disconnect()
	c.failPending(ErrClosed)
	c.unsubscribe()
	c.unwatch()
	return err
}

// MTU returns the link's current frame size.
func (c *Client) MTU() int {
	return c.tr.MTU()
}

// Stats returns a snapshot of the traffic counters.
func (c *Client) Stats() Stats {
	return Stats{
		Sent:         c.stats.sent.Load(),
		Received:     c.stats.received.Load(),
		Dropped:      c.stats.dropped.Load(),
		DecodeErrors: c.stats.decodeErrors.Load(),
		Timeouts:     c.stats.timeouts.Load(),
	}
}

// Do sends req and waits for its response. The request is sent as a copy
// carrying a fresh sequence number, so the same envelope may be passed again
// on retry.
//
// The returned error is a *protocol.RemoteError when the peripheral rejected
// the command; the typed response is returned alongside it. Transport
// failures are *transport.LinkError, ErrTimeout or *protocol.DecodeError.
func (c *Client) Do(ctx context.Context, req *protocol.Envelope) (*protocol.Envelope, protocol.Response, error) {
	select {
	case c.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	defer func() { <-c.slot }()

	if err := c.ensureLink(ctx); err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, nil, ErrClosed
	}
	env := req.WithSeq(c.seq)
	c.seq++
	p := &pendingRequest{req: env, ch: make(chan result, 1)}
	c.pending[env.Header.Seq] = p
	c.mu.Unlock()

	defer c.removePending(env.Header.Seq, p)

	frame, err := env.Encode()
	if err != nil {
		return nil, nil, fmt.Errorf("encode %s: %w", env.Key(), err)
	}

	c.log.Debug("send", "op", env.Header.Op.String(), "command", env.Key().String(),
		"seq", env.Header.Seq, "len", len(env.Payload))
	if err := c.tr.Send(frame); err != nil {
		if !transport.IsLinkError(err) {
			err = &transport.LinkError{Op: "send", Err: err}
		}
		return nil, nil, err
	}
	c.stats.sent.Add(1)

	timer := time.NewTimer(c.cfg.Timeout)
	defer timer.Stop()

	var res result
	select {
	case res = <-p.ch:
	case <-timer.C:
		c.stats.timeouts.Add(1)
		return nil, nil, fmt.Errorf("%s seq=%d: %w", env.Key(), env.Header.Seq, ErrTimeout)
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	if res.err != nil {
		return nil, nil, res.err
	}

	rsp, err := protocol.DecodeResponse(res.env)
	if err != nil {
		return res.env, nil, err
	}
	return res.env, rsp, protocol.CheckResponse(res.env, rsp)
}

func (c *Client) ensureLink(ctx context.Context) error {
	if c.tr.State() == transport.Connected {
		return nil
	}

	c.mu.Lock()
	reconnect := c.connected && c.cfg.AutoReconnect && !c.closed
	c.mu.Unlock()

	if !reconnect {
		return &transport.LinkError{Op: "send", Err: transport.ErrNotConnected}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReconnectTimeout)
	defer cancel()

	c.log.Info("reconnecting")
	if err := c.tr.Connect(ctx); err != nil {
		return &transport.LinkError{Op: "reconnect", Err: err}
	}
	return nil
}

func (c *Client) removePending(seq uint16, p *pendingRequest) {
	c.mu.Lock()
	if c.pending[seq] == p {
		delete(c.pending, seq)
	}
	c.mu.Unlock()
}

func (c *Client) onFrame(frame []byte) {
	env, err := protocol.Decode(frame)
	if err != nil {
		c.stats.decodeErrors.Add(1)
		c.log.Warn("dropped malformed frame", "error", err, "len", len(frame))
		return
	}
	c.stats.received.Add(1)

	c.mu.Lock()
	p, ok := c.pending[env.Header.Seq]
	if ok && env.Answers(p.req) {
		delete(c.pending, env.Header.Seq)
	} else {
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		c.stats.dropped.Add(1)
		c.log.Warn("dropped unmatched response", "seq", env.Header.Seq,
			"group", env.Header.Group.String(), "id", env.Header.ID, "op", env.Header.Op.String())
		return
	}
	p.ch <- result{env: env}
}

func (c *Client) onState(s transport.State) {
	if s == transport.Disconnected {
		c.failPending(&transport.LinkError{Op: "receive", Err: errors.New("link lost")})
	}
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uint16]*pendingRequest)
	c.mu.Unlock()

	for _, p := range pending {
		p.ch <- result{err: err}
	}
}

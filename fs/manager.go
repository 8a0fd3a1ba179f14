package fs

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/moffa90/go-mcumgr/logging"
	"github.com/moffa90/go-mcumgr/protocol"
	"github.com/moffa90/go-mcumgr/transfer"
)

// NotFound is the size reported by Status for a file that does not exist.
const NotFound int64 = -1

// ErrBusy is returned when another operation is pending on the Manager.
var ErrBusy = errors.New("fs: another operation is pending")

// ErrClosed is returned by operations on a closed Manager.
var ErrClosed = errors.New("fs: manager closed")

// Client is the SMP connection a Manager issues requests on.
// *smp.Client implements it.
type Client interface {
	transfer.Requester
	Connect(ctx context.Context) error
	Disconnect() error
	Close() error
}

type state int

const (
	idle state = iota
	pending
)

// Manager runs file operations on one peripheral.
type Manager struct {
	client  Client
	log     logging.Logger
	options []transfer.Option

	mu      sync.Mutex
	state   state
	closed  bool
	session *transfer.Session
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets a logger for manager operations.
func WithLogger(logger logging.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.log = logging.Component(logger, "fs")
			m.options = append(m.options, transfer.WithLogger(logger))
		}
	}
}

// WithTransferOptions sets options applied to every transfer session the
// Manager starts, before any per-call options.
func WithTransferOptions(opts ...transfer.Option) Option {
	return func(m *Manager) {
		m.options = append(m.options, opts...)
	}
}

// New returns a Manager using client.
func New(client Client, opts ...Option) *Manager {
	m := &Manager{
		client: client,
		log:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire moves the manager to pending or fails with ErrBusy.
func (m *Manager) acquire() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.state == pending {
		return ErrBusy
	}
	m.state = pending
	return nil
}

func (m *Manager) release(s *transfer.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s != nil && m.session != s {
		return
	}
	m.state = idle
	m.session = nil
}

// Busy reports whether an operation is pending.
func (m *Manager) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == pending
}

// Status returns the size of the file at path, or NotFound.
func (m *Manager) Status(ctx context.Context, path string) (int64, error) {
	req, err := protocol.BuildFileStatusCmd(path)
	if err != nil {
		return 0, err
	}
	if err := m.acquire(); err != nil {
		return 0, err
	}
	defer m.release(nil)

	_, rsp, err := m.client.Do(ctx, req)
	if protocol.IsNoEntry(err) {
		m.log.Debug("status: not found", "path", path)
		return NotFound, nil
	}
	if err != nil {
		return 0, fmt.Errorf("status %s: %w", path, err)
	}

	status, ok := rsp.(*protocol.FileStatusResponse)
	if !ok {
		return 0, fmt.Errorf("status %s: unexpected response %T", path, rsp)
	}
	return int64(status.Len), nil
}

// Hash returns the lowercase hex SHA-256 digest of the file at path.
// ok is false when the file does not exist.
func (m *Manager) Hash(ctx context.Context, path string) (digest string, ok bool, err error) {
	req, err := protocol.BuildFileHashCmd(path)
	if err != nil {
		return "", false, err
	}
	if err := m.acquire(); err != nil {
		return "", false, err
	}
	defer m.release(nil)

	_, rsp, err := m.client.Do(ctx, req)
	if protocol.IsNoEntry(err) {
		m.log.Debug("hash: not found", "path", path)
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("hash %s: %w", path, err)
	}

	h, isHash := rsp.(*protocol.FileHashResponse)
	if !isHash {
		return "", false, fmt.Errorf("hash %s: unexpected response %T", path, rsp)
	}
	if h.Type != "" && h.Type != protocol.HashTypeSHA256 {
		return "", false, fmt.Errorf("hash %s: peer used %q, want %q", path, h.Type, protocol.HashTypeSHA256)
	}
	if len(h.Output) != protocol.SHA256Size {
		return "", false, fmt.Errorf("hash %s: digest is %d bytes, want %d", path, len(h.Output), protocol.SHA256Size)
	}
	return hex.EncodeToString(h.Output), true, nil
}

// Write starts uploading data to path and returns the running session.
// The Manager stays busy until the session ends.
func (m *Manager) Write(ctx context.Context, path string, data []byte, opts ...transfer.Option) (*transfer.Session, error) {
	if path == "" {
		return nil, fmt.Errorf("file name cannot be empty")
	}
	if err := m.acquire(); err != nil {
		return nil, err
	}

	buf := append([]byte(nil), data...)
	return m.start(ctx, func(all []transfer.Option) *transfer.Session {
		return transfer.NewUpload(m.client, uploadCodec{name: path}, buf, all...)
	}, opts)
}

// Upload reads r to the end and uploads its content to path.
func (m *Manager) Upload(ctx context.Context, path string, r io.Reader, opts ...transfer.Option) (*transfer.Session, error) {
	if path == "" {
		return nil, fmt.Errorf("file name cannot be empty")
	}
	if err := m.acquire(); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		m.release(nil)
		return nil, fmt.Errorf("read upload source: %w", err)
	}
	return m.start(ctx, func(all []transfer.Option) *transfer.Session {
		return transfer.NewUpload(m.client, uploadCodec{name: path}, data, all...)
	}, opts)
}

// Download starts reading the file at path and returns the running session.
// The content is in the session Result once it completes.
func (m *Manager) Download(ctx context.Context, path string, opts ...transfer.Option) (*transfer.Session, error) {
	if path == "" {
		return nil, fmt.Errorf("file name cannot be empty")
	}
	if err := m.acquire(); err != nil {
		return nil, err
	}
	return m.start(ctx, func(all []transfer.Option) *transfer.Session {
		return transfer.NewDownload(m.client, downloadCodec{name: path}, all...)
	}, opts)
}

// start builds and starts a session while the manager is pending. The
// manager is released before any caller done callback runs.
func (m *Manager) start(ctx context.Context, build func([]transfer.Option) *transfer.Session, opts []transfer.Option) (*transfer.Session, error) {
	var s *transfer.Session

	all := make([]transfer.Option, 0, len(m.options)+len(opts)+1)
	all = append(all, transfer.WithDoneCallback(func(transfer.Result) { m.release(s) }))
	all = append(all, m.options...)
	all = append(all, opts...)

	m.mu.Lock()
	s = build(all)
	m.session = s
	m.mu.Unlock()

	if err := s.Start(ctx); err != nil {
		m.release(s)
		return nil, err
	}
	return s, nil
}

// Cancel cancels the running transfer, if any.
func (m *Manager) Cancel() {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()

	if s != nil {
		s.Cancel()
	}
}

// Connect establishes the connection to the peripheral.
func (m *Manager) Connect(ctx context.Context) error {
	return m.client.Connect(ctx)
}

// Reset cancels the running transfer and drops the connection. The Manager
// stays usable after a new Connect.
func (m *Manager) Reset() error {
	m.Cancel()
	return m.client.Disconnect()
}

// Close cancels the running transfer and closes the connection.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.Cancel()
	return m.client.Close()
}

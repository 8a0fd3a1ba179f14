package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/moffa90/go-mcumgr/firmware"
	"github.com/moffa90/go-mcumgr/fs"
	"github.com/moffa90/go-mcumgr/image"
	"github.com/moffa90/go-mcumgr/logging"
	"github.com/moffa90/go-mcumgr/osmgr"
	"github.com/moffa90/go-mcumgr/smp"
	"github.com/moffa90/go-mcumgr/transfer"
	"github.com/moffa90/go-mcumgr/transport"
	"github.com/moffa90/go-mcumgr/upgrade"
)

var (
	// ErrUnknownID is returned for an identifier with no instance.
	ErrUnknownID = errors.New("bridge: no instance with this id")

	// ErrDuplicateID is returned when creating an instance under a used id.
	ErrDuplicateID = errors.New("bridge: id already in use")

	// ErrUpgradeRunning is returned when starting an upgrade on an instance
	// whose previous upgrade has not ended.
	ErrUpgradeRunning = errors.New("bridge: upgrade already running")
)

// Dialer opens a transport to the device at address. The transport is
// returned disconnected.
type Dialer func(address string) (transport.Transport, error)

// Option configures a Registry.
type Option func(*Registry)

// WithEventSink sets the receiver of progress and state events.
func WithEventSink(sink EventSink) Option {
	return func(r *Registry) {
		if sink != nil {
			r.sink = sink
		}
	}
}

// WithLogger sets the logger handed to every instance.
func WithLogger(logger logging.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClientOptions sets options for every SMP client the registry creates.
func WithClientOptions(opts ...smp.Option) Option {
	return func(r *Registry) {
		r.clientOpts = append(r.clientOpts, opts...)
	}
}

// WithTransferOptions sets options for every file transfer.
func WithTransferOptions(opts ...transfer.Option) Option {
	return func(r *Registry) {
		r.transferOpts = append(r.transferOpts, opts...)
	}
}

type upgradeEntry struct {
	client *smp.Client
	opts   []upgrade.Option

	mu      sync.Mutex
	current *upgrade.Upgrader
}

// Registry holds file manager and upgrade instances keyed by identifier.
type Registry struct {
	dial         Dialer
	sink         EventSink
	logger       logging.Logger
	log          logging.Logger
	clientOpts   []smp.Option
	transferOpts []transfer.Option

	mu       sync.Mutex
	files    map[string]*fs.Manager
	upgrades map[string]*upgradeEntry
}

// NewRegistry returns an empty registry opening devices with dial.
func NewRegistry(dial Dialer, opts ...Option) *Registry {
	if dial == nil {
		panic("dialer cannot be nil")
	}
	r := &Registry{
		dial:     dial,
		sink:     discard{},
		logger:   logging.Nop(),
		files:    make(map[string]*fs.Manager),
		upgrades: make(map[string]*upgradeEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = logging.Component(r.logger, "bridge")
	return r
}

func (r *Registry) newClient(address string) (*smp.Client, error) {
	tr, err := r.dial(address)
	if err != nil {
		return nil, &transport.ConnectError{Address: address, Err: err}
	}
	opts := append([]smp.Option{smp.WithLogger(r.logger)}, r.clientOpts...)
	return smp.New(tr, opts...), nil
}

func (r *Registry) idInUse(id string) bool {
	_, file := r.files[id]
	_, up := r.upgrades[id]
	return file || up
}

// CreateFileManager creates a file manager for the device at address.
// The connection is opened by the first operation.
func (r *Registry) CreateFileManager(id, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.idInUse(id) {
		return ErrDuplicateID
	}
	client, err := r.newClient(address)
	if err != nil {
		return err
	}
	r.files[id] = fs.New(client, fs.WithLogger(r.logger), fs.WithTransferOptions(r.transferOpts...))
	r.log.Debug("file manager created", "id", id, "address", address)
	return nil
}

// DestroyFileManager cancels any transfer and releases the instance.
func (r *Registry) DestroyFileManager(id string) error {
	r.mu.Lock()
	m, ok := r.files[id]
	delete(r.files, id)
	r.mu.Unlock()

	if !ok {
		return ErrUnknownID
	}
	return m.Close()
}

// ResetFileManager cancels any transfer and drops the connection, keeping
// the instance.
func (r *Registry) ResetFileManager(id string) error {
	m, err := r.fileManager(id)
	if err != nil {
		return err
	}
	return m.Reset()
}

// CancelUpload cancels the running transfer of a file manager.
func (r *Registry) CancelUpload(id string) error {
	m, err := r.fileManager(id)
	if err != nil {
		return err
	}
	m.Cancel()
	return nil
}

func (r *Registry) fileManager(id string) (*fs.Manager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.files[id]
	if !ok {
		return nil, ErrUnknownID
	}
	return m, nil
}

// connected returns the file manager for id with its link up.
func (r *Registry) connected(ctx context.Context, id string) (*fs.Manager, error) {
	m, err := r.fileManager(id)
	if err != nil {
		return nil, err
	}
	if err := m.Connect(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Status resolves to the file size, or fs.NotFound.
func (r *Registry) Status(ctx context.Context, id, path string) *Future[int64] {
	f := newFuture[int64]()
	go func() {
		m, err := r.connected(ctx, id)
		if err != nil {
			f.reject(err)
			return
		}
		f.settle(m.Status(ctx, path))
	}()
	return f
}

// HashResult is the outcome of a hash query.
type HashResult struct {
	// Digest is the lowercase hex SHA-256 of the file
	Digest string

	// Found is false when the file does not exist
	Found bool
}

// Hash resolves to the file digest.
func (r *Registry) Hash(ctx context.Context, id, path string) *Future[HashResult] {
	f := newFuture[HashResult]()
	go func() {
		m, err := r.connected(ctx, id)
		if err != nil {
			f.reject(err)
			return
		}
		digest, found, err := m.Hash(ctx, path)
		f.settle(HashResult{Digest: digest, Found: found}, err)
	}()
	return f
}

// Upload streams src to path. Progress is pushed as fileUploadProgress.
func (r *Registry) Upload(ctx context.Context, id, path string, src io.Reader) *Future[struct{}] {
	data, err := io.ReadAll(src)
	if err != nil {
		return failed[struct{}](fmt.Errorf("read upload source: %w", err))
	}
	return r.Write(ctx, id, path, data)
}

// Write uploads data to path. Progress is pushed as fileUploadProgress.
// A write while another operation is pending rejects with fs.ErrBusy and
// is not started.
func (r *Registry) Write(ctx context.Context, id, path string, data []byte) *Future[struct{}] {
	f := newFuture[struct{}]()
	go func() {
		m, err := r.connected(ctx, id)
		if err != nil {
			f.reject(err)
			return
		}

		_, err = m.Write(ctx, path, data,
			transfer.WithProgressCallback(func(p transfer.Progress) {
				r.sink.Emit(Event{
					Name:      EventFileUploadProgress,
					ID:        id,
					Progress:  percent(p.Percentage),
					BytesSent: p.Bytes,
					TotalSize: p.Total,
				})
			}),
			transfer.WithDoneCallback(func(res transfer.Result) {
				f.settle(struct{}{}, res.Err)
			}),
		)
		if err != nil {
			f.reject(err)
		}
	}()
	return f
}

// Download resolves to the content of the file at path.
func (r *Registry) Download(ctx context.Context, id, path string) *Future[[]byte] {
	f := newFuture[[]byte]()
	go func() {
		m, err := r.connected(ctx, id)
		if err != nil {
			f.reject(err)
			return
		}

		_, err = m.Download(ctx, path, transfer.WithDoneCallback(func(res transfer.Result) {
			f.settle(res.Data, res.Err)
		}))
		if err != nil {
			f.reject(err)
		}
	}()
	return f
}

// CreateUpgrade creates an upgrade instance for the device at address.
func (r *Registry) CreateUpgrade(id, address string, opts ...upgrade.Option) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.idInUse(id) {
		return ErrDuplicateID
	}
	client, err := r.newClient(address)
	if err != nil {
		return err
	}
	r.upgrades[id] = &upgradeEntry{client: client, opts: opts}
	r.log.Debug("upgrade created", "id", id, "address", address)
	return nil
}

func (r *Registry) upgradeEntry(id string) (*upgradeEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.upgrades[id]
	if !ok {
		return nil, ErrUnknownID
	}
	return e, nil
}

// StartUpgrade runs an upgrade with img. Upload progress is pushed as
// uploadProgress and every phase change as upgradeStateChanged.
func (r *Registry) StartUpgrade(ctx context.Context, id string, img *firmware.Image) *Future[struct{}] {
	e, err := r.upgradeEntry(id)
	if err != nil {
		return failed[struct{}](err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil && e.current.State() == upgrade.StateRunning {
		return failed[struct{}](ErrUpgradeRunning)
	}

	opts := append([]upgrade.Option{upgrade.WithLogger(r.logger)}, e.opts...)
	opts = append(opts,
		upgrade.WithProgressCallback(func(p upgrade.Progress) {
			if p.Phase != upgrade.PhaseUploading {
				return
			}
			r.sink.Emit(Event{
				Name:      EventUploadProgress,
				ID:        id,
				Progress:  percent(p.Percentage),
				BytesSent: p.BytesSent,
				TotalSize: p.TotalBytes,
			})
		}),
		upgrade.WithStateCallback(func(phase upgrade.Phase, state upgrade.State) {
			r.sink.Emit(Event{
				Name:  EventUpgradeStateChanged,
				ID:    id,
				Phase: phase.String(),
				State: state.String(),
			})
		}),
	)

	up := upgrade.New(e.client, opts...)
	if err := up.Start(ctx, img); err != nil {
		return failed[struct{}](err)
	}
	e.current = up

	f := newFuture[struct{}]()
	go func() {
		f.settle(struct{}{}, up.Wait())
	}()
	return f
}

// CancelUpgrade cancels the running upgrade. It fails with a
// *upgrade.CannotCancelError once the device has been reset.
func (r *Registry) CancelUpgrade(id string) error {
	e, err := r.upgradeEntry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	up := e.current
	e.mu.Unlock()

	if up == nil {
		return &upgrade.CannotCancelError{Phase: upgrade.PhaseIdle}
	}
	return up.Cancel()
}

// DestroyUpgrade releases an upgrade instance. A running upgrade is
// canceled when still possible.
func (r *Registry) DestroyUpgrade(id string) error {
	r.mu.Lock()
	e, ok := r.upgrades[id]
	delete(r.upgrades, id)
	r.mu.Unlock()

	if !ok {
		return ErrUnknownID
	}

	e.mu.Lock()
	up := e.current
	e.mu.Unlock()
	if up != nil && up.State() == upgrade.StateRunning {
		if err := up.Cancel(); err != nil {
			r.log.Warn("destroying running upgrade", "id", id, "error", err)
		}
	}
	return e.client.Close()
}

// oneShot runs op on a fresh connection to address and tears it down after.
func (r *Registry) oneShot(ctx context.Context, address string, op func(*smp.Client) error) error {
	client, err := r.newClient(address)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if err := client.Connect(ctx); err != nil {
		return err
	}
	return op(client)
}

// EraseImage erases the secondary image slot of the device at address.
func (r *Registry) EraseImage(ctx context.Context, address string) *Future[struct{}] {
	f := newFuture[struct{}]()
	go func() {
		f.settle(struct{}{}, r.oneShot(ctx, address, func(c *smp.Client) error {
			return image.New(c, r.logger).Erase(ctx, 1)
		}))
	}()
	return f
}

// ConfirmImage confirms the image with hash on the device at address. A nil
// hash confirms the running image.
func (r *Registry) ConfirmImage(ctx context.Context, address string, hash []byte) *Future[struct{}] {
	f := newFuture[struct{}]()
	go func() {
		f.settle(struct{}{}, r.oneShot(ctx, address, func(c *smp.Client) error {
			_, err := image.New(c, r.logger).Confirm(ctx, hash)
			return err
		}))
	}()
	return f
}

// ResetDevice reboots the device at address.
func (r *Registry) ResetDevice(ctx context.Context, address string) *Future[struct{}] {
	f := newFuture[struct{}]()
	go func() {
		f.settle(struct{}{}, r.oneShot(ctx, address, func(c *smp.Client) error {
			return osmgr.New(c, r.logger).Reset(ctx)
		}))
	}()
	return f
}

// Close releases every instance.
func (r *Registry) Close() error {
	r.mu.Lock()
	files, upgrades := r.files, r.upgrades
	r.files = make(map[string]*fs.Manager)
	r.upgrades = make(map[string]*upgradeEntry)
	r.mu.Unlock()

	var errs []error
	for _, m := range files {
		errs = append(errs, m.Close())
	}
	for _, e := range upgrades {
		errs = append(errs, e.client.Close())
	}
	return errors.Join(errs...)
}

func percent(p float64) int {
	return int(math.Round(p))
}

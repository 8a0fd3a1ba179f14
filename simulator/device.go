package simulator

import (
	"context"
	"crypto/sha256"
	"errors"
	"sync"
	"time"

	"github.com/moffa90/go-mcumgr/logging"
	"github.com/moffa90/go-mcumgr/protocol"
	"github.com/moffa90/go-mcumgr/transport"
)

var (
	errRefused   = errors.New("simulator: connection refused")
	errRebooting = errors.New("simulator: peripheral rebooting")
)

// Options configures a Device.
type Options struct {
	// MTU is the frame size reported to the host
	MTU int

	// Latency delays every response
	Latency time.Duration

	// RebootDelay is how long the device refuses connections after reset
	RebootDelay time.Duration

	// Firmware is the image running in slot 0 at start
	Firmware []byte

	// FirmwareVersion is the version reported for slot 0
	FirmwareVersion string

	// UploadVersion is the version reported for uploaded images
	UploadVersion string

	// DownloadChunk bounds the data returned by one download response
	DownloadChunk int

	// Logger is used for logging device activity (optional)
	Logger logging.Logger
}

// Option is a functional option for configuring the Device.
type Option func(*Options)

// WithMTU sets the frame size reported to the host.
func WithMTU(mtu int) Option {
	return func(o *Options) { o.MTU = mtu }
}

// WithLatency delays every response by d.
func WithLatency(d time.Duration) Option {
	return func(o *Options) { o.Latency = d }
}

// WithRebootDelay sets how long connects are refused after a reset.
func WithRebootDelay(d time.Duration) Option {
	return func(o *Options) { o.RebootDelay = d }
}

// WithFirmware sets the image running at start and its version.
func WithFirmware(image []byte, version string) Option {
	return func(o *Options) {
		o.Firmware = image
		o.FirmwareVersion = version
	}
}

// WithUploadVersion sets the version reported for uploaded images.
func WithUploadVersion(version string) Option {
	return func(o *Options) { o.UploadVersion = version }
}

// WithDownloadChunk bounds the data returned per download response.
func WithDownloadChunk(n int) Option {
	return func(o *Options) { o.DownloadChunk = n }
}

// WithLogger sets a logger for device activity.
func WithLogger(l logging.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

type outbound struct {
	frame  []byte
	reboot bool
}

// Device is a simulated peripheral reachable through the transport.Transport
// interface.
type Device struct {
	transport.Hub

	opts Options
	log  logging.Logger

	mu        sync.Mutex
	mtu       int
	linkUp    bool
	out       chan outbound
	stop      chan struct{}
	rebootAt  time.Time
	rebootDue bool
	resets    int
	faults    faults
	counts    map[protocol.CommandKey]int
	requests  []protocol.Header

	files   map[string][]byte
	uploads map[string]*pendingFile
	slots   [2]*slot
	staging *pendingImage
}

// New returns a disconnected device.
func New(opts ...Option) *Device {
	o := Options{
		MTU:             transport.DefaultMTU,
		FirmwareVersion: "1.0.0",
		UploadVersion:   "1.1.0",
		DownloadChunk:   128,
		Logger:          logging.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Firmware == nil {
		o.Firmware = []byte("simulated firmware 1.0.0")
	}

	d := &Device{
		opts:    o,
		log:     logging.Component(o.Logger, "simulator"),
		mtu:     o.MTU,
		counts:  make(map[protocol.CommandKey]int),
		files:   make(map[string][]byte),
		uploads: make(map[string]*pendingFile),
	}
	d.slots[0] = &slot{
		data:      o.Firmware,
		hash:      sha256.Sum256(o.Firmware),
		version:   o.FirmwareVersion,
		confirmed: true,
	}
	return d
}

// Connect brings the link up unless the device is rebooting or refusing.
func (d *Device) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &transport.ConnectError{Address: "simulator", Err: err}
	}

	d.mu.Lock()
	if d.linkUp {
		d.mu.Unlock()
		return nil
	}
	switch {
	case d.faults.refuseConnects:
		d.mu.Unlock()
		return &transport.ConnectError{Address: "simulator", Err: errRefused}
	case time.Now().Before(d.rebootAt):
		d.mu.Unlock()
		return &transport.ConnectError{Address: "simulator", Err: errRebooting}
	}

	d.linkUp = true
	d.out = make(chan outbound, 64)
	d.stop = make(chan struct{})
	go d.deliverLoop(d.out, d.stop)
	d.mu.Unlock()

	d.SetState(transport.Connected)
	return nil
}

// Disconnect drops the link. It is idempotent.
func (d *Device) Disconnect() error {
	d.dropLink()
	return nil
}

// MTU returns the current frame size.
func (d *Device) MTU() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mtu
}

// Send hands one request frame to the device.
func (d *Device) Send(frame []byte) error {
	d.mu.Lock()
	if !d.linkUp {
		d.mu.Unlock()
		return transport.ErrNotConnected
	}

	if d.faults.disconnectAfter > 0 {
		d.faults.disconnectAfter--
		if d.faults.disconnectAfter == 0 {
			d.mu.Unlock()
			d.log.Info("injected link drop")
			d.dropLink()
			return nil
		}
	}

	req, err := protocol.Decode(frame)
	if err != nil {
		d.mu.Unlock()
		d.log.Warn("undecodable request", "error", err)
		return nil
	}
	d.counts[req.Key()]++
	d.requests = append(d.requests, req.Header)

	rsp, reboot := d.handle(req)

	var frames []outbound
	if d.faults.corruptNext > 0 {
		d.faults.corruptNext--
		frames = append(frames, outbound{frame: []byte{0xFF, 0x00, 0x00}})
	}
	if d.faults.dropResponses > 0 {
		d.faults.dropResponses--
		rsp = nil
	}
	if rsp != nil {
		encoded, err := rsp.Encode()
		if err != nil {
			d.log.Error("encode response", "error", err)
		} else {
			frames = append(frames, outbound{frame: encoded})
		}
	}
	if reboot {
		d.rebootDue = true
		frames = append(frames, outbound{reboot: true})
	}

	out := d.out
	for _, f := range frames {
		out <- f
	}
	d.mu.Unlock()
	return nil
}

func (d *Device) deliverLoop(out chan outbound, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case o := <-out:
			if d.opts.Latency > 0 {
				select {
				case <-time.After(d.opts.Latency):
				case <-stop:
					return
				}
			}
			if o.reboot {
				d.reboot()
				return
			}
			d.Deliver(o.frame)
		}
	}
}

func (d *Device) dropLink() {
	d.mu.Lock()
	if !d.linkUp {
		d.mu.Unlock()
		return
	}
	d.linkUp = false
	close(d.stop)
	due := d.rebootDue
	d.mu.Unlock()

	// A host that hangs up right after a reset response must not cancel the reboot.
	if due {
		d.reboot()
	}
	d.SetState(transport.Disconnected)
}

// reboot applies any pending image swap and drops the link. It runs once per
// accepted reset request.
func (d *Device) reboot() {
	d.mu.Lock()
	if !d.rebootDue {
		d.mu.Unlock()
		return
	}
	d.rebootDue = false
	d.resets++
	d.rebootAt = time.Now().Add(d.opts.RebootDelay)
	d.bootSwap()
	d.uploads = make(map[string]*pendingFile)
	d.mu.Unlock()

	d.log.Info("rebooted", "resets", d.Resets())
	d.dropLink()
}

// Resets returns how many times the device has rebooted.
func (d *Device) Resets() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resets
}

// Count returns how many requests for (group, id) the device has handled.
func (d *Device) Count(group protocol.Group, id uint8) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[protocol.CommandKey{Group: group, ID: id}]
}

// Requests returns the headers of every handled request in arrival order.
func (d *Device) Requests() []protocol.Header {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]protocol.Header, len(d.requests))
	copy(out, d.requests)
	return out
}

// SetFile stores a file directly on the device.
func (d *Device) SetFile(path string, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files[path] = append([]byte(nil), data...)
}

// File returns a stored file.
func (d *Device) File(path string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.files[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// RemoveFile deletes a stored file.
func (d *Device) RemoveFile(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.files, path)
}

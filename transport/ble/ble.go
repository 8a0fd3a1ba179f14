// Package ble carries SMP frames over the Bluetooth LE SMP GATT service.
//
// Requests are written without response to the SMP characteristic and
// responses arrive as notifications on the same characteristic. A frame
// larger than one ATT payload is split across several writes, and inbound
// notifications are reassembled by header length.
package ble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/moffa90/go-mcumgr/logging"
	"github.com/moffa90/go-mcumgr/transport"
)

// GATT identifiers of the SMP service.
const (
	ServiceUUID        = "8D53DC1D-1DB7-4CD3-868B-8A527460AA84"
	CharacteristicUUID = "DA2E7828-FBCE-4E01-AE9E-261174997C48"
)

// attOverhead is the ATT opcode and handle preceding every write payload.
const attOverhead = 3

// Config selects the peripheral and link parameters.
type Config struct {
	// Address is the peripheral address or, when NameMatch is set, a local name
	Address string

	// NameMatch matches Address against the advertised local name instead
	NameMatch bool

	// ScanTimeout bounds the scan for the peripheral
	ScanTimeout time.Duration

	// MTU is the largest SMP frame sent in one request
	MTU int
}

// gattLink is the connected characteristic seen by Transport.
type gattLink interface {
	write(p []byte) error
	attMTU() int
	close() error
}

// dialFunc connects to the peripheral and enables notifications, delivering
// every notification to onNotify.
type dialFunc func(ctx context.Context, cfg Config, onNotify func([]byte)) (gattLink, error)

// Transport is a transport.Transport over BLE.
type Transport struct {
	transport.Hub

	cfg  Config
	dial dialFunc
	log  logging.Logger

	mu    sync.Mutex
	link  gattLink
	reasm transport.Reassembler
}

// New returns a BLE transport using the default adapter.
func New(cfg Config, log logging.Logger) *Transport {
	if cfg.ScanTimeout == 0 {
		cfg.ScanTimeout = 10 * time.Second
	}
	if cfg.MTU == 0 {
		cfg.MTU = transport.DefaultMTU
	}
	return &Transport{
		cfg:  cfg,
		dial: dialAdapter,
		log:  logging.Component(log, "ble"),
	}
}

// Connect scans for the peripheral, connects and subscribes to notifications.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.link != nil {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	t.SetState(transport.Connecting)
	link, err := t.dial(ctx, t.cfg, t.onNotify)
	if err != nil {
		t.SetState(transport.Disconnected)
		return &transport.ConnectError{Address: t.cfg.Address, Err: err}
	}

	t.mu.Lock()
	t.link = link
	t.reasm.Reset()
	t.mu.Unlock()

	t.log.Info("connected", "address", t.cfg.Address, "att_mtu", link.attMTU())
	t.SetState(transport.Connected)
	return nil
}

// Send writes frame, split into ATT-sized writes.
func (t *Transport) Send(frame []byte) error {
	t.mu.Lock()
	link := t.link
	t.mu.Unlock()

	if link == nil {
		return transport.ErrNotConnected
	}

	size := link.attMTU() - attOverhead
	if size <= 0 {
		size = len(frame)
	}
	for off := 0; off < len(frame); off += size {
		end := off + size
		if end > len(frame) {
			end = len(frame)
		}
		if err := link.write(frame[off:end]); err != nil {
			t.dropLink(link)
			return &transport.LinkError{Op: "send", Err: err}
		}
	}
	return nil
}

// MTU returns the configured frame size.
func (t *Transport) MTU() int {
	return t.cfg.MTU
}

// Disconnect drops the BLE connection.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	link := t.link
	t.link = nil
	t.mu.Unlock()

	if link == nil {
		return nil
	}

	t.SetState(transport.Closing)
	err := link.close()
	t.SetState(transport.Disconnected)
	return err
}

func (t *Transport) onNotify(data []byte) {
	t.mu.Lock()
	frames, err := t.reasm.Push(data)
	t.mu.Unlock()

	if err != nil {
		t.log.Warn("discarded notification", "error", err)
	}
	for _, f := range frames {
		t.Deliver(f)
	}
}

func (t *Transport) dropLink(link gattLink) {
	t.mu.Lock()
	if t.link != link {
		t.mu.Unlock()
		return
	}
	t.link = nil
	t.mu.Unlock()

	link.close()
	t.SetState(transport.Disconnected)
}

type adapterLink struct {
	device bluetooth.Device
	char   bluetooth.DeviceCharacteristic
}

func (l *adapterLink) write(p []byte) error {
	_, err := l.char.WriteWithoutResponse(p)
	return err
}

func (l *adapterLink) attMTU() int {
	mtu, err := l.char.GetMTU()
	if err != nil || mtu == 0 {
		return 23
	}
	return int(mtu)
}

func (l *adapterLink) close() error {
	return l.device.Disconnect()
}

func dialAdapter(ctx context.Context, cfg Config, onNotify func([]byte)) (gattLink, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("enable adapter: %w", err)
	}

	result, err := scan(ctx, adapter, cfg)
	if err != nil {
		return nil, err
	}

	device, err := adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	char, err := smpCharacteristic(device)
	if err != nil {
		device.Disconnect()
		return nil, err
	}

	if err := char.EnableNotifications(onNotify); err != nil {
		device.Disconnect()
		return nil, fmt.Errorf("enable notifications: %w", err)
	}

	return &adapterLink{device: device, char: char}, nil
}

func scan(ctx context.Context, adapter *bluetooth.Adapter, cfg Config) (bluetooth.ScanResult, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ScanTimeout)
	defer cancel()

	found := make(chan bluetooth.ScanResult, 1)
	go func() {
		<-ctx.Done()
		adapter.StopScan()
	}()

	err := adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
		var match bool
		if cfg.NameMatch {
			match = result.LocalName() == cfg.Address
		} else {
			match = strings.EqualFold(result.Address.String(), cfg.Address)
		}
		if match {
			select {
			case found <- result:
			default:
			}
			a.StopScan()
		}
	})
	if err != nil {
		return bluetooth.ScanResult{}, fmt.Errorf("scan: %w", err)
	}

	select {
	case result := <-found:
		return result, nil
	default:
		if ctx.Err() != nil {
			return bluetooth.ScanResult{}, fmt.Errorf("peripheral %s not found: %w", cfg.Address, ctx.Err())
		}
		return bluetooth.ScanResult{}, errors.New("scan stopped before peripheral was found")
	}
}

func smpCharacteristic(device bluetooth.Device) (bluetooth.DeviceCharacteristic, error) {
	var char bluetooth.DeviceCharacteristic

	svcUUID, err := bluetooth.ParseUUID(ServiceUUID)
	if err != nil {
		return char, fmt.Errorf("parse service uuid: %w", err)
	}
	charUUID, err := bluetooth.ParseUUID(CharacteristicUUID)
	if err != nil {
		return char, fmt.Errorf("parse characteristic uuid: %w", err)
	}

	srvs, err := device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil || len(srvs) == 0 {
		return char, fmt.Errorf("smp service not found: %v", err)
	}

	chars, err := srvs[0].DiscoverCharacteristics([]bluetooth.UUID{charUUID})
	if err != nil {
		return char, fmt.Errorf("discover smp characteristic: %w", err)
	}
	for _, c := range chars {
		if strings.EqualFold(c.UUID().String(), CharacteristicUUID) {
			return c, nil
		}
	}
	return char, errors.New("smp characteristic not found")
}

package main

import (
	"crypto/tls"
	"fmt"

	"github.com/moffa90/go-mcumgr/config"
	"github.com/moffa90/go-mcumgr/logging"
	"github.com/moffa90/go-mcumgr/simulator"
	"github.com/moffa90/go-mcumgr/transport"
	"github.com/moffa90/go-mcumgr/transport/ble"
	"github.com/moffa90/go-mcumgr/transport/quic"
	"github.com/moffa90/go-mcumgr/transport/serial"
)

// newSimulator is replaced in tests to share one device across runs.
var newSimulator = func(cfg config.TransportConfig, log logging.Logger) transport.Transport {
	opts := []simulator.Option{simulator.WithLogger(log)}
	if cfg.MTU > 0 {
		opts = append(opts, simulator.WithMTU(cfg.MTU))
	}
	return simulator.New(opts...)
}

// dialTransport builds the transport described by a normalized config.
// Nothing is connected yet.
func dialTransport(cfg config.TransportConfig, log logging.Logger) (transport.Transport, error) {
	switch cfg.Type {
	case config.TransportSim:
		return newSimulator(cfg, log), nil

	case config.TransportSerial:
		return serial.New(serial.Config{
			Address:     cfg.Address,
			BaudRate:    cfg.Serial.BaudRate,
			DataBits:    cfg.Serial.DataBits,
			StopBits:    cfg.Serial.StopBits,
			Parity:      cfg.Serial.Parity,
			ReadTimeout: millis(cfg.Serial.ReadTimeoutMs),
			MTU:         cfg.MTU,
		}, log), nil

	case config.TransportBLE:
		return ble.New(ble.Config{
			Address:     cfg.Address,
			NameMatch:   cfg.BLE.NameMatch,
			ScanTimeout: millis(cfg.BLE.ScanTimeoutMs),
			MTU:         cfg.MTU,
		}, log), nil

	case config.TransportQUIC:
		qc := quic.Config{
			Address:      cfg.Address,
			Insecure:     cfg.QUIC.Insecure,
			WriteTimeout: millis(cfg.QUIC.WriteTimeoutMs),
			MTU:          cfg.MTU,
		}
		if cfg.QUIC.ServerName != "" {
			qc.TLSConfig = &tls.Config{
				ServerName:         cfg.QUIC.ServerName,
				NextProtos:         []string{quic.ALPN},
				InsecureSkipVerify: cfg.QUIC.Insecure,
			}
		}
		return quic.New(qc, log), nil

	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Type)
	}
}

package config

import (
	"fmt"

	"github.com/moffa90/go-mcumgr/upgrade"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	// ------------------------------------------------------------
	// TRANSPORT
	// ------------------------------------------------------------

	t := cfg.Transport
	switch t.Type {
	case "", TransportSim:
	case TransportSerial, TransportBLE, TransportQUIC:
		if t.Address == "" {
			return fmt.Errorf("transport %q: address is required", t.Type)
		}
	default:
		return fmt.Errorf("transport: unknown type %q (want sim, serial, ble or quic)", t.Type)
	}

	if t.MTU != 0 && (t.MTU < 32 || t.MTU > 65535) {
		return fmt.Errorf("transport: mtu %d out of range 32-65535", t.MTU)
	}

	if t.Type == TransportSerial {
		s := t.Serial
		if s.BaudRate < 0 {
			return fmt.Errorf("serial: baud_rate must not be negative")
		}
		if s.DataBits != 0 && (s.DataBits < 5 || s.DataBits > 8) {
			return fmt.Errorf("serial: data_bits %d out of range 5-8", s.DataBits)
		}
		if s.StopBits != 0 && s.StopBits != 1 && s.StopBits != 2 {
			return fmt.Errorf("serial: stop_bits must be 1 or 2")
		}
		switch s.Parity {
		case "", "N", "E", "O":
		default:
			return fmt.Errorf("serial: parity %q (want N, E or O)", s.Parity)
		}
	}

	// ------------------------------------------------------------
	// SMP / TRANSFER
	// ------------------------------------------------------------

	s := cfg.SMP
	for name, v := range map[string]int{
		"timeout_ms":       s.TimeoutMs,
		"retries":          s.Retries,
		"retry_backoff_ms": s.RetryBackoffMs,
		"max_stalls":       s.MaxStalls,
		"max_chunk_size":   s.MaxChunkSize,
	} {
		if v < 0 {
			return fmt.Errorf("smp: %s must not be negative", name)
		}
	}

	switch s.MemoryAlignment {
	case 0, 1, 2, 4, 8, 16:
	default:
		return fmt.Errorf("smp: memory_alignment %d (want 1, 2, 4, 8 or 16)", s.MemoryAlignment)
	}

	// ------------------------------------------------------------
	// UPGRADE
	// ------------------------------------------------------------

	u := cfg.Upgrade
	if _, err := upgrade.ParseMode(u.Mode); err != nil {
		return fmt.Errorf("upgrade: %w", err)
	}
	if u.EstimatedSwapTimeMs < 0 || u.ReconnectTimeoutMs < 0 || u.MaxImageSize < 0 {
		return fmt.Errorf("upgrade: durations and sizes must not be negative")
	}

	// ------------------------------------------------------------
	// LOG
	// ------------------------------------------------------------

	switch cfg.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log: format %q (want text or json)", cfg.Log.Format)
	}
	switch cfg.Log.Level {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log: unknown level %q", cfg.Log.Level)
	}

	return nil
}

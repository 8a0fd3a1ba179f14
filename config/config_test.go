package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-mcumgr/logging"
)

const sample = `
transport:
  type: serial
  address: /dev/ttyACM0
  mtu: 256
  serial:
    baud_rate: 57600
    parity: E
smp:
  timeout_ms: 2000
  retries: 5
  memory_alignment: 4
  auto_reconnect: false
upgrade:
  mode: confirm-only
  estimated_swap_time_ms: 15000
log:
  level: debug
  format: json
`

func TestDecode(t *testing.T) {
	cfg, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, TransportSerial, cfg.Transport.Type)
	assert.Equal(t, "/dev/ttyACM0", cfg.Transport.Address)
	assert.Equal(t, 256, cfg.Transport.MTU)
	assert.Equal(t, 57600, cfg.Transport.Serial.BaudRate)
	assert.Equal(t, "E", cfg.Transport.Serial.Parity)
	assert.Equal(t, 2000, cfg.SMP.TimeoutMs)
	assert.Equal(t, 4, cfg.SMP.MemoryAlignment)
	require.NotNil(t, cfg.SMP.AutoReconnect)
	assert.False(t, *cfg.SMP.AutoReconnect)
	assert.Equal(t, "confirm-only", cfg.Upgrade.Mode)
	assert.Equal(t, "json", cfg.Log.Format)

	require.NoError(t, Validate(cfg))
}

func TestDecodeEmpty(t *testing.T) {
	cfg, err := Decode(strings.NewReader("  \n"))
	require.NoError(t, err)
	assert.Equal(t, &Config{}, cfg)
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	_, err := Decode(strings.NewReader("transport:\n  kind: sim\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcumgr.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, TransportSerial, cfg.Transport.Type)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty is valid", func(*Config) {}, ""},
		{"unknown transport", func(c *Config) { c.Transport.Type = "usb" }, "unknown type"},
		{"serial needs address", func(c *Config) { c.Transport.Type = TransportSerial }, "address is required"},
		{"quic needs address", func(c *Config) { c.Transport.Type = TransportQUIC }, "address is required"},
		{"mtu too small", func(c *Config) { c.Transport.MTU = 16 }, "mtu 16"},
		{"bad data bits", func(c *Config) {
			c.Transport = TransportConfig{Type: TransportSerial, Address: "x", Serial: SerialConfig{DataBits: 9}}
		}, "data_bits"},
		{"bad stop bits", func(c *Config) {
			c.Transport = TransportConfig{Type: TransportSerial, Address: "x", Serial: SerialConfig{StopBits: 3}}
		}, "stop_bits"},
		{"bad parity", func(c *Config) {
			c.Transport = TransportConfig{Type: TransportSerial, Address: "x", Serial: SerialConfig{Parity: "M"}}
		}, "parity"},
		{"negative retries", func(c *Config) { c.SMP.Retries = -1 }, "retries"},
		{"bad alignment", func(c *Config) { c.SMP.MemoryAlignment = 3 }, "memory_alignment"},
		{"bad mode", func(c *Config) { c.Upgrade.Mode = "yolo" }, "upgrade"},
		{"negative swap time", func(c *Config) { c.Upgrade.EstimatedSwapTimeMs = -1 }, "must not be negative"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "format"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.Error(t, Validate(nil))
}

func TestNormalize(t *testing.T) {
	cfg := &Config{Transport: TransportConfig{Type: TransportSerial, Address: "/dev/ttyUSB0"}}
	require.NoError(t, Validate(cfg))
	Normalize(cfg)

	assert.Equal(t, DefaultBaudRate, cfg.Transport.Serial.BaudRate)
	assert.Equal(t, "N", cfg.Transport.Serial.Parity)
	assert.Equal(t, DefaultTimeoutMs, cfg.SMP.TimeoutMs)
	assert.Equal(t, DefaultRetries, cfg.SMP.Retries)
	assert.Equal(t, DefaultMemoryAlignment, cfg.SMP.MemoryAlignment)
	require.NotNil(t, cfg.SMP.AutoReconnect)
	assert.True(t, *cfg.SMP.AutoReconnect)
	assert.Equal(t, "test-and-confirm", cfg.Upgrade.Mode)
	assert.Equal(t, DefaultReconnectTimeoutMs, cfg.Upgrade.ReconnectTimeoutMs)
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Log.Format)

	empty := &Config{}
	Normalize(empty)
	assert.Equal(t, TransportSim, empty.Transport.Type)
	assert.Zero(t, empty.Transport.Serial.BaudRate)

	Normalize(nil)
}

func TestOptions(t *testing.T) {
	cfg, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))
	Normalize(cfg)

	assert.NotEmpty(t, cfg.SMPOptions(logging.Nop()))
	assert.NotEmpty(t, cfg.TransferOptions(nil))

	opts, err := cfg.UpgradeOptions(logging.Nop())
	require.NoError(t, err)
	assert.NotEmpty(t, opts)

	cfg.Upgrade.Mode = "bogus"
	_, err = cfg.UpgradeOptions(nil)
	assert.Error(t, err)

	lo := cfg.LogOptions()
	assert.Equal(t, "debug", lo.Level)
	assert.Equal(t, "json", lo.Format)
}

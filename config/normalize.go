package config

// Defaults applied by Normalize.
const (
	DefaultTransport          = TransportSim
	DefaultTimeoutMs          = 5000
	DefaultRetries            = 3
	DefaultRetryBackoffMs     = 250
	DefaultMaxStalls          = 3
	DefaultMemoryAlignment    = 1
	DefaultReconnectTimeoutMs = 30000
	DefaultBaudRate           = 115200
	DefaultScanTimeoutMs      = 10000
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

// Normalize applies post-validation defaults.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	t := &cfg.Transport
	if t.Type == "" {
		t.Type = DefaultTransport
	}
	if t.Type == TransportSerial {
		if t.Serial.BaudRate == 0 {
			t.Serial.BaudRate = DefaultBaudRate
		}
		if t.Serial.Parity == "" {
			t.Serial.Parity = "N"
		}
	}
	if t.Type == TransportBLE && t.BLE.ScanTimeoutMs == 0 {
		t.BLE.ScanTimeoutMs = DefaultScanTimeoutMs
	}

	s := &cfg.SMP
	if s.TimeoutMs == 0 {
		s.TimeoutMs = DefaultTimeoutMs
	}
	if s.Retries == 0 {
		s.Retries = DefaultRetries
	}
	if s.RetryBackoffMs == 0 {
		s.RetryBackoffMs = DefaultRetryBackoffMs
	}
	if s.MaxStalls == 0 {
		s.MaxStalls = DefaultMaxStalls
	}
	if s.MemoryAlignment == 0 {
		s.MemoryAlignment = DefaultMemoryAlignment
	}
	if s.AutoReconnect == nil {
		enabled := true
		s.AutoReconnect = &enabled
	}

	u := &cfg.Upgrade
	if u.Mode == "" {
		u.Mode = "test-and-confirm"
	}
	if u.ReconnectTimeoutMs == 0 {
		u.ReconnectTimeoutMs = DefaultReconnectTimeoutMs
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

// Package config holds the YAML configuration of the mcumgr command.
package config

// Config is the root of the configuration file.
type Config struct {
	Transport TransportConfig `yaml:"transport"`
	SMP       SMPConfig       `yaml:"smp"`
	Upgrade   UpgradeConfig   `yaml:"upgrade"`
	Log       LogConfig       `yaml:"log"`
}

// ---- TRANSPORT ----

// Transport types.
const (
	TransportSim    = "sim"
	TransportSerial = "serial"
	TransportBLE    = "ble"
	TransportQUIC   = "quic"
)

type TransportConfig struct {
	Type    string `yaml:"type"`
	Address string `yaml:"address"`
	MTU     int    `yaml:"mtu"`

	Serial SerialConfig `yaml:"serial"`
	BLE    BLEConfig    `yaml:"ble"`
	QUIC   QUICConfig   `yaml:"quic"`
}

type SerialConfig struct {
	BaudRate      int    `yaml:"baud_rate"`
	DataBits      int    `yaml:"data_bits"`
	StopBits      int    `yaml:"stop_bits"`
	Parity        string `yaml:"parity"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms"`
}

type BLEConfig struct {
	// NameMatch treats address as an advertised local name
	NameMatch     bool `yaml:"name_match"`
	ScanTimeoutMs int  `yaml:"scan_timeout_ms"`
}

type QUICConfig struct {
	Insecure       bool   `yaml:"insecure"`
	ServerName     string `yaml:"server_name"`
	WriteTimeoutMs int    `yaml:"write_timeout_ms"`
}

// ---- SMP / TRANSFER ----

type SMPConfig struct {
	TimeoutMs       int `yaml:"timeout_ms"`
	Retries         int `yaml:"retries"`
	RetryBackoffMs  int `yaml:"retry_backoff_ms"`
	MaxStalls       int `yaml:"max_stalls"`
	MemoryAlignment int `yaml:"memory_alignment"`
	MaxChunkSize    int `yaml:"max_chunk_size"`

	// AutoReconnect defaults to true when omitted
	AutoReconnect *bool `yaml:"auto_reconnect"`
}

// ---- UPGRADE ----

type UpgradeConfig struct {
	Mode                string `yaml:"mode"`
	EraseBeforeUpload   bool   `yaml:"erase_before_upload"`
	EstimatedSwapTimeMs int    `yaml:"estimated_swap_time_ms"`
	ReconnectTimeoutMs  int    `yaml:"reconnect_timeout_ms"`
	MaxImageSize        int    `yaml:"max_image_size"`
}

// ---- LOG ----

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

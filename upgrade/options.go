package upgrade

import (
	"time"

	"github.com/moffa90/go-mcumgr/logging"
	"github.com/moffa90/go-mcumgr/transfer"
)

// Config holds the workflow configuration.
type Config struct {
	// Mode selects how far the new image is driven (default ModeTestAndConfirm)
	Mode Mode

	// EraseBeforeUpload erases the secondary slot before uploading
	EraseBeforeUpload bool

	// EstimatedSwapTime is how long to wait after a reset before the first
	// reconnect attempt
	EstimatedSwapTime time.Duration

	// ReconnectTimeout bounds the reconnect attempts after a reset
	ReconnectTimeout time.Duration

	// ReconnectInterval is the pause between reconnect attempts
	ReconnectInterval time.Duration

	// MaxImageSize rejects larger images during validation when > 0
	MaxImageSize int

	// TransferOptions apply to the image upload session
	TransferOptions []transfer.Option

	// ProgressCallback reports upload progress and phase changes (optional)
	ProgressCallback ProgressCallback

	// StateCallback is called on every phase change and on the terminal state (optional)
	StateCallback StateCallback

	// Clock drives the swap wait and reconnect polling
	Clock transfer.Clock

	// Logger is used for logging workflow operations (optional)
	Logger logging.Logger
}

func defaultConfig() Config {
	return Config{
		Mode:              ModeTestAndConfirm,
		EstimatedSwapTime: 0,
		ReconnectTimeout:  30 * time.Second,
		ReconnectInterval: 500 * time.Millisecond,
		Clock:             transfer.SystemClock{},
		Logger:            logging.Nop(),
	}
}

// Option is a functional option for configuring the Upgrader.
type Option func(*Config)

// WithMode sets the upgrade mode.
func WithMode(mode Mode) Option {
	return func(c *Config) {
		c.Mode = mode
	}
}

// WithEraseBeforeUpload enables erasing the secondary slot first.
func WithEraseBeforeUpload(erase bool) Option {
	return func(c *Config) {
		c.EraseBeforeUpload = erase
	}
}

// WithEstimatedSwapTime sets the wait between a reset and the first
// reconnect attempt. Devices that swap images in the bootloader need tens
// of seconds for large images.
//
// Example:
//
//	up := upgrade.New(client, upgrade.WithEstimatedSwapTime(20*time.Second))
func WithEstimatedSwapTime(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.EstimatedSwapTime = d
		}
	}
}

// WithReconnectTimeout bounds the reconnect attempts after a reset.
func WithReconnectTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.ReconnectTimeout = d
		}
	}
}

// WithReconnectInterval sets the pause between reconnect attempts.
func WithReconnectInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.ReconnectInterval = d
		}
	}
}

// WithMaxImageSize rejects images larger than size bytes.
func WithMaxImageSize(size int) Option {
	return func(c *Config) {
		if size >= 0 {
			c.MaxImageSize = size
		}
	}
}

// WithTransferOptions sets options for the image upload session, such as
// chunk size, memory alignment and retry policy.
func WithTransferOptions(opts ...transfer.Option) Option {
	return func(c *Config) {
		c.TransferOptions = append(c.TransferOptions, opts...)
	}
}

// WithProgressCallback sets a callback to track workflow progress.
//
// Example:
//
//	up := upgrade.New(client,
//	    upgrade.WithProgressCallback(func(p upgrade.Progress) {
//	        fmt.Printf("[%s] %.1f%%\n", p.Phase, p.Percentage)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithStateCallback sets a callback for phase and state changes.
func WithStateCallback(callback StateCallback) Option {
	return func(c *Config) {
		c.StateCallback = callback
	}
}

// WithClock sets the time source.
func WithClock(clock transfer.Clock) Option {
	return func(c *Config) {
		if clock != nil {
			c.Clock = clock
		}
	}
}

// WithLogger sets a logger for the workflow and its upload session.
func WithLogger(logger logging.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

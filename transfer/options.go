package transfer

import (
	"time"

	"github.com/moffa90/go-mcumgr/logging"
)

// Config holds the session configuration.
type Config struct {
	// ProgressCallback is called after every acknowledged chunk (optional)
	ProgressCallback ProgressCallback

	// DoneCallback is called exactly once with the terminal result (optional)
	DoneCallback DoneCallback

	// Retries is the number of times the same chunk is retried after a
	// transport failure
	Retries int

	// RetryBackoff is multiplied by the attempt number between retries
	RetryBackoff time.Duration

	// MaxStalls is the number of consecutive non-advancing acknowledgements
	// tolerated before the session fails
	MaxStalls int

	// MemoryAlignment rounds chunk sizes down to a multiple of 1, 2, 4, 8 or 16
	MemoryAlignment int

	// MaxChunkSize caps the data per chunk below what the MTU allows (0 = no cap)
	MaxChunkSize int

	// MaxDownloadSize bounds the length a peer may announce for a download (0 = no bound)
	MaxDownloadSize int

	// Clock provides time (optional)
	Clock Clock

	// Logger is used for logging operations (optional)
	Logger logging.Logger
}

// DefaultMaxDownloadSize is the largest download accepted unless overridden.
const DefaultMaxDownloadSize = 64 << 20

func defaultConfig() Config {
	return Config{
		Retries:         3,
		RetryBackoff:    250 * time.Millisecond,
		MaxStalls:       3,
		MemoryAlignment: 1,
		MaxDownloadSize: DefaultMaxDownloadSize,
		Clock:           SystemClock{},
		Logger:          logging.Nop(),
	}
}

// Option is a functional option for configuring a Session.
type Option func(*Config)

// WithProgressCallback sets a callback tracking transfer progress.
//
// Example:
//
//	s := transfer.NewUpload(client, codec, data,
//	    transfer.WithProgressCallback(func(p transfer.Progress) {
//	        fmt.Printf("%d/%d bytes\n", p.Bytes, p.Total)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithDoneCallback adds a terminal notification callback. Callbacks added
// by several options run in the order the options were given.
func WithDoneCallback(callback DoneCallback) Option {
	return func(c *Config) {
		if callback == nil {
			return
		}
		prev := c.DoneCallback
		if prev == nil {
			c.DoneCallback = callback
			return
		}
		c.DoneCallback = func(r Result) {
			prev(r)
			callback(r)
		}
	}
}

// WithRetries sets the per-chunk retry budget for transport failures.
func WithRetries(retries int) Option {
	return func(c *Config) {
		if retries >= 0 {
			c.Retries = retries
		}
	}
}

// WithRetryBackoff sets the base delay between retries.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.RetryBackoff = d
		}
	}
}

// WithMaxStalls sets how many non-advancing acknowledgements are tolerated.
func WithMaxStalls(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.MaxStalls = n
		}
	}
}

// WithMemoryAlignment rounds chunk sizes down to a multiple of align.
// Only 1, 2, 4, 8 and 16 are accepted.
func WithMemoryAlignment(align int) Option {
	return func(c *Config) {
		switch align {
		case 1, 2, 4, 8, 16:
			c.MemoryAlignment = align
		}
	}
}

// WithMaxChunkSize caps the data carried by one chunk.
func WithMaxChunkSize(size int) Option {
	return func(c *Config) {
		if size >= 0 {
			c.MaxChunkSize = size
		}
	}
}

// WithMaxDownloadSize bounds the length a peer may announce for a download.
// Zero removes the bound.
func WithMaxDownloadSize(size int) Option {
	return func(c *Config) {
		if size >= 0 {
			c.MaxDownloadSize = size
		}
	}
}

// WithClock sets the time source.
func WithClock(clock Clock) Option {
	return func(c *Config) {
		if clock != nil {
			c.Clock = clock
		}
	}
}

// WithLogger sets a logger for session operations.
func WithLogger(logger logging.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

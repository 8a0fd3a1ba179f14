package config

import (
	"time"

	"github.com/moffa90/go-mcumgr/logging"
	"github.com/moffa90/go-mcumgr/smp"
	"github.com/moffa90/go-mcumgr/transfer"
	"github.com/moffa90/go-mcumgr/upgrade"
)

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// SMPOptions converts the smp section into client options.
// Zero values leave the client defaults in place.
func (c *Config) SMPOptions(logger logging.Logger) []smp.Option {
	opts := []smp.Option{smp.WithTimeout(ms(c.SMP.TimeoutMs))}
	if c.SMP.AutoReconnect != nil {
		opts = append(opts, smp.WithAutoReconnect(*c.SMP.AutoReconnect))
	}
	if logger != nil {
		opts = append(opts, smp.WithLogger(logging.Component(logger, "smp")))
	}
	return opts
}

// TransferOptions converts the transfer tuning of the smp section.
func (c *Config) TransferOptions(logger logging.Logger) []transfer.Option {
	s := c.SMP
	opts := []transfer.Option{
		transfer.WithRetries(s.Retries),
		transfer.WithRetryBackoff(ms(s.RetryBackoffMs)),
		transfer.WithMaxStalls(s.MaxStalls),
	}
	if s.MemoryAlignment > 0 {
		opts = append(opts, transfer.WithMemoryAlignment(s.MemoryAlignment))
	}
	if s.MaxChunkSize > 0 {
		opts = append(opts, transfer.WithMaxChunkSize(s.MaxChunkSize))
	}
	if logger != nil {
		opts = append(opts, transfer.WithLogger(logging.Component(logger, "transfer")))
	}
	return opts
}

// UpgradeOptions converts the upgrade section. The transfer options
// derived from the smp section are included.
func (c *Config) UpgradeOptions(logger logging.Logger) ([]upgrade.Option, error) {
	u := c.Upgrade
	mode, err := upgrade.ParseMode(u.Mode)
	if err != nil {
		return nil, err
	}

	opts := []upgrade.Option{
		upgrade.WithMode(mode),
		upgrade.WithEraseBeforeUpload(u.EraseBeforeUpload),
		upgrade.WithTransferOptions(c.TransferOptions(logger)...),
	}
	if u.EstimatedSwapTimeMs > 0 {
		opts = append(opts, upgrade.WithEstimatedSwapTime(ms(u.EstimatedSwapTimeMs)))
	}
	if u.ReconnectTimeoutMs > 0 {
		opts = append(opts, upgrade.WithReconnectTimeout(ms(u.ReconnectTimeoutMs)))
	}
	if u.MaxImageSize > 0 {
		opts = append(opts, upgrade.WithMaxImageSize(u.MaxImageSize))
	}
	if logger != nil {
		opts = append(opts, upgrade.WithLogger(logging.Component(logger, "upgrade")))
	}
	return opts, nil
}

// LogOptions converts the log section.
func (c *Config) LogOptions() logging.Options {
	return logging.Options{Level: c.Log.Level, Format: c.Log.Format}
}

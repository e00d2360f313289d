package mtr

import (
	"errors"
	"time"

	"github.com/hyqhyq3/wmtr/internal/i18n"
)

// MaxHops is the number of TTL values probed by every trace.
const MaxHops = 40

const (
	MinPacketSize = 64
	MaxPacketSize = 4096

	DefaultCycles     = 10
	DefaultInterval   = time.Second
	DefaultPacketSize = 64
	DefaultTimeout    = 5 * time.Second
)

// Config holds the per-session probing parameters. A Session keeps its own
// copy, so changes made by the caller after NewSession have no effect.
type Config struct {
	// Cycles is the number of probes each worker sends. Zero means probe
	// until StopTrace is called.
	Cycles     int
	Interval   time.Duration
	Timeout    time.Duration
	PacketSize int
	EnableDNS  bool
}

func DefaultConfig() Config {
	return Config{
		Cycles:     DefaultCycles,
		Interval:   DefaultInterval,
		Timeout:    DefaultTimeout,
		PacketSize: DefaultPacketSize,
		EnableDNS:  true,
	}
}

func (c Config) Validate() error {
	if c.PacketSize < MinPacketSize || c.PacketSize > MaxPacketSize {
		return errors.New(i18n.Tf("err.sizeRange", map[string]interface{}{"Min": MinPacketSize, "Max": MaxPacketSize}))
	}
	if c.Cycles < 0 {
		return errors.New(i18n.T("err.cyclesNegative"))
	}
	if c.Interval <= 0 {
		return errors.New(i18n.T("err.intervalInvalid"))
	}
	if c.Timeout <= 0 {
		return errors.New(i18n.T("err.timeoutInvalid"))
	}
	return nil
}

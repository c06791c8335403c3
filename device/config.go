package device

import (
	"fmt"
	"strings"
	"time"

	"github.com/lvmi/presbridge/logger"
)

// Default configuration values.
const (
	DefaultBaudRate        = 9600
	DefaultExchangeTimeout = 1 * time.Second
	DefaultIdleGap         = 100 * time.Millisecond

	DefaultBackoffInitial = 100 * time.Millisecond
	DefaultBackoffMax     = 30 * time.Second
	DefaultBackoffJitter  = 0.2

	// DefaultCommandTerminator is appended to every outgoing command.
	// Most vacuum gauge controllers expect CR or CR/LF framing.
	DefaultCommandTerminator = "\r\n"
)

// Configuration range limits.
const (
	MinExchangeTimeout = 10 * time.Millisecond
	MaxExchangeTimeout = 2 * time.Minute

	MinIdleGap = 10 * time.Millisecond
	MaxIdleGap = 10 * time.Second

	MinBackoffInitial = 10 * time.Millisecond
	MaxBackoffMax     = 10 * time.Minute
	MaxBackoffJitter  = 1.0
)

// Config holds all configuration for one serial device connection.
type Config struct {
	name     string
	portPath string
	baudRate int

	// commandTerm is appended to every command written to the device.
	commandTerm []byte

	// replyTerm marks the end of a device reply. When empty, replies are
	// read until the line goes idle for idleGap (or the deadline expires).
	replyTerm []byte

	exchangeTimeout time.Duration
	idleGap         time.Duration

	// Reconnect backoff parameters.
	backoffInitial time.Duration
	backoffMax     time.Duration
	backoffJitter  float64

	opener PortOpener
	logger logger.Logger
}

// NewConfig creates a device configuration for the named device on the
// given serial port path.
//
// name is the logical device identifier clients address (e.g. "r1").
// opts are functional options applied in order; see the With* functions.
func NewConfig(name, portPath string, opts ...Option) (*Config, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("device: empty device name")
	}
	if strings.ContainsAny(name, " \t\r\n") {
		return nil, fmt.Errorf("device: device name %q contains whitespace", name)
	}
	if strings.TrimSpace(portPath) == "" {
		return nil, fmt.Errorf("device: empty serial port path for device %q", name)
	}

	cfg := &Config{
		name:            name,
		portPath:        portPath,
		baudRate:        DefaultBaudRate,
		commandTerm:     []byte(DefaultCommandTerminator),
		exchangeTimeout: DefaultExchangeTimeout,
		idleGap:         DefaultIdleGap,
		backoffInitial:  DefaultBackoffInitial,
		backoffMax:      DefaultBackoffMax,
		backoffJitter:   DefaultBackoffJitter,
		opener:          OpenSerialPort,
		logger:          logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Name returns the logical device name.
func (cfg *Config) Name() string { return cfg.name }

// PortPath returns the serial port device path.
func (cfg *Config) PortPath() string { return cfg.portPath }

// BaudRate returns the configured baud rate.
func (cfg *Config) BaudRate() int { return cfg.baudRate }

// CommandTerminator returns the bytes appended to outgoing commands.
func (cfg *Config) CommandTerminator() []byte { return cfg.commandTerm }

// ReplyTerminator returns the reply delimiter, or nil when replies are read
// until idle.
func (cfg *Config) ReplyTerminator() []byte { return cfg.replyTerm }

// ExchangeTimeout returns the default per-exchange deadline.
func (cfg *Config) ExchangeTimeout() time.Duration { return cfg.exchangeTimeout }

// IdleGap returns the quiet period that ends an un-delimited reply.
func (cfg *Config) IdleGap() time.Duration { return cfg.idleGap }

// BackoffInitial returns the initial reconnect delay.
func (cfg *Config) BackoffInitial() time.Duration { return cfg.backoffInitial }

// BackoffMax returns the reconnect delay cap.
func (cfg *Config) BackoffMax() time.Duration { return cfg.backoffMax }

// BackoffJitter returns the jitter fraction applied to reconnect delays.
func (cfg *Config) BackoffJitter() float64 { return cfg.backoffJitter }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// Option is a functional option for configuring a device Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithBaudRate sets the serial baud rate.
func WithBaudRate(baud int) Option {
	return optFunc(func(cfg *Config) error {
		if baud <= 0 {
			return fmt.Errorf("device: invalid baud rate %d", baud)
		}
		cfg.baudRate = baud

		return nil
	})
}

// WithCommandTerminator sets the bytes appended to every outgoing command.
// An empty terminator sends commands exactly as received.
func WithCommandTerminator(term string) Option {
	return optFunc(func(cfg *Config) error {
		cfg.commandTerm = []byte(term)
		return nil
	})
}

// WithReplyTerminator sets the delimiter that marks the end of a device
// reply. When unset, replies are read until the line goes idle.
func WithReplyTerminator(term string) Option {
	return optFunc(func(cfg *Config) error {
		cfg.replyTerm = []byte(term)
		return nil
	})
}

// WithExchangeTimeout sets the default per-exchange deadline.
func WithExchangeTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinExchangeTimeout || d > MaxExchangeTimeout {
			return fmt.Errorf("device: exchange timeout %v out of range [%v, %v]",
				d, MinExchangeTimeout, MaxExchangeTimeout)
		}
		cfg.exchangeTimeout = d

		return nil
	})
}

// WithIdleGap sets the quiet period that ends an un-delimited reply.
func WithIdleGap(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinIdleGap || d > MaxIdleGap {
			return fmt.Errorf("device: idle gap %v out of range [%v, %v]",
				d, MinIdleGap, MaxIdleGap)
		}
		cfg.idleGap = d

		return nil
	})
}

// WithBackoff sets the reconnect backoff parameters: the initial delay,
// the delay cap, and the jitter fraction in [0, 1].
func WithBackoff(initial, maxDelay time.Duration, jitter float64) Option {
	return optFunc(func(cfg *Config) error {
		if initial < MinBackoffInitial {
			return fmt.Errorf("device: backoff initial delay %v below minimum %v",
				initial, MinBackoffInitial)
		}
		if maxDelay < initial || maxDelay > MaxBackoffMax {
			return fmt.Errorf("device: backoff max delay %v out of range [%v, %v]",
				maxDelay, initial, MaxBackoffMax)
		}
		if jitter < 0 || jitter > MaxBackoffJitter {
			return fmt.Errorf("device: backoff jitter %v out of range [0, %v]",
				jitter, MaxBackoffJitter)
		}

		cfg.backoffInitial = initial
		cfg.backoffMax = maxDelay
		cfg.backoffJitter = jitter

		return nil
	})
}

// WithPortOpener overrides how the serial port is opened. Used by tests to
// substitute fake ports.
func WithPortOpener(opener PortOpener) Option {
	return optFunc(func(cfg *Config) error {
		if opener == nil {
			return fmt.Errorf("device: port opener is nil")
		}
		cfg.opener = opener

		return nil
	})
}

// WithLogger sets the logger for this device connection.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return fmt.Errorf("device: logger is nil")
		}
		cfg.logger = l

		return nil
	})
}

package bridge

import (
	"fmt"
	"time"

	"github.com/lvmi/presbridge/logger"
)

// Default configuration values.
const (
	DefaultRequestTimeout = 1 * time.Second
	DefaultShutdownGrace  = 5 * time.Second
	DefaultAcceptTimeout  = 1 * time.Second
	DefaultMaxRequestLen  = 1024
)

// Configuration range limits.
const (
	MinRequestTimeout = 10 * time.Millisecond
	MaxRequestTimeout = 2 * time.Minute

	MaxShutdownGrace = 5 * time.Minute

	MinMaxRequestLen = 16
	MaxMaxRequestLen = 64 * 1024
)

// Config holds all configuration for the TCP server.
type Config struct {
	listenAddr string

	// requestTimeout is the fixed per-request deadline for one exchange.
	requestTimeout time.Duration

	// shutdownGrace bounds how long Shutdown waits for in-flight sessions.
	shutdownGrace time.Duration

	// acceptTimeout is the per-iteration accept deadline, so the accept
	// loop notices shutdown promptly.
	acceptTimeout time.Duration

	// maxRequestLen bounds a single request line.
	maxRequestLen int

	logger logger.Logger
}

// NewConfig creates a server configuration listening on the given address
// (e.g. ":1723" or "0.0.0.0:1723").
func NewConfig(listenAddr string, opts ...Option) (*Config, error) {
	if listenAddr == "" {
		return nil, fmt.Errorf("bridge: empty listen address")
	}

	cfg := &Config{
		listenAddr:     listenAddr,
		requestTimeout: DefaultRequestTimeout,
		shutdownGrace:  DefaultShutdownGrace,
		acceptTimeout:  DefaultAcceptTimeout,
		maxRequestLen:  DefaultMaxRequestLen,
		logger:         logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// ListenAddr returns the configured listen address.
func (cfg *Config) ListenAddr() string { return cfg.listenAddr }

// RequestTimeout returns the per-request exchange deadline.
func (cfg *Config) RequestTimeout() time.Duration { return cfg.requestTimeout }

// ShutdownGrace returns the graceful-shutdown wait bound.
func (cfg *Config) ShutdownGrace() time.Duration { return cfg.shutdownGrace }

// MaxRequestLen returns the request line length bound.
func (cfg *Config) MaxRequestLen() int { return cfg.maxRequestLen }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// Option is a functional option for configuring a server Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithRequestTimeout sets the fixed per-request exchange deadline.
func WithRequestTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinRequestTimeout || d > MaxRequestTimeout {
			return fmt.Errorf("bridge: request timeout %v out of range [%v, %v]",
				d, MinRequestTimeout, MaxRequestTimeout)
		}
		cfg.requestTimeout = d

		return nil
	})
}

// WithShutdownGrace sets how long Shutdown waits for in-flight sessions
// before force-closing them. Zero disables the grace period.
func WithShutdownGrace(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 || d > MaxShutdownGrace {
			return fmt.Errorf("bridge: shutdown grace %v out of range [0, %v]",
				d, MaxShutdownGrace)
		}
		cfg.shutdownGrace = d

		return nil
	})
}

// WithAcceptTimeout sets the per-iteration accept deadline.
func WithAcceptTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return fmt.Errorf("bridge: accept timeout %v must be positive", d)
		}
		cfg.acceptTimeout = d

		return nil
	})
}

// WithMaxRequestLen bounds a single request line in bytes.
func WithMaxRequestLen(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < MinMaxRequestLen || n > MaxMaxRequestLen {
			return fmt.Errorf("bridge: max request length %d out of range [%d, %d]",
				n, MinMaxRequestLen, MaxMaxRequestLen)
		}
		cfg.maxRequestLen = n

		return nil
	})
}

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return fmt.Errorf("bridge: logger is nil")
		}
		cfg.logger = l

		return nil
	})
}

package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lvmi/presbridge/logger"
)

// readPollInterval bounds a single serial read poll. It trades off between
// CPU usage and how quickly an exchange notices its deadline.
const readPollInterval = 50 * time.Millisecond

// Conn is the bridge's exclusive handle to one serial-attached pressure
// transducer.
//
// All port access (session exchanges and supervisor reconnect attempts)
// is serialized through an internal gate, so at most one command/response
// round trip is in flight per device at any time. Serial links have no
// framing of their own; interleaved writes would corrupt the device state.
type Conn struct {
	cfg    *Config
	logger logger.Logger

	// gate serializes every operation against the port.
	gate sync.Mutex

	portMu sync.RWMutex
	port   Port

	state       *linkStateMgr
	lastSuccess atomic.Int64 // unix nanos; 0 = never
	failures    atomic.Uint32
	metrics     ConnMetrics
}

// NewConn creates a device connection from the given configuration.
// The link starts Closed; call Open to establish it.
func NewConn(cfg *Config) (*Conn, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}

	c := &Conn{
		cfg:    cfg,
		logger: cfg.logger.With("device", cfg.name),
	}
	c.state = newLinkStateMgr(c.logStateChange)

	return c, nil
}

// Name returns the logical device name.
func (c *Conn) Name() string { return c.cfg.name }

// Config returns the device configuration.
func (c *Conn) Config() *Config { return c.cfg }

// State returns the current link state.
func (c *Conn) State() LinkState { return c.state.Get() }

// WaitState blocks until the link reaches the given state or ctx is done.
func (c *Conn) WaitState(ctx context.Context, s LinkState) error {
	return c.state.Wait(ctx, s)
}

// LastSuccess returns the time of the last successful exchange, or the
// zero time if none has completed yet.
func (c *Conn) LastSuccess() time.Time {
	ns := c.lastSuccess.Load()
	if ns == 0 {
		return time.Time{}
	}

	return time.Unix(0, ns)
}

// ConsecutiveFailures returns the number of failures since the last
// successful open or exchange.
func (c *Conn) ConsecutiveFailures() uint32 {
	return c.failures.Load()
}

// Metrics returns the connection's metric counters.
func (c *Conn) Metrics() *ConnMetrics {
	return &c.metrics
}

// Open establishes the serial link. It is idempotent: opening an already
// Open connection is a no-op success.
//
// On failure the link transitions to Faulted and ErrDeviceUnavailable is
// returned; the Supervisor keeps retrying in the background.
func (c *Conn) Open() error {
	c.gate.Lock()
	defer c.gate.Unlock()

	return c.openLocked()
}

// Close releases the serial port handle and transitions the link to Closed.
// It is called at shutdown and by the Supervisor before a reconnect attempt.
func (c *Conn) Close() error {
	c.gate.Lock()
	defer c.gate.Unlock()

	err := c.closePort()
	c.state.Set(Closed)

	return err
}

// Exchange performs one command/response round trip: it writes cmd (plus
// the configured command terminator) and reads the reply until the reply
// terminator, an idle gap, or the deadline.
//
// The deadline is the configured exchange timeout, shortened by any earlier
// ctx deadline. On ErrTimeout or ErrIOFailure the link transitions to
// Faulted and the port is closed; the caller does not get an automatic
// retry. While the link is not Open, Exchange fails fast with
// ErrNotConnected instead of queuing.
func (c *Conn) Exchange(ctx context.Context, cmd []byte) ([]byte, error) {
	// Fail fast before queuing on the gate so callers are never serialized
	// behind a dead link or an in-progress reconnect.
	if !c.state.Is(Open) {
		return nil, ErrNotConnected
	}

	c.gate.Lock()
	defer c.gate.Unlock()

	if !c.state.Is(Open) {
		return nil, ErrNotConnected
	}

	port := c.getPort()
	if port == nil {
		return nil, ErrNotConnected
	}

	deadline := time.Now().Add(c.cfg.exchangeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	frame := make([]byte, 0, len(cmd)+len(c.cfg.commandTerm))
	frame = append(frame, cmd...)
	frame = append(frame, c.cfg.commandTerm...)

	if _, err := port.Write(frame); err != nil {
		c.fault()
		c.metrics.incIOErrCount()

		return nil, fmt.Errorf("%w: write: %v", ErrIOFailure, err)
	}

	c.logger.Debug("command sent", "cmd", string(cmd))

	reply, err := c.readReply(ctx, port, deadline)
	if err != nil {
		c.fault()

		if errors.Is(err, ErrTimeout) {
			c.metrics.incTimeoutCount()
		} else {
			c.metrics.incIOErrCount()
		}

		c.logger.Warn("exchange failed", "cmd", string(cmd), "error", err)

		return nil, err
	}

	c.lastSuccess.Store(time.Now().UnixNano())
	c.failures.Store(0)
	c.metrics.incExchangeCount()

	c.logger.Debug("reply received", "reply", string(reply))

	return reply, nil
}

// readReply accumulates reply bytes in short polls until the configured
// reply terminator appears, the line goes idle (un-delimited mode), or the
// deadline expires.
func (c *Conn) readReply(ctx context.Context, port Port, deadline time.Time) ([]byte, error) {
	var buf []byte
	chunk := make([]byte, 256)
	lastByte := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}

		remain := time.Until(deadline)
		if remain <= 0 {
			if len(c.cfg.replyTerm) == 0 && len(buf) > 0 {
				return buf, nil
			}

			return nil, ErrTimeout
		}

		poll := readPollInterval
		if remain < poll {
			poll = remain
		}

		if err := port.SetReadTimeout(poll); err != nil {
			return nil, fmt.Errorf("%w: set read timeout: %v", ErrIOFailure, err)
		}

		n, err := port.Read(chunk)
		if err != nil {
			return nil, fmt.Errorf("%w: read: %v", ErrIOFailure, err)
		}

		if n > 0 {
			buf = append(buf, chunk[:n]...)
			lastByte = time.Now()

			if term := c.cfg.replyTerm; len(term) > 0 {
				if idx := bytes.Index(buf, term); idx >= 0 {
					return buf[:idx], nil
				}
			}

			continue
		}

		// Timed-out poll. In un-delimited mode a quiet gap ends the reply.
		if len(c.cfg.replyTerm) == 0 && len(buf) > 0 && time.Since(lastByte) >= c.cfg.idleGap {
			return buf, nil
		}
	}
}

// openLocked performs the open sequence. The caller must hold the gate.
func (c *Conn) openLocked() error {
	if c.state.Is(Open) {
		return nil
	}

	c.state.Set(Connecting)

	// Release any stale handle from a previous fault.
	_ = c.closePort()

	port, err := c.cfg.opener(c.cfg.portPath, c.cfg.baudRate)
	if err != nil {
		c.failures.Add(1)
		c.state.Set(Faulted)

		return fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, c.cfg.portPath, err)
	}

	c.setPort(port)
	c.failures.Store(0)
	c.state.Set(Open)

	c.logger.Info("serial port open", "path", c.cfg.portPath, "baud", c.cfg.baudRate)

	return nil
}

// fault closes the port and transitions the link to Faulted. The caller
// must hold the gate.
func (c *Conn) fault() {
	c.failures.Add(1)
	_ = c.closePort()
	c.state.Set(Faulted)
}

func (c *Conn) setPort(port Port) {
	c.portMu.Lock()
	defer c.portMu.Unlock()

	c.port = port
}

func (c *Conn) getPort() Port {
	c.portMu.RLock()
	defer c.portMu.RUnlock()

	return c.port
}

func (c *Conn) closePort() error {
	c.portMu.Lock()
	port := c.port
	c.port = nil
	c.portMu.Unlock()

	if port == nil {
		return nil
	}

	return port.Close()
}

func (c *Conn) logStateChange(prev, cur LinkState) {
	c.logger.Info("link state changed", "prev", prev.String(), "cur", cur.String())
}

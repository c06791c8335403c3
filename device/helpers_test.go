package device

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakePort is an in-memory Port with a scripted responder. A responder
// receives each complete write and returns the bytes the fake device emits
// in reply.
type fakePort struct {
	mu        sync.Mutex
	pending   bytes.Buffer // bytes awaiting Read
	written   bytes.Buffer // everything the bridge wrote
	responder func(frame []byte) []byte

	readTimeout time.Duration
	closed      bool

	writeErr error
	readErr  error

	// interleaved counts writes that arrived while a previous reply was
	// still unread, which the exchange gate must make impossible.
	interleaved atomic.Int32
}

func newFakePort(responder func(frame []byte) []byte) *fakePort {
	return &fakePort{responder: responder, readTimeout: time.Millisecond}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, errors.New("fake port closed")
	}
	if p.writeErr != nil {
		return 0, p.writeErr
	}

	if p.pending.Len() > 0 {
		p.interleaved.Add(1)
	}

	p.written.Write(b)

	if p.responder != nil {
		if reply := p.responder(b); reply != nil {
			p.pending.Write(reply)
		}
	}

	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	deadline := time.Now().Add(p.readTimeout)

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return 0, errors.New("fake port closed")
		}
		if p.readErr != nil {
			err := p.readErr
			p.mu.Unlock()

			return 0, err
		}
		if p.pending.Len() > 0 {
			n, _ := p.pending.Read(b)
			p.mu.Unlock()

			return n, nil
		}
		p.mu.Unlock()

		if time.Now().After(deadline) {
			return 0, nil // timed-out poll, go.bug.st/serial semantics
		}

		time.Sleep(time.Millisecond)
	}
}

func (p *fakePort) SetReadTimeout(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.readTimeout = d

	return nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true

	return nil
}

func (p *fakePort) setReadErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.readErr = err
}

func (p *fakePort) setWriteErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.writeErr = err
}

func (p *fakePort) writtenBytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]byte(nil), p.written.Bytes()...)
}

// echoResponder replies "PONG <n>\r\n" to "PING\r\n" frames, embedding a
// per-port exchange counter so cross-talk between sessions is detectable.
func echoResponder() func(frame []byte) []byte {
	var count atomic.Uint64

	return func(frame []byte) []byte {
		if !bytes.Equal(frame, []byte("PING\r\n")) {
			return []byte("ERR\r\n")
		}

		return []byte(fmt.Sprintf("PONG %d\r\n", count.Add(1)))
	}
}

// fakeOpener returns a PortOpener that hands out ports from openPort, and
// a counter of open attempts.
func fakeOpener(openPort func() (Port, error)) (PortOpener, *atomic.Int32) {
	var attempts atomic.Int32

	return func(string, int) (Port, error) {
		attempts.Add(1)

		return openPort()
	}, &attempts
}

// newTestConfig creates a device configuration with short timeouts and the
// given port opener.
func newTestConfig(t *testing.T, opener PortOpener, opts ...Option) *Config {
	t.Helper()

	defaults := []Option{
		WithPortOpener(opener),
		WithReplyTerminator("\r\n"),
		WithExchangeTimeout(200 * time.Millisecond),
		WithBackoff(MinBackoffInitial, 100*time.Millisecond, 0),
	}

	cfg, err := NewConfig("r1", "/dev/ttyFAKE0", append(defaults, opts...)...)
	if err != nil {
		t.Fatalf("newTestConfig: %v", err)
	}

	return cfg
}

// newOpenConn creates and opens a Conn backed by the given fake port.
func newOpenConn(t *testing.T, port *fakePort, opts ...Option) *Conn {
	t.Helper()

	opener, _ := fakeOpener(func() (Port, error) { return port, nil })

	conn, err := NewConn(newTestConfig(t, opener, opts...))
	if err != nil {
		t.Fatalf("NewConn: %v", err)
	}
	if err := conn.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

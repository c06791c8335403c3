package bridge

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lvmi/presbridge/device"
)

// fakeDevicePort is an in-memory serial port whose responder script plays
// the transducer.
type fakeDevicePort struct {
	mu        sync.Mutex
	pending   bytes.Buffer
	responder func(frame []byte) []byte
	timeout   time.Duration
	closed    bool
}

func newFakeDevicePort(responder func(frame []byte) []byte) *fakeDevicePort {
	return &fakeDevicePort{responder: responder, timeout: time.Millisecond}
}

func (p *fakeDevicePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, fmt.Errorf("fake port closed")
	}

	if p.responder != nil {
		if reply := p.responder(b); reply != nil {
			p.pending.Write(reply)
		}
	}

	return len(b), nil
}

func (p *fakeDevicePort) Read(b []byte) (int, error) {
	deadline := time.Now().Add(p.timeout)

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return 0, fmt.Errorf("fake port closed")
		}
		if p.pending.Len() > 0 {
			n, _ := p.pending.Read(b)
			p.mu.Unlock()

			return n, nil
		}
		p.mu.Unlock()

		if time.Now().After(deadline) {
			return 0, nil
		}

		time.Sleep(time.Millisecond)
	}
}

func (p *fakeDevicePort) SetReadTimeout(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.timeout = d

	return nil
}

func (p *fakeDevicePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true

	return nil
}

// pingResponder answers "PING\r\n" with "PONG <n>\r\n", counting exchanges,
// and ignores anything else (forcing a reply timeout).
func pingResponder() func(frame []byte) []byte {
	var count atomic.Uint64

	return func(frame []byte) []byte {
		if !bytes.Equal(frame, []byte("PING\r\n")) {
			return nil
		}

		return []byte(fmt.Sprintf("PONG %d\r\n", count.Add(1)))
	}
}

// testDeviceConfig builds a device config backed by a fake port responder.
func testDeviceConfig(t *testing.T, name string, responder func([]byte) []byte) *device.Config {
	t.Helper()

	cfg, err := device.NewConfig(name, "/dev/ttyFAKE-"+name,
		device.WithPortOpener(func(string, int) (device.Port, error) {
			return newFakeDevicePort(responder), nil
		}),
		device.WithReplyTerminator("\r\n"),
		device.WithExchangeTimeout(200*time.Millisecond),
	)
	require.NoError(t, err)

	return cfg
}

func testRegistry(t *testing.T, cfgs ...*device.Config) *device.Registry {
	t.Helper()

	reg, err := device.NewRegistry(cfgs...)
	require.NoError(t, err)

	return reg
}

// startTestServer spins up a full server on an ephemeral port and tears it
// down at the end of the test.
func startTestServer(t *testing.T, reg *device.Registry, opts ...Option) *Server {
	t.Helper()

	defaults := []Option{
		WithRequestTimeout(300 * time.Millisecond),
		WithShutdownGrace(200 * time.Millisecond),
		WithAcceptTimeout(50 * time.Millisecond),
	}

	cfg, err := NewConfig("127.0.0.1:0", append(defaults, opts...)...)
	require.NoError(t, err)

	srv, err := NewServer(context.Background(), cfg, reg)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Shutdown() })

	return srv
}

// dialServer connects a test client to the server.
func dialServer(t *testing.T, srv *Server) net.Conn {
	t.Helper()

	nc, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = nc.Close() })

	return nc
}

// roundTrip sends one request line and reads one response line.
func roundTrip(t *testing.T, nc net.Conn, reader *bufio.Reader, req string) string {
	t.Helper()

	_, err := nc.Write([]byte(req + "\n"))
	require.NoError(t, err)

	resp, err := reader.ReadString('\n')
	require.NoError(t, err)

	return resp
}

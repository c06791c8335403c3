package bridge

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/lvmi/presbridge/device"
	"github.com/lvmi/presbridge/logger"
)

// writeTimeout bounds a single response write to a client socket.
const writeTimeout = 10 * time.Second

var errRequestTooLong = errors.New("bridge: request line too long")

// Session serves one accepted TCP client.
//
// Sessions share nothing with each other; the only shared resource is the
// device connection, whose exchange gate already enforces exclusivity. A
// malformed request answers with an error line and the session continues;
// only a socket failure or client disconnect ends it.
type Session struct {
	id       uint64
	nc       net.Conn
	reader   *bufio.Reader
	registry *device.Registry
	cfg      *Config
	logger   logger.Logger
}

func newSession(id uint64, nc net.Conn, registry *device.Registry, cfg *Config) *Session {
	return &Session{
		id:       id,
		nc:       nc,
		reader:   bufio.NewReaderSize(nc, cfg.maxRequestLen),
		registry: registry,
		cfg:      cfg,
		logger:   cfg.logger.With("session", id, "remote", nc.RemoteAddr().String()),
	}
}

// serveOne reads and answers a single request. It returns false when the
// session should end.
func (s *Session) serveOne(ctx context.Context) bool {
	line, err := s.readLine()
	if err != nil {
		if errors.Is(err, errRequestTooLong) {
			return s.respondError(badRequest("request line too long"))
		}

		if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			s.logger.Debug("client read failed", "error", err)
		} else {
			s.logger.Debug("client disconnected")
		}

		return false
	}

	conn, cmd, werr := parseRequest(line, s.registry)
	if werr != nil {
		return s.respondError(werr)
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.requestTimeout)
	reply, xerr := conn.Exchange(reqCtx, cmd)
	cancel()

	if xerr != nil {
		s.logger.Debug("exchange failed", "device", conn.Name(), "error", xerr)

		return s.respondError(exchangeError(xerr))
	}

	return s.respond(formatOK(reply))
}

// readLine reads one LF-terminated request line. Lines longer than the
// configured bound are discarded through to the next LF and reported as
// errRequestTooLong, so one oversized request doesn't end the session.
func (s *Session) readLine() ([]byte, error) {
	line, err := s.reader.ReadSlice('\n')

	switch {
	case err == nil:
		return line[:len(line)-1], nil

	case errors.Is(err, bufio.ErrBufferFull):
		for errors.Is(err, bufio.ErrBufferFull) {
			_, err = s.reader.ReadSlice('\n')
		}
		if err != nil {
			return nil, err
		}

		return nil, errRequestTooLong

	default:
		return nil, err
	}
}

func (s *Session) respondError(werr *wireError) bool {
	return s.respond(formatError(werr))
}

// respond writes a response line. It returns false when the client socket
// failed, ending the session.
func (s *Session) respond(resp []byte) bool {
	if err := s.nc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		s.logger.Debug("set write deadline failed", "error", err)

		return false
	}

	if _, err := s.nc.Write(resp); err != nil {
		s.logger.Debug("client write failed", "error", err)

		return false
	}

	return true
}

func (s *Session) close() {
	_ = s.nc.Close()
}

package bridge

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/lvmi/presbridge/device"
)

// Client-facing error codes.
const (
	CodeBadRequest    = "BAD_REQUEST"
	CodeUnknownDevice = "UNKNOWN_DEVICE"
	CodeTimeout       = "TIMEOUT"
	CodeNotConnected  = "NOT_CONNECTED"
	CodeIOError       = "IO_ERROR"
)

// wireError is a client-visible request failure: a code that goes on the
// wire and a human-readable message.
type wireError struct {
	code string
	msg  string
}

func (e *wireError) Error() string {
	return fmt.Sprintf("%s %s", e.code, e.msg)
}

func badRequest(msg string) *wireError {
	return &wireError{code: CodeBadRequest, msg: msg}
}

// parseRequest splits a request line into the target connection and the
// command payload.
//
// A line with at least two fields is always `<device> <command>`; a single
// field line is a bare command for the default device, which only exists
// when exactly one device is configured. This keeps `<unknown> <command>`
// answering UNKNOWN_DEVICE even in single-device deployments.
func parseRequest(line []byte, registry *device.Registry) (*device.Conn, []byte, *wireError) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, nil, badRequest("empty request")
	}

	idx := bytes.IndexByte(line, ' ')
	if idx < 0 {
		conn, ok := registry.Default()
		if !ok {
			return nil, nil, badRequest("missing device name")
		}

		return conn, line, nil
	}

	name := string(line[:idx])
	cmd := bytes.TrimLeft(line[idx+1:], " ")
	if len(cmd) == 0 {
		return nil, nil, badRequest("missing command")
	}

	conn, err := registry.Resolve(name)
	if err != nil {
		return nil, nil, &wireError{code: CodeUnknownDevice, msg: name}
	}

	return conn, cmd, nil
}

// exchangeError maps a device exchange failure to its wire error.
func exchangeError(err error) *wireError {
	switch {
	case errors.Is(err, device.ErrTimeout):
		return &wireError{code: CodeTimeout, msg: "no reply from device"}
	case errors.Is(err, device.ErrNotConnected), errors.Is(err, device.ErrDeviceUnavailable):
		return &wireError{code: CodeNotConnected, msg: "device link is down"}
	case errors.Is(err, device.ErrIOFailure):
		return &wireError{code: CodeIOError, msg: "serial I/O failure"}
	default:
		return &wireError{code: CodeIOError, msg: err.Error()}
	}
}

// formatOK renders a success response. The device payload is flattened to a
// single line: trailing CR/LF are stripped and interior line breaks become
// spaces, since a raw multi-line payload would desynchronize the client
// protocol.
func formatOK(payload []byte) []byte {
	payload = bytes.TrimRight(payload, "\r\n")

	out := make([]byte, 0, len(payload)+4)
	out = append(out, "OK"...)

	if len(payload) > 0 {
		out = append(out, ' ')

		if bytes.ContainsAny(payload, "\r\n") {
			lines := bytes.FieldsFunc(payload, func(r rune) bool {
				return r == '\r' || r == '\n'
			})
			payload = bytes.Join(lines, []byte{' '})
		}

		out = append(out, payload...)
	}

	return append(out, '\n')
}

// formatError renders an error response line.
func formatError(werr *wireError) []byte {
	return []byte(fmt.Sprintf("ERROR %s %s\n", werr.code, werr.msg))
}

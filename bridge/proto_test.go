package bridge

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lvmi/presbridge/device"
)

func TestParseRequestAddressed(t *testing.T) {
	reg := testRegistry(t,
		testDeviceConfig(t, "r1", pingResponder()),
		testDeviceConfig(t, "b1", pingResponder()),
	)

	conn, cmd, werr := parseRequest([]byte("r1 PING"), reg)
	require.Nil(t, werr)
	require.Equal(t, "r1", conn.Name())
	require.Equal(t, "PING", string(cmd))

	// Commands may contain spaces; only the first field is the device.
	conn, cmd, werr = parseRequest([]byte("b1 SET RANGE 2"), reg)
	require.Nil(t, werr)
	require.Equal(t, "b1", conn.Name())
	require.Equal(t, "SET RANGE 2", string(cmd))

	// Trailing CR from clients using CRLF framing is tolerated.
	conn, _, werr = parseRequest([]byte("r1 PING\r"), reg)
	require.Nil(t, werr)
	require.Equal(t, "r1", conn.Name())
}

func TestParseRequestUnknownDevice(t *testing.T) {
	reg := testRegistry(t, testDeviceConfig(t, "r1", pingResponder()))

	_, _, werr := parseRequest([]byte("r9 PING"), reg)
	require.NotNil(t, werr)
	require.Equal(t, CodeUnknownDevice, werr.code)
}

func TestParseRequestDefaultDevice(t *testing.T) {
	single := testRegistry(t, testDeviceConfig(t, "r1", pingResponder()))

	// Bare command goes to the only device.
	conn, cmd, werr := parseRequest([]byte("PING"), single)
	require.Nil(t, werr)
	require.Equal(t, "r1", conn.Name())
	require.Equal(t, "PING", string(cmd))

	// Addressed form still answers UNKNOWN_DEVICE for bad names.
	_, _, werr = parseRequest([]byte("r9 PING"), single)
	require.NotNil(t, werr)
	require.Equal(t, CodeUnknownDevice, werr.code)

	// No default device with more than one configured.
	multi := testRegistry(t,
		testDeviceConfig(t, "r1", pingResponder()),
		testDeviceConfig(t, "b1", pingResponder()),
	)
	_, _, werr = parseRequest([]byte("PING"), multi)
	require.NotNil(t, werr)
	require.Equal(t, CodeBadRequest, werr.code)
}

func TestParseRequestMalformed(t *testing.T) {
	reg := testRegistry(t,
		testDeviceConfig(t, "r1", pingResponder()),
		testDeviceConfig(t, "b1", pingResponder()),
	)

	cases := []string{"", "   ", "r1 ", "r1    \r"}
	for _, line := range cases {
		_, _, werr := parseRequest([]byte(line), reg)
		require.NotNil(t, werr, "line %q", line)
		require.Equal(t, CodeBadRequest, werr.code, "line %q", line)
	}
}

func TestExchangeErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{device.ErrTimeout, CodeTimeout},
		{fmt.Errorf("wrap: %w", device.ErrTimeout), CodeTimeout},
		{device.ErrNotConnected, CodeNotConnected},
		{device.ErrDeviceUnavailable, CodeNotConnected},
		{device.ErrIOFailure, CodeIOError},
		{errors.New("unexpected"), CodeIOError},
	}

	for _, tc := range cases {
		require.Equal(t, tc.code, exchangeError(tc.err).code, "error %v", tc.err)
	}
}

func TestFormatOK(t *testing.T) {
	require.Equal(t, "OK PONG\n", string(formatOK([]byte("PONG"))))
	require.Equal(t, "OK PONG\n", string(formatOK([]byte("PONG\r\n"))))
	require.Equal(t, "OK\n", string(formatOK(nil)))
	require.Equal(t, "OK\n", string(formatOK([]byte("\r\n"))))

	// Interior line breaks are flattened so the response stays one line.
	require.Equal(t, "OK a b\n", string(formatOK([]byte("a\r\nb\r\n"))))
}

func TestFormatError(t *testing.T) {
	resp := formatError(&wireError{code: CodeTimeout, msg: "no reply from device"})
	require.Equal(t, "ERROR TIMEOUT no reply from device\n", string(resp))
}

// Package bridge implements the TCP side of the pressure bridge: a line
// oriented request/response protocol multiplexing any number of client
// sessions onto the fixed set of serial devices in a [device.Registry].
//
// # Wire protocol
//
// Requests are single lines terminated by LF (an optional trailing CR is
// accepted):
//
//	<device> <command>\n
//	<command>\n            (only when exactly one device is configured)
//
// Responses are single lines:
//
//	OK <payload>\n
//	ERROR <code> <message>\n
//
// Error codes: BAD_REQUEST, UNKNOWN_DEVICE, TIMEOUT, NOT_CONNECTED,
// IO_ERROR. A protocol-level error answers on the same connection and the
// session continues; only transport failures or client disconnects end a
// session.
package bridge

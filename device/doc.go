// Package device implements the serial side of the pressure bridge.
//
// A [Conn] owns exactly one physical serial port and serializes every
// command/response exchange against it through an internal gate; no other
// component touches the port directly. A [Supervisor] watches each Conn and
// reopens the link with exponential backoff after a fault, forever. The
// [Registry] maps logical device names (e.g. spectrograph arms) to their
// Conns and is immutable after construction.
//
// # Link states
//
// A Conn moves between four states:
//
//	Closed ──Open()──▶ Connecting ──▶ Open
//	                        │           │ I/O error or timeout
//	                        ▼           ▼
//	                     Faulted ◀──────┘
//
// Exchanges are only served in the Open state; any other state fails fast
// with [ErrNotConnected] so clients are never queued behind a dead link.
package device

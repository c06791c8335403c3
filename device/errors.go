package device

import "errors"

var (
	// ErrDeviceUnavailable indicates that the serial port could not be opened.
	ErrDeviceUnavailable = errors.New("device: serial port cannot be opened")

	// ErrNotConnected indicates that an exchange was attempted while the
	// link is not in the Open state.
	ErrNotConnected = errors.New("device: link is not open")

	// ErrTimeout indicates that no (complete) reply was received within the
	// exchange deadline.
	ErrTimeout = errors.New("device: no reply within deadline")

	// ErrIOFailure indicates a serial read or write error mid-exchange,
	// e.g. the device was unplugged.
	ErrIOFailure = errors.New("device: serial read/write failure")

	// ErrUnknownDevice indicates a lookup for a device name that is not
	// present in the registry.
	ErrUnknownDevice = errors.New("device: unknown device name")

	// ErrDuplicateDevice indicates that two device configurations share the
	// same logical name.
	ErrDuplicateDevice = errors.New("device: duplicate device name")

	// ErrConfigNil indicates that a nil Config was provided.
	ErrConfigNil = errors.New("device: config is nil")
)

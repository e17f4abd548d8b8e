package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when creating a device with an ID that already exists.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidName is returned when a device name is too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidAddress is returned when the IP address or port is unusable.
	ErrInvalidAddress = errors.New("device: invalid address")

	// ErrIncompleteConfig is returned by the resolver when a stored device
	// lacks a field needed to talk to it.
	ErrIncompleteConfig = errors.New("device: incomplete configuration")

	// ErrSecretUnreadable is returned by the resolver when the stored secret
	// cannot be decrypted.
	ErrSecretUnreadable = errors.New("device: secret unreadable")
)

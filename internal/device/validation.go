package device

import (
	"fmt"
	"net"
	"unicode/utf8"

	"github.com/google/uuid"
)

const maxNameLength = 100

// ValidateDevice checks the fields a stored device must carry.
// Username and secret may be filled in later, so only the address is required.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if err := ValidateAddress(d.IPAddress, d.Port); err != nil {
		return err
	}
	if d.TimeoutMs < 0 {
		return fmt.Errorf("%w: timeout_ms must not be negative", ErrInvalidDevice)
	}
	return nil
}

// ValidateName checks the display name length. Empty names are allowed.
func ValidateName(name string) error {
	if utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateAddress checks that ip is a literal IP address and port is either
// zero (scheme default) or a valid TCP port.
func ValidateAddress(ip string, port int) error {
	if net.ParseIP(ip) == nil {
		return fmt.Errorf("%w: %q is not an IP address", ErrInvalidAddress, ip)
	}
	if port < 0 || port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidAddress, port)
	}
	return nil
}

// GenerateID returns a new device ID.
func GenerateID() string {
	return uuid.New().String()
}

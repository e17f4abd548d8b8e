package device

import "time"

// Default connection values applied when a stored device leaves them unset.
const (
	DefaultHTTPPort  = 80
	DefaultHTTPSPort = 443
)

// Device is the connection configuration for one access-control device.
//
// The adapters never persist a Device; they only read it through a Resolver.
// EncryptedSecret holds the vault payload for the device password.
type Device struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	IPAddress       string    `json:"ip_address"`
	Port            int       `json:"port"`
	Username        string    `json:"username"`
	EncryptedSecret string    `json:"-"`
	UseHTTPS        bool      `json:"use_https"`
	TimeoutMs       int       `json:"timeout_ms,omitempty"`
	Model           string    `json:"model,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DeepCopy returns an independent copy of the device.
// Device holds no reference fields today, so a value copy suffices.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	return &cpy
}

// EffectivePort returns Port, or the scheme default when Port is zero.
func (d *Device) EffectivePort() int {
	if d.Port > 0 {
		return d.Port
	}
	if d.UseHTTPS {
		return DefaultHTTPSPort
	}
	return DefaultHTTPPort
}

// Timeout returns the per-device request timeout, or zero when the adapter
// default should apply.
func (d *Device) Timeout() time.Duration {
	if d.TimeoutMs <= 0 {
		return 0
	}
	return time.Duration(d.TimeoutMs) * time.Millisecond
}

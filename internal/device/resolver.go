package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/faults"
)

// Lookup finds stored devices. *Registry satisfies it.
type Lookup interface {
	GetDevice(ctx context.Context, id string) (*Device, error)
	ListDevices(ctx context.Context) ([]Device, error)
}

// Decrypter opens stored secrets. *vault.Vault satisfies it.
type Decrypter interface {
	Decrypt(payload string) (string, error)
}

// Credentials is everything an adapter needs to reach one device.
type Credentials struct {
	DeviceID string
	Host     string
	Port     int
	Username string
	Password string
	UseHTTPS bool
	Timeout  time.Duration // zero means the adapter default
	Model    string
}

// Resolver turns a device ID into usable Credentials. Every failure is a
// faults.KindNotFound error, returned before any network traffic.
type Resolver struct {
	lookup Lookup
	secret Decrypter
}

// NewResolver creates a resolver over a device lookup and the vault.
func NewResolver(lookup Lookup, secret Decrypter) *Resolver {
	return &Resolver{lookup: lookup, secret: secret}
}

// Resolve loads, validates and decrypts the device configuration.
func (r *Resolver) Resolve(ctx context.Context, deviceID string) (*Credentials, error) {
	const op = "resolve_device"

	if deviceID == "" {
		return nil, notFound(op, deviceID, ErrIncompleteConfig, "device id is empty")
	}

	d, err := r.lookup.GetDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return nil, notFound(op, deviceID, err, "device is not configured")
		}
		return nil, notFound(op, deviceID, err, "loading device configuration")
	}

	var missing []string
	if d.IPAddress == "" {
		missing = append(missing, "ip_address")
	}
	if d.Username == "" {
		missing = append(missing, "username")
	}
	if d.EncryptedSecret == "" {
		missing = append(missing, "secret")
	}
	if len(missing) > 0 {
		return nil, notFound(op, deviceID, ErrIncompleteConfig, fmt.Sprintf("missing %v", missing))
	}

	password, err := r.secret.Decrypt(d.EncryptedSecret)
	if err != nil {
		return nil, notFound(op, deviceID, fmt.Errorf("%w: %w", ErrSecretUnreadable, err), "decrypting device secret")
	}

	return &Credentials{
		DeviceID: d.ID,
		Host:     d.IPAddress,
		Port:     d.EffectivePort(),
		Username: d.Username,
		Password: password,
		UseHTTPS: d.UseHTTPS,
		Timeout:  d.Timeout(),
		Model:    d.Model,
	}, nil
}

// ListDevices passes through to the lookup for discovery reconciliation.
func (r *Resolver) ListDevices(ctx context.Context) ([]Device, error) {
	return r.lookup.ListDevices(ctx)
}

func notFound(op, deviceID string, cause error, msg string) error {
	return &faults.Error{
		Kind:     faults.KindNotFound,
		Op:       op,
		DeviceID: deviceID,
		Message:  msg,
		Err:      cause,
	}
}

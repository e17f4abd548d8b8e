package adapter

import (
	"context"
	"strings"
)

// Type names an adapter variant.
type Type string

// Adapter variants. TypeAuto is only meaningful as a configuration value.
const (
	TypeHikvision Type = "hikvision"
	TypeStub      Type = "stub"
	TypeAuto      Type = "auto"
)

// ParseType normalises s and reports whether it names a known type.
func ParseType(s string) (Type, bool) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case TypeHikvision, TypeStub, TypeAuto:
		return t, true
	default:
		return t, false
	}
}

// EventHandler receives device events in the order they arrived.
type EventHandler func(Event)

// Adapter is the capability interface shared by every variant.
//
// Every device-facing method resolves the stored device configuration first
// and fails with a faults.KindNotFound error, before any network traffic,
// when the device is unknown or incomplete.
type Adapter interface {
	// Type returns the variant.
	Type() Type

	// DiscoverDevices probes the network for devices. It never writes to
	// the device store.
	DiscoverDevices(ctx context.Context, opts DiscoveryOptions) ([]DiscoveredDevice, error)

	GetDeviceInfo(ctx context.Context, deviceID string) (*DeviceInfo, error)
	GetDeviceConfiguration(ctx context.Context, deviceID string) (*DeviceConfiguration, error)
	UpdateDeviceConfiguration(ctx context.Context, deviceID string, cfg NetworkConfig) error

	// SendCommand runs one command. Unknown commands fail with
	// faults.KindBadRequest. A command the device rejects is reported
	// through CommandResult.Success rather than an error.
	SendCommand(ctx context.Context, deviceID string, cmd DeviceCommand) (*CommandResult, error)

	// GetDeviceHealth probes the device. Network failures yield an OFFLINE
	// record, not an error.
	GetDeviceHealth(ctx context.Context, deviceID string) (*DeviceHealth, error)

	// SubscribeToEvents starts delivering events for deviceID to handler,
	// replacing any previous subscription for the device.
	SubscribeToEvents(ctx context.Context, deviceID string, handler EventHandler) error

	// UnsubscribeFromEvents stops delivery and waits for the handler to
	// return. Safe to call when not subscribed.
	UnsubscribeFromEvents(deviceID string)

	// SyncUsers creates or updates each user, isolating per-user failures.
	SyncUsers(ctx context.Context, deviceID string, users []DeviceUser) (*SyncResult, error)
	FindUserByEmployeeNo(ctx context.Context, deviceID, employeeNo string) (*DeviceUser, error)
	RemoveUser(ctx context.Context, deviceID, employeeNo string) (bool, error)

	// TestConnection reports reachability within at most 5s. It never fails.
	TestConnection(ctx context.Context, deviceID string) bool
	RebootDevice(ctx context.Context, deviceID string) error
	UpdateFirmware(ctx context.Context, deviceID string, req FirmwareRequest) (*FirmwareResult, error)

	GetDeviceLogs(ctx context.Context, deviceID string, q LogQuery) ([]LogEntry, error)
	ClearDeviceLogs(ctx context.Context, deviceID string) error
	BackupConfiguration(ctx context.Context, deviceID string) ([]byte, error)
	RestoreConfiguration(ctx context.Context, deviceID string, data []byte) error

	// GetFaceData reads the face library using a secure session.
	GetFaceData(ctx context.Context, deviceID string) ([]byte, error)

	// HealthCheck reports whether the adapter itself can serve requests.
	// The factory uses it for failover and recommendations.
	HealthCheck(ctx context.Context) error

	// Close stops event subscriptions and releases cached state.
	Close() error
}

// Logger is the logging interface adapters accept.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NoopLogger discards everything.
type NoopLogger struct{}

func (NoopLogger) Debug(string, ...any) {}
func (NoopLogger) Info(string, ...any)  {}
func (NoopLogger) Warn(string, ...any)  {}
func (NoopLogger) Error(string, ...any) {}

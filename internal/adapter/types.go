package adapter

import (
	"time"
)

// DiscoveryOptions narrows a discovery scan. Zero values fall back to the
// adapter's configured defaults.
type DiscoveryOptions struct {
	// Networks lists host addresses and/or CIDR ranges.
	Networks    []string      `json:"networks,omitempty"`
	Ports       []int         `json:"ports,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
	Concurrency int           `json:"concurrency,omitempty"`
}

// Device reachability states.
const (
	StatusOnline  = "ONLINE"
	StatusOffline = "OFFLINE"
)

// DiscoveredDevice is a device found on the network, or a stored device
// returned as a fallback when the scan could not run.
type DiscoveredDevice struct {
	IPAddress       string `json:"ip_address"`
	Port            int    `json:"port"`
	Model           string `json:"model,omitempty"`
	SerialNumber    string `json:"serial_number,omitempty"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
	MACAddress      string `json:"mac_address,omitempty"`
	Status          string `json:"status"`
	RequiresAuth    bool   `json:"requires_auth"`
	IsConfigured    bool   `json:"is_configured"`
	DeviceID        string `json:"device_id,omitempty"`
	Fallback        bool   `json:"fallback,omitempty"`
}

// DeviceInfo identifies a device.
type DeviceInfo struct {
	DeviceID        string `json:"device_id"`
	Name            string `json:"name,omitempty"`
	Model           string `json:"model"`
	SerialNumber    string `json:"serial_number"`
	FirmwareVersion string `json:"firmware_version"`
	FirmwareDate    string `json:"firmware_date,omitempty"`
	MACAddress      string `json:"mac_address,omitempty"`
	DeviceType      string `json:"device_type,omitempty"`
}

// NetworkConfig is the IPv4 configuration of one network interface.
type NetworkConfig struct {
	InterfaceID    int    `json:"interface_id"`
	AddressingType string `json:"addressing_type"` // "static" or "dynamic"
	IPAddress      string `json:"ip_address"`
	SubnetMask     string `json:"subnet_mask"`
	Gateway        string `json:"gateway,omitempty"`
	PrimaryDNS     string `json:"primary_dns,omitempty"`
}

// DeviceConfiguration combines identity and network settings.
type DeviceConfiguration struct {
	Info    DeviceInfo    `json:"info"`
	Network NetworkConfig `json:"network"`
}

// Commands understood by SendCommand.
const (
	CommandUnlockDoor     = "unlock_door"
	CommandLockDoor       = "lock_door"
	CommandReboot         = "reboot"
	CommandUpdateFirmware = "update_firmware"
	CommandSyncUsers      = "sync_users"
	CommandCustom         = "custom"
)

// KnownCommand reports whether SendCommand accepts name.
func KnownCommand(name string) bool {
	switch name {
	case CommandUnlockDoor, CommandLockDoor, CommandReboot,
		CommandUpdateFirmware, CommandSyncUsers, CommandCustom:
		return true
	}
	return false
}

// DeviceCommand is one command for SendCommand.
type DeviceCommand struct {
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
	// Timeout overrides the per-command default when positive.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// CommandResult reports the outcome of a command.
type CommandResult struct {
	CommandID  string        `json:"command_id"`
	Command    string        `json:"command"`
	Success    bool          `json:"success"`
	Message    string        `json:"message,omitempty"`
	Data       any           `json:"data,omitempty"`
	ExecutedAt time.Time     `json:"executed_at"`
	Duration   time.Duration `json:"duration"`

	// Err is the failure behind an unsuccessful result.
	Err error `json:"-"`
}

// DeviceHealth is the outcome of one health probe.
type DeviceHealth struct {
	DeviceID    string        `json:"device_id"`
	Status      string        `json:"status"`
	Uptime      time.Duration `json:"uptime"`
	CPUUsage    *float64      `json:"cpu_usage,omitempty"`
	MemoryUsage *float64      `json:"memory_usage,omitempty"`
	DiskUsage   *float64      `json:"disk_usage,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	LastCheck   time.Time     `json:"last_check"`
	Issues      []string      `json:"issues"`
}

// Health thresholds above which an issue is reported.
const (
	MemoryThreshold      = 90.0
	DiskThreshold        = 90.0
	TemperatureThreshold = 70.0
)

// User types accepted on devices.
const (
	UserTypeNormal  = "normal"
	UserTypeVisitor = "visitor"
	UserTypeAdmin   = "admin"
)

// Validity bounds when a user's credentials work. Zero times mean open.
type Validity struct {
	Enabled bool      `json:"enabled"`
	Begin   time.Time `json:"begin,omitempty"`
	End     time.Time `json:"end,omitempty"`
}

// DeviceUser is a person enrolled on a device, keyed by EmployeeNo.
type DeviceUser struct {
	EmployeeNo string    `json:"employee_no"`
	Name       string    `json:"name"`
	UserType   string    `json:"user_type"`
	Validity   *Validity `json:"validity,omitempty"`
	DoorRight  string    `json:"door_right,omitempty"`
}

// SyncError records one user that failed to sync.
type SyncError struct {
	EmployeeNo string `json:"employee_no"`
	Error      string `json:"error"`
}

// SyncResult summarises a SyncUsers batch. SuccessCount+FailureCount equals
// the number of users submitted.
type SyncResult struct {
	SuccessCount int         `json:"success_count"`
	FailureCount int         `json:"failure_count"`
	Errors       []SyncError `json:"errors"`
}

// Log severities, lowest first.
const (
	LogLevelInfo    = "info"
	LogLevelWarning = "warning"
	LogLevelError   = "error"
)

// LogQuery selects device log entries. Zero times leave the range open.
// Level is a minimum severity.
type LogQuery struct {
	From  time.Time `json:"from,omitempty"`
	To    time.Time `json:"to,omitempty"`
	Level string    `json:"level,omitempty"`
	Limit int       `json:"limit,omitempty"`
}

// LogEntry is a normalised device log line.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
}

// FirmwareRequest starts a firmware update.
type FirmwareRequest struct {
	URL string `json:"url"`
	// Backup takes a configuration backup before the upgrade.
	Backup bool `json:"backup"`
}

// Firmware update outcomes.
const (
	FirmwareCompleted = "completed"
	FirmwareFailed    = "failed"
)

// FirmwareResult reports a finished firmware update.
type FirmwareResult struct {
	UpdateID        string        `json:"update_id"`
	Status          string        `json:"status"`
	PreviousVersion string        `json:"previous_version"`
	CurrentVersion  string        `json:"current_version,omitempty"`
	BackupTaken     bool          `json:"backup_taken"`
	BackupError     string        `json:"backup_error,omitempty"`
	Duration        time.Duration `json:"duration"`

	// Backup holds the pre-upgrade configuration when one was taken.
	Backup []byte `json:"-"`
}

// Event types.
const (
	EventAccessGranted = "access_granted"
	EventAccessDenied  = "access_denied"
	EventDoorOpened    = "door_opened"
	EventDoorClosed    = "door_closed"
	EventTamper        = "tamper"
	EventAlarm         = "alarm"
	EventException     = "exception"
	EventOther         = "other"
)

// Event sources.
const (
	SourcePush = "push"
	SourcePoll = "poll"
)

// Event is a normalised device event.
type Event struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"device_id"`
	Type       string    `json:"type"`
	Major      int       `json:"major"`
	Minor      int       `json:"minor"`
	EmployeeNo string    `json:"employee_no,omitempty"`
	Name       string    `json:"name,omitempty"`
	CardNo     string    `json:"card_no,omitempty"`
	DoorNo     int       `json:"door_no,omitempty"`
	SerialNo   int64     `json:"serial_no,omitempty"`
	Time       time.Time `json:"time"`
	Source     string    `json:"source"`
}

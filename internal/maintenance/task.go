package maintenance

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/adapter"
)

// Category groups tasks for display and scheduling.
type Category string

// Task categories.
const (
	CategoryDiagnostic Category = "diagnostic"
	CategoryBackup     Category = "backup"
	CategoryCleanup    Category = "cleanup"
)

// Prerequisite is a device condition checked before a task runs.
type Prerequisite string

// Prerequisites.
const (
	// PrerequisiteReachable requires TestConnection to succeed.
	PrerequisiteReachable Prerequisite = "reachable"

	// PrerequisiteOnline requires GetDeviceHealth to report ONLINE.
	PrerequisiteOnline Prerequisite = "online"
)

// Built-in task IDs.
const (
	TaskConnectivityCheck = "connectivity-check"
	TaskConfigBackup      = "config-backup"
	TaskLogCleanup        = "log-cleanup"
)

// ExecuteFunc performs a task against one device.
type ExecuteFunc func(ctx context.Context, a adapter.Adapter, deviceID string) (*Result, error)

// Task is a maintenance operation.
type Task struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Category      Category       `json:"category"`
	Priority      int            `json:"priority"` // lower runs first
	Prerequisites []Prerequisite `json:"prerequisites"`
	// EstimatedDuration is the typical run time on one device.
	EstimatedDuration time.Duration `json:"estimated_duration"`
	Execute           ExecuteFunc   `json:"-"`
}

// Result is the outcome of one task run on one device.
type Result struct {
	TaskID    string         `json:"task_id"`
	DeviceID  string         `json:"device_id"`
	Success   bool           `json:"success"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
}

// BuiltinTasks returns the standard task set. store receives config backups.
func BuiltinTasks(store BackupStore) []Task {
	return []Task{
		{
			ID:                TaskConnectivityCheck,
			Name:              "Connectivity check",
			Description:       "Verifies the device answers and reports its health issues",
			Category:          CategoryDiagnostic,
			Priority:          10,
			Prerequisites:     []Prerequisite{PrerequisiteReachable},
			EstimatedDuration: 5 * time.Second,
			Execute:           connectivityCheck,
		},
		{
			ID:                TaskConfigBackup,
			Name:              "Configuration backup",
			Description:       "Downloads the device configuration and stores it",
			Category:          CategoryBackup,
			Priority:          20,
			Prerequisites:     []Prerequisite{PrerequisiteReachable},
			EstimatedDuration: time.Minute,
			Execute:           configBackup(store),
		},
		{
			ID:                TaskLogCleanup,
			Name:              "Log cleanup",
			Description:       "Clears the device log",
			Category:          CategoryCleanup,
			Priority:          30,
			Prerequisites:     []Prerequisite{PrerequisiteOnline},
			EstimatedDuration: 10 * time.Second,
			Execute:           logCleanup,
		},
	}
}

func connectivityCheck(ctx context.Context, a adapter.Adapter, deviceID string) (*Result, error) {
	h, err := a.GetDeviceHealth(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Success: h.Status == adapter.StatusOnline,
		Message: "device " + h.Status,
		Details: map[string]any{"status": h.Status, "uptime_seconds": int64(h.Uptime / time.Second)},
	}
	if len(h.Issues) > 0 {
		res.Details["issues"] = h.Issues
	}
	return res, nil
}

func configBackup(store BackupStore) ExecuteFunc {
	return func(ctx context.Context, a adapter.Adapter, deviceID string) (*Result, error) {
		data, err := a.BackupConfiguration(ctx, deviceID)
		if err != nil {
			return nil, err
		}
		if store == nil {
			return &Result{Success: true, Message: "backup downloaded", Details: map[string]any{"bytes": len(data)}}, nil
		}
		path, err := store.Save(ctx, deviceID, data)
		if err != nil {
			return nil, err
		}
		return &Result{
			Success: true,
			Message: "backup stored",
			Details: map[string]any{"bytes": len(data), "path": path},
		}, nil
	}
}

func logCleanup(ctx context.Context, a adapter.Adapter, deviceID string) (*Result, error) {
	if err := a.ClearDeviceLogs(ctx, deviceID); err != nil {
		return nil, err
	}
	return &Result{Success: true, Message: "device log cleared"}, nil
}

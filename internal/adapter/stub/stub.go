// Package stub implements adapter.Adapter with deterministic fixtures for
// environments without hardware. It keeps users and configuration in memory
// so callers can exercise full create/find/remove flows.
package stub

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-access/internal/adapter"
	"github.com/nerrad567/gray-logic-access/internal/faults"
)

// Fixture identity reported for every device.
const (
	Model           = "STUB-ACS-1000"
	FirmwareVersion = "STUB-1.0.0"
	UpgradedVersion = "STUB-1.1.0"
	SerialPrefix    = "STUB-SN-"
)

// fixedTime anchors every fixture timestamp.
var fixedTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Fixtures returned by DiscoverDevices.
var discoveryFixtures = []adapter.DiscoveredDevice{
	{IPAddress: "192.0.2.10", Port: 80, Model: Model, SerialNumber: SerialPrefix + "0001",
		FirmwareVersion: FirmwareVersion, MACAddress: "02:00:00:00:00:01", Status: adapter.StatusOnline},
	{IPAddress: "192.0.2.11", Port: 80, Model: Model, SerialNumber: SerialPrefix + "0002",
		FirmwareVersion: FirmwareVersion, MACAddress: "02:00:00:00:00:02", Status: adapter.StatusOnline},
}

// Adapter is the inert variant. Safe for concurrent use.
type Adapter struct {
	mu       sync.Mutex
	users    map[string]map[string]adapter.DeviceUser // deviceID -> employeeNo -> user
	configs  map[string][]byte
	networks map[string]adapter.NetworkConfig
	firmware map[string]string

	subs   *adapter.Subscriptions
	logger adapter.Logger
}

var _ adapter.Adapter = (*Adapter)(nil)

// New creates a stub adapter.
func New(logger adapter.Logger) *Adapter {
	if logger == nil {
		logger = adapter.NoopLogger{}
	}
	return &Adapter{
		users:    make(map[string]map[string]adapter.DeviceUser),
		configs:  make(map[string][]byte),
		networks: make(map[string]adapter.NetworkConfig),
		firmware: make(map[string]string),
		subs:     adapter.NewSubscriptions(adapter.DefaultEventBuffer, logger),
		logger:   logger,
	}
}

// Type returns adapter.TypeStub.
func (a *Adapter) Type() adapter.Type { return adapter.TypeStub }

func checkDevice(op, deviceID string) error {
	if deviceID == "" {
		return faults.New(faults.KindNotFound, op, "device id is empty")
	}
	return nil
}

func (a *Adapter) DiscoverDevices(context.Context, adapter.DiscoveryOptions) ([]adapter.DiscoveredDevice, error) {
	return append([]adapter.DiscoveredDevice(nil), discoveryFixtures...), nil
}

func (a *Adapter) GetDeviceInfo(_ context.Context, deviceID string) (*adapter.DeviceInfo, error) {
	if err := checkDevice("get_device_info", deviceID); err != nil {
		return nil, err
	}
	a.mu.Lock()
	version := a.firmwareLocked(deviceID)
	a.mu.Unlock()
	return &adapter.DeviceInfo{
		DeviceID:        deviceID,
		Name:            "Stub " + deviceID,
		Model:           Model,
		SerialNumber:    SerialPrefix + deviceID,
		FirmwareVersion: version,
		MACAddress:      "02:00:00:00:00:ff",
		DeviceType:      "ACS",
	}, nil
}

func (a *Adapter) firmwareLocked(deviceID string) string {
	if v, ok := a.firmware[deviceID]; ok {
		return v
	}
	return FirmwareVersion
}

func (a *Adapter) GetDeviceConfiguration(ctx context.Context, deviceID string) (*adapter.DeviceConfiguration, error) {
	info, err := a.GetDeviceInfo(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	network, ok := a.networks[deviceID]
	a.mu.Unlock()
	if !ok {
		network = adapter.NetworkConfig{
			InterfaceID: 1, AddressingType: "static",
			IPAddress: "192.0.2.10", SubnetMask: "255.255.255.0", Gateway: "192.0.2.1",
		}
	}
	return &adapter.DeviceConfiguration{Info: *info, Network: network}, nil
}

func (a *Adapter) UpdateDeviceConfiguration(_ context.Context, deviceID string, cfg adapter.NetworkConfig) error {
	if err := checkDevice("update_device_configuration", deviceID); err != nil {
		return err
	}
	if cfg.IPAddress == "" {
		return faults.New(faults.KindBadRequest, "update_device_configuration", "ip address required")
	}
	a.mu.Lock()
	a.networks[deviceID] = cfg
	a.mu.Unlock()
	return nil
}

// SendCommand accepts every known command and succeeds without side effects.
func (a *Adapter) SendCommand(_ context.Context, deviceID string, cmd adapter.DeviceCommand) (*adapter.CommandResult, error) {
	if !adapter.KnownCommand(cmd.Command) {
		return nil, faults.New(faults.KindBadRequest, "send_command", "unknown command %q", cmd.Command)
	}
	if err := checkDevice("send_command", deviceID); err != nil {
		return nil, err
	}
	a.logger.Debug("stub command", "device_id", deviceID, "command", cmd.Command)
	return &adapter.CommandResult{
		CommandID:  uuid.NewString(),
		Command:    cmd.Command,
		Success:    true,
		Message:    "stub: " + cmd.Command + " executed",
		ExecutedAt: time.Now().UTC(),
	}, nil
}

func (a *Adapter) GetDeviceHealth(_ context.Context, deviceID string) (*adapter.DeviceHealth, error) {
	if err := checkDevice("get_device_health", deviceID); err != nil {
		return nil, err
	}
	cpu, mem, disk, temp := 5.0, 25.0, 10.0, 35.0
	return &adapter.DeviceHealth{
		DeviceID:    deviceID,
		Status:      adapter.StatusOnline,
		Uptime:      72 * time.Hour,
		CPUUsage:    &cpu,
		MemoryUsage: &mem,
		DiskUsage:   &disk,
		Temperature: &temp,
		LastCheck:   time.Now().UTC(),
		Issues:      []string{},
	}, nil
}

// SubscribeToEvents registers handler. The stub never produces events.
func (a *Adapter) SubscribeToEvents(_ context.Context, deviceID string, handler adapter.EventHandler) error {
	if handler == nil {
		return faults.New(faults.KindBadRequest, "subscribe_events", "nil event handler")
	}
	if err := checkDevice("subscribe_events", deviceID); err != nil {
		return err
	}
	a.subs.Start(deviceID, handler, func(ctx context.Context, _ func(adapter.Event) bool) {
		<-ctx.Done()
	})
	return nil
}

func (a *Adapter) UnsubscribeFromEvents(deviceID string) {
	a.subs.Stop(deviceID)
}

func (a *Adapter) SyncUsers(_ context.Context, deviceID string, users []adapter.DeviceUser) (*adapter.SyncResult, error) {
	if err := checkDevice("sync_users", deviceID); err != nil {
		return nil, err
	}
	res := &adapter.SyncResult{Errors: []adapter.SyncError{}}

	a.mu.Lock()
	defer a.mu.Unlock()
	stored := a.users[deviceID]
	if stored == nil {
		stored = make(map[string]adapter.DeviceUser)
		a.users[deviceID] = stored
	}
	for _, u := range users {
		if err := adapter.ValidateUser(u); err != nil {
			res.FailureCount++
			res.Errors = append(res.Errors, adapter.SyncError{EmployeeNo: u.EmployeeNo, Error: err.Error()})
			continue
		}
		if u.UserType == "" {
			u.UserType = adapter.UserTypeNormal
		}
		stored[u.EmployeeNo] = u
		res.SuccessCount++
	}
	return res, nil
}

func (a *Adapter) FindUserByEmployeeNo(_ context.Context, deviceID, employeeNo string) (*adapter.DeviceUser, error) {
	if err := adapter.ValidateEmployeeNo(employeeNo); err != nil {
		return nil, err
	}
	if err := checkDevice("find_user", deviceID); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	u, ok := a.users[deviceID][employeeNo]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (a *Adapter) RemoveUser(_ context.Context, deviceID, employeeNo string) (bool, error) {
	if err := adapter.ValidateEmployeeNo(employeeNo); err != nil {
		return false, err
	}
	if err := checkDevice("remove_user", deviceID); err != nil {
		return false, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.users[deviceID][employeeNo]; !ok {
		return false, nil
	}
	delete(a.users[deviceID], employeeNo)
	return true, nil
}

// Users returns the employee numbers stored for deviceID, sorted.
func (a *Adapter) Users(deviceID string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.users[deviceID]))
	for emp := range a.users[deviceID] {
		out = append(out, emp)
	}
	sort.Strings(out)
	return out
}

func (a *Adapter) TestConnection(_ context.Context, deviceID string) bool {
	return deviceID != ""
}

func (a *Adapter) RebootDevice(_ context.Context, deviceID string) error {
	return checkDevice("reboot", deviceID)
}

func (a *Adapter) UpdateFirmware(ctx context.Context, deviceID string, req adapter.FirmwareRequest) (*adapter.FirmwareResult, error) {
	if req.URL == "" {
		return nil, faults.New(faults.KindBadRequest, "update_firmware", "firmware url required")
	}
	if err := checkDevice("update_firmware", deviceID); err != nil {
		return nil, err
	}

	res := &adapter.FirmwareResult{UpdateID: "stub-" + uuid.NewString()[:8], Status: adapter.FirmwareCompleted}
	if req.Backup {
		data, _ := a.BackupConfiguration(ctx, deviceID) //nolint:errcheck // never fails for a non-empty id
		res.BackupTaken = true
		res.Backup = data
	}

	a.mu.Lock()
	res.PreviousVersion = a.firmwareLocked(deviceID)
	a.firmware[deviceID] = UpgradedVersion
	a.mu.Unlock()
	res.CurrentVersion = UpgradedVersion
	return res, nil
}

var logFixtures = []adapter.LogEntry{
	{Timestamp: fixedTime, Level: adapter.LogLevelInfo, Category: "system", Message: "stub device started"},
	{Timestamp: fixedTime.Add(time.Hour), Level: adapter.LogLevelWarning, Category: "door", Message: "door held open"},
	{Timestamp: fixedTime.Add(2 * time.Hour), Level: adapter.LogLevelError, Category: "network", Message: "link down"},
}

func (a *Adapter) GetDeviceLogs(_ context.Context, deviceID string, q adapter.LogQuery) ([]adapter.LogEntry, error) {
	if !adapter.ValidLogLevel(q.Level) {
		return nil, faults.New(faults.KindBadRequest, "get_device_logs", "invalid level %q", q.Level)
	}
	if err := checkDevice("get_device_logs", deviceID); err != nil {
		return nil, err
	}
	return adapter.FilterLogs(logFixtures, q), nil
}

func (a *Adapter) ClearDeviceLogs(_ context.Context, deviceID string) error {
	return checkDevice("clear_device_logs", deviceID)
}

func (a *Adapter) BackupConfiguration(_ context.Context, deviceID string) ([]byte, error) {
	if err := checkDevice("backup_configuration", deviceID); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if data, ok := a.configs[deviceID]; ok {
		return append([]byte(nil), data...), nil
	}
	return []byte(fmt.Sprintf("STUB-CONFIG %s", deviceID)), nil
}

func (a *Adapter) RestoreConfiguration(_ context.Context, deviceID string, data []byte) error {
	if len(data) == 0 {
		return faults.New(faults.KindBadRequest, "restore_configuration", "empty configuration")
	}
	if err := checkDevice("restore_configuration", deviceID); err != nil {
		return err
	}
	a.mu.Lock()
	a.configs[deviceID] = append([]byte(nil), data...)
	a.mu.Unlock()
	return nil
}

func (a *Adapter) GetFaceData(_ context.Context, deviceID string) ([]byte, error) {
	if err := checkDevice("get_face_data", deviceID); err != nil {
		return nil, err
	}
	return []byte("STUB-FDLIB"), nil
}

// HealthCheck always succeeds.
func (a *Adapter) HealthCheck(context.Context) error { return nil }

func (a *Adapter) Close() error {
	a.subs.StopAll()
	return nil
}

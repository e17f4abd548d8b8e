package hikvision

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-access/internal/adapter"
	"github.com/nerrad567/gray-logic-access/internal/faults"
	"github.com/nerrad567/gray-logic-access/internal/isapi"
)

// maxConnectionTestTimeout caps TestConnection regardless of configuration.
const maxConnectionTestTimeout = 5 * time.Second

// SendCommand runs one command against the device. Unknown commands and
// invalid parameters fail with a faults.KindBadRequest error; a command the
// device rejects yields a result with Success false and Err set.
func (a *Adapter) SendCommand(ctx context.Context, deviceID string, cmd adapter.DeviceCommand) (*adapter.CommandResult, error) {
	if !adapter.KnownCommand(cmd.Command) {
		return nil, faults.New(faults.KindBadRequest, "send_command", "unknown command %q", cmd.Command)
	}
	t, err := a.target(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if cmd.Timeout > 0 {
		t.Timeout = cmd.Timeout
	}

	start := a.now()
	res := &adapter.CommandResult{
		CommandID:  uuid.NewString(),
		Command:    cmd.Command,
		ExecutedAt: start.UTC(),
	}

	var data any
	switch cmd.Command {
	case adapter.CommandUnlockDoor:
		err = a.doorControl(ctx, t, cmd.Parameters, isapi.DoorOpen)
	case adapter.CommandLockDoor:
		err = a.doorControl(ctx, t, cmd.Parameters, isapi.DoorClose)
	case adapter.CommandReboot:
		err = a.reboot(ctx, t, cmd.Timeout)
	case adapter.CommandUpdateFirmware:
		fwURL, _ := cmd.Parameters["url"].(string) //nolint:errcheck // checked below
		if fwURL == "" {
			return nil, faults.New(faults.KindBadRequest, "send_command", "update_firmware needs a url parameter")
		}
		backup, _ := cmd.Parameters["backup"].(bool) //nolint:errcheck // optional
		data, err = a.UpdateFirmware(ctx, deviceID, adapter.FirmwareRequest{URL: fwURL, Backup: backup})
	case adapter.CommandSyncUsers:
		res.Message = "user synchronisation runs through SyncUsers"
	case adapter.CommandCustom:
		data, err = a.custom(ctx, t, cmd.Parameters)
		if faults.KindOf(err) == faults.KindBadRequest && data == nil {
			return nil, err
		}
	}

	res.Duration = a.now().Sub(start)
	res.Data = data
	if err != nil {
		res.Success = false
		res.Message = err.Error()
		res.Err = err
		a.logger.Warn("command failed", "device_id", deviceID, "command", cmd.Command, "error", err)
		return res, nil
	}
	res.Success = true
	if res.Message == "" {
		res.Message = cmd.Command + " executed"
	}
	a.logger.Info("command executed", "device_id", deviceID, "command", cmd.Command, "duration", res.Duration)
	return res, nil
}

func (a *Adapter) doorControl(ctx context.Context, t isapi.Target, params map[string]any, action string) error {
	door, err := intParam(params, "door", 1)
	if err != nil {
		return err
	}
	if door < 1 {
		return faults.New(faults.KindBadRequest, "door_control", "invalid door %d", door)
	}
	return a.client.DoXML(ctx, t, http.MethodPost, isapi.DoorControlPath(door),
		isapi.RemoteControlDoor{Cmd: action}, nil)
}

func (a *Adapter) reboot(ctx context.Context, t isapi.Target, override time.Duration) error {
	timeout := a.cfg.RebootTimeout
	if override > 0 {
		timeout = override
	}
	_, err := a.client.Do(ctx, t, isapi.Request{
		Method:  http.MethodPost,
		Path:    isapi.PathReboot,
		Timeout: timeout,
	})
	return err
}

// customResponse is the Data of a successful custom command.
type customResponse struct {
	StatusCode int    `json:"status_code"`
	Body       string `json:"body"`
}

// custom sends an arbitrary ISAPI request. Parameter errors come back with
// nil data so SendCommand can tell them apart from device rejections.
func (a *Adapter) custom(ctx context.Context, t isapi.Target, params map[string]any) (any, error) {
	method, _ := params["method"].(string) //nolint:errcheck // defaulted below
	path, _ := params["path"].(string)     //nolint:errcheck // checked below
	body, _ := params["body"].(string)     //nolint:errcheck // optional

	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return nil, faults.New(faults.KindBadRequest, "custom_command", "unsupported method %q", method)
	}
	if !strings.HasPrefix(path, isapi.PathPrefix) || strings.Contains(path, "..") {
		return nil, faults.New(faults.KindBadRequest, "custom_command", "path must start with %s", isapi.PathPrefix)
	}

	req := isapi.Request{Method: method, Path: path}
	if p, q, ok := strings.Cut(path, "?"); ok {
		req.Path = p
		values, err := url.ParseQuery(q)
		if err != nil {
			return nil, faults.Wrap(faults.KindBadRequest, "custom_command", err)
		}
		req.Query = values
	}
	if body != "" {
		req.Body = []byte(body)
		req.ContentType = contentTypeFor(body)
	}

	resp, err := a.client.Do(ctx, t, req)
	if err != nil {
		return customResponse{}, err
	}
	return customResponse{StatusCode: resp.StatusCode, Body: string(resp.Body)}, nil
}

func contentTypeFor(body string) string {
	if strings.HasPrefix(strings.TrimSpace(body), "<") {
		return "application/xml"
	}
	return "application/json"
}

// intParam reads an integer parameter that may arrive as a JSON number or
// a string.
func intParam(params map[string]any, key string, def int) (int, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, faults.New(faults.KindBadRequest, "command_params", "%s must be an integer", key)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, faults.New(faults.KindBadRequest, "command_params", "%s must be an integer", key)
		}
		return i, nil
	default:
		return 0, faults.New(faults.KindBadRequest, "command_params", "%s has unsupported type %T", key, v)
	}
}

// TestConnection reports whether the device answers an authenticated
// deviceInfo request within the connection test timeout. It never fails.
func (a *Adapter) TestConnection(ctx context.Context, deviceID string) bool {
	t, err := a.target(ctx, deviceID)
	if err != nil {
		a.logger.Debug("connection test skipped", "device_id", deviceID, "error", err)
		return false
	}

	timeout := a.cfg.ConnectionTestTimeout
	if timeout <= 0 || timeout > maxConnectionTestTimeout {
		timeout = maxConnectionTestTimeout
	}
	_, err = a.client.Do(ctx, t, isapi.Request{
		Method:  http.MethodGet,
		Path:    isapi.PathDeviceInfo,
		Timeout: timeout,
	})
	if err != nil {
		a.logger.Debug("connection test failed", "device_id", deviceID, "error", err)
		return false
	}
	return true
}

// RebootDevice reboots the device and fails unless the device accepted.
func (a *Adapter) RebootDevice(ctx context.Context, deviceID string) error {
	res, err := a.SendCommand(ctx, deviceID, adapter.DeviceCommand{Command: adapter.CommandReboot})
	if err != nil {
		return err
	}
	if !res.Success {
		if res.Err != nil {
			return res.Err
		}
		return faults.New(faults.KindDevice, "reboot", "%s", res.Message).WithDevice(deviceID)
	}
	return nil
}

// GetDeviceHealth probes system status. A device that cannot be reached is
// reported OFFLINE with the failure in Issues.
func (a *Adapter) GetDeviceHealth(ctx context.Context, deviceID string) (*adapter.DeviceHealth, error) {
	t, err := a.target(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	h := &adapter.DeviceHealth{
		DeviceID:  deviceID,
		LastCheck: a.now().UTC(),
		Issues:    []string{},
	}

	var st isapi.DeviceStatus
	if err := a.client.GetXML(ctx, t, isapi.PathSystemStatus, &st); err != nil {
		h.Status = adapter.StatusOffline
		h.Issues = append(h.Issues, "device unreachable: "+err.Error())
		return h, nil
	}

	h.Status = adapter.StatusOnline
	h.Uptime = time.Duration(st.UpTime) * time.Second

	if len(st.CPUs) > 0 {
		cpu := st.CPUs[0].Utilization
		h.CPUUsage = &cpu
	}
	if len(st.Memory) > 0 {
		m := st.Memory[0]
		if total := m.Usage + m.Available; total > 0 {
			pct := round1(m.Usage / total * 100)
			h.MemoryUsage = &pct
			if pct > adapter.MemoryThreshold {
				h.Issues = append(h.Issues, fmt.Sprintf("High memory usage: %.1f%%", pct))
			}
		}
	}
	if len(st.Storage) > 0 {
		s := st.Storage[0]
		if s.Capacity > 0 {
			pct := round1((s.Capacity - s.FreeSpace) / s.Capacity * 100)
			h.DiskUsage = &pct
			if pct > adapter.DiskThreshold {
				h.Issues = append(h.Issues, fmt.Sprintf("High disk usage: %.1f%%", pct))
			}
		}
	}
	if len(st.Temperatures) > 0 {
		temp := st.Temperatures[0]
		for _, v := range st.Temperatures[1:] {
			temp = max(temp, v)
		}
		h.Temperature = &temp
		if temp > adapter.TemperatureThreshold {
			h.Issues = append(h.Issues, fmt.Sprintf("High temperature: %.1f°C", temp))
		}
	}
	return h, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// GetDeviceInfo reads the device identity.
func (a *Adapter) GetDeviceInfo(ctx context.Context, deviceID string) (*adapter.DeviceInfo, error) {
	t, err := a.target(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	return a.deviceInfo(ctx, t)
}

func (a *Adapter) deviceInfo(ctx context.Context, t isapi.Target) (*adapter.DeviceInfo, error) {
	var info isapi.DeviceInfo
	if err := a.client.GetXML(ctx, t, isapi.PathDeviceInfo, &info); err != nil {
		return nil, err
	}
	return &adapter.DeviceInfo{
		DeviceID:        t.DeviceID,
		Name:            info.DeviceName,
		Model:           info.Model,
		SerialNumber:    info.SerialNumber,
		FirmwareVersion: info.FirmwareVersion,
		FirmwareDate:    info.FirmwareDate,
		MACAddress:      info.MACAddress,
		DeviceType:      info.DeviceType,
	}, nil
}

// GetDeviceConfiguration reads identity and the primary network interface.
func (a *Adapter) GetDeviceConfiguration(ctx context.Context, deviceID string) (*adapter.DeviceConfiguration, error) {
	t, err := a.target(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	info, err := a.deviceInfo(ctx, t)
	if err != nil {
		return nil, err
	}

	var ni isapi.NetworkInterface
	if err := a.client.GetXML(ctx, t, isapi.NetworkInterfacePath(1), &ni); err != nil {
		return nil, err
	}
	return &adapter.DeviceConfiguration{
		Info: *info,
		Network: adapter.NetworkConfig{
			InterfaceID:    ni.ID,
			AddressingType: ni.IPAddress.AddressingType,
			IPAddress:      ni.IPAddress.IPAddress,
			SubnetMask:     ni.IPAddress.SubnetMask,
			Gateway:        ni.IPAddress.DefaultGateway,
			PrimaryDNS:     ni.IPAddress.PrimaryDNS,
		},
	}, nil
}

// UpdateDeviceConfiguration writes the IPv4 settings of one interface.
// The stored device address is not changed.
func (a *Adapter) UpdateDeviceConfiguration(ctx context.Context, deviceID string, cfg adapter.NetworkConfig) error {
	if err := validateNetwork(cfg); err != nil {
		return err
	}
	t, err := a.target(ctx, deviceID)
	if err != nil {
		return err
	}

	id := cfg.InterfaceID
	if id <= 0 {
		id = 1
	}
	addressing := cfg.AddressingType
	if addressing == "" {
		addressing = "static"
	}
	body := isapi.NetworkInterface{
		ID: id,
		IPAddress: isapi.IPAddress{
			IPVersion:      "v4",
			AddressingType: addressing,
			IPAddress:      cfg.IPAddress,
			SubnetMask:     cfg.SubnetMask,
			DefaultGateway: cfg.Gateway,
			PrimaryDNS:     cfg.PrimaryDNS,
		},
	}
	if err := a.client.DoXML(ctx, t, http.MethodPut, isapi.NetworkInterfacePath(id), body, nil); err != nil {
		return err
	}
	a.logger.Info("network configuration updated", "device_id", deviceID, "interface", id, "ip", cfg.IPAddress)
	return nil
}

func validateNetwork(cfg adapter.NetworkConfig) error {
	const op = "update_device_configuration"
	switch cfg.AddressingType {
	case "", "static", "dynamic":
	default:
		return faults.New(faults.KindBadRequest, op, "invalid addressing type %q", cfg.AddressingType)
	}
	for name, v := range map[string]string{"ip_address": cfg.IPAddress, "subnet_mask": cfg.SubnetMask} {
		if addr, err := netip.ParseAddr(v); err != nil || !addr.Is4() {
			return faults.New(faults.KindBadRequest, op, "invalid %s %q", name, v)
		}
	}
	for name, v := range map[string]string{"gateway": cfg.Gateway, "primary_dns": cfg.PrimaryDNS} {
		if v == "" {
			continue
		}
		if _, err := netip.ParseAddr(v); err != nil {
			return faults.New(faults.KindBadRequest, op, "invalid %s %q", name, v)
		}
	}
	return nil
}

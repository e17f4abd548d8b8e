package hikvision

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/adapter"
	"github.com/nerrad567/gray-logic-access/internal/faults"
	"github.com/nerrad567/gray-logic-access/internal/isapi"
)

// GetDeviceLogs searches the device log and returns normalised entries
// filtered by q, newest first.
func (a *Adapter) GetDeviceLogs(ctx context.Context, deviceID string, q adapter.LogQuery) ([]adapter.LogEntry, error) {
	if !adapter.ValidLogLevel(q.Level) {
		return nil, faults.New(faults.KindBadRequest, "get_device_logs", "invalid level %q", q.Level)
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return nil, faults.New(faults.KindBadRequest, "get_device_logs", "range ends before it starts")
	}
	t, err := a.target(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	query := isapi.JSONQuery()
	if !q.From.IsZero() {
		query.Set("startTime", q.From.UTC().Format(time.RFC3339))
	}
	if !q.To.IsZero() {
		query.Set("endTime", q.To.UTC().Format(time.RFC3339))
	}
	query.Set("maxResults", strconv.Itoa(adapter.MaxLogLimit))

	resp, err := a.client.Do(ctx, t, isapi.Request{Method: http.MethodGet, Path: isapi.PathLogSearch, Query: query})
	if err != nil {
		return nil, err
	}
	var out isapi.LogSearchResult
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, faults.Wrap(faults.KindDevice, "get_device_logs", err).WithDevice(deviceID)
	}

	entries := make([]adapter.LogEntry, 0, len(out.Search.Entries))
	for _, raw := range out.Search.Entries {
		ts := a.parseTime(raw.Time)
		if ts.IsZero() {
			a.logger.Debug("skipping log entry with bad time", "device_id", deviceID, "time", raw.Time)
			continue
		}
		category := raw.MinorType
		if category == "" {
			category = raw.MajorType
		}
		entries = append(entries, adapter.LogEntry{
			Timestamp: ts,
			Level:     logLevel(raw.MajorType),
			Category:  category,
			Message:   raw.Description,
		})
	}
	return adapter.FilterLogs(entries, q), nil
}

func logLevel(majorType string) string {
	switch strings.ToLower(majorType) {
	case "exception":
		return adapter.LogLevelError
	case "alarm":
		return adapter.LogLevelWarning
	default:
		return adapter.LogLevelInfo
	}
}

// ClearDeviceLogs erases the device log.
func (a *Adapter) ClearDeviceLogs(ctx context.Context, deviceID string) error {
	t, err := a.target(ctx, deviceID)
	if err != nil {
		return err
	}
	if _, err := a.client.Do(ctx, t, isapi.Request{Method: http.MethodPost, Path: isapi.PathLogClear}); err != nil {
		return err
	}
	a.logger.Info("device logs cleared", "device_id", deviceID)
	return nil
}

// UpdateFirmware upgrades the device from req.URL and waits for the device
// to report completion. A requested backup that fails is recorded in the
// result but does not stop the upgrade.
func (a *Adapter) UpdateFirmware(ctx context.Context, deviceID string, req adapter.FirmwareRequest) (*adapter.FirmwareResult, error) {
	const op = "update_firmware"
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		return nil, faults.New(faults.KindBadRequest, op, "firmware url must be http(s), got %q", req.URL)
	}
	t, err := a.target(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	start := a.now()
	info, err := a.deviceInfo(ctx, t)
	if err != nil {
		return nil, err
	}
	res := &adapter.FirmwareResult{PreviousVersion: info.FirmwareVersion}

	if req.Backup {
		data, err := a.backup(ctx, t)
		if err != nil {
			res.BackupError = err.Error()
			a.logger.Warn("pre-upgrade backup failed, continuing", "device_id", deviceID, "error", err)
		} else {
			res.BackupTaken = true
			res.Backup = data
		}
	}

	body, err := json.Marshal(isapi.FirmwareUpgrade{URL: req.URL})
	if err != nil {
		return nil, faults.Wrap(faults.KindBadRequest, op, err)
	}
	resp, err := a.client.Do(ctx, t, isapi.Request{
		Method:      http.MethodPost,
		Path:        isapi.PathUpdateFirmware,
		Query:       isapi.JSONQuery(),
		Body:        body,
		ContentType: "application/json",
		Timeout:     a.cfg.TransferTimeout,
	})
	if err != nil {
		return nil, err
	}
	var accepted isapi.FirmwareUpgradeAccepted
	if err := json.Unmarshal(resp.Body, &accepted); err != nil || accepted.UpdateID == "" {
		return nil, faults.New(faults.KindDevice, op, "device returned no update id").WithDevice(deviceID)
	}
	res.UpdateID = accepted.UpdateID
	a.logger.Info("firmware update started", "device_id", deviceID, "update_id", res.UpdateID,
		"from_version", res.PreviousVersion)

	status, err := a.awaitFirmware(ctx, t, accepted.UpdateID)
	res.Duration = a.now().Sub(start)
	if err != nil {
		return res, err
	}
	if status.Status == isapi.UpgradeFailed {
		res.Status = adapter.FirmwareFailed
		msg := status.ErrorMsg
		if msg == "" {
			msg = "device reported failure"
		}
		return res, faults.New(faults.KindDevice, op, "firmware update %s failed: %s", res.UpdateID, msg).WithDevice(deviceID)
	}

	res.Status = adapter.FirmwareCompleted
	if info, err := a.deviceInfo(ctx, t); err == nil {
		res.CurrentVersion = info.FirmwareVersion
	} else {
		a.logger.Warn("reading firmware version after upgrade", "device_id", deviceID, "error", err)
	}
	a.logger.Info("firmware update completed", "device_id", deviceID,
		"from_version", res.PreviousVersion, "to_version", res.CurrentVersion, "duration", res.Duration)
	return res, nil
}

// awaitFirmware polls the update status until it settles or the firmware
// deadline passes. Connection failures while the device flashes and
// restarts are expected and retried on the next tick.
func (a *Adapter) awaitFirmware(ctx context.Context, t isapi.Target, updateID string) (*isapi.FirmwareUpgradeStatus, error) {
	deadline := a.cfg.Firmware.Deadline
	if deadline <= 0 {
		deadline = 10 * time.Minute
	}
	interval := a.cfg.Firmware.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, faults.New(faults.KindTimeout, "update_firmware",
				"update %s not finished within %s", updateID, deadline).WithDevice(t.DeviceID)
		case <-ticker.C:
		}

		var st isapi.FirmwareUpgradeStatus
		err := a.client.DoJSON(ctx, t, http.MethodGet, isapi.UpdateStatusPath(updateID), nil, &st)
		switch {
		case err == nil:
			a.logger.Debug("firmware progress", "device_id", t.DeviceID, "status", st.Status, "progress", st.Progress)
			if st.Status == isapi.UpgradeCompleted || st.Status == isapi.UpgradeFailed {
				return &st, nil
			}
		case isTransient(err) && ctx.Err() == nil:
			a.logger.Debug("firmware status unavailable, retrying", "device_id", t.DeviceID, "error", err)
		case ctx.Err() != nil:
			// Reported as a timeout by the next select.
		default:
			return nil, err
		}
	}
}

// BackupConfiguration downloads the device configuration.
func (a *Adapter) BackupConfiguration(ctx context.Context, deviceID string) ([]byte, error) {
	t, err := a.target(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	return a.backup(ctx, t)
}

func (a *Adapter) backup(ctx context.Context, t isapi.Target) ([]byte, error) {
	resp, err := a.client.Do(ctx, t, isapi.Request{
		Method:  http.MethodGet,
		Path:    isapi.PathConfigurationData,
		Timeout: a.cfg.TransferTimeout,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Body) == 0 {
		return nil, faults.Wrap(faults.KindDevice, "backup_configuration", errNoDevice).WithDevice(t.DeviceID)
	}
	a.logger.Info("configuration backed up", "device_id", t.DeviceID, "bytes", len(resp.Body))
	return resp.Body, nil
}

// RestoreConfiguration uploads a configuration previously returned by
// BackupConfiguration. Devices usually reboot afterwards.
func (a *Adapter) RestoreConfiguration(ctx context.Context, deviceID string, data []byte) error {
	if len(data) == 0 {
		return faults.New(faults.KindBadRequest, "restore_configuration", "empty configuration")
	}
	t, err := a.target(ctx, deviceID)
	if err != nil {
		return err
	}
	_, err = a.client.Do(ctx, t, isapi.Request{
		Method:      http.MethodPut,
		Path:        isapi.PathConfigurationData,
		Body:        data,
		ContentType: "application/octet-stream",
		Timeout:     a.cfg.TransferTimeout,
	})
	if err != nil {
		return err
	}
	a.logger.Info("configuration restored", "device_id", deviceID, "bytes", len(data))
	return nil
}

// GetFaceData downloads the face library. The call carries the device's
// secure session; a rejected session is dropped so the next call acquires
// a fresh one.
func (a *Adapter) GetFaceData(ctx context.Context, deviceID string) ([]byte, error) {
	t, err := a.target(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	session, err := a.sessions.Get(ctx, t)
	if err != nil {
		return nil, err
	}

	query := isapi.JSONQuery()
	query.Set("security", session.SecurityToken)
	query.Set("identityKey", session.IdentityKey)

	resp, err := a.client.Do(ctx, t, isapi.Request{
		Method:  http.MethodGet,
		Path:    isapi.PathFaceLibrary,
		Query:   query,
		Timeout: a.cfg.TransferTimeout,
	})
	if err != nil {
		if errors.Is(err, faults.ErrAuthentication) {
			a.sessions.Invalidate(deviceID)
		}
		return nil, err
	}
	return resp.Body, nil
}

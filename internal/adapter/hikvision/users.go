package hikvision

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-access/internal/adapter"
	"github.com/nerrad567/gray-logic-access/internal/faults"
	"github.com/nerrad567/gray-logic-access/internal/isapi"
)

// Validity applied when a user carries none.
var (
	openValidityBegin = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	openValidityEnd   = time.Date(2037, 12, 31, 23, 59, 59, 0, time.UTC)
)

// SyncUsers creates or updates each user on the device. Failures are
// counted per user and never abort the batch. An error is returned with the
// result only when nothing succeeded and every failure was a transport or
// authentication failure, which means the device itself is unusable.
func (a *Adapter) SyncUsers(ctx context.Context, deviceID string, users []adapter.DeviceUser) (*adapter.SyncResult, error) {
	t, err := a.target(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	res := &adapter.SyncResult{Errors: []adapter.SyncError{}}
	var firstTransport error
	allTransport := true

	for _, u := range users {
		err := adapter.ValidateUser(u)
		if err == nil {
			err = a.upsertUser(ctx, t, u)
		}
		if err == nil {
			res.SuccessCount++
			continue
		}

		res.FailureCount++
		res.Errors = append(res.Errors, adapter.SyncError{EmployeeNo: u.EmployeeNo, Error: err.Error()})
		if faults.IsTransport(err) {
			if firstTransport == nil {
				firstTransport = err
			}
		} else {
			allTransport = false
		}
		a.logger.Warn("user sync failed", "device_id", deviceID, "employee_no", u.EmployeeNo, "error", err)
	}

	a.logger.Info("users synced", "device_id", deviceID,
		"success", res.SuccessCount, "failed", res.FailureCount)

	if res.SuccessCount == 0 && res.FailureCount > 0 && allTransport {
		return res, firstTransport
	}
	return res, nil
}

// upsertUser records u and falls back to modify when the device reports the
// employee already exists.
func (a *Adapter) upsertUser(ctx context.Context, t isapi.Target, u adapter.DeviceUser) error {
	body := isapi.UserInfoRecord{UserInfo: toUserInfo(u)}

	err := a.client.DoJSON(ctx, t, http.MethodPost, isapi.PathUserRecord, body, nil)
	if err == nil {
		return nil
	}
	var fe *faults.Error
	if !errors.As(err, &fe) || fe.SubStatus != isapi.SubStatusUserExists {
		return err
	}
	return a.client.DoJSON(ctx, t, http.MethodPut, isapi.PathUserModify, body, nil)
}

// FindUserByEmployeeNo returns the user, or nil when the device does not
// know the employee.
func (a *Adapter) FindUserByEmployeeNo(ctx context.Context, deviceID, employeeNo string) (*adapter.DeviceUser, error) {
	if err := adapter.ValidateEmployeeNo(employeeNo); err != nil {
		return nil, err
	}
	t, err := a.target(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	return a.searchUser(ctx, t, employeeNo)
}

func (a *Adapter) searchUser(ctx context.Context, t isapi.Target, employeeNo string) (*adapter.DeviceUser, error) {
	cond := isapi.UserInfoSearchCond{Cond: isapi.UserSearchCond{
		SearchID:       uuid.NewString(),
		MaxResults:     1,
		EmployeeNoList: []isapi.EmployeeNoRef{{EmployeeNo: employeeNo}},
	}}

	var out isapi.UserInfoSearchResult
	if err := a.client.DoJSON(ctx, t, http.MethodPost, isapi.PathUserSearch, cond, &out); err != nil {
		if errors.Is(err, faults.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	for _, info := range out.Search.UserInfo {
		if info.EmployeeNo == employeeNo {
			u := fromUserInfo(info)
			return &u, nil
		}
	}
	return nil, nil
}

// RemoveUser deletes the employee. It reports false without error when the
// device does not know the employee.
func (a *Adapter) RemoveUser(ctx context.Context, deviceID, employeeNo string) (bool, error) {
	if err := adapter.ValidateEmployeeNo(employeeNo); err != nil {
		return false, err
	}
	t, err := a.target(ctx, deviceID)
	if err != nil {
		return false, err
	}

	// Delete succeeds for unknown employees, so look first.
	existing, err := a.searchUser(ctx, t, employeeNo)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}

	cond := isapi.UserInfoDelCond{Cond: isapi.UserDelCond{
		EmployeeNoList: []isapi.EmployeeNoRef{{EmployeeNo: employeeNo}},
	}}
	if err := a.client.DoJSON(ctx, t, http.MethodPut, isapi.PathUserDelete, cond, nil); err != nil {
		if errors.Is(err, faults.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	a.logger.Info("user removed", "device_id", deviceID, "employee_no", employeeNo)
	return true, nil
}

func toUserInfo(u adapter.DeviceUser) isapi.UserInfo {
	userType := u.UserType
	if userType == "" {
		userType = adapter.UserTypeNormal
	}

	valid := isapi.UserValid{
		Enable:    true,
		BeginTime: openValidityBegin.Format(isapi.DeviceTimeLayout),
		EndTime:   openValidityEnd.Format(isapi.DeviceTimeLayout),
	}
	if v := u.Validity; v != nil {
		valid.Enable = v.Enabled
		if !v.Begin.IsZero() {
			valid.BeginTime = v.Begin.Format(isapi.DeviceTimeLayout)
		}
		if !v.End.IsZero() {
			valid.EndTime = v.End.Format(isapi.DeviceTimeLayout)
		}
	}

	return isapi.UserInfo{
		EmployeeNo: u.EmployeeNo,
		Name:       u.Name,
		UserType:   userType,
		Valid:      valid,
		DoorRight:  u.DoorRight,
	}
}

func fromUserInfo(info isapi.UserInfo) adapter.DeviceUser {
	u := adapter.DeviceUser{
		EmployeeNo: info.EmployeeNo,
		Name:       info.Name,
		UserType:   info.UserType,
		DoorRight:  info.DoorRight,
	}
	v := &adapter.Validity{Enabled: info.Valid.Enable}
	if t, err := isapi.ParseDeviceTime(info.Valid.BeginTime, time.UTC); err == nil {
		v.Begin = t
	}
	if t, err := isapi.ParseDeviceTime(info.Valid.EndTime, time.UTC); err == nil {
		v.End = t
	}
	u.Validity = v
	return u
}

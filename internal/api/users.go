package api

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-access/internal/adapter"
	"github.com/nerrad567/gray-logic-access/internal/audit"
)

// maxUsersPerRequest caps one sync batch.
const maxUsersPerRequest = 1000

type syncUsersRequest struct {
	Users []adapter.DeviceUser `json:"users"`
}

type bulkSyncRequest struct {
	Devices map[string][]adapter.DeviceUser `json:"devices"`
}

type bulkSyncOutcome struct {
	DeviceID string              `json:"device_id"`
	Result   *adapter.SyncResult `json:"result,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// handleSyncUsers creates or updates users on one device.
func (s *Server) handleSyncUsers(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req syncUsersRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Users) > maxUsersPerRequest {
		writeBadRequest(w, "too many users in one request")
		return
	}

	res, err := s.adapter.SyncUsers(r.Context(), id, req.Users)
	s.telemetry.RecordSync(r.Context(), id, actor(r), res, err)
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleBulkSyncUsers syncs a batch of users per device, several devices at
// once. Per-device failures are reported inline.
func (s *Server) handleBulkSyncUsers(w http.ResponseWriter, r *http.Request) {
	var req bulkSyncRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Devices) == 0 {
		writeBadRequest(w, "devices is required")
		return
	}
	total := 0
	for _, users := range req.Devices {
		total += len(users)
	}
	if total > maxUsersPerRequest {
		writeBadRequest(w, "too many users in one request")
		return
	}

	outcomes := adapter.SyncDevices(r.Context(), s.adapter, req.Devices, s.bulkLimit)

	out := make([]bulkSyncOutcome, 0, len(outcomes))
	for id, o := range outcomes {
		s.telemetry.RecordSync(r.Context(), id, actor(r), o.Result, o.Err)
		item := bulkSyncOutcome{DeviceID: id, Result: o.Result}
		if o.Err != nil {
			item.Error = o.Err.Error()
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	writeJSON(w, http.StatusOK, map[string]any{"devices": out})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, emp := chi.URLParam(r, "id"), chi.URLParam(r, "employeeNo")
	user, err := s.adapter.FindUserByEmployeeNo(r.Context(), id, emp)
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	if user == nil {
		writeNotFound(w, "user not found on device")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleRemoveUser(w http.ResponseWriter, r *http.Request) {
	id, emp := chi.URLParam(r, "id"), chi.URLParam(r, "employeeNo")
	removed, err := s.adapter.RemoveUser(r.Context(), id, emp)

	entry := audit.Entry{
		Action:   audit.ActionRemoveUser,
		DeviceID: id,
		Actor:    actor(r),
		Outcome:  audit.OutcomeSuccess,
		Details:  map[string]any{"employee_no": emp, "removed": removed},
	}
	if err != nil {
		entry.Outcome = audit.OutcomeFailure
		entry.Details["error"] = err.Error()
	}
	s.telemetry.Record(r.Context(), entry)

	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	if !removed {
		writeNotFound(w, "user not found on device")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-access/internal/adapter"
	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/device"
)

// createDeviceRequest is the body of POST /devices. Password is sealed
// with the vault and never stored in clear.
type createDeviceRequest struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	IPAddress string `json:"ip_address"`
	Port      int    `json:"port,omitempty"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	UseHTTPS  bool   `json:"use_https"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`
	Model     string `json:"model,omitempty"`
}

// commandRequest is the body of POST /devices/{id}/commands.
type commandRequest struct {
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
	TimeoutMs  int            `json:"timeout_ms,omitempty"`
}

// handleListDevices returns all stored devices.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.registry.ListDevices(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single stored device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.registry.GetDevice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleCreateDevice stores a new device.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Password != "" && s.vault == nil {
		writeUnavailable(w, "credential vault not configured")
		return
	}

	dev := &device.Device{
		ID:        req.ID,
		Name:      req.Name,
		IPAddress: req.IPAddress,
		Port:      req.Port,
		Username:  req.Username,
		UseHTTPS:  req.UseHTTPS,
		TimeoutMs: req.TimeoutMs,
		Model:     req.Model,
	}
	if req.Password != "" {
		sealed, err := s.vault.Encrypt(req.Password)
		if err != nil {
			s.logger.Error("sealing device password failed", "error", err)
			writeInternalError(w, "failed to store credentials")
			return
		}
		dev.EncryptedSecret = sealed
	}

	if err := s.registry.CreateDevice(r.Context(), dev); err != nil {
		s.writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dev)
}

// handleDeleteDevice stops the device's event subscription and removes it.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.adapter.UnsubscribeFromEvents(id)
	if err := s.registry.DeleteDevice(r.Context(), id); err != nil {
		s.writeFault(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDiscoverDevices scans the network.
//
// Query parameters:
//   - network: host or CIDR, repeatable (default: configured networks)
//   - port: TCP port, repeatable (default: configured ports)
func (s *Server) handleDiscoverDevices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := adapter.DiscoveryOptions{Networks: q["network"]}
	for _, p := range q["port"] {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			writeBadRequest(w, "invalid port: "+p)
			return
		}
		opts.Ports = append(opts.Ports, port)
	}

	found, err := s.adapter.DiscoverDevices(r.Context(), opts)
	outcome := audit.OutcomeSuccess
	if err != nil {
		outcome = audit.OutcomeFailure
	}
	s.telemetry.Record(r.Context(), audit.Entry{
		Action:  audit.ActionDiscovery,
		Actor:   actor(r),
		Outcome: outcome,
		Details: map[string]any{"networks": opts.Networks, "found": len(found)},
	})
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	if found == nil {
		found = []adapter.DiscoveredDevice{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": found, "count": len(found)})
}

func (s *Server) handleDeviceInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.adapter.GetDeviceInfo(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeviceConfiguration(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.adapter.GetDeviceConfiguration(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleUpdateNetwork(w http.ResponseWriter, r *http.Request) {
	var cfg adapter.NetworkConfig
	if !decodeJSON(w, r, &cfg) {
		return
	}
	if err := s.adapter.UpdateDeviceConfiguration(r.Context(), chi.URLParam(r, "id"), cfg); err != nil {
		s.writeFault(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeviceHealth probes the device and publishes the snapshot.
func (s *Server) handleDeviceHealth(w http.ResponseWriter, r *http.Request) {
	h, err := s.adapter.GetDeviceHealth(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	s.telemetry.PublishDeviceHealth(h)
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"reachable": s.adapter.TestConnection(r.Context(), id),
	})
}

// handleSendCommand runs one device command and reports the outcome to
// telemetry. A command the device rejected is a 200 with success false.
func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req commandRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}

	cmd := adapter.DeviceCommand{
		Command:    req.Command,
		Parameters: req.Parameters,
		Timeout:    time.Duration(req.TimeoutMs) * time.Millisecond,
	}
	res, err := s.adapter.SendCommand(r.Context(), id, cmd)
	s.telemetry.PublishCommandResult(r.Context(), id, actor(r), cmd, res, err)
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleDeviceLogs returns device log entries.
//
// Query parameters:
//   - from, to: RFC 3339 bounds
//   - level: minimum severity (info, warning, error)
//   - limit: maximum entries
func (s *Server) handleDeviceLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var lq adapter.LogQuery
	for name, dst := range map[string]*time.Time{"from": &lq.From, "to": &lq.To} {
		if v := q.Get(name); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeBadRequest(w, name+" must be RFC 3339")
				return
			}
			*dst = t
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "invalid limit")
			return
		}
		lq.Limit = n
	}
	lq.Level = q.Get("level")

	entries, err := s.adapter.GetDeviceLogs(r.Context(), chi.URLParam(r, "id"), lq)
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	if entries == nil {
		entries = []adapter.LogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func (s *Server) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	if err := s.adapter.ClearDeviceLogs(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeFault(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleBackup streams the device configuration backup.
func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, err := s.adapter.BackupConfiguration(r.Context(), id)
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	writeBinary(w, id+"-config.bin", data)
}

// handleRestore uploads a configuration backup. The body is the raw backup.
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "reading body: "+err.Error())
		return
	}
	if len(data) == 0 {
		writeBadRequest(w, "backup body is empty")
		return
	}

	err = s.adapter.RestoreConfiguration(r.Context(), id, data)
	entry := audit.Entry{
		Action:   audit.ActionConfigRestore,
		DeviceID: id,
		Actor:    actor(r),
		Outcome:  audit.OutcomeSuccess,
		Details:  map[string]any{"bytes": len(data)},
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
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFaceData(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, err := s.adapter.GetFaceData(r.Context(), id)
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	writeBinary(w, id+"-faces.bin", data)
}

// handleSubscribeEvents starts relaying the device's events to telemetry.
// The subscription outlives the request and ends with the server.
func (s *Server) handleSubscribeEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.adapter.SubscribeToEvents(s.ctx, id, s.telemetry.EventHandler()); err != nil {
		s.writeFault(w, r, err)
		return
	}
	s.logger.Info("event subscription started", "device_id", id, "actor", actor(r))
	writeJSON(w, http.StatusOK, map[string]any{"device_id": id, "subscribed": true})
}

func (s *Server) handleUnsubscribeEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.adapter.UnsubscribeFromEvents(id)
	writeJSON(w, http.StatusOK, map[string]any{"device_id": id, "subscribed": false})
}

func writeBinary(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(data)
}

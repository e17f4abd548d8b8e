package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-access/internal/device"
	"github.com/nerrad567/gray-logic-access/internal/faults"
	"github.com/nerrad567/gray-logic-access/internal/maintenance"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`

	// Device failures carry the taxonomy kind and vendor detail.
	Kind         string `json:"kind,omitempty"`
	VendorStatus string `json:"vendor_status,omitempty"`
	SubStatus    string `json:"sub_status,omitempty"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeForbidden      = "forbidden"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeUnavailable    = "service_unavailable"
	ErrCodeDeviceAuth     = "device_auth_failed"
	ErrCodeDeviceOffline  = "device_unreachable"
	ErrCodeDeviceTimeout  = "device_timeout"
	ErrCodeDeviceError    = "device_error"
	ErrCodeDeviceSession  = "device_session_failed"
	ErrCodePrerequisites  = "prerequisites_not_met"
	ErrCodeMethodNotAllow = "method_not_allowed"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeUnavailable writes a 503 error response for unconfigured subsystems.
func writeUnavailable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, message)
}

// faultStatus maps a failure kind onto an HTTP status and error code.
// Device-side failures are gateway errors: the API worked, the device did not.
func faultStatus(kind faults.Kind) (int, string) {
	switch kind {
	case faults.KindNotFound:
		return http.StatusNotFound, ErrCodeNotFound
	case faults.KindBadRequest:
		return http.StatusBadRequest, ErrCodeBadRequest
	case faults.KindAuthentication:
		return http.StatusBadGateway, ErrCodeDeviceAuth
	case faults.KindConnection:
		return http.StatusBadGateway, ErrCodeDeviceOffline
	case faults.KindTimeout:
		return http.StatusGatewayTimeout, ErrCodeDeviceTimeout
	case faults.KindSession:
		return http.StatusBadGateway, ErrCodeDeviceSession
	case faults.KindDevice:
		return http.StatusBadGateway, ErrCodeDeviceError
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

// writeFault writes the response for an error returned by the adapter,
// the device store or the maintenance service.
func (s *Server) writeFault(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound), errors.Is(err, maintenance.ErrTaskNotFound):
		writeNotFound(w, err.Error())
		return
	case errors.Is(err, device.ErrDeviceExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
		return
	case errors.Is(err, device.ErrInvalidDevice), errors.Is(err, device.ErrInvalidName),
		errors.Is(err, device.ErrInvalidAddress), errors.Is(err, maintenance.ErrInvalidDeviceID):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	case errors.Is(err, maintenance.ErrPrerequisitesNotMet):
		writeError(w, http.StatusConflict, ErrCodePrerequisites, err.Error())
		return
	}

	var fe *faults.Error
	if !errors.As(err, &fe) {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err,
			"request_id", r.Context().Value(ctxKeyRequestID))
		writeInternalError(w, "internal error")
		return
	}

	status, code := faultStatus(fe.Kind)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("device operation failed", "path", r.URL.Path, "device_id", fe.DeviceID,
			"kind", fe.Kind.String(), "error", err)
	}
	writeJSON(w, status, Error{
		Status:       status,
		Code:         code,
		Message:      fe.Error(),
		Kind:         fe.Kind.String(),
		VendorStatus: fe.VendorStatus,
		SubStatus:    fe.SubStatus,
	})
}

// decodeJSON decodes the request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

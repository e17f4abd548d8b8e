package isapi

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"net/http"
	"strings"

	"github.com/nerrad567/gray-logic-access/internal/faults"
)

// Vendor status codes found in ResponseStatus bodies.
const (
	StatusOK              = 1
	StatusBusy            = 2
	StatusDeviceError     = 3
	StatusInvalidOp       = 4
	StatusInvalidXML      = 5
	StatusInvalidContent  = 6
	StatusRebootRequired  = 7
	SubStatusUserExists   = "employeeNoAlreadyExist"
	SubStatusUserNotFound = "employeeNoNotExist"
)

// ResponseStatus is the vendor's structured status body, XML or JSON.
type ResponseStatus struct {
	XMLName       xml.Name `xml:"ResponseStatus" json:"-"`
	RequestURL    string   `xml:"requestURL" json:"requestURL"`
	StatusCode    int      `xml:"statusCode" json:"statusCode"`
	StatusString  string   `xml:"statusString" json:"statusString"`
	SubStatusCode string   `xml:"subStatusCode" json:"subStatusCode"`
	ErrorCode     int      `xml:"errorCode" json:"errorCode"`
	ErrorMsg      string   `xml:"errorMsg" json:"errorMsg"`
}

// OK reports whether the vendor accepted the request.
func (s *ResponseStatus) OK() bool {
	return s.StatusCode == 0 || s.StatusCode == StatusOK
}

// Reason returns the most specific human-readable text in the body.
func (s *ResponseStatus) Reason() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{s.StatusString, s.SubStatusCode, s.ErrorMsg} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ": ")
}

// ParseResponseStatus decodes body as a ResponseStatus. The second result is
// false when the body is something else.
func ParseResponseStatus(body []byte) (*ResponseStatus, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, false
	}

	var s ResponseStatus
	switch trimmed[0] {
	case '<':
		if !bytes.Contains(trimmed, []byte("<ResponseStatus")) {
			return nil, false
		}
		if err := xml.Unmarshal(trimmed, &s); err != nil {
			return nil, false
		}
	case '{':
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &probe); err != nil {
			return nil, false
		}
		if _, ok := probe["statusCode"]; !ok {
			return nil, false
		}
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, false
		}
	default:
		return nil, false
	}
	return &s, true
}

// VendorKind maps a vendor statusCode onto the error taxonomy.
func VendorKind(code int) faults.Kind {
	switch code {
	case StatusInvalidOp, StatusInvalidXML, StatusInvalidContent:
		return faults.KindBadRequest
	default:
		return faults.KindDevice
	}
}

// statusError classifies a non-2xx response, or a 2xx response whose body
// carries a failing ResponseStatus. It returns nil for a success.
func statusError(op string, t Target, code int, body []byte) error {
	vs, hasVendor := ParseResponseStatus(body)
	success := code >= 200 && code < 300
	if success && (!hasVendor || vs.OK()) {
		return nil
	}

	fe := &faults.Error{Op: op, DeviceID: t.DeviceID, StatusCode: code}
	if hasVendor {
		fe.VendorCode = vs.StatusCode
		fe.VendorStatus = vs.StatusString
		fe.SubStatus = vs.SubStatusCode
		fe.Message = vs.Reason()
	}

	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		fe.Kind = faults.KindAuthentication
	case code == http.StatusNotFound:
		fe.Kind = faults.KindNotFound
	case hasVendor:
		fe.Kind = VendorKind(vs.StatusCode)
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		fe.Kind = faults.KindBadRequest
	default:
		fe.Kind = faults.KindDevice
	}

	if fe.Message == "" {
		fe.Message = http.StatusText(code)
		if snippet := bodySnippet(body); snippet != "" {
			fe.Message += ": " + snippet
		}
	}
	return fe
}

func bodySnippet(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}

// Package isapitest provides an in-process fake ISAPI access-control device
// for tests. It enforces Digest authentication, keeps users, logs, events and
// firmware state in memory, and counts requests per endpoint.
package isapitest

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/device"
	"github.com/nerrad567/gray-logic-access/internal/isapi"
)

// Credentials accepted by every fake device.
const (
	Username = "admin"
	Password = "Passw0rd!"
	Realm    = "DS-FAKE"

	nonce  = "4e6a45304e4459344e6a4d7a4d7a67"
	opaque = "fake-opaque"

	streamBoundary = "boundary"
)

// Default identity reported by deviceInfo.
const (
	DefaultModel    = "DS-K1T671M"
	DefaultSerial   = "DS-K1T671M20260101CCWRFAKE001"
	DefaultFirmware = "V3.2.30 build 250101"
	UpgradedVersion = "V3.3.00 build 260301"
)

// DoorCommand is a recorded remote door control call.
type DoorCommand struct {
	Door int
	Cmd  string
}

// Server is a fake device. All methods are safe for concurrent use.
type Server struct {
	*httptest.Server

	mu sync.Mutex

	allowBasic bool
	delay      time.Duration
	forced     map[string]int // "METHOD path" -> status
	requests   map[string]int

	info    isapi.DeviceInfo
	status  isapi.DeviceStatus
	network isapi.NetworkInterface
	config  []byte

	users     map[string]isapi.UserInfo
	failUsers map[string]bool

	logs []isapi.LogEntryRaw

	doorCmds []DoorCommand
	reboots  int

	session    isapi.IdentityKey
	sessionSeq int
	faceData   []byte

	firmwareSeq     int
	firmwareID      string
	firmwarePolls   int
	firmwareToGo    int
	firmwareFail    bool
	firmwareURL     string
	firmwareStarted bool

	events         []isapi.AcsEventRaw
	serial         int64
	streamDisabled bool
	streams        map[chan isapi.EventNotification]struct{}
}

// New starts a fake device and registers its shutdown with t.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		forced:   make(map[string]int),
		requests: make(map[string]int),
		info: isapi.DeviceInfo{
			DeviceName:      "Fake Terminal",
			DeviceID:        "fake-0001",
			Model:           DefaultModel,
			SerialNumber:    DefaultSerial,
			MACAddress:      "44:19:b6:00:00:01",
			FirmwareVersion: DefaultFirmware,
			DeviceType:      "ACS",
		},
		network: isapi.NetworkInterface{
			ID: 1,
			IPAddress: isapi.IPAddress{
				IPVersion: "v4", AddressingType: "static",
				IPAddress: "192.168.1.64", SubnetMask: "255.255.255.0", DefaultGateway: "192.168.1.1",
			},
		},
		config:       []byte("FAKE-CONFIG-v1"),
		users:        make(map[string]isapi.UserInfo),
		failUsers:    make(map[string]bool),
		faceData:     []byte("FDLIB-BINARY"),
		firmwareToGo: 2,
		streams:      make(map[chan isapi.EventNotification]struct{}),
	}
	s.SetHealth(40, 30, 45)
	s.logs = []isapi.LogEntryRaw{
		{Time: "2026-03-01T08:00:00Z", MajorType: "Information", MinorType: "localLogin", Description: "local login"},
		{Time: "2026-03-01T09:00:00Z", MajorType: "Alarm", MinorType: "doorAbnormalOpen", Description: "door held open"},
		{Time: "2026-03-01T10:00:00Z", MajorType: "Exception", MinorType: "netBroken", Description: "network disconnected"},
		{Time: "2026-03-01T11:00:00Z", MajorType: "Operation", MinorType: "remoteOpenDoor", Description: "remote door open"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+isapi.PathDeviceInfo, s.handleDeviceInfo)
	mux.HandleFunc("GET "+isapi.PathSystemStatus, s.handleStatus)
	mux.HandleFunc("GET "+isapi.PathIdentityKey, s.handleIdentityKey)
	mux.HandleFunc("POST "+isapi.PathUserRecord, s.handleUserRecord)
	mux.HandleFunc("PUT "+isapi.PathUserModify, s.handleUserModify)
	mux.HandleFunc("POST "+isapi.PathUserSearch, s.handleUserSearch)
	mux.HandleFunc("PUT "+isapi.PathUserDelete, s.handleUserDelete)
	mux.HandleFunc("GET "+isapi.PathFaceLibrary, s.handleFaceLibrary)
	mux.HandleFunc("POST /ISAPI/AccessControl/RemoteControl/door/{n}", s.handleDoor)
	mux.HandleFunc("POST "+isapi.PathReboot, s.handleReboot)
	mux.HandleFunc("GET "+isapi.PathLogSearch, s.handleLogSearch)
	mux.HandleFunc("POST "+isapi.PathLogClear, s.handleLogClear)
	mux.HandleFunc("POST "+isapi.PathUpdateFirmware, s.handleFirmwareStart)
	mux.HandleFunc("GET /ISAPI/System/updateStatus/{id}", s.handleFirmwareStatus)
	mux.HandleFunc("GET "+isapi.PathConfigurationData, s.handleConfigGet)
	mux.HandleFunc("PUT "+isapi.PathConfigurationData, s.handleConfigPut)
	mux.HandleFunc("GET /ISAPI/System/Network/interfaces/{n}", s.handleNetworkGet)
	mux.HandleFunc("PUT /ISAPI/System/Network/interfaces/{n}", s.handleNetworkPut)
	mux.HandleFunc("GET "+isapi.PathAlertStream, s.handleAlertStream)
	mux.HandleFunc("POST "+isapi.PathAcsEvent, s.handleAcsEvent)

	s.Server = httptest.NewServer(s.middleware(mux))
	t.Cleanup(s.Close)
	return s
}

// Close stops the server, ending any open event streams first.
func (s *Server) Close() {
	s.mu.Lock()
	for ch := range s.streams {
		close(ch)
		delete(s.streams, ch)
	}
	s.mu.Unlock()
	s.Server.Close()
}

// Host returns the listen address host.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Listener.Addr().String()) //nolint:errcheck // listener address is always host:port
	return host
}

// Port returns the listen port.
func (s *Server) Port() int {
	return s.Listener.Addr().(*net.TCPAddr).Port //nolint:errcheck // httptest listens on TCP
}

// Target returns an isapi.Target for this device.
func (s *Server) Target(deviceID string) isapi.Target {
	return isapi.Target{DeviceID: deviceID, Host: s.Host(), Port: s.Port(), Username: Username, Password: Password}
}

// Credentials returns resolved credentials for this device.
func (s *Server) Credentials(deviceID string) *device.Credentials {
	return &device.Credentials{DeviceID: deviceID, Host: s.Host(), Port: s.Port(), Username: Username, Password: Password}
}

// AllowBasic makes the device accept Basic credentials without a digest challenge.
func (s *Server) AllowBasic(allow bool) {
	s.mu.Lock()
	s.allowBasic = allow
	s.mu.Unlock()
}

// SetDelay delays every response by d.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

// ForceStatus makes method+path answer with status until cleared with 0.
func (s *Server) ForceStatus(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.forced, method+" "+path)
		return
	}
	s.forced[method+" "+path] = status
}

// Requests returns how many authenticated requests reached method+path.
func (s *Server) Requests(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[method+" "+path]
}

// TotalRequests returns every request seen, including unauthenticated ones.
func (s *Server) TotalRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests["*"]
}

// SetHealth sets the memory and disk usage percentages and temperature
// reported by System/status.
func (s *Server) SetHealth(memoryPct, diskPct, tempC float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = isapi.DeviceStatus{
		CurrentTime:  "2026-03-01T12:00:00+00:00",
		UpTime:       86400,
		CPUs:         []isapi.CPUStatus{{Description: "cpu0", Utilization: 12}},
		Memory:       []isapi.MemoryStat{{Description: "ram", Usage: memoryPct * 10, Available: (100 - memoryPct) * 10}},
		Storage:      []isapi.StorageStat{{Capacity: 1000, FreeSpace: 1000 - diskPct*10}},
		Temperatures: []float64{tempC},
	}
}

// AddUser seeds a user record.
func (s *Server) AddUser(u isapi.UserInfo) {
	s.mu.Lock()
	s.users[u.EmployeeNo] = u
	s.mu.Unlock()
}

// User returns a stored user record.
func (s *Server) User(employeeNo string) (isapi.UserInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[employeeNo]
	return u, ok
}

// UserCount returns the number of stored users.
func (s *Server) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// FailUser makes Record and Modify reject employeeNo with a vendor error.
func (s *Server) FailUser(employeeNo string) {
	s.mu.Lock()
	s.failUsers[employeeNo] = true
	s.mu.Unlock()
}

// SetLogs replaces the device log.
func (s *Server) SetLogs(logs []isapi.LogEntryRaw) {
	s.mu.Lock()
	s.logs = logs
	s.mu.Unlock()
}

// LogCount returns the number of stored log lines.
func (s *Server) LogCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs)
}

// DoorCommands returns the recorded door control calls.
func (s *Server) DoorCommands() []DoorCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DoorCommand(nil), s.doorCmds...)
}

// Reboots returns how many reboots were requested.
func (s *Server) Reboots() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reboots
}

// Config returns the stored configuration blob.
func (s *Server) Config() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.config...)
}

// Network returns the stored network interface.
func (s *Server) Network() isapi.NetworkInterface {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.network
}

// FirmwareScript sets how many status polls report processing before the
// update finishes, and whether it then fails.
func (s *Server) FirmwareScript(pollsBeforeDone int, fail bool) {
	s.mu.Lock()
	s.firmwareToGo = pollsBeforeDone
	s.firmwareFail = fail
	s.mu.Unlock()
}

// FirmwareURL returns the URL passed to the last update request.
func (s *Server) FirmwareURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firmwareURL
}

// DisableStream makes alertStream answer 404 so clients fall back to polling.
func (s *Server) DisableStream(disabled bool) {
	s.mu.Lock()
	s.streamDisabled = disabled
	s.mu.Unlock()
}

// StreamCount returns the number of open alert streams.
func (s *Server) StreamCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams)
}

// PushEvent records an access event, assigns its serial number and
// delivers it to open alert streams.
func (s *Server) PushEvent(ev isapi.AcsEventRaw) isapi.AcsEventRaw {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.serial++
	ev.SerialNo = s.serial
	if ev.Time == "" {
		ev.Time = time.Now().UTC().Format(time.RFC3339)
	}
	s.events = append(s.events, ev)

	stream := ev
	stream.MajorType, stream.SubType = ev.MajorMinor()
	stream.Major, stream.Minor = 0, 0
	n := isapi.EventNotification{
		IPAddress:   s.network.IPAddress.IPAddress,
		DateTime:    ev.Time,
		EventType:   "AccessControllerEvent",
		EventState:  "active",
		Description: "Access Controller Event",
		AccessEvent: &stream,
	}
	for ch := range s.streams {
		select {
		case ch <- n:
		default:
		}
	}
	return ev
}

func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests["*"]++
		delay := s.delay
		allowBasic := s.allowBasic
		s.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		if !authorized(r, allowBasic) {
			w.Header().Set("WWW-Authenticate",
				fmt.Sprintf(`Digest qop="auth", realm="%s", nonce="%s", opaque="%s"`, Realm, nonce, opaque))
			writeStatus(w, http.StatusUnauthorized, 4, "Invalid Operation", "unAuthorized")
			return
		}

		key := r.Method + " " + r.URL.Path
		s.mu.Lock()
		s.requests[key]++
		forced := s.forced[key]
		s.mu.Unlock()

		if forced != 0 {
			writeStatus(w, forced, 3, "Device Error", "forced")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func authorized(r *http.Request, allowBasic bool) bool {
	if u, p, ok := r.BasicAuth(); ok {
		return allowBasic && u == Username && p == Password
	}
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Digest ") {
		return false
	}
	p := isapi.ParseAuthParams(strings.TrimPrefix(h, "Digest "))
	if p["username"] != Username || p["nonce"] != nonce || p["opaque"] != opaque || p["uri"] != r.URL.RequestURI() {
		return false
	}
	want := isapi.DigestResponse(Username, Password, Realm, r.Method, p["uri"], nonce, p["nc"], p["cnonce"], p["qop"])
	return p["response"] == want
}

func writeStatus(w http.ResponseWriter, httpStatus, code int, statusString, sub string) {
	writeJSON(w, httpStatus, isapi.ResponseStatus{StatusCode: code, StatusString: statusString, SubStatusCode: sub})
}

func writeOK(w http.ResponseWriter) {
	writeStatus(w, http.StatusOK, isapi.StatusOK, "OK", "ok")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test server
}

func writeXML(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/xml")
	_, _ = io.WriteString(w, xml.Header) //nolint:errcheck // test server
	_ = xml.NewEncoder(w).Encode(v) //nolint:errcheck // test server
}

func (s *Server) handleDeviceInfo(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	info := s.info
	s.mu.Unlock()
	writeXML(w, info)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	st := s.status
	s.mu.Unlock()
	writeXML(w, st)
}

func (s *Server) handleIdentityKey(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.sessionSeq++
	s.session = isapi.IdentityKey{
		Security:    fmt.Sprintf("sec-%d", s.sessionSeq),
		IdentityKey: fmt.Sprintf("key-%d", s.sessionSeq),
	}
	key := s.session
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, key)
}

// Sessions returns how many secure sessions were issued.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionSeq
}

// RotateSession invalidates the current secure session on the device side.
func (s *Server) RotateSession() {
	s.mu.Lock()
	s.session = isapi.IdentityKey{}
	s.mu.Unlock()
}

func (s *Server) handleUserRecord(w http.ResponseWriter, r *http.Request) {
	var rec isapi.UserInfoRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil || rec.UserInfo.EmployeeNo == "" {
		writeStatus(w, http.StatusBadRequest, isapi.StatusInvalidContent, "Invalid Content", "badJsonContent")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	emp := rec.UserInfo.EmployeeNo
	switch {
	case s.failUsers[emp]:
		writeStatus(w, http.StatusBadRequest, isapi.StatusInvalidContent, "Invalid Content", "badParameters")
	case hasKey(s.users, emp):
		writeStatus(w, http.StatusBadRequest, isapi.StatusInvalidContent, "Invalid Content", isapi.SubStatusUserExists)
	default:
		s.users[emp] = rec.UserInfo
		writeOK(w)
	}
}

func (s *Server) handleUserModify(w http.ResponseWriter, r *http.Request) {
	var rec isapi.UserInfoRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil || rec.UserInfo.EmployeeNo == "" {
		writeStatus(w, http.StatusBadRequest, isapi.StatusInvalidContent, "Invalid Content", "badJsonContent")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	emp := rec.UserInfo.EmployeeNo
	switch {
	case s.failUsers[emp]:
		writeStatus(w, http.StatusBadRequest, isapi.StatusInvalidContent, "Invalid Content", "badParameters")
	case !hasKey(s.users, emp):
		writeStatus(w, http.StatusBadRequest, isapi.StatusInvalidContent, "Invalid Content", isapi.SubStatusUserNotFound)
	default:
		s.users[emp] = rec.UserInfo
		writeOK(w)
	}
}

func (s *Server) handleUserSearch(w http.ResponseWriter, r *http.Request) {
	var cond isapi.UserInfoSearchCond
	if err := json.NewDecoder(r.Body).Decode(&cond); err != nil {
		writeStatus(w, http.StatusBadRequest, isapi.StatusInvalidContent, "Invalid Content", "badJsonContent")
		return
	}

	s.mu.Lock()
	var matches []isapi.UserInfo
	for _, ref := range cond.Cond.EmployeeNoList {
		if u, ok := s.users[ref.EmployeeNo]; ok {
			matches = append(matches, u)
		}
	}
	s.mu.Unlock()

	res := isapi.UserSearchResult{
		SearchID:     cond.Cond.SearchID,
		Status:       "OK",
		NumOfMatches: len(matches),
		TotalMatches: len(matches),
		UserInfo:     matches,
	}
	if len(matches) == 0 {
		res.Status = "NO MATCH"
	}
	writeJSON(w, http.StatusOK, isapi.UserInfoSearchResult{Search: res})
}

func (s *Server) handleUserDelete(w http.ResponseWriter, r *http.Request) {
	var cond isapi.UserInfoDelCond
	if err := json.NewDecoder(r.Body).Decode(&cond); err != nil {
		writeStatus(w, http.StatusBadRequest, isapi.StatusInvalidContent, "Invalid Content", "badJsonContent")
		return
	}

	s.mu.Lock()
	for _, ref := range cond.Cond.EmployeeNoList {
		delete(s.users, ref.EmployeeNo)
	}
	s.mu.Unlock()
	writeOK(w)
}

func (s *Server) handleFaceLibrary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.mu.Lock()
	valid := s.session.Security != "" &&
		q.Get("security") == s.session.Security && q.Get("identityKey") == s.session.IdentityKey
	data := append([]byte(nil), s.faceData...)
	s.mu.Unlock()

	if !valid {
		writeStatus(w, http.StatusForbidden, 4, "Invalid Operation", "invalidSession")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data) //nolint:errcheck // test server
}

func (s *Server) handleDoor(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("n"))
	var body isapi.RemoteControlDoor
	if err != nil || xml.NewDecoder(r.Body).Decode(&body) != nil ||
		(body.Cmd != isapi.DoorOpen && body.Cmd != isapi.DoorClose) {
		writeStatus(w, http.StatusBadRequest, isapi.StatusInvalidXML, "Invalid XML Content", "badXmlContent")
		return
	}

	s.mu.Lock()
	s.doorCmds = append(s.doorCmds, DoorCommand{Door: n, Cmd: body.Cmd})
	s.mu.Unlock()
	writeOK(w)
}

func (s *Server) handleReboot(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.reboots++
	s.mu.Unlock()
	writeOK(w)
}

func (s *Server) handleLogSearch(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	logs := append([]isapi.LogEntryRaw(nil), s.logs...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, isapi.LogSearchResult{Search: isapi.LogSearch{NumOfMatches: len(logs), Entries: logs}})
}

func (s *Server) handleLogClear(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.logs = nil
	s.mu.Unlock()
	writeOK(w)
}

func (s *Server) handleFirmwareStart(w http.ResponseWriter, r *http.Request) {
	var req isapi.FirmwareUpgrade
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeStatus(w, http.StatusBadRequest, isapi.StatusInvalidContent, "Invalid Content", "badParameters")
		return
	}

	s.mu.Lock()
	s.firmwareSeq++
	s.firmwareID = fmt.Sprintf("upd-%d", s.firmwareSeq)
	s.firmwareURL = req.URL
	s.firmwarePolls = 0
	s.firmwareStarted = true
	id := s.firmwareID
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, isapi.FirmwareUpgradeAccepted{UpdateID: id})
}

func (s *Server) handleFirmwareStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.firmwareStarted || r.PathValue("id") != s.firmwareID {
		writeStatus(w, http.StatusNotFound, 4, "Invalid Operation", "updateNotFound")
		return
	}

	s.firmwarePolls++
	st := isapi.FirmwareUpgradeStatus{Status: isapi.UpgradeProcessing, Progress: min(99, s.firmwarePolls*30)}
	if s.firmwarePolls > s.firmwareToGo {
		if s.firmwareFail {
			st = isapi.FirmwareUpgradeStatus{Status: isapi.UpgradeFailed, Progress: st.Progress, ErrorMsg: "checksum mismatch"}
		} else {
			st = isapi.FirmwareUpgradeStatus{Status: isapi.UpgradeCompleted, Progress: 100}
			s.info.FirmwareVersion = UpgradedVersion
		}
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleConfigGet(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	data := append([]byte(nil), s.config...)
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data) //nolint:errcheck // test server
}

func (s *Server) handleConfigPut(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil || len(data) == 0 {
		writeStatus(w, http.StatusBadRequest, isapi.StatusInvalidContent, "Invalid Content", "emptyConfiguration")
		return
	}
	s.mu.Lock()
	s.config = data
	s.mu.Unlock()
	writeOK(w)
}

func (s *Server) handleNetworkGet(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ni := s.network
	s.mu.Unlock()
	if r.PathValue("n") != strconv.Itoa(ni.ID) {
		writeStatus(w, http.StatusNotFound, 4, "Invalid Operation", "notSupport")
		return
	}
	writeXML(w, ni)
}

func (s *Server) handleNetworkPut(w http.ResponseWriter, r *http.Request) {
	var ni isapi.NetworkInterface
	if err := xml.NewDecoder(r.Body).Decode(&ni); err != nil || net.ParseIP(ni.IPAddress.IPAddress) == nil {
		writeStatus(w, http.StatusBadRequest, isapi.StatusInvalidXML, "Invalid XML Content", "badIPAddress")
		return
	}
	s.mu.Lock()
	s.network = ni
	s.mu.Unlock()
	writeOK(w)
}

func (s *Server) handleAlertStream(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.streamDisabled {
		s.mu.Unlock()
		writeStatus(w, http.StatusNotFound, 4, "Invalid Operation", "notSupport")
		return
	}
	ch := make(chan isapi.EventNotification, 64)
	s.streams[ch] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if _, ok := s.streams[ch]; ok {
			delete(s.streams, ch)
		}
		s.mu.Unlock()
	}()

	flusher, _ := w.(http.Flusher) //nolint:errcheck // httptest writers flush
	w.Header().Set("Content-Type", "multipart/mixed; boundary="+streamBoundary)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			body, _ := json.Marshal(n) //nolint:errcheck // plain struct
			fmt.Fprintf(w, "--%s\r\nContent-Type: application/json; charset=\"UTF-8\"\r\nContent-Length: %d\r\n\r\n%s\r\n",
				streamBoundary, len(body), body)
			flusher.Flush()
		}
	}
}

func (s *Server) handleAcsEvent(w http.ResponseWriter, r *http.Request) {
	var req isapi.AcsEventCondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeStatus(w, http.StatusBadRequest, isapi.StatusInvalidContent, "Invalid Content", "badJsonContent")
		return
	}
	limit := req.Cond.MaxResults
	if limit <= 0 {
		limit = 30
	}

	s.mu.Lock()
	var matched []isapi.AcsEventRaw
	for _, ev := range s.events {
		if ev.SerialNo >= req.Cond.BeginSerialNo {
			matched = append(matched, ev)
		}
	}
	s.mu.Unlock()

	total := len(matched)
	pos := min(max(req.Cond.SearchResultPosition, 0), total)
	matched = matched[pos:min(pos+limit, total)]
	status := "OK"
	switch {
	case total == 0:
		status = "NO MATCH"
	case pos+len(matched) < total:
		status = "MORE"
	}
	writeJSON(w, http.StatusOK, isapi.AcsEventResult{AcsEvent: isapi.AcsEventList{
		SearchID: req.Cond.SearchID, Status: status,
		NumOfMatches: len(matched), TotalMatches: total, InfoList: matched,
	}})
}

func hasKey[V any](m map[string]V, k string) bool {
	_, ok := m[k]
	return ok
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/adapter"
	"github.com/nerrad567/gray-logic-access/internal/adapter/factory"
	"github.com/nerrad567/gray-logic-access/internal/adapter/stub"
	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/auth"
	"github.com/nerrad567/gray-logic-access/internal/device"
	"github.com/nerrad567/gray-logic-access/internal/faults"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-access/internal/maintenance"
	"github.com/nerrad567/gray-logic-access/internal/telemetry"
	"github.com/nerrad567/gray-logic-access/internal/vault"
	"github.com/nerrad567/gray-logic-access/migrations"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

type testEnv struct {
	srv      *Server
	router   http.Handler
	registry *device.Registry
	audit    *audit.SQLiteRepository
	stub     *stub.Adapter
	vault    *vault.Vault
}

// adapterBuilder constructs the adapter under test over the shared store.
type adapterBuilder func(registry *device.Registry, v *vault.Vault, log *logging.Logger) adapter.Adapter

// testServer wires a Server over the stub adapter and a real SQLite store.
func testServer(t *testing.T) *testEnv {
	t.Helper()
	return testServerWith(t, nil)
}

// testServerWith wires a Server over the adapter from build, or the stub
// when build is nil.
func testServerWith(t *testing.T, build adapterBuilder) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "api.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	if err := registry.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}
	auditRepo := audit.NewSQLiteRepository(db.DB)

	v, err := vault.New(bytes.Repeat([]byte{7}, vault.KeySize))
	if err != nil {
		t.Fatalf("vault.New: %v", err)
	}

	log := logging.Discard()
	var active adapter.Adapter
	st := stub.New(log)
	if build != nil {
		active = build(registry, v, log)
		t.Cleanup(func() { active.Close() }) //nolint:errcheck // Test cleanup
	} else {
		active = st
	}
	fac := factory.New(config.AdapterConfig{Type: string(active.Type()), HealthCheckTimeout: time.Second}, log)
	fac.Register(active.Type(), func(config.AdapterConfig, adapter.Logger) (adapter.Adapter, error) {
		return active, nil
	})

	pub := telemetry.New(telemetry.Options{Audit: auditRepo, Logger: log})
	svc := maintenance.NewService(active, maintenance.Options{Devices: registry, Recorder: pub, Logger: log})
	if err := svc.Register(maintenance.BuiltinTasks(maintenance.NewFileBackupStore(t.TempDir(), 2))...); err != nil {
		t.Fatalf("Register: %v", err)
	}

	srv, err := New(Deps{
		Config: config.APIConfig{Host: "127.0.0.1", Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5}},
		WS:     config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: testSecret},
		},
		Logger:      log,
		Adapter:     active,
		Factory:     fac,
		Registry:    registry,
		Vault:       v,
		Maintenance: svc,
		Audit:       auditRepo,
		Telemetry:   pub,
		DB:          db.DB,
		Version:     "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { srv.Close() }) //nolint:errcheck // Test cleanup

	return &testEnv{srv: srv, router: srv.buildRouter(), registry: registry, audit: auditRepo, stub: st, vault: v}
}

func token(t *testing.T, role auth.Role) string {
	t.Helper()
	tok, err := auth.GenerateToken("tester-"+string(role), role, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return tok
}

// do performs a request as role. An empty role sends no token.
func (e *testEnv) do(t *testing.T, role auth.Role, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case []byte:
		rdr = bytes.NewReader(b)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rdr)
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, role))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}

// ─── Health & Middleware ───────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := testServer(t)

	w := env.do(t, "", http.MethodGet, "/api/v1/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	resp := decode[map[string]any](t, w)
	if resp["status"] != "ok" || resp["adapter"] != string(adapter.TypeStub) {
		t.Errorf("health = %v", resp)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID should be generated")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	env := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "my-custom-id")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "my-custom-id" {
		t.Errorf("X-Request-ID = %q, want %q", got, "my-custom-id")
	}
}

func TestCORS_Preflight(t *testing.T) {
	env := testServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/devices", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Error("missing Access-Control-Allow-Origin")
	}
}

func TestAuthorization(t *testing.T) {
	env := testServer(t)

	foreign, err := auth.GenerateToken("old", auth.RoleAdmin, "another-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		role   auth.Role
		header string
		method string
		path   string
		body   any
		want   int
	}{
		{"no token", "", "", http.MethodGet, "/api/v1/devices", nil, http.StatusUnauthorized},
		{"wrong scheme", "", "Basic abc", http.MethodGet, "/api/v1/devices", nil, http.StatusUnauthorized},
		{"foreign token", "", "Bearer " + foreign, http.MethodGet, "/api/v1/devices", nil, http.StatusUnauthorized},
		{"viewer reads", auth.RoleViewer, "", http.MethodGet, "/api/v1/devices", nil, http.StatusOK},
		{"viewer commands", auth.RoleViewer, "", http.MethodPost, "/api/v1/devices/door-1/commands", commandRequest{Command: "unlock_door"}, http.StatusForbidden},
		{"viewer syncs", auth.RoleViewer, "", http.MethodPost, "/api/v1/devices/door-1/users/sync", syncUsersRequest{}, http.StatusForbidden},
		{"viewer runs maintenance", auth.RoleViewer, "", http.MethodPost, "/api/v1/maintenance/tasks/log-cleanup/run?device=door-1", nil, http.StatusForbidden},
		{"viewer checks adapters", auth.RoleViewer, "", http.MethodPost, "/api/v1/adapter/health/check", nil, http.StatusForbidden},
		{"viewer reads audit", auth.RoleViewer, "", http.MethodGet, "/api/v1/audit", nil, http.StatusOK},
		{"admin commands", auth.RoleAdmin, "", http.MethodPost, "/api/v1/devices/door-1/commands", commandRequest{Command: "unlock_door"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w *httptest.ResponseRecorder
			if tt.header != "" {
				req := httptest.NewRequest(tt.method, tt.path, nil)
				req.Header.Set("Authorization", tt.header)
				w = httptest.NewRecorder()
				env.router.ServeHTTP(w, req)
			} else {
				w = env.do(t, tt.role, tt.method, tt.path, tt.body)
			}
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

// ─── Devices ───────────────────────────────────────────────────────

func TestDevices_Lifecycle(t *testing.T) {
	env := testServer(t)

	w := env.do(t, auth.RoleAdmin, http.MethodPost, "/api/v1/devices", createDeviceRequest{
		ID: "door-1", Name: "Front door", IPAddress: "192.0.2.50", Username: "admin", Password: "s3cret",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "s3cret") {
		t.Error("response leaks the password")
	}

	stored, err := env.registry.GetDevice(context.Background(), "door-1")
	if err != nil {
		t.Fatalf("GetDevice: %v", err)
	}
	plain, err := env.vault.Decrypt(stored.EncryptedSecret)
	if err != nil || plain != "s3cret" {
		t.Errorf("stored secret decrypts to %q, %v", plain, err)
	}

	w = env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/devices", nil)
	list := decode[map[string]any](t, w)
	if list["count"] != float64(1) {
		t.Errorf("count = %v, want 1", list["count"])
	}

	w = env.do(t, auth.RoleAdmin, http.MethodPost, "/api/v1/devices", createDeviceRequest{ID: "door-1", IPAddress: "192.0.2.51"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate create status = %d, want 409", w.Code)
	}
	w = env.do(t, auth.RoleAdmin, http.MethodPost, "/api/v1/devices", createDeviceRequest{IPAddress: "not-an-ip"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid create status = %d, want 400", w.Code)
	}
	w = env.do(t, auth.RoleAdmin, http.MethodPost, "/api/v1/devices", `{"ip_address":"192.0.2.9","colour":"red"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown field status = %d, want 400", w.Code)
	}

	w = env.do(t, auth.RoleAdmin, http.MethodDelete, "/api/v1/devices/door-1", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", w.Code)
	}
	w = env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/devices/door-1", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", w.Code)
	}
}

func TestDeviceReads(t *testing.T) {
	env := testServer(t)

	w := env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/devices/door-1/info", nil)
	info := decode[adapter.DeviceInfo](t, w)
	if w.Code != http.StatusOK || info.Model != stub.Model {
		t.Errorf("info = %d %+v", w.Code, info)
	}

	w = env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/devices/door-1/health", nil)
	h := decode[adapter.DeviceHealth](t, w)
	if h.Status != adapter.StatusOnline {
		t.Errorf("health status = %q", h.Status)
	}

	w = env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/devices/door-1/test", nil)
	if decode[map[string]any](t, w)["reachable"] != true {
		t.Errorf("test = %s", w.Body.String())
	}

	w = env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/devices/door-1/logs?level=warning", nil)
	logs := decode[map[string]any](t, w)
	if logs["count"] != float64(2) {
		t.Errorf("warning+ logs = %v, want 2", logs["count"])
	}
	w = env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/devices/door-1/logs?from=yesterday", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad from status = %d", w.Code)
	}
}

func TestDiscoverDevices(t *testing.T) {
	env := testServer(t)

	w := env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/devices/discover?network=192.0.2.0/28&port=80", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("discover status = %d: %s", w.Code, w.Body.String())
	}
	if decode[map[string]any](t, w)["count"] != float64(2) {
		t.Errorf("discover = %s", w.Body.String())
	}

	w = env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/devices/discover?port=http", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad port status = %d", w.Code)
	}

	res, err := env.audit.List(context.Background(), audit.Filter{Action: audit.ActionDiscovery})
	if err != nil || res.Total != 1 {
		t.Errorf("discovery audit = %+v, %v", res, err)
	}
}

func TestSendCommand(t *testing.T) {
	env := testServer(t)

	w := env.do(t, auth.RoleAdmin, http.MethodPost, "/api/v1/devices/door-1/commands", commandRequest{Command: adapter.CommandUnlockDoor})
	res := decode[adapter.CommandResult](t, w)
	if w.Code != http.StatusOK || !res.Success || res.CommandID == "" {
		t.Errorf("command = %d %+v", w.Code, res)
	}

	w = env.do(t, auth.RoleAdmin, http.MethodPost, "/api/v1/devices/door-1/commands", commandRequest{Command: "self_destruct"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown command status = %d", w.Code)
	}
	if e := decode[Error](t, w); e.Kind != "bad_request" {
		t.Errorf("error kind = %q", e.Kind)
	}

	w = env.do(t, auth.RoleAdmin, http.MethodPost, "/api/v1/devices/door-1/commands", commandRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty command status = %d", w.Code)
	}

	list, err := env.audit.List(context.Background(), audit.Filter{Action: audit.ActionCommand, DeviceID: "door-1"})
	if err != nil {
		t.Fatal(err)
	}
	if list.Total != 2 {
		t.Fatalf("command audit entries = %d, want 2", list.Total)
	}
	outcomes := map[string]int{}
	for _, e := range list.Entries {
		outcomes[e.Outcome]++
		if e.Actor != "tester-admin" {
			t.Errorf("actor = %q", e.Actor)
		}
	}
	if outcomes[audit.OutcomeSuccess] != 1 || outcomes[audit.OutcomeFailure] != 1 {
		t.Errorf("outcomes = %v", outcomes)
	}
}

func TestFirmwareAndConfig(t *testing.T) {
	env := testServer(t)

	w := env.do(t, auth.RoleAdmin, http.MethodPost, "/api/v1/devices/door-1/firmware",
		adapter.FirmwareRequest{URL: "http://fw.example/acs.dav", Backup: true})
	if w.Code != http.StatusAccepted {
		t.Fatalf("firmware status = %d: %s", w.Code, w.Body.String())
	}
	job := decode[firmwareJob](t, w)
	if job.ID == "" || job.DeviceID != "door-1" {
		t.Fatalf("firmware job = %+v", job)
	}
	if loc := w.Header().Get("Location"); loc != "/api/v1/devices/door-1/firmware/"+job.ID {
		t.Errorf("Location = %q", loc)
	}
	job = waitFirmwareJob(t, env, "door-1", job.ID)
	if job.Status != jobCompleted || job.Result == nil ||
		job.Result.CurrentVersion != stub.UpgradedVersion || !job.Result.BackupTaken {
		t.Errorf("finished job = %+v", job)
	}

	w = env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/devices/door-2/firmware/"+job.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("job under another device status = %d", w.Code)
	}
	w = env.do(t, auth.RoleAdmin, http.MethodPost, "/api/v1/devices/door-1/firmware", adapter.FirmwareRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("firmware without url status = %d", w.Code)
	}

	w = env.do(t, auth.RoleAdmin, http.MethodPost, "/api/v1/devices/door-1/restore", []byte("CONFIG-BLOB"))
	if w.Code != http.StatusNoContent {
		t.Fatalf("restore status = %d: %s", w.Code, w.Body.String())
	}
	w = env.do(t, auth.RoleAdmin, http.MethodGet, "/api/v1/devices/door-1/backup", nil)
	if w.Code != http.StatusOK || w.Body.String() != "CONFIG-BLOB" {
		t.Errorf("backup = %d %q", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("backup Content-Type = %q", ct)
	}

	w = env.do(t, auth.RoleAdmin, http.MethodPost, "/api/v1/devices/door-1/restore", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty restore status = %d", w.Code)
	}

	w = env.do(t, auth.RoleAdmin, http.MethodGet, "/api/v1/devices/door-1/faces", nil)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Errorf("faces = %d", w.Code)
	}

	for _, action := range []string{audit.ActionFirmwareUpdate, audit.ActionConfigRestore} {
		res, err := env.audit.List(context.Background(), audit.Filter{Action: action})
		if err != nil || res.Total != 1 {
			t.Errorf("%s audit = %+v, %v", action, res, err)
		}
	}
}

// waitFirmwareJob polls a firmware job until it leaves the running state.
func waitFirmwareJob(t *testing.T, env *testEnv, deviceID, jobID string) firmwareJob {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		w := env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/devices/"+deviceID+"/firmware/"+jobID, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("firmware job status = %d: %s", w.Code, w.Body.String())
		}
		if job := decode[firmwareJob](t, w); job.Status != jobRunning {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("firmware job %s still running", jobID)
	return firmwareJob{}
}

// ─── Users ─────────────────────────────────────────────────────────

func TestUsers(t *testing.T) {
	env := testServer(t)
	base := "/api/v1/devices/door-1/users"

	w := env.do(t, auth.RoleAdmin, http.MethodPost, base+"/sync", syncUsersRequest{Users: []adapter.DeviceUser{
		{EmployeeNo: "E100", Name: "Ada"},
		{EmployeeNo: "bad no!", Name: "Broken"},
	}})
	res := decode[adapter.SyncResult](t, w)
	if w.Code != http.StatusOK || res.SuccessCount != 1 || res.FailureCount != 1 {
		t.Fatalf("sync = %d %+v", w.Code, res)
	}

	w = env.do(t, auth.RoleViewer, http.MethodGet, base+"/E100", nil)
	if u := decode[adapter.DeviceUser](t, w); u.Name != "Ada" || u.UserType != adapter.UserTypeNormal {
		t.Errorf("user = %+v", u)
	}

	tests := []struct {
		name   string
		role   auth.Role
		method string
		path   string
		want   int
	}{
		{"remove", auth.RoleAdmin, http.MethodDelete, base + "/E100", http.StatusNoContent},
		{"get removed", auth.RoleViewer, http.MethodGet, base + "/E100", http.StatusNotFound},
		{"remove again", auth.RoleAdmin, http.MethodDelete, base + "/E100", http.StatusNotFound},
		{"malformed employee", auth.RoleViewer, http.MethodGet, base + "/a%20b", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do(t, tt.role, tt.method, tt.path, nil); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}

	list, err := env.audit.List(context.Background(), audit.Filter{Action: audit.ActionSyncUsers})
	if err != nil || list.Total != 1 || list.Entries[0].Outcome != audit.OutcomePartial {
		t.Errorf("sync audit = %+v, %v", list, err)
	}
}

func TestBulkSyncUsers(t *testing.T) {
	env := testServer(t)

	w := env.do(t, auth.RoleAdmin, http.MethodPost, "/api/v1/users/sync", bulkSyncRequest{Devices: map[string][]adapter.DeviceUser{
		"door-2": {{EmployeeNo: "E1", Name: "A"}},
		"door-1": {{EmployeeNo: "E1", Name: "A"}, {EmployeeNo: "E2", Name: "B"}},
	}})
	if w.Code != http.StatusOK {
		t.Fatalf("bulk status = %d: %s", w.Code, w.Body.String())
	}
	resp := decode[struct {
		Devices []bulkSyncOutcome `json:"devices"`
	}](t, w)
	if len(resp.Devices) != 2 || resp.Devices[0].DeviceID != "door-1" || resp.Devices[0].Result.SuccessCount != 2 {
		t.Errorf("bulk = %+v", resp.Devices)
	}
	if got := env.stub.Users("door-2"); len(got) != 1 {
		t.Errorf("door-2 users = %v", got)
	}

	if w := env.do(t, auth.RoleAdmin, http.MethodPost, "/api/v1/users/sync", bulkSyncRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("empty bulk status = %d", w.Code)
	}
}

// ─── Adapter, Maintenance, Audit ───────────────────────────────────

func TestAdapterHealth(t *testing.T) {
	env := testServer(t)

	w := env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/adapter/health", nil)
	if recs := decode[map[string]any](t, w)["records"].([]any); len(recs) != 0 {
		t.Errorf("records before check = %v", recs)
	}

	w = env.do(t, auth.RoleAdmin, http.MethodPost, "/api/v1/adapter/health/check", nil)
	resp := decode[struct {
		Records []factory.HealthRecord `json:"records"`
	}](t, w)
	if len(resp.Records) != 1 || resp.Records[0].Type != adapter.TypeStub || !resp.Records[0].Healthy {
		t.Errorf("check = %+v", resp.Records)
	}

	w = env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/adapter/recommendation", nil)
	if decode[map[string]any](t, w)["recommended"] != string(adapter.TypeStub) {
		t.Errorf("recommendation = %s", w.Body.String())
	}
}

func TestMaintenance(t *testing.T) {
	env := testServer(t)

	w := env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/maintenance/tasks", nil)
	list := decode[struct {
		Tasks []maintenance.Task `json:"tasks"`
		Count int                `json:"count"`
	}](t, w)
	if list.Count != 3 || len(list.Tasks) != 3 {
		t.Fatalf("tasks = %s", w.Body.String())
	}
	for _, task := range list.Tasks {
		if task.EstimatedDuration <= 0 {
			t.Errorf("task %s has no estimated duration", task.ID)
		}
	}

	w = env.do(t, auth.RoleAdmin, http.MethodPost, "/api/v1/maintenance/tasks/config-backup/run?device=door-1", nil)
	res := decode[maintenance.Result](t, w)
	if w.Code != http.StatusOK || !res.Success || res.Details["path"] == nil {
		t.Errorf("run = %d %+v", w.Code, res)
	}

	w = env.do(t, auth.RoleAdmin, http.MethodPost, "/api/v1/maintenance/tasks/defrag/run?device=door-1", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown task status = %d", w.Code)
	}

	// No device list means every stored device.
	for _, id := range []string{"door-a", "door-b"} {
		if err := env.registry.CreateDevice(context.Background(), &device.Device{ID: id, IPAddress: "192.0.2.60"}); err != nil {
			t.Fatal(err)
		}
	}
	w = env.do(t, auth.RoleAdmin, http.MethodPost, "/api/v1/maintenance/tasks/connectivity-check/run", nil)
	all := decode[map[string]any](t, w)
	if all["count"] != float64(2) || all["failed"] != float64(0) {
		t.Errorf("run all = %s", w.Body.String())
	}

	auditList, err := env.audit.List(context.Background(), audit.Filter{Action: audit.ActionMaintenance})
	if err != nil || auditList.Total != 3 {
		t.Errorf("maintenance audit = %+v, %v", auditList, err)
	}
}

func TestListAudit(t *testing.T) {
	env := testServer(t)
	env.do(t, auth.RoleAdmin, http.MethodPost, "/api/v1/devices/door-1/commands", commandRequest{Command: adapter.CommandLockDoor})
	env.do(t, auth.RoleAdmin, http.MethodPost, "/api/v1/devices/door-2/commands", commandRequest{Command: adapter.CommandLockDoor})

	w := env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/audit?device_id=door-2", nil)
	res := decode[audit.ListResult](t, w)
	if res.Total != 1 || res.Entries[0].DeviceID != "door-2" {
		t.Errorf("audit = %+v", res)
	}

	w = env.do(t, auth.RoleViewer, http.MethodGet, "/api/v1/audit?since=last-week", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad since status = %d", w.Code)
	}
}

func TestEventSubscription(t *testing.T) {
	env := testServer(t)

	w := env.do(t, auth.RoleAdmin, http.MethodPost, "/api/v1/devices/door-1/events/subscribe", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("subscribe status = %d", w.Code)
	}
	w = env.do(t, auth.RoleAdmin, http.MethodDelete, "/api/v1/devices/door-1/events/subscribe", nil)
	if w.Code != http.StatusOK || decode[map[string]any](t, w)["subscribed"] != false {
		t.Errorf("unsubscribe = %d %s", w.Code, w.Body.String())
	}
}

func TestMetrics(t *testing.T) {
	env := testServer(t)

	w := env.do(t, "", http.MethodGet, "/api/v1/metrics", nil)
	m := decode[SystemMetrics](t, w)
	if w.Code != http.StatusOK || m.Version != "test" || m.Adapter.Active != adapter.TypeStub || m.Database == nil {
		t.Errorf("metrics = %d %+v", w.Code, m)
	}
}

// ─── Error mapping ─────────────────────────────────────────────────

func TestWriteFault(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"not found", faults.New(faults.KindNotFound, "op", "missing"), http.StatusNotFound, ErrCodeNotFound},
		{"bad request", faults.New(faults.KindBadRequest, "op", "bad"), http.StatusBadRequest, ErrCodeBadRequest},
		{"device auth", faults.New(faults.KindAuthentication, "op", "denied"), http.StatusBadGateway, ErrCodeDeviceAuth},
		{"connection", faults.New(faults.KindConnection, "op", "refused"), http.StatusBadGateway, ErrCodeDeviceOffline},
		{"timeout", faults.New(faults.KindTimeout, "op", "slow"), http.StatusGatewayTimeout, ErrCodeDeviceTimeout},
		{"session", faults.New(faults.KindSession, "op", "expired"), http.StatusBadGateway, ErrCodeDeviceSession},
		{"device", faults.New(faults.KindDevice, "op", "busy"), http.StatusBadGateway, ErrCodeDeviceError},
		{"stored device missing", device.ErrDeviceNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"prerequisites", maintenance.ErrPrerequisitesNotMet, http.StatusConflict, ErrCodePrerequisites},
		{"plain error", errors.New("disk on fire"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			env.srv.writeFault(w, httptest.NewRequest(http.MethodGet, "/x", nil), tt.err)
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if e := decode[Error](t, w); e.Code != tt.wantErr {
				t.Errorf("code = %q, want %q", e.Code, tt.wantErr)
			}
		})
	}
}

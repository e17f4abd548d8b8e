package hikvision

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/adapter"
	"github.com/nerrad567/gray-logic-access/internal/device"
	"github.com/nerrad567/gray-logic-access/internal/faults"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-access/internal/isapi/isapitest"
)

// fakeResolver serves credentials from memory and records lookups.
type fakeResolver struct {
	mu      sync.Mutex
	creds   map[string]*device.Credentials
	devices []device.Device
	listErr error
	calls   int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{creds: make(map[string]*device.Credentials)}
}

func (r *fakeResolver) add(c *device.Credentials) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creds[c.DeviceID] = c
	r.devices = append(r.devices, device.Device{
		ID: c.DeviceID, Name: c.DeviceID, IPAddress: c.Host, Port: c.Port, Username: c.Username,
	})
}

func (r *fakeResolver) Resolve(_ context.Context, deviceID string) (*device.Credentials, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	c, ok := r.creds[deviceID]
	if !ok {
		return nil, faults.Wrap(faults.KindNotFound, "resolve_device", device.ErrDeviceNotFound).WithDevice(deviceID)
	}
	cp := *c
	return &cp, nil
}

func (r *fakeResolver) ListDevices(context.Context) ([]device.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	return append([]device.Device(nil), r.devices...), nil
}

func testConfig() config.AdapterConfig {
	cfg := config.Default().Adapter
	cfg.HTTPTimeout = 2 * time.Second
	cfg.ConnectionTestTimeout = time.Second
	cfg.Discovery.ProbeTimeout = time.Second
	cfg.Events.PollInterval = 20 * time.Millisecond
	cfg.Events.ReconnectDelay = 10 * time.Millisecond
	cfg.Firmware.PollInterval = 10 * time.Millisecond
	cfg.Firmware.Deadline = 2 * time.Second
	return cfg
}

// setup returns an adapter wired to one fake device registered as "door-1".
func setup(t *testing.T) (*Adapter, *isapitest.Server, *fakeResolver) {
	t.Helper()
	return setupWith(t, testConfig())
}

func setupWith(t *testing.T, cfg config.AdapterConfig) (*Adapter, *isapitest.Server, *fakeResolver) {
	t.Helper()
	srv := isapitest.New(t)
	res := newFakeResolver()
	res.add(srv.Credentials("door-1"))

	a := New(res, cfg, Options{})
	t.Cleanup(func() { a.Close() }) //nolint:errcheck // Test cleanup
	return a, srv, res
}

// closedPort returns a local port with nothing listening.
func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

// addDeadDevice registers "dead" pointing at a closed port.
func addDeadDevice(t *testing.T, srv *isapitest.Server, res *fakeResolver) {
	t.Helper()
	c := srv.Credentials("dead")
	c.Port = closedPort(t)
	res.add(c)
}

func wantKind(t *testing.T, err error, kind faults.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := faults.KindOf(err); got != kind {
		t.Fatalf("error kind = %s, want %s (err: %v)", got, kind, err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// eventSink collects delivered events.
type eventSink struct {
	mu     sync.Mutex
	events []adapter.Event
}

func (s *eventSink) handle(ev adapter.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *eventSink) snapshot() []adapter.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]adapter.Event(nil), s.events...)
}

var errListFailed = errors.New("store offline")

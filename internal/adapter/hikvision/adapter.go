package hikvision

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-access/internal/adapter"
	"github.com/nerrad567/gray-logic-access/internal/device"
	"github.com/nerrad567/gray-logic-access/internal/faults"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-access/internal/isapi"
)

// healthProbeDevices caps how many stored devices HealthCheck probes.
const healthProbeDevices = 3

// Resolver turns a device ID into usable credentials.
// *device.Resolver satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, deviceID string) (*device.Credentials, error)
	ListDevices(ctx context.Context) ([]device.Device, error)
}

// Dialer opens TCP connections for discovery probes.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Options carries optional collaborators.
type Options struct {
	Logger adapter.Logger

	// Transport replaces the HTTP transport of the ISAPI client.
	Transport http.RoundTripper

	// Dialer replaces the discovery dialer.
	Dialer Dialer
}

// Adapter talks ISAPI to Hikvision devices. Safe for concurrent use.
type Adapter struct {
	cfg      config.AdapterConfig
	resolver Resolver
	client   *isapi.Client
	sessions *isapi.SessionManager
	subs     *adapter.Subscriptions
	dialer   Dialer
	logger   adapter.Logger

	// now is replaceable in tests.
	now func() time.Time

	closeOnce sync.Once
}

var _ adapter.Adapter = (*Adapter)(nil)

// New creates an adapter.
func New(resolver Resolver, cfg config.AdapterConfig, opts Options) *Adapter {
	if opts.Logger == nil {
		opts.Logger = adapter.NoopLogger{}
	}
	if opts.Dialer == nil {
		opts.Dialer = &net.Dialer{}
	}

	client := isapi.NewClient(isapi.Options{
		Timeout:            cfg.HTTPTimeout,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		Transport:          opts.Transport,
		Logger:             opts.Logger,
	})

	return &Adapter{
		cfg:      cfg,
		resolver: resolver,
		client:   client,
		sessions: isapi.NewSessionManager(client, cfg.Session.TTL, cfg.Session.MaxEntries),
		subs:     adapter.NewSubscriptions(cfg.Events.BufferSize, opts.Logger),
		dialer:   opts.Dialer,
		logger:   opts.Logger,
		now:      time.Now,
	}
}

// Type returns adapter.TypeHikvision.
func (a *Adapter) Type() adapter.Type {
	return adapter.TypeHikvision
}

// Sessions exposes the secure session cache.
func (a *Adapter) Sessions() *isapi.SessionManager {
	return a.sessions
}

// Subscriptions exposes the running event subscriptions.
func (a *Adapter) Subscriptions() *adapter.Subscriptions {
	return a.subs
}

// target resolves deviceID into an ISAPI target.
func (a *Adapter) target(ctx context.Context, deviceID string) (isapi.Target, error) {
	creds, err := a.resolver.Resolve(ctx, deviceID)
	if err != nil {
		return isapi.Target{}, err
	}
	return isapi.Target{
		DeviceID: creds.DeviceID,
		Host:     creds.Host,
		Port:     creds.Port,
		Username: creds.Username,
		Password: creds.Password,
		UseHTTPS: creds.UseHTTPS,
		Timeout:  creds.Timeout,
	}, nil
}

// HealthCheck reports whether the device store is readable and, when
// devices are configured, whether at least one of the first few answers.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	devices, err := a.resolver.ListDevices(ctx)
	if err != nil {
		return faults.Wrap(faults.KindConnection, "health_check", err)
	}
	if len(devices) == 0 {
		return nil
	}
	if len(devices) > healthProbeDevices {
		devices = devices[:healthProbeDevices]
	}

	var mu sync.Mutex
	reachable := 0
	g, gctx := errgroup.WithContext(ctx)
	for _, d := range devices {
		g.Go(func() error {
			if a.TestConnection(gctx, d.ID) {
				mu.Lock()
				reachable++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // goroutines never return errors

	if reachable == 0 {
		return faults.New(faults.KindConnection, "health_check",
			"none of %d probed devices reachable", len(devices))
	}
	return nil
}

// Close stops all event subscriptions and drops cached sessions.
func (a *Adapter) Close() error {
	a.closeOnce.Do(func() {
		a.subs.StopAll()
		a.sessions.Clear()
	})
	return nil
}

// isTransient reports failures worth waiting out, such as a device that is
// rebooting.
func isTransient(err error) bool {
	k := faults.KindOf(err)
	return k == faults.KindConnection || k == faults.KindTimeout
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var errNoDevice = errors.New("device returned no data")

package hikvision

import (
	"context"
	"encoding/xml"
	"errors"
	"net"
	"net/http"
	"net/netip"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-access/internal/adapter"
	"github.com/nerrad567/gray-logic-access/internal/faults"
	"github.com/nerrad567/gray-logic-access/internal/isapi"
)

const opDiscover = "discover_devices"

// probeOutcome classifies one host:port probe.
type probeOutcome int

const (
	probeNoDevice probeOutcome = iota
	probeDevice
	probeUnreachable
)

type probeResult struct {
	outcome probeOutcome
	found   adapter.DiscoveredDevice
}

// DiscoverDevices scans the requested hosts and ranges for ISAPI devices.
//
// When the scan cannot run at all (its context fails, or every probe hits a
// network-unreachable error) the stored devices are returned as OFFLINE
// fallbacks instead. Discovery never writes to the device store.
func (a *Adapter) DiscoverDevices(ctx context.Context, opts adapter.DiscoveryOptions) ([]adapter.DiscoveredDevice, error) {
	networks := opts.Networks
	if len(networks) == 0 {
		networks = a.cfg.Discovery.Networks
	}
	ports := opts.Ports
	if len(ports) == 0 {
		ports = a.cfg.Discovery.Ports
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = a.cfg.Discovery.Concurrency
	}
	probeTimeout := opts.Timeout
	if probeTimeout <= 0 {
		probeTimeout = a.cfg.Discovery.ProbeTimeout
	}

	hosts, err := expandTargets(networks, a.cfg.Discovery.MaxHosts)
	if err != nil {
		return nil, err
	}
	if len(ports) == 0 {
		return nil, faults.New(faults.KindBadRequest, opDiscover, "no discovery ports")
	}
	for _, p := range ports {
		if p < 1 || p > 65535 {
			return nil, faults.New(faults.KindBadRequest, opDiscover, "invalid port %d", p)
		}
	}

	a.logger.Info("discovery started", "hosts", len(hosts), "ports", ports)

	var (
		mu          sync.Mutex
		found       = make(map[netip.Addr]adapter.DiscoveredDevice)
		probes      int
		unreachable int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, host := range hosts {
		for _, port := range ports {
			g.Go(func() error {
				res := a.probe(gctx, host, port, probeTimeout)

				mu.Lock()
				defer mu.Unlock()
				probes++
				switch res.outcome {
				case probeUnreachable:
					unreachable++
				case probeDevice:
					if prev, ok := found[host]; !ok || res.found.Port < prev.Port {
						found[host] = res.found
					}
				}
				return nil
			})
		}
	}
	_ = g.Wait() //nolint:errcheck // goroutines never return errors

	if ctx.Err() != nil || (probes > 0 && unreachable == probes) {
		a.logger.Warn("discovery scan failed, returning stored devices",
			"probes", probes, "unreachable", unreachable, "ctx_err", ctx.Err())
		return a.fallbackDevices(context.WithoutCancel(ctx))
	}

	out := make([]adapter.DiscoveredDevice, 0, len(found))
	addrs := make([]netip.Addr, 0, len(found))
	for addr := range found {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Less(addrs[j]) })
	for _, addr := range addrs {
		out = append(out, found[addr])
	}

	a.classify(ctx, out)
	a.logger.Info("discovery finished", "probes", probes, "found", len(out))
	return out, nil
}

// probe dials host:port and, when the port is open, asks for deviceInfo
// without credentials.
func (a *Adapter) probe(ctx context.Context, host netip.Addr, port int, timeout time.Duration) probeResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr := net.JoinHostPort(host.String(), strconv.Itoa(port))
	conn, err := a.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		if isUnreachable(err) {
			return probeResult{outcome: probeUnreachable}
		}
		return probeResult{outcome: probeNoDevice}
	}
	conn.Close()

	t := isapi.Target{Host: host.String(), Port: port, UseHTTPS: port == 443}
	resp, err := a.client.Send(ctx, t, isapi.Request{
		Method:  http.MethodGet,
		Path:    isapi.PathDeviceInfo,
		Timeout: timeout,
		NoAuth:  true,
	})
	if err != nil {
		return probeResult{outcome: probeNoDevice}
	}

	d := adapter.DiscoveredDevice{IPAddress: host.String(), Port: port, Status: adapter.StatusOnline}
	switch {
	case resp.StatusCode == http.StatusOK:
		var info isapi.DeviceInfo
		if xml.Unmarshal(resp.Body, &info) != nil || info.Model == "" {
			return probeResult{outcome: probeNoDevice}
		}
		d.Model = info.Model
		d.SerialNumber = info.SerialNumber
		d.FirmwareVersion = info.FirmwareVersion
		d.MACAddress = info.MACAddress
	case resp.StatusCode == http.StatusUnauthorized && hasAuthChallenge(resp.Header):
		d.RequiresAuth = true
	default:
		return probeResult{outcome: probeNoDevice}
	}

	a.logger.Debug("device found", "address", addr, "model", d.Model, "requires_auth", d.RequiresAuth)
	return probeResult{outcome: probeDevice, found: d}
}

func hasAuthChallenge(h http.Header) bool {
	for _, v := range h.Values("WWW-Authenticate") {
		scheme, _, _ := strings.Cut(strings.TrimSpace(v), " ")
		if strings.EqualFold(scheme, "Digest") || strings.EqualFold(scheme, "Basic") {
			return true
		}
	}
	return false
}

func isUnreachable(err error) bool {
	return errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.EHOSTUNREACH)
}

// classify marks results whose address matches a stored device.
func (a *Adapter) classify(ctx context.Context, found []adapter.DiscoveredDevice) {
	if len(found) == 0 {
		return
	}
	stored, err := a.resolver.ListDevices(ctx)
	if err != nil {
		a.logger.Warn("listing devices for discovery classification", "error", err)
		return
	}
	byIP := make(map[string]string, len(stored))
	for _, d := range stored {
		byIP[d.IPAddress] = d.ID
	}
	for i := range found {
		if id, ok := byIP[found[i].IPAddress]; ok {
			found[i].IsConfigured = true
			found[i].DeviceID = id
		}
	}
}

// fallbackDevices returns every stored device as an OFFLINE result.
func (a *Adapter) fallbackDevices(ctx context.Context) ([]adapter.DiscoveredDevice, error) {
	stored, err := a.resolver.ListDevices(ctx)
	if err != nil {
		return nil, faults.Wrap(faults.KindConnection, opDiscover, err)
	}
	out := make([]adapter.DiscoveredDevice, 0, len(stored))
	for _, d := range stored {
		out = append(out, adapter.DiscoveredDevice{
			IPAddress:    d.IPAddress,
			Port:         d.EffectivePort(),
			Model:        d.Model,
			Status:       adapter.StatusOffline,
			IsConfigured: true,
			DeviceID:     d.ID,
			Fallback:     true,
		})
	}
	return out, nil
}

// expandTargets turns host addresses and CIDR ranges into a de-duplicated
// host list. IPv4 ranges skip the network and broadcast addresses.
func expandTargets(networks []string, maxHosts int) ([]netip.Addr, error) {
	if len(networks) == 0 {
		return nil, faults.New(faults.KindBadRequest, opDiscover, "no discovery networks")
	}
	if maxHosts <= 0 {
		maxHosts = 1024
	}

	seen := make(map[netip.Addr]bool)
	var hosts []netip.Addr
	add := func(addr netip.Addr) error {
		if seen[addr] {
			return nil
		}
		if len(hosts) >= maxHosts {
			return faults.New(faults.KindBadRequest, opDiscover, "scan exceeds %d hosts", maxHosts)
		}
		seen[addr] = true
		hosts = append(hosts, addr)
		return nil
	}

	for _, raw := range networks {
		raw = strings.TrimSpace(raw)
		if !strings.Contains(raw, "/") {
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return nil, faults.New(faults.KindBadRequest, opDiscover, "invalid address %q", raw)
			}
			if err := add(addr.Unmap()); err != nil {
				return nil, err
			}
			continue
		}

		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, faults.New(faults.KindBadRequest, opDiscover, "invalid network %q", raw)
		}
		prefix = prefix.Masked()
		hostBits := prefix.Addr().BitLen() - prefix.Bits()
		if hostBits > 30 || 1<<hostBits > maxHosts+2 {
			return nil, faults.New(faults.KindBadRequest, opDiscover,
				"network %s exceeds %d hosts", prefix, maxHosts)
		}

		skipEdges := prefix.Addr().Is4() && hostBits >= 2
		first := prefix.Addr()
		for addr := first; prefix.Contains(addr); addr = addr.Next() {
			if skipEdges && (addr == first || !prefix.Contains(addr.Next())) {
				continue
			}
			if err := add(addr); err != nil {
				return nil, err
			}
		}
	}
	return hosts, nil
}

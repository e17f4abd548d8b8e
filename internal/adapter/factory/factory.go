package factory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/adapter"
	"github.com/nerrad567/gray-logic-access/internal/adapter/stub"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
)

// OverrideEnv names the variable consulted when the requested type is auto.
const OverrideEnv = "ACCESSBRIDGE_ADAPTER_OVERRIDE"

// DefaultHealthCheckTimeout bounds one candidate probe.
const DefaultHealthCheckTimeout = 5 * time.Second

// ErrHealthCheckTimeout is recorded for a candidate whose probe outlived the timeout.
var ErrHealthCheckTimeout = errors.New("Health check timeout") //nolint:staticcheck // recorded verbatim in health records

// Constructor builds one adapter variant.
type Constructor func(cfg config.AdapterConfig, logger adapter.Logger) (adapter.Adapter, error)

// HealthRecord is the most recent probe outcome for one adapter type.
type HealthRecord struct {
	Type      adapter.Type  `json:"adapter_type"`
	Healthy   bool          `json:"healthy"`
	LastCheck time.Time     `json:"last_check"`
	Latency   time.Duration `json:"latency_ns"`
	Error     string        `json:"error,omitempty"`
}

// Factory creates adapters and tracks their health. Safe for concurrent use.
type Factory struct {
	cfg    config.AdapterConfig
	logger adapter.Logger
	getenv func(string) string
	now    func() time.Time

	mu           sync.Mutex
	order        []adapter.Type
	constructors map[adapter.Type]Constructor
	instances    map[adapter.Type]adapter.Adapter

	healthMu sync.RWMutex
	records  map[adapter.Type]HealthRecord
}

// New creates a factory with the stub variant registered. Vendor variants
// are added with Register.
func New(cfg config.AdapterConfig, logger adapter.Logger) *Factory {
	if logger == nil {
		logger = adapter.NoopLogger{}
	}
	f := &Factory{
		cfg:          cfg,
		logger:       logger,
		getenv:       os.Getenv,
		now:          time.Now,
		constructors: make(map[adapter.Type]Constructor),
		instances:    make(map[adapter.Type]adapter.Adapter),
		records:      make(map[adapter.Type]HealthRecord),
	}
	f.Register(adapter.TypeStub, func(_ config.AdapterConfig, l adapter.Logger) (adapter.Adapter, error) {
		return stub.New(l), nil
	})
	return f
}

// Register adds or replaces the constructor for t. Registration order
// drives the recommendation. An adapter already built for t is closed.
func (f *Factory) Register(t adapter.Type, c Constructor) {
	f.mu.Lock()
	if _, exists := f.constructors[t]; !exists {
		f.order = append(f.order, t)
	}
	f.constructors[t] = c
	replaced := f.instances[t]
	delete(f.instances, t)
	f.mu.Unlock()

	if replaced != nil {
		if err := replaced.Close(); err != nil {
			f.logger.Warn("closing replaced adapter failed", "type", string(t), "error", err)
		}
	}
}

// Types returns the registered types in registration order.
func (f *Factory) Types() []adapter.Type {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]adapter.Type(nil), f.order...)
}

// SetEnv replaces the environment lookup. Tests use it to inject overrides.
func (f *Factory) SetEnv(getenv func(string) string) {
	f.getenv = getenv
}

func (f *Factory) healthTimeout() time.Duration {
	if f.cfg.HealthCheckTimeout > 0 {
		return f.cfg.HealthCheckTimeout
	}
	return DefaultHealthCheckTimeout
}

// CreateAdapter returns the adapter for t. It never fails: auto is resolved
// through the override variable and then the recommendation, and anything
// that cannot be built yields the stub.
func (f *Factory) CreateAdapter(ctx context.Context, t adapter.Type) adapter.Adapter {
	if t == adapter.TypeAuto {
		t = f.resolveAuto(ctx)
	}
	a, err := f.instance(t)
	if err != nil {
		f.logger.Warn("falling back to stub adapter", "requested", string(t), "error", err)
		return f.stubInstance()
	}
	return a
}

func (f *Factory) resolveAuto(ctx context.Context) adapter.Type {
	if v := f.getenv(OverrideEnv); v != "" {
		if t, ok := adapter.ParseType(v); ok && t != adapter.TypeAuto {
			f.logger.Info("adapter type overridden by environment", "type", string(t))
			return t
		}
		f.logger.Warn("ignoring invalid adapter override", "value", v)
	}

	f.healthMu.RLock()
	empty := len(f.records) == 0
	f.healthMu.RUnlock()
	if empty {
		f.CheckHealth(ctx)
	}
	return f.GetRecommendedAdapterType()
}

// CreateAdapterWithFailover probes each candidate in order and returns the
// first healthy one, else the stub. Each probe is bounded by the health
// check timeout; a probe that outlives it is recorded unhealthy and the
// next candidate is tried at once.
func (f *Factory) CreateAdapterWithFailover(ctx context.Context, candidates []adapter.Type) adapter.Adapter {
	for _, t := range candidates {
		if ctx.Err() != nil {
			break
		}
		a, err := f.instance(t)
		if err != nil {
			f.record(t, 0, err)
			continue
		}
		if rec := f.probe(ctx, t, a); rec.Healthy {
			return a
		}
	}
	f.logger.Warn("no healthy adapter candidate, using stub", "candidates", fmt.Sprint(candidates))
	return f.stubInstance()
}

// CheckHealth re-probes every registered type and returns the new records
// sorted by registration order.
func (f *Factory) CheckHealth(ctx context.Context) []HealthRecord {
	types := f.Types()
	out := make([]HealthRecord, len(types))

	var wg sync.WaitGroup
	for i, t := range types {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := f.instance(t)
			if err != nil {
				out[i] = f.record(t, 0, err)
				return
			}
			out[i] = f.probe(ctx, t, a)
		}()
	}
	wg.Wait()
	return out
}

// probe runs a.HealthCheck raced against the timeout and records the outcome.
func (f *Factory) probe(ctx context.Context, t adapter.Type, a adapter.Adapter) HealthRecord {
	timeout := f.healthTimeout()
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := f.now()
	result := make(chan error, 1)
	go func() {
		result <- a.HealthCheck(pctx)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var err error
	select {
	case err = <-result:
	case <-timer.C:
		err = ErrHealthCheckTimeout
	case <-ctx.Done():
		err = ctx.Err()
	}
	return f.record(t, f.now().Sub(start), err)
}

func (f *Factory) record(t adapter.Type, latency time.Duration, err error) HealthRecord {
	rec := HealthRecord{Type: t, Healthy: err == nil, LastCheck: f.now().UTC(), Latency: latency}
	if err != nil {
		rec.Error = err.Error()
		f.logger.Warn("adapter unhealthy", "type", string(t), "error", err)
	}
	f.healthMu.Lock()
	f.records[t] = rec
	f.healthMu.Unlock()
	return rec
}

// GetRecommendedAdapterType prefers the configured type when it is healthy,
// then the first other healthy non-stub type in registration order, then
// the stub.
func (f *Factory) GetRecommendedAdapterType() adapter.Type {
	f.healthMu.RLock()
	defer f.healthMu.RUnlock()

	configured := adapter.Type(f.cfg.Type)
	if rec, ok := f.records[configured]; ok && rec.Healthy && configured != adapter.TypeAuto {
		return configured
	}
	for _, t := range f.Types() {
		if t == adapter.TypeStub || t == configured {
			continue
		}
		if rec, ok := f.records[t]; ok && rec.Healthy {
			return t
		}
	}
	return adapter.TypeStub
}

// HealthRecords returns a snapshot of the records, sorted by type.
func (f *Factory) HealthRecords() []HealthRecord {
	f.healthMu.RLock()
	out := make([]HealthRecord, 0, len(f.records))
	for _, rec := range f.records {
		out = append(out, rec)
	}
	f.healthMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// instance returns the cached adapter for t, building it on first use.
func (f *Factory) instance(t adapter.Type) (adapter.Adapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if a, ok := f.instances[t]; ok {
		return a, nil
	}
	c, ok := f.constructors[t]
	if !ok {
		return nil, fmt.Errorf("unsupported adapter type %q", t)
	}
	a, err := c(f.cfg, f.logger)
	if err != nil {
		return nil, fmt.Errorf("constructing %s adapter: %w", t, err)
	}
	if a == nil {
		return nil, fmt.Errorf("constructing %s adapter: nil adapter", t)
	}
	f.instances[t] = a
	return a, nil
}

func (f *Factory) stubInstance() adapter.Adapter {
	a, err := f.instance(adapter.TypeStub)
	if err != nil {
		// The stub registration was replaced by a failing constructor.
		return stub.New(f.logger)
	}
	return a
}

// Close closes every adapter the factory built.
func (f *Factory) Close() error {
	f.mu.Lock()
	instances := f.instances
	f.instances = make(map[adapter.Type]adapter.Adapter)
	f.mu.Unlock()

	var errs []error
	for t, a := range instances {
		if err := a.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s adapter: %w", t, err))
		}
	}
	return errors.Join(errs...)
}

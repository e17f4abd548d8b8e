package factory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/adapter"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
)

const (
	typeVendor adapter.Type = "hikvision"
	typeOther  adapter.Type = "other"
)

// fakeAdapter implements adapter.Adapter with a scripted health check.
type fakeAdapter struct {
	adapter.Adapter
	typ    adapter.Type
	health func(ctx context.Context) error
	closed atomic.Bool
}

func (a *fakeAdapter) Type() adapter.Type { return a.typ }

func (a *fakeAdapter) HealthCheck(ctx context.Context) error {
	if a.health == nil {
		return nil
	}
	return a.health(ctx)
}

func (a *fakeAdapter) Close() error {
	a.closed.Store(true)
	return nil
}

func constructorFor(a *fakeAdapter) Constructor {
	return func(config.AdapterConfig, adapter.Logger) (adapter.Adapter, error) { return a, nil }
}

// hang blocks until the test ends, ignoring the probe context.
func hang(t *testing.T) func(context.Context) error {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	return func(context.Context) error {
		<-release
		return nil
	}
}

func failing(context.Context) error { return errors.New("device unreachable") }

func newTestFactory(configured adapter.Type) *Factory {
	cfg := config.Default().Adapter
	cfg.Type = string(configured)
	cfg.HealthCheckTimeout = 50 * time.Millisecond
	f := New(cfg, nil)
	f.SetEnv(func(string) string { return "" })
	return f
}

func recordFor(t *testing.T, f *Factory, typ adapter.Type) HealthRecord {
	t.Helper()
	for _, rec := range f.HealthRecords() {
		if rec.Type == typ {
			return rec
		}
	}
	t.Fatalf("no health record for %s", typ)
	return HealthRecord{}
}

func TestCreateAdapter_NeverFails(t *testing.T) {
	f := newTestFactory(typeVendor)
	f.Register(typeOther, func(config.AdapterConfig, adapter.Logger) (adapter.Adapter, error) {
		return nil, errors.New("boom")
	})

	tests := []struct {
		name string
		typ  adapter.Type
	}{
		{"stub", adapter.TypeStub},
		{"unknown", "unknown-type"},
		{"unregistered vendor", typeVendor},
		{"constructor error", typeOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := f.CreateAdapter(context.Background(), tt.typ)
			if a == nil || a.Type() != adapter.TypeStub {
				t.Fatalf("CreateAdapter(%q) = %v, want stub", tt.typ, a)
			}
		})
	}
}

func TestCreateAdapter_CachesInstances(t *testing.T) {
	f := newTestFactory(typeVendor)
	var built atomic.Int32
	vendor := &fakeAdapter{typ: typeVendor}
	f.Register(typeVendor, func(config.AdapterConfig, adapter.Logger) (adapter.Adapter, error) {
		built.Add(1)
		return vendor, nil
	})

	for range 3 {
		if got := f.CreateAdapter(context.Background(), typeVendor); got != vendor {
			t.Fatalf("CreateAdapter() = %v, want vendor", got)
		}
	}
	if built.Load() != 1 {
		t.Errorf("constructor called %d times, want 1", built.Load())
	}
}

func TestCreateAdapterWithFailover(t *testing.T) {
	t.Run("first healthy wins", func(t *testing.T) {
		f := newTestFactory(typeVendor)
		vendor := &fakeAdapter{typ: typeVendor, health: failing}
		other := &fakeAdapter{typ: typeOther}
		f.Register(typeVendor, constructorFor(vendor))
		f.Register(typeOther, constructorFor(other))

		got := f.CreateAdapterWithFailover(context.Background(), []adapter.Type{typeVendor, typeOther})
		if got != other {
			t.Fatalf("failover = %v, want other", got)
		}
		if rec := recordFor(t, f, typeVendor); rec.Healthy || rec.Error != "device unreachable" {
			t.Errorf("vendor record = %+v", rec)
		}
		if rec := recordFor(t, f, typeOther); !rec.Healthy {
			t.Errorf("other record = %+v", rec)
		}
	})

	t.Run("all unhealthy falls back to stub", func(t *testing.T) {
		f := newTestFactory(typeVendor)
		f.Register(typeVendor, constructorFor(&fakeAdapter{typ: typeVendor, health: failing}))

		got := f.CreateAdapterWithFailover(context.Background(), []adapter.Type{typeVendor, "unknown"})
		if got.Type() != adapter.TypeStub {
			t.Fatalf("failover = %v, want stub", got.Type())
		}
	})

	t.Run("timeout bounds each probe", func(t *testing.T) {
		f := newTestFactory(typeVendor)
		f.Register(typeVendor, constructorFor(&fakeAdapter{typ: typeVendor, health: hang(t)}))
		f.Register(typeOther, constructorFor(&fakeAdapter{typ: typeOther, health: hang(t)}))

		start := time.Now()
		got := f.CreateAdapterWithFailover(context.Background(), []adapter.Type{typeVendor, typeOther})
		elapsed := time.Since(start)

		if got.Type() != adapter.TypeStub {
			t.Fatalf("failover = %v, want stub", got.Type())
		}
		if elapsed > time.Second {
			t.Errorf("failover took %v with a 50ms timeout per candidate", elapsed)
		}
		for _, typ := range []adapter.Type{typeVendor, typeOther} {
			if rec := recordFor(t, f, typ); rec.Healthy || rec.Error != "Health check timeout" {
				t.Errorf("%s record = %+v", typ, rec)
			}
		}
	})
}

func TestCheckHealth_OverwritesRecords(t *testing.T) {
	f := newTestFactory(typeVendor)
	var mu sync.Mutex
	var healthErr error = errors.New("down")
	f.Register(typeVendor, constructorFor(&fakeAdapter{typ: typeVendor, health: func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		return healthErr
	}}))

	recs := f.CheckHealth(context.Background())
	if len(recs) != 2 || recs[0].Type != adapter.TypeStub || recs[1].Type != typeVendor {
		t.Fatalf("CheckHealth() = %+v, want stub then vendor", recs)
	}
	if recs[1].Healthy {
		t.Error("vendor should be unhealthy")
	}

	mu.Lock()
	healthErr = nil
	mu.Unlock()
	f.CheckHealth(context.Background())

	if len(f.HealthRecords()) != 2 {
		t.Errorf("records = %d, want 2 (overwritten, not appended)", len(f.HealthRecords()))
	}
	if rec := recordFor(t, f, typeVendor); !rec.Healthy || rec.Error != "" {
		t.Errorf("vendor record after recovery = %+v", rec)
	}
}

func TestGetRecommendedAdapterType(t *testing.T) {
	tests := []struct {
		name          string
		configured    adapter.Type
		vendorHealthy bool
		otherHealthy  bool
		want          adapter.Type
	}{
		{"configured healthy", typeOther, true, true, typeOther},
		{"configured unhealthy, other healthy", typeOther, true, false, typeVendor},
		{"nothing healthy but stub", typeVendor, false, false, adapter.TypeStub},
		{"auto prefers first healthy non-stub", adapter.TypeAuto, true, true, typeVendor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFactory(tt.configured)
			healthFor := func(ok bool) func(context.Context) error {
				if ok {
					return nil
				}
				return failing
			}
			f.Register(typeVendor, constructorFor(&fakeAdapter{typ: typeVendor, health: healthFor(tt.vendorHealthy)}))
			f.Register(typeOther, constructorFor(&fakeAdapter{typ: typeOther, health: healthFor(tt.otherHealthy)}))
			f.CheckHealth(context.Background())

			if got := f.GetRecommendedAdapterType(); got != tt.want {
				t.Errorf("GetRecommendedAdapterType() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCreateAdapter_Auto(t *testing.T) {
	t.Run("environment override wins", func(t *testing.T) {
		f := newTestFactory(adapter.TypeAuto)
		vendor := &fakeAdapter{typ: typeVendor}
		f.Register(typeVendor, constructorFor(vendor))
		f.SetEnv(func(key string) string {
			if key == OverrideEnv {
				return "stub"
			}
			return ""
		})

		if got := f.CreateAdapter(context.Background(), adapter.TypeAuto); got.Type() != adapter.TypeStub {
			t.Errorf("auto with override = %s, want stub", got.Type())
		}
		if len(f.HealthRecords()) != 0 {
			t.Error("override should skip health probing")
		}
	})

	t.Run("recommendation probes when no records exist", func(t *testing.T) {
		f := newTestFactory(adapter.TypeAuto)
		vendor := &fakeAdapter{typ: typeVendor}
		f.Register(typeVendor, constructorFor(vendor))

		if got := f.CreateAdapter(context.Background(), adapter.TypeAuto); got != vendor {
			t.Errorf("auto = %v, want healthy vendor", got)
		}
	})

	t.Run("invalid override is ignored", func(t *testing.T) {
		f := newTestFactory(adapter.TypeAuto)
		f.Register(typeVendor, constructorFor(&fakeAdapter{typ: typeVendor, health: failing}))
		f.SetEnv(func(string) string { return "bogus" })

		if got := f.CreateAdapter(context.Background(), adapter.TypeAuto); got.Type() != adapter.TypeStub {
			t.Errorf("auto = %s, want stub", got.Type())
		}
	})
}

func TestClose(t *testing.T) {
	f := newTestFactory(typeVendor)
	vendor := &fakeAdapter{typ: typeVendor}
	f.Register(typeVendor, constructorFor(vendor))
	f.CreateAdapter(context.Background(), typeVendor)

	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !vendor.closed.Load() {
		t.Error("vendor adapter not closed")
	}
}

func TestRegister_ClosesReplacedInstance(t *testing.T) {
	f := newTestFactory(typeVendor)
	first := &fakeAdapter{typ: typeVendor}
	f.Register(typeVendor, constructorFor(first))
	if got := f.CreateAdapter(context.Background(), typeVendor); got != first {
		t.Fatalf("CreateAdapter() = %v, want first instance", got)
	}

	second := &fakeAdapter{typ: typeVendor}
	f.Register(typeVendor, constructorFor(second))
	if !first.closed.Load() {
		t.Error("replaced adapter not closed")
	}
	if got := f.CreateAdapter(context.Background(), typeVendor); got != second {
		t.Errorf("CreateAdapter() after re-register = %v, want second instance", got)
	}
	if second.closed.Load() {
		t.Error("new adapter closed by re-registration")
	}

	// Registering a type never built closes nothing.
	other := &fakeAdapter{typ: typeOther}
	f.Register(typeOther, constructorFor(other))
	if other.closed.Load() {
		t.Error("unbuilt adapter closed")
	}
}

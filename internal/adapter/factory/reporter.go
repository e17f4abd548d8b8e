package factory

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/adapter"
)

// DefaultReportInterval is used when no interval is configured.
const DefaultReportInterval = 60 * time.Second

// HealthChecker re-probes adapters. Implemented by *Factory.
type HealthChecker interface {
	CheckHealth(ctx context.Context) []HealthRecord
}

// HealthPublisher receives each fresh health record.
// Typically implemented by the telemetry publisher.
type HealthPublisher interface {
	PublishAdapterHealth(ctx context.Context, rec HealthRecord) error
}

// ReporterConfig holds configuration for the health reporter.
type ReporterConfig struct {
	Checker   HealthChecker
	Publisher HealthPublisher

	// Interval is how often to re-probe. Default: 60 seconds.
	Interval time.Duration

	Logger adapter.Logger
}

// Reporter periodically re-probes adapters and publishes the records.
type Reporter struct {
	checker   HealthChecker
	publisher HealthPublisher
	interval  time.Duration
	logger    adapter.Logger

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewReporter creates a reporter. Call Start to begin reporting.
func NewReporter(cfg ReporterConfig) *Reporter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultReportInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = adapter.NoopLogger{}
	}
	return &Reporter{
		checker:   cfg.Checker,
		publisher: cfg.Publisher,
		interval:  cfg.Interval,
		logger:    cfg.Logger,
		done:      make(chan struct{}),
	}
}

// Start begins periodic reporting until ctx is cancelled or Stop is called.
func (r *Reporter) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.reportLoop(ctx)
}

// Stop halts reporting and waits for the loop to exit.
// Safe to call multiple times.
func (r *Reporter) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
}

// ReportNow probes and publishes once.
func (r *Reporter) ReportNow(ctx context.Context) {
	for _, rec := range r.checker.CheckHealth(ctx) {
		if r.publisher == nil {
			continue
		}
		if err := r.publisher.PublishAdapterHealth(ctx, rec); err != nil {
			r.logger.Error("failed to publish adapter health", "type", string(rec.Type), "error", err)
		}
	}
}

func (r *Reporter) reportLoop(ctx context.Context) {
	defer r.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-r.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Publish initial status
	r.ReportNow(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ReportNow(ctx)
		}
	}
}

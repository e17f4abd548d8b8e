// Package telemetry fans device events, health snapshots and operation
// outcomes out to the optional sinks: MQTT, InfluxDB, the audit log and the
// websocket hub. Every sink is best effort; a failing sink is logged and
// never blocks the others.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/adapter"
	"github.com/nerrad567/gray-logic-access/internal/adapter/factory"
	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/mqtt"
)

// Websocket channels.
const (
	ChannelDeviceEvent   = "device.event"
	ChannelDeviceHealth  = "device.health"
	ChannelAdapterHealth = "adapter.health"
	ChannelCommandResult = "command.result"
)

// InfluxDB measurements.
const (
	MeasurementDeviceHealth  = "device_health"
	MeasurementAdapterHealth = "adapter_health"
	MeasurementAccessEvent   = "access_event"
	MeasurementSyncResult    = "sync_result"
)

// auditTimeout bounds audit writes made outside a request context.
const auditTimeout = 5 * time.Second

// MQTTPublisher is the subset of *mqtt.Client the publisher needs.
type MQTTPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
	IsConnected() bool
}

// PointWriter is the subset of *influxdb.Client the publisher needs.
type PointWriter interface {
	WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, ts time.Time)
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Create(ctx context.Context, entry *audit.Entry) error
}

// Broadcaster pushes payloads to websocket subscribers.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Options wires the sinks. Nil sinks are skipped.
type Options struct {
	MQTT   MQTTPublisher
	Influx PointWriter
	Audit  AuditRecorder
	Hub    Broadcaster
	Logger adapter.Logger
}

// Publisher fans telemetry out to the configured sinks. Safe for concurrent use.
type Publisher struct {
	mqtt   MQTTPublisher
	influx PointWriter
	audit  AuditRecorder
	logger adapter.Logger

	// hub is attached after background publishers may already be running.
	hubMu sync.RWMutex
	hub   Broadcaster

	topics mqtt.Topics
	now    func() time.Time
}

var _ factory.HealthPublisher = (*Publisher)(nil)

// New creates a publisher.
func New(opts Options) *Publisher {
	if opts.Logger == nil {
		opts.Logger = adapter.NoopLogger{}
	}
	return &Publisher{
		mqtt:   opts.MQTT,
		influx: opts.Influx,
		audit:  opts.Audit,
		hub:    opts.Hub,
		logger: opts.Logger,
		now:    time.Now,
	}
}

// SetHub attaches the websocket hub once the API server exists.
func (p *Publisher) SetHub(hub Broadcaster) {
	p.hubMu.Lock()
	p.hub = hub
	p.hubMu.Unlock()
}

// EventHandler returns a handler suitable for SubscribeToEvents.
func (p *Publisher) EventHandler() adapter.EventHandler {
	return func(ev adapter.Event) {
		p.PublishEvent(ev)
	}
}

// PublishEvent forwards one device event. Events are never retained.
func (p *Publisher) PublishEvent(ev adapter.Event) {
	if err := p.publishMQTT(p.topics.DeviceEvent(ev.DeviceID, ev.Type), ev, false); err != nil {
		p.logger.Warn("failed to publish device event", "device_id", ev.DeviceID, "type", ev.Type, "error", err)
	}

	if p.influx != nil {
		fields := map[string]any{"serial_no": ev.SerialNo, "major": ev.Major, "minor": ev.Minor}
		if ev.EmployeeNo != "" {
			fields["employee_no"] = ev.EmployeeNo
		}
		ts := ev.Time
		if ts.IsZero() {
			ts = p.now()
		}
		p.influx.WritePointWithTime(MeasurementAccessEvent,
			map[string]string{"device_id": ev.DeviceID, "type": ev.Type, "source": ev.Source},
			fields, ts)
	}

	p.broadcast(ChannelDeviceEvent, ev)
}

// PublishDeviceHealth forwards a device health snapshot, retained.
func (p *Publisher) PublishDeviceHealth(h *adapter.DeviceHealth) {
	if h == nil {
		return
	}
	if err := p.publishMQTT(p.topics.DeviceHealth(h.DeviceID), h, true); err != nil {
		p.logger.Warn("failed to publish device health", "device_id", h.DeviceID, "error", err)
	}

	if p.influx != nil {
		fields := map[string]any{
			"online":         h.Status == adapter.StatusOnline,
			"uptime_seconds": int64(h.Uptime / time.Second),
			"issues":         len(h.Issues),
		}
		for name, v := range map[string]*float64{
			"cpu_usage":    h.CPUUsage,
			"memory_usage": h.MemoryUsage,
			"disk_usage":   h.DiskUsage,
			"temperature":  h.Temperature,
		} {
			if v != nil {
				fields[name] = *v
			}
		}
		p.influx.WritePointWithTime(MeasurementDeviceHealth,
			map[string]string{"device_id": h.DeviceID, "status": h.Status}, fields, h.LastCheck)
	}

	p.broadcast(ChannelDeviceHealth, h)
}

// PublishAdapterHealth forwards one adapter health record, retained. The
// returned error reports an MQTT failure so the reporter can log it.
func (p *Publisher) PublishAdapterHealth(_ context.Context, rec factory.HealthRecord) error {
	err := p.publishMQTT(p.topics.AdapterHealth(string(rec.Type)), rec, true)

	if p.influx != nil {
		p.influx.WritePointWithTime(MeasurementAdapterHealth,
			map[string]string{"adapter_type": string(rec.Type)},
			map[string]any{"healthy": rec.Healthy, "latency_ms": rec.Latency.Milliseconds()},
			rec.LastCheck)
	}

	p.broadcast(ChannelAdapterHealth, rec)
	return err
}

// CommandOutcome is the payload published for a device command.
type CommandOutcome struct {
	DeviceID string                 `json:"device_id"`
	Actor    string                 `json:"actor"`
	Result   *adapter.CommandResult `json:"result,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// PublishCommandResult forwards and audits a command outcome. err is the
// error SendCommand returned, if any.
func (p *Publisher) PublishCommandResult(ctx context.Context, deviceID, actor string, cmd adapter.DeviceCommand, res *adapter.CommandResult, err error) {
	out := CommandOutcome{DeviceID: deviceID, Actor: actor, Result: res}
	outcome := audit.OutcomeSuccess
	switch {
	case err != nil:
		out.Error = err.Error()
		outcome = audit.OutcomeFailure
	case res != nil && !res.Success:
		outcome = audit.OutcomeFailure
		if res.Err != nil {
			out.Error = res.Err.Error()
		}
	}

	if perr := p.publishMQTT(p.topics.CommandResult(deviceID), out, false); perr != nil {
		p.logger.Warn("failed to publish command result", "device_id", deviceID, "error", perr)
	}
	p.broadcast(ChannelCommandResult, out)

	details := map[string]any{"command": cmd.Command}
	if res != nil {
		details["command_id"] = res.CommandID
		details["duration_ms"] = res.Duration.Milliseconds()
		if res.Message != "" {
			details["message"] = res.Message
		}
	}
	if out.Error != "" {
		details["error"] = out.Error
	}
	p.Record(ctx, audit.Entry{Action: audit.ActionCommand, DeviceID: deviceID, Actor: actor, Outcome: outcome, Details: details})
}

// RecordSync audits and meters a user synchronisation batch.
func (p *Publisher) RecordSync(ctx context.Context, deviceID, actor string, res *adapter.SyncResult, err error) {
	details := map[string]any{}
	outcome := audit.OutcomeFailure
	if res != nil {
		details["success_count"] = res.SuccessCount
		details["failure_count"] = res.FailureCount
		if len(res.Errors) > 0 {
			details["errors"] = res.Errors
		}
		outcome = SyncOutcome(res)

		if p.influx != nil {
			p.influx.WritePointWithTime(MeasurementSyncResult,
				map[string]string{"device_id": deviceID},
				map[string]any{"success_count": res.SuccessCount, "failure_count": res.FailureCount},
				p.now())
		}
	}
	if err != nil {
		details["error"] = err.Error()
		outcome = audit.OutcomeFailure
	}
	p.Record(ctx, audit.Entry{Action: audit.ActionSyncUsers, DeviceID: deviceID, Actor: actor, Outcome: outcome, Details: details})
}

// SyncOutcome maps a sync result onto an audit outcome.
func SyncOutcome(res *adapter.SyncResult) string {
	switch {
	case res.FailureCount == 0:
		return audit.OutcomeSuccess
	case res.SuccessCount == 0:
		return audit.OutcomeFailure
	default:
		return audit.OutcomePartial
	}
}

// Record writes an audit entry. A missing actor is recorded as "system".
func (p *Publisher) Record(ctx context.Context, entry audit.Entry) {
	if p.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := p.audit.Create(ctx, &entry); err != nil {
		p.logger.Error("failed to record audit entry", "action", entry.Action, "device_id", entry.DeviceID, "error", err)
	}
}

// HealthCheck reports sinks that are configured but unavailable.
func (p *Publisher) HealthCheck() error {
	var errs []error
	if p.mqtt != nil && !p.mqtt.IsConnected() {
		errs = append(errs, fmt.Errorf("telemetry: %w", mqtt.ErrNotConnected))
	}
	return errors.Join(errs...)
}

func (p *Publisher) publishMQTT(topic string, v any, retained bool) error {
	if p.mqtt == nil {
		return nil
	}
	return p.mqtt.PublishJSON(topic, v, retained)
}

func (p *Publisher) broadcast(channel string, payload any) {
	p.hubMu.RLock()
	hub := p.hub
	p.hubMu.RUnlock()
	if hub != nil {
		hub.Broadcast(channel, payload)
	}
}

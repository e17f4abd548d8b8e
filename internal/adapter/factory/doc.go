// Package factory selects the adapter variant the rest of the system talks
// to and keeps a per-type health registry.
//
// Creation never fails: unknown types, constructor errors and unhealthy
// candidates all resolve to the stub adapter. Health records are overwritten
// on every probe and live for the lifetime of the Factory.
//
// The Reporter re-probes registered adapters on an interval and hands each
// record to a HealthPublisher, normally the telemetry publisher.
package factory

// Package hikvision implements adapter.Adapter over ISAPI for Hikvision
// access-control terminals.
//
// Every device-facing method resolves the stored device first (credentials
// come from the encrypted device store), then talks to the device through a
// shared isapi.Client. Secure sessions are cached per device by an
// isapi.SessionManager owned by the adapter.
//
// The adapter is organised by concern:
//
//   - discovery.go: network scans with a stored-device fallback
//   - users.go: user create/update, lookup and removal
//   - control.go: commands, reachability, health and network settings
//   - events.go: alertStream push with AcsEvent polling fallback
//   - maintenance.go: logs, firmware, configuration backup and face data
package hikvision

// Package api provides the ops HTTP API and websocket event stream for the
// access bridge.
//
// Every route lives under /api/v1. Health and metrics are open; everything
// else needs a bearer token minted by `accessbridge token`, and writes need
// the admin role. Device-side failures are reported as gateway errors
// (502/504) carrying the failure kind, so callers can tell a broken device
// from a broken request.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Live telemetry is delivered over /api/v1/events/ws. Clients first trade
// their bearer token for a single-use ticket at POST /api/v1/events/ticket,
// then subscribe to channels such as "device.event".
package api

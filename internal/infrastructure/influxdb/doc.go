// Package influxdb provides InfluxDB connectivity for the access bridge.
//
// It wraps influxdb-client-go v2 with connection management, batched
// non-blocking writes and health checks. The telemetry package decides
// which measurements are written; this package only ships points.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WritePoint("device_health",
//	    map[string]string{"device_id": "door-1"},
//	    map[string]any{"online": true})
package influxdb

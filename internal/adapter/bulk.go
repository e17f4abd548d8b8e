package adapter

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultBulkLimit bounds concurrent devices in SyncDevices when the caller
// passes no limit.
const DefaultBulkLimit = 4

// DeviceSyncOutcome is the SyncUsers outcome for one device.
type DeviceSyncOutcome struct {
	Result *SyncResult
	Err    error
}

// SyncDevices runs SyncUsers for each device in batches with at most limit
// devices in flight. A failing device never affects the others.
func SyncDevices(ctx context.Context, a Adapter, batches map[string][]DeviceUser, limit int) map[string]DeviceSyncOutcome {
	if limit <= 0 {
		limit = DefaultBulkLimit
	}

	var mu sync.Mutex
	out := make(map[string]DeviceSyncOutcome, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for deviceID, users := range batches {
		g.Go(func() error {
			res, err := a.SyncUsers(gctx, deviceID, users)
			mu.Lock()
			out[deviceID] = DeviceSyncOutcome{Result: res, Err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // goroutines never return errors

	return out
}

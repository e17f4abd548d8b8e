// Package device stores the connection configuration of access-control
// devices and resolves it for the adapters.
//
// # Architecture
//
//	┌──────────────┐     ┌──────────────┐     ┌──────────────┐
//	│   Resolver   │────▶│   Registry   │────▶│  Repository  │
//	│ (resolver.go)│     │ (registry.go)│     │(repository.go│
//	│              │     │              │     │              │
//	│ • validation │     │ • cache      │     │ • SQLite     │
//	│ • decryption │     │ • IP lookup  │     │ • devices tbl│
//	└──────────────┘     └──────────────┘     └──────────────┘
//
// Adapters only ever see Credentials produced by the Resolver. A missing
// device, an incomplete record or an unreadable secret is reported as a
// faults.KindNotFound error before any request reaches the network.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//	resolver := device.NewResolver(registry, v)
//	creds, err := resolver.Resolve(ctx, "door-1")
//
// # Thread Safety
//
// The Registry is safe for concurrent use. The Repository implementation
// must also be thread-safe.
package device

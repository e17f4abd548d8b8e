// Package database provides the SQLite store used by the access bridge.
//
// The store holds two things: device configurations (with their passwords
// encrypted by the credential vault) and the audit trail of device
// operations. Schema changes ship as embedded migration files.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// All queries use parameterised statements and the database file is created
// with 0600 permissions.
package database

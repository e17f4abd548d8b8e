// Package maintenance runs housekeeping tasks against access-control devices.
//
// A Task declares prerequisites (reachable, online) that are checked before
// it executes; unmet prerequisites fail with ErrPrerequisitesNotMet and the
// task body never runs. Three tasks are built in:
//
//   - connectivity-check: records reachability and health issues
//   - config-backup: stores a configuration backup through a BackupStore
//   - log-cleanup: clears the device log
//
// The Scheduler binds tasks to cron expressions with seconds support and
// fans each run out across devices with bounded concurrency.
package maintenance

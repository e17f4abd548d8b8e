package maintenance

import "errors"

// Domain-specific errors for maintenance operations.
var (
	// ErrPrerequisitesNotMet is returned when a task's prerequisites fail.
	// The task body is never executed in that case.
	ErrPrerequisitesNotMet = errors.New("maintenance: prerequisites not met")

	// ErrTaskNotFound is returned for an unknown task ID.
	ErrTaskNotFound = errors.New("maintenance: task not found")

	// ErrTaskExists is returned when registering a duplicate task ID.
	ErrTaskExists = errors.New("maintenance: task already registered")

	// ErrInvalidTask is returned when a task has no ID or no Execute function.
	ErrInvalidTask = errors.New("maintenance: invalid task")

	// ErrInvalidDeviceID is returned when a device ID cannot name a backup directory.
	ErrInvalidDeviceID = errors.New("maintenance: invalid device id")

	// ErrNoBackup is returned when a device has no stored backup.
	ErrNoBackup = errors.New("maintenance: no backup stored")
)

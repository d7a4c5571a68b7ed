package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when stopping a scheduler that is not running
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrSchedulerAlreadyRunning is returned when starting a scheduler twice
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")

	// ErrCyclePanicked is recorded when a cycle panics
	ErrCyclePanicked = errors.New("relay cycle panicked")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")
)

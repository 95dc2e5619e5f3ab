package scheduler

import "errors"

var (
	// ErrRunAlreadyInProgress is returned when a batch run holds the lock
	ErrRunAlreadyInProgress = errors.New("billing run already in progress")

	// ErrInvalidSchedule is returned for unparseable cron expressions
	ErrInvalidSchedule = errors.New("invalid cron schedule")
)

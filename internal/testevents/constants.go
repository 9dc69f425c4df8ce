package testevents

import "time"

// HTTP status code constants.
const (
	StatusOK              = 200
	StatusAccepted        = 202
	StatusTooManyRequests = 429
)

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	ProcessingPollInterval = 250 * time.Millisecond
	ProcessingDeadline     = 2 * time.Minute
	PercentageMultiplier   = 100
	TimelineSampleSize     = 10
)

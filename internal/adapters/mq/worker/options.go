package worker

import "time"

// Option applies a configuration option to a Worker.
type Option func(*Worker)

// WithFailureBackoff sets the pause after a failed apply before the
// redelivered message is fetched again.
func WithFailureBackoff(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.failureBackoff = d
		}
	}
}

// WithDeferralInterval sets how long an ambiguous episode is parked before
// resolution is retried.
func WithDeferralInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.deferralInterval = d
		}
	}
}

// WithMaxDeferrals bounds how many times an ambiguous episode is retried
// before it is dropped.
func WithMaxDeferrals(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.maxDeferrals = n
		}
	}
}

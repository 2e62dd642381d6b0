package util

import (
	"time"

	"golang.org/x/time/rate"
)

// NewRateLimiter returns a token-bucket limiter allowing perMinute operations
// per minute. The burst equals perMinute so a full minute's budget can be
// spent at once, as per-minute API quotas allow. A non-positive rate disables
// limiting.
func NewRateLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
}

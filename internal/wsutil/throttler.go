package wsutil

import (
	"time"

	"golang.org/x/time/rate"
)

// SendBurst determines the number of gateway commands that can be sent all
// at once before being throttled.
var SendBurst = 5

// NewSendLimiter returns a rate limiter for throttling outgoing commands,
// per Discord's 120-per-60s gateway limit.
func NewSendLimiter() *rate.Limiter {
	const perMinute = 120
	return rate.NewLimiter(
		rate.Every(time.Minute/(perMinute-time.Duration(SendBurst))),
		SendBurst,
	)
}

// NewDialLimiter returns a rate limiter for throttling reconnect attempts.
func NewDialLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(5*time.Second), 1)
}

// NewIdentifyLimiter returns a rate limiter for throttling per-shard IDENTIFY
// commands (5 seconds between each).
func NewIdentifyLimiter() *rate.Limiter {
	return NewDialLimiter()
}

// NewGlobalIdentifyLimiter returns a rate limiter for throttling IDENTIFY
// commands across all shards of a bot (1000 per 24 hours).
func NewGlobalIdentifyLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(24*time.Hour/1000), 1000)
}

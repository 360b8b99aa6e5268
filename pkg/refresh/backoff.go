package refresh

import (
	"math"
	"time"

	"github.com/unklstewy/skyradar/pkg/adsb"
)

// Backoff configures the delay between retries after failed fetches.
type Backoff struct {
	// Initial is the delay after the first failure (default: 5 seconds)
	Initial time.Duration

	// Max is the ceiling for computed delays (default: 5 minutes)
	Max time.Duration

	// Multiplier is the growth factor per failure (default: 2.0 for exponential)
	Multiplier float64

	// RespectRetryAfter waits at least as long as a provider's Retry-After
	RespectRetryAfter bool
}

// DefaultBackoff returns sensible defaults for retry behavior.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:           5 * time.Second,
		Max:               5 * time.Minute,
		Multiplier:        2.0,
		RespectRetryAfter: true,
	}
}

func (b Backoff) withDefaults() Backoff {
	def := DefaultBackoff()
	if b.Initial <= 0 {
		b.Initial = def.Initial
	}
	if b.Max <= 0 {
		b.Max = def.Max
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}
	if b.Multiplier < 1 {
		b.Multiplier = def.Multiplier
	}
	return b
}

// Delay returns how long to wait after the given number of consecutive
// failures, the last of which was err.
//
//	delay = min(Initial * Multiplier^(failures-1), Max)
//
// A rate limit error whose Retry-After is longer than the computed delay
// wins when RespectRetryAfter is set.
func (b Backoff) Delay(failures int, err error) time.Duration {
	if failures < 1 {
		return 0
	}
	b = b.withDefaults()

	delay := b.Max
	next := float64(b.Initial) * math.Pow(b.Multiplier, float64(failures-1))
	if !math.IsInf(next, 0) && next < float64(b.Max) {
		delay = time.Duration(next)
	}

	if b.RespectRetryAfter {
		if rle, ok := adsb.IsRateLimitError(err); ok && rle.RetryAfter > delay {
			delay = rle.RetryAfter
		}
	}
	return delay
}

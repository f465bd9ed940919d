package hubclient

import "time"

type BackoffMode int

const (
	// BackoffLinear waits attempt*Base.
	BackoffLinear BackoffMode = iota
	// BackoffExponential waits Base*2^(attempt-1).
	BackoffExponential
)

const (
	DefaultBaseDelay = time.Second
	DefaultMaxDelay  = 30 * time.Second
)

// Backoff computes the wait before reconnect attempt n (1-based).
type Backoff struct {
	Mode BackoffMode
	// Base is the unit delay. Zero means DefaultBaseDelay.
	Base time.Duration
	// Max caps any delay. Zero means no cap for linear and
	// DefaultMaxDelay for exponential.
	Max time.Duration
}

func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := b.Base
	if base <= 0 {
		base = DefaultBaseDelay
	}

	var d time.Duration
	switch b.Mode {
	case BackoffExponential:
		limit := b.Max
		if limit <= 0 {
			limit = DefaultMaxDelay
		}
		d = base
		for i := 1; i < attempt && d < limit; i++ {
			d *= 2
		}
		if d > limit {
			d = limit
		}
		return d
	default:
		d = time.Duration(attempt) * base
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

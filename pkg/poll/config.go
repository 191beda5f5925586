package poll

import (
	"fmt"
	"math"
	"time"
)

// Config holds the attempt budget and backoff base for a single Poll call.
// Build it with NewConfig; the zero value is invalid.
type Config struct {
	// MaxAttempts is the number of probe invocations allowed, at least 1.
	MaxAttempts int
	// BaseDelay is the delay before attempt 2. Each later delay doubles.
	BaseDelay time.Duration
}

// DefaultConfig matches the document indexing wait used against Dify:
// seven attempts, 1s, 2s, 4s ... 32s apart.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 7,
		BaseDelay:   time.Second,
	}
}

// NewConfig validates and returns a Config.
func NewConfig(maxAttempts int, baseDelay time.Duration) (Config, error) {
	cfg := Config{MaxAttempts: maxAttempts, BaseDelay: baseDelay}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports whether the config can drive a poll.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be at least 1, got %d", ErrInvalidConfig, c.MaxAttempts)
	}
	if c.BaseDelay <= 0 {
		return fmt.Errorf("%w: base delay must be positive, got %s", ErrInvalidConfig, c.BaseDelay)
	}
	return nil
}

// Delay returns the suspension before the given 1-indexed attempt:
// zero for attempt 1, BaseDelay * 2^(attempt-2) afterwards.
// Values that would overflow saturate at math.MaxInt64.
func (c Config) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	shift := attempt - 2
	if shift >= 63 || c.BaseDelay > time.Duration(math.MaxInt64>>shift) {
		return time.Duration(math.MaxInt64)
	}
	return c.BaseDelay << shift
}

// Schedule lists the delay before every attempt, starting with attempt 1.
func (c Config) Schedule() []time.Duration {
	if c.MaxAttempts < 1 {
		return nil
	}
	out := make([]time.Duration, c.MaxAttempts)
	for i := range out {
		out[i] = c.Delay(i + 1)
	}
	return out
}

// MaxScheduledWait is the total suspension of a poll that uses every
// attempt: BaseDelay * (2^(MaxAttempts-1) - 1). Probe latency is not
// included.
func (c Config) MaxScheduledWait() time.Duration {
	var total time.Duration
	for attempt := 2; attempt <= c.MaxAttempts; attempt++ {
		d := c.Delay(attempt)
		if total > time.Duration(math.MaxInt64)-d {
			return time.Duration(math.MaxInt64)
		}
		total += d
	}
	return total
}

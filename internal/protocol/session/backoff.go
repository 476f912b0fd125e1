package session

import (
	"math"
	"math/rand"
	"time"
)

// Backoff hands out host reconnect delays. It is owned by one reconnect
// loop and is not safe for concurrent use.
type Backoff struct {
	cfg     BackoffConfig
	rng     *rand.Rand
	attempt int
}

// NewBackoff seeds its own jitter source so two mirrors restarted together
// do not redial in lockstep.
func NewBackoff(cfg BackoffConfig, seed int64) *Backoff {
	return &Backoff{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// Next counts a failed attempt and returns how long to wait before the
// next dial.
func (b *Backoff) Next() time.Duration {
	b.attempt++
	return Delay(b.cfg, b.attempt, b.rng)
}

// Reset is called after a successful connect.
func (b *Backoff) Reset() {
	b.attempt = 0
}

func (b *Backoff) Attempt() int {
	return b.attempt
}

// Delay returns the wait before attempt (1-based). With jitter and an rng the
// exponential delay is scaled by a factor in [0.5, 1.5); the result never
// exceeds MaxDelay. A nil rng disables jitter.
func Delay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	mult := math.Max(cfg.Multiplier, 1.0)
	delay := float64(cfg.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if cfg.Jitter && rng != nil {
		delay *= 0.5 + rng.Float64()
	}
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}

package session

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Backoff yields retry delays for consecutive connect attempts.
type Backoff struct {
	cfg BackoffConfig
	rng *rand.Rand
}

func NewBackoff(cfg BackoffConfig, rng *rand.Rand) *Backoff {
	return &Backoff{cfg: cfg, rng: rng}
}

// Delay is the wait after failed attempt n (1-based). Delays grow
// geometrically up to MaxDelay; jitter scales them into [0.5, 1.5).
func (b *Backoff) Delay(attempt int) time.Duration {
	cfg := b.cfg
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	mult := math.Max(cfg.Multiplier, 1)
	delay := float64(cfg.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if cfg.MaxDelay > 0 {
		delay = math.Min(delay, float64(cfg.MaxDelay))
	}
	if cfg.Jitter {
		factor := 1.0
		if b.rng != nil {
			factor = 0.5 + b.rng.Float64()
		}
		delay *= factor
	}
	return time.Duration(delay)
}

// Sleep waits out the delay for attempt or returns early with ctx's error.
func (b *Backoff) Sleep(ctx context.Context, attempt int) error {
	timer := time.NewTimer(b.Delay(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

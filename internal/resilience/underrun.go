// Package resilience provides fault-containment primitives for the capture
// loop.
//
// The central type is [UnderrunGuard], a two-state breaker that tolerates
// isolated capture underruns but trips when they arrive in an unbroken run,
// converting an underrun storm into a fatal error instead of letting the loop
// spin on re-prepare forever.
package resilience

import (
	"fmt"
	"log/slog"
	"time"
)

// UnderrunGuardConfig holds tuning knobs for an [UnderrunGuard].
type UnderrunGuardConfig struct {
	// MaxConsecutive is the number of back-to-back underruns before the guard
	// trips. Default: 10.
	MaxConsecutive int

	// Window bounds how closely spaced underruns must be to count as
	// consecutive; an underrun arriving later than Window after the previous
	// one restarts the count. Default: 5s.
	Window time.Duration
}

// UnderrunGuard tracks runs of consecutive capture underruns. It is used from
// the single scheduler goroutine and needs no locking.
type UnderrunGuard struct {
	maxConsecutive int
	window         time.Duration

	consecutive int
	last        time.Time
	now         func() time.Time
}

// NewUnderrunGuard creates an [UnderrunGuard] with the supplied configuration.
// Zero-value config fields are replaced with sensible defaults.
func NewUnderrunGuard(cfg UnderrunGuardConfig) *UnderrunGuard {
	if cfg.MaxConsecutive <= 0 {
		cfg.MaxConsecutive = 10
	}
	if cfg.Window <= 0 {
		cfg.Window = 5 * time.Second
	}
	return &UnderrunGuard{
		maxConsecutive: cfg.MaxConsecutive,
		window:         cfg.Window,
		now:            time.Now,
	}
}

// Underrun records one underrun. It returns a non-nil error once the run of
// consecutive underruns inside the window reaches the configured maximum; the
// caller must treat that error as fatal.
func (g *UnderrunGuard) Underrun() error {
	t := g.now()
	if !g.last.IsZero() && t.Sub(g.last) > g.window {
		g.consecutive = 0
	}
	g.last = t
	g.consecutive++

	if g.consecutive >= g.maxConsecutive {
		return fmt.Errorf("resilience: %d consecutive underruns within %s, giving up",
			g.consecutive, g.window)
	}
	slog.Warn("capture underrun", "consecutive", g.consecutive, "max", g.maxConsecutive)
	return nil
}

// Success records a successful read, ending any run of underruns.
func (g *UnderrunGuard) Success() {
	g.consecutive = 0
}

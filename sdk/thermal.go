package sdk

import (
	"sync"
	"time"
)

// ThermalConfig tunes the duty-cycle guard.
type ThermalConfig struct {
	Window    int
	Threshold int
	Cooldown  time.Duration
	Disabled  bool
}

func DefaultThermalConfig() ThermalConfig {
	return ThermalConfig{
		Window:    1000,
		Threshold: 1000,
		Cooldown:  100 * time.Millisecond,
	}
}

// ThermalGuard throttles a read loop when too many tags were read over the
// last Window cycles. It is advisory and never fails a read.
type ThermalGuard struct {
	mu        sync.Mutex
	clock     Clock
	cfg       ThermalConfig
	window    []int
	index     int
	sum       int
	cooldowns int
}

func NewThermalGuard(cfg ThermalConfig, clock Clock) *ThermalGuard {
	def := DefaultThermalConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &ThermalGuard{
		clock:  clock,
		cfg:    cfg,
		window: make([]int, cfg.Window),
	}
}

// Observe records one cycle's tag count, evicting the oldest slot.
func (g *ThermalGuard) Observe(count int) {
	if count < 0 {
		count = 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sum += count - g.window[g.index]
	g.window[g.index] = count
	g.index = (g.index + 1) % len(g.window)
}

func (g *ThermalGuard) ShouldCooldown() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.cfg.Disabled && g.sum > g.cfg.Threshold
}

// Cooldown sleeps, then zeroes the next slot so the window does not
// re-trigger on the very next cycle.
func (g *ThermalGuard) Cooldown() {
	g.clock.Sleep(millis(g.cfg.Cooldown))

	g.mu.Lock()
	defer g.mu.Unlock()
	g.sum -= g.window[g.index]
	g.window[g.index] = 0
	g.index = (g.index + 1) % len(g.window)
	g.cooldowns++
}

// Pace observes count and cools down if needed. It reports whether it slept.
func (g *ThermalGuard) Pace(count int) bool {
	g.Observe(count)
	if !g.ShouldCooldown() {
		return false
	}
	g.Cooldown()
	return true
}

func (g *ThermalGuard) Sum() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sum
}

func (g *ThermalGuard) Cooldowns() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cooldowns
}

package sdk

import (
	"testing"
	"time"
)

func TestThermalGuardWindow(t *testing.T) {
	clock := &fakeClock{}
	g := NewThermalGuard(DefaultThermalConfig(), clock)

	g.Observe(1000)
	for i := 0; i < 998; i++ {
		g.Observe(0)
	}
	if g.ShouldCooldown() {
		t.Fatalf("cooldown at sum %d", g.Sum())
	}

	if !g.Pace(1) {
		t.Fatalf("expected cooldown at sum 1001")
	}
	if g.Cooldowns() != 1 {
		t.Fatalf("cooldowns: %d", g.Cooldowns())
	}
	sleeps := clock.Sleeps()
	if len(sleeps) != 1 || sleeps[0] != 100 {
		t.Fatalf("cooldown sleeps: %v", sleeps)
	}
	if g.Sum() != 1 {
		t.Fatalf("oldest slot not evicted by cooldown: sum %d", g.Sum())
	}
	if g.Pace(0) {
		t.Fatalf("cooldown re-triggered on next cycle")
	}
}

func TestThermalGuardEvictsOldest(t *testing.T) {
	g := NewThermalGuard(ThermalConfig{Window: 3, Threshold: 10, Cooldown: time.Millisecond}, &fakeClock{})
	for _, n := range []int{4, 4, 2} {
		g.Observe(n)
	}
	if g.Sum() != 10 || g.ShouldCooldown() {
		t.Fatalf("sum %d", g.Sum())
	}
	g.Observe(1)
	if g.Sum() != 7 {
		t.Fatalf("oldest not evicted: sum %d", g.Sum())
	}
}

func TestThermalGuardDisabled(t *testing.T) {
	clock := &fakeClock{}
	g := NewThermalGuard(ThermalConfig{Window: 2, Threshold: 1, Disabled: true}, clock)
	if g.Pace(50) || len(clock.Sleeps()) != 0 {
		t.Fatalf("disabled guard slept")
	}
	if g.Sum() != 50 {
		t.Fatalf("disabled guard stopped counting: %d", g.Sum())
	}
}

func TestThermalGuardIgnoresNegative(t *testing.T) {
	g := NewThermalGuard(ThermalConfig{Window: 2}, &fakeClock{})
	g.Observe(-5)
	if g.Sum() != 0 {
		t.Fatalf("negative count counted: %d", g.Sum())
	}
}

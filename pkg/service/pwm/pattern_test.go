// Copyright 2026 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//

package pwm

import (
	"testing"
	"time"

	"github.com/de1soc/socperiph/pkg/service/regmap"
)

func TestNextDutyRamp(t *testing.T) {
	configs := []struct{ inc, max uint32 }{
		{100, MaxDuty},
		{1, 10},
		{5, 20},
		{7, 100},
	}
	for _, c := range configs {
		// Ramp restarts once it reaches max-inc, so the last value
		// is the first multiple of inc that is >= max-inc.
		last := ((c.max - c.inc) + c.inc - 1) / c.inc
		cycle := uint64(last) + 1
		duty := uint32(0)
		for k := uint64(0); k < 5*cycle; k++ {
			expected := uint32(k%cycle) * c.inc
			if duty != expected {
				t.Fatalf("inc=%d max=%d: after %d ticks expected %d, got %d", c.inc, c.max, k, expected, duty)
			}
			if duty > c.max {
				t.Fatalf("inc=%d max=%d: duty %d exceeds maximum", c.inc, c.max, duty)
			}
			duty = NextDuty(duty, c.inc, c.max)
		}
	}
}

func TestNextDutyDefaultCycle(t *testing.T) {
	duty := uint32(1900)
	duty = NextDuty(duty, 100, MaxDuty)
	if duty != 2000 {
		t.Fatalf("expected 2000, got %d", duty)
	}
	if duty = NextDuty(duty, 100, MaxDuty); duty != 0 {
		t.Fatalf("expected wrap to 0, got %d", duty)
	}
}

func TestEngineConfigValidate(t *testing.T) {
	mem := regmap.NewMemory(4)
	if _, err := NewEngine("x", mem, []uint{0}, EngineConfig{MaxDuty: 10, Increment: 0, Period: time.Millisecond}); err == nil {
		t.Fatal("expected zero increment to be rejected")
	}
	if _, err := NewEngine("x", mem, []uint{0}, EngineConfig{MaxDuty: 10, Increment: 11, Period: time.Millisecond}); err == nil {
		t.Fatal("expected increment above maximum to be rejected")
	}
	if _, err := NewEngine("x", mem, []uint{4}, EngineConfig{MaxDuty: 10, Increment: 1, Period: time.Millisecond}); err == nil {
		t.Fatal("expected channel outside window to be rejected")
	}
}

func waitForTicks(t *testing.T, e *Engine, n uint64) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for e.Ticks() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %d ticks, got %d", n, e.Ticks())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEngineRampsAllChannels(t *testing.T) {
	mem := regmap.NewMemory(8)
	mem.SetRecordWrites(true)
	channels := []uint{1, 2, 3, 4, 5, 6, 7}
	cfg := EngineConfig{MaxDuty: MaxDuty, Increment: 100, Period: time.Millisecond, ArmDelay: 20 * time.Millisecond}
	e, err := NewEngine("ramp", mem, channels, cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	start := time.Now()
	e.Start()
	waitForTicks(t, e, 30)
	e.Stop()

	for _, ch := range channels {
		writes := mem.WritesTo(ch)
		if len(writes) < 30 {
			t.Fatalf("channel %d: expected at least 30 writes, got %d", ch, len(writes))
		}
		if d := writes[0].At.Sub(start); d < cfg.ArmDelay {
			t.Fatalf("channel %d: first write after %s, before arm delay", ch, d)
		}
		expected := uint32(0)
		for i, w := range writes {
			if w.Value != expected {
				t.Fatalf("channel %d write %d: expected %d, got %d", ch, i, expected, w.Value)
			}
			expected = NextDuty(expected, cfg.Increment, cfg.MaxDuty)
		}
	}
	if n := len(mem.WritesTo(0)); n != 0 {
		t.Fatalf("expected unmanaged channel 0 untouched, got %d writes", n)
	}
}

func TestEngineStopBeforeArm(t *testing.T) {
	mem := regmap.NewMemory(2)
	mem.SetRecordWrites(true)
	e, err := NewEngine("idle", mem, []uint{0, 1}, EngineConfig{MaxDuty: MaxDuty, Increment: 100, Period: time.Millisecond, ArmDelay: time.Hour})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	e.Start()
	if e.Running() {
		t.Fatal("engine must not run before arm delay")
	}
	done := make(chan struct{})
	go func() {
		e.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not cancel the pending arm timer")
	}
	if n := len(mem.Writes()); n != 0 {
		t.Fatalf("expected no writes, got %d", n)
	}
}

func TestEngineNoAccessAfterStop(t *testing.T) {
	mem := regmap.NewMemory(4)
	mem.SetRecordWrites(true)
	e, err := NewEngine("teardown", mem, []uint{0, 1, 2, 3}, EngineConfig{MaxDuty: MaxDuty, Increment: 100, Period: time.Millisecond})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	e.Start()
	waitForTicks(t, e, 5)
	e.Stop()
	// Any access after release panics inside the engine goroutine,
	// so releasing right after Stop must be safe.
	mem.Release()
	count := len(mem.Writes())
	time.Sleep(20 * time.Millisecond)
	if n := len(mem.Writes()); n != count {
		t.Fatalf("expected no writes after Stop, got %d more", n-count)
	}
	if e.Running() {
		t.Fatal("engine still running after Stop")
	}
	// Stop is idempotent, Start after Stop is ignored
	e.Stop()
	e.Start()
	time.Sleep(5 * time.Millisecond)
	if n := len(mem.Writes()); n != count {
		t.Fatalf("Start after Stop must not tick")
	}
}

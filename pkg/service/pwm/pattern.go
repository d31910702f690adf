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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/de1soc/socperiph/pkg/service/regmap"
)

// EngineConfig holds the construction time settings of a pattern Engine.
type EngineConfig struct {
	// Highest duty value of the hardware
	MaxDuty uint32
	// Duty step per tick
	Increment uint32
	// Time between ticks
	Period time.Duration
	// Time between Start and the first tick
	ArmDelay time.Duration
}

// Validate the configuration.
func (c EngineConfig) Validate() error {
	if c.Increment == 0 || c.Increment > c.MaxDuty {
		return fmt.Errorf("increment %d must be in range [1..%d]", c.Increment, c.MaxDuty)
	}
	if c.Period <= 0 {
		return fmt.Errorf("period must be positive, got %s", c.Period)
	}
	if c.ArmDelay < 0 {
		return fmt.Errorf("arm delay must not be negative, got %s", c.ArmDelay)
	}
	return nil
}

// NextDuty returns the duty value that follows current in the ramp.
// Once current reaches maxDuty-increment the ramp restarts at 0.
func NextDuty(current, increment, maxDuty uint32) uint32 {
	if current >= maxDuty-increment {
		return 0
	}
	return current + increment
}

// Engine sweeps the duty value of a set of channels.
// The engine is Idle until Start is called and the arm delay has passed.
// From then on it ticks every period until Stop.
// Only the run goroutine touches the ramp state and the window.
type Engine struct {
	config   EngineConfig
	window   regmap.Window
	channels []uint
	ticks    prometheus.Counter
	dutyOut  prometheus.Gauge

	mutex   sync.Mutex
	started bool
	stopped bool
	stop    chan struct{}
	done    chan struct{}

	current   uint32
	lastDuty  atomic.Uint32
	running   atomic.Bool
	tickCount atomic.Uint64
}

// NewEngine creates an idle pattern engine that writes to the given channels
// of the given window.
func NewEngine(id string, window regmap.Window, channels []uint, config EngineConfig) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	for _, ch := range channels {
		if ch >= window.Len() {
			return nil, fmt.Errorf("channel %d outside window of %d registers", ch, window.Len())
		}
	}
	return &Engine{
		config:   config,
		window:   window,
		channels: append([]uint(nil), channels...),
		ticks:    patternTicksTotal.WithLabelValues(id),
		dutyOut:  patternDutyGauge.WithLabelValues(id),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start arms the engine. The first tick happens after the arm delay.
// Start has no effect on an engine that was started or stopped before.
func (e *Engine) Start() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.started || e.stopped {
		return
	}
	e.started = true
	go e.run()
}

// Stop cancels the engine and waits until an in-flight tick has completed.
// Once Stop returns, the engine never touches its window again.
func (e *Engine) Stop() {
	e.mutex.Lock()
	if !e.stopped {
		e.stopped = true
		close(e.stop)
	}
	started := e.started
	e.mutex.Unlock()

	if started {
		<-e.done
	}
	e.running.Store(false)
}

// Running returns true once the arm delay has passed and until Stop.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Duty returns the duty value written by the last tick.
func (e *Engine) Duty() uint32 {
	return e.lastDuty.Load()
}

// Ticks returns the number of ticks executed so far.
func (e *Engine) Ticks() uint64 {
	return e.tickCount.Load()
}

// run waits for the arm delay, then ticks until stopped.
func (e *Engine) run() {
	defer close(e.done)

	timer := time.NewTimer(e.config.ArmDelay)
	defer timer.Stop()
	select {
	case <-e.stop:
		return
	case <-timer.C:
	}

	e.current = 0
	e.running.Store(true)
	for {
		// A stop that raced with the timer wins.
		select {
		case <-e.stop:
			return
		default:
		}
		e.tick()
		timer.Reset(e.config.Period)
		select {
		case <-e.stop:
			return
		case <-timer.C:
		}
	}
}

// tick writes the current duty value to all channels and advances the ramp.
func (e *Engine) tick() {
	duty := e.current
	for _, ch := range e.channels {
		e.window.Write(ch, duty)
	}
	e.current = NextDuty(duty, e.config.Increment, e.config.MaxDuty)
	e.lastDuty.Store(duty)
	e.tickCount.Add(1)
	e.ticks.Inc()
	e.dutyOut.Set(float64(duty))
}

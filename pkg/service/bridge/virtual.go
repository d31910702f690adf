//    Copyright 2026 Ewout Prangsma
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package bridge

import (
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/de1soc/socperiph/pkg/service/regmap"
)

// VirtualBridge is a bridge without hardware.
// Register regions are backed by memory and interrupts are raised by
// calling Fire on the line.
type VirtualBridge struct {
	claims

	mutex     sync.Mutex
	memories  map[uintptr]*regmap.Memory
	lines     map[int]*SimulatedIRQ
	mapFails  map[uintptr]error
	irqFails  map[int]error
	w1c       map[uintptr][]uint
	relFails  map[uintptr]error
	record    bool
	statusLed bool
	blinking  time.Duration
}

var _ API = &VirtualBridge{}

// NewVirtualBridge implements the bridge for a virtual worker.
func NewVirtualBridge() *VirtualBridge {
	return &VirtualBridge{
		memories: make(map[uintptr]*regmap.Memory),
		lines:    make(map[int]*SimulatedIRQ),
		mapFails: make(map[uintptr]error),
		irqFails: make(map[int]error),
		w1c:      make(map[uintptr][]uint),
		relFails: make(map[uintptr]error),
	}
}

// Turn status led on/off
func (b *VirtualBridge) SetStatusLED(on bool) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.statusLed = on
	b.blinking = 0
	return nil
}

// Blink status led with given duration between on/off
func (b *VirtualBridge) BlinkStatusLED(delay time.Duration) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.blinking = delay
	return nil
}

// StatusLED returns the current state of the status led.
func (b *VirtualBridge) StatusLED() (on bool, blinkDelay time.Duration) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.statusLed, b.blinking
}

// FailMapRegion makes the next MapRegion of a region at given base fail.
func (b *VirtualBridge) FailMapRegion(base uintptr, err error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.mapFails[base] = err
}

// FailRequestIRQ makes the next RequestIRQ of given line fail.
func (b *VirtualBridge) FailRequestIRQ(line int, err error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.irqFails[line] = err
}

// SetWriteOneToClear marks a register of every future mapping at given base
// as write-one-to-clear, like an edge-capture register.
func (b *VirtualBridge) SetWriteOneToClear(base uintptr, offset uint) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.w1c[base] = append(b.w1c[base], offset)
}

// SetRecordWrites enables recording of register writes in every future
// mapping. See regmap.Memory.Writes.
func (b *VirtualBridge) SetRecordWrites(record bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.record = record
}

// FailRelease makes Release of the next mapping at given base return err.
func (b *VirtualBridge) FailRelease(base uintptr, err error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.relFails[base] = err
}

// MapRegion claims the given region and backs it with memory.
func (b *VirtualBridge) MapRegion(region regmap.Region) (regmap.Window, error) {
	b.mutex.Lock()
	err, found := b.mapFails[region.Base]
	delete(b.mapFails, region.Base)
	b.mutex.Unlock()
	if found {
		regionMapErrorsTotal.Inc()
		return nil, errors.Wrapf(err, "failed to map %s", region)
	}
	release, err := b.claimRegion(region)
	if err != nil {
		regionMapErrorsTotal.Inc()
		return nil, err
	}
	mem := regmap.NewMemory(region.Words())
	mem.SetReleaseHook(release)
	b.mutex.Lock()
	mem.SetRecordWrites(b.record)
	for _, offset := range b.w1c[region.Base] {
		if offset < mem.Len() {
			mem.SetWriteOneToClear(offset)
		}
	}
	if err, found := b.relFails[region.Base]; found {
		mem.SetReleaseError(err)
		delete(b.relFails, region.Base)
	}
	b.memories[region.Base] = mem
	b.mutex.Unlock()
	regionsMappedTotal.Inc()
	return mem, nil
}

// Memory returns the memory that backs the last region mapped at given base.
func (b *VirtualBridge) Memory(base uintptr) *regmap.Memory {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.memories[base]
}

// RequestIRQ claims the given simulated interrupt line.
func (b *VirtualBridge) RequestIRQ(line int, handler func()) (IRQ, error) {
	b.mutex.Lock()
	err, found := b.irqFails[line]
	delete(b.irqFails, line)
	b.mutex.Unlock()
	if found {
		return nil, errors.Wrapf(err, "failed to request line %d", line)
	}
	release, err := b.claimIRQ(line)
	if err != nil {
		return nil, err
	}
	irq := &SimulatedIRQ{
		line:      line,
		handler:   handler,
		done:      make(chan struct{}),
		onRelease: release,
	}
	b.mutex.Lock()
	b.lines[line] = irq
	b.mutex.Unlock()
	return irq, nil
}

// IRQLine returns the last claimed simulated interrupt line with given number.
func (b *VirtualBridge) IRQLine(line int) *SimulatedIRQ {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.lines[line]
}

func (b *VirtualBridge) Close() error {
	return nil
}

// SimulatedIRQ is an interrupt line of the virtual bridge.
type SimulatedIRQ struct {
	mutex     sync.Mutex
	line      int
	handler   func()
	released  bool
	done      chan struct{}
	onRelease func()
}

// Serve blocks until the line is released.
// Interrupts are delivered by Fire.
func (s *SimulatedIRQ) Serve() error {
	<-s.done
	return nil
}

// Fire raises one interrupt. The handler runs on the calling goroutine,
// serialized with other interrupts of this line.
// Returns false when the line has been released.
func (s *SimulatedIRQ) Fire() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.released {
		return false
	}
	interruptsTotal.WithLabelValues(strconv.Itoa(s.line)).Inc()
	s.handler()
	return true
}

// Release the line. Waits for a handler that is running.
func (s *SimulatedIRQ) Release() error {
	s.mutex.Lock()
	if s.released {
		s.mutex.Unlock()
		return nil
	}
	s.released = true
	close(s.done)
	s.mutex.Unlock()
	if s.onRelease != nil {
		s.onRelease()
	}
	return nil
}

// Released returns true once the line has been released.
func (s *SimulatedIRQ) Released() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.released
}

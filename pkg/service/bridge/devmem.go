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

package bridge

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ecc1/gpio"
	"github.com/pkg/errors"

	"github.com/de1soc/socperiph/pkg/service/regmap"
)

const (
	// DefaultMemDevice is the device used to map physical registers.
	DefaultMemDevice = "/dev/mem"
	// DefaultUIODevicePattern is used to find the UIO device of an interrupt line.
	DefaultUIODevicePattern = "/dev/uio%d"
)

// DevMemConfig configures the bridge that accesses the hardware directly.
type DevMemConfig struct {
	// Device used to map registers (default /dev/mem)
	MemDevice string
	// Pattern used to open the UIO device for an interrupt line (default /dev/uio%d)
	UIODevicePattern string
	// GPIO number of the status led; negative when there is none
	StatusLEDPin int
}

type statusLed struct {
	sync.Mutex
	pin         gpio.OutputPin
	cancelBlink func()
}

// Turn led on/off, cancel blink
func (l *statusLed) Set(on bool) error {
	l.Mutex.Lock()
	defer l.Mutex.Unlock()

	if cancel := l.cancelBlink; cancel != nil {
		l.cancelBlink = nil
		cancel()
	}
	if l.pin == nil {
		return nil
	}
	if err := l.pin.Write(on); err != nil {
		return errors.Wrap(err, "Write failed")
	}
	return nil
}

// Blink led on/off
func (l *statusLed) Blink(delay time.Duration) error {
	l.Mutex.Lock()
	defer l.Mutex.Unlock()

	if cancel := l.cancelBlink; cancel != nil {
		l.cancelBlink = nil
		cancel()
	}
	if l.pin == nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancelBlink = cancel
	go func() {
		value := true
		for {
			l.Mutex.Lock()
			if ctx.Err() == nil {
				l.pin.Write(value)
				value = !value
			}
			l.Mutex.Unlock()
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

type devMemBridge struct {
	claims
	config    DevMemConfig
	statusLed statusLed
}

// NewDevMemBridge implements the bridge for a SoC where the FPGA
// registers are reachable through /dev/mem and interrupts through UIO.
func NewDevMemBridge(config DevMemConfig) (API, error) {
	if config.MemDevice == "" {
		config.MemDevice = DefaultMemDevice
	}
	if config.UIODevicePattern == "" {
		config.UIODevicePattern = DefaultUIODevicePattern
	}
	b := &devMemBridge{
		config: config,
	}
	if config.StatusLEDPin >= 0 {
		activeLow := false
		initialValue := false
		pin, err := gpio.Output(config.StatusLEDPin, activeLow, initialValue)
		if err != nil {
			return nil, errors.Wrap(err, "Output[statusLed] failed")
		}
		b.statusLed.pin = pin
	}
	return b, nil
}

// Turn status led on/off
func (b *devMemBridge) SetStatusLED(on bool) error {
	if err := b.statusLed.Set(on); err != nil {
		return errors.Wrap(err, "Set[statusLed] failed")
	}
	return nil
}

// Blink status led with given duration between on/off
func (b *devMemBridge) BlinkStatusLED(delay time.Duration) error {
	if err := b.statusLed.Blink(delay); err != nil {
		return errors.Wrap(err, "Blink[statusLed] failed")
	}
	return nil
}

// MapRegion claims the given physical register region and maps it.
func (b *devMemBridge) MapRegion(region regmap.Region) (regmap.Window, error) {
	release, err := b.claimRegion(region)
	if err != nil {
		regionMapErrorsTotal.Inc()
		return nil, err
	}
	w, err := regmap.Map(b.config.MemDevice, region, release)
	if err != nil {
		release()
		regionMapErrorsTotal.Inc()
		return nil, err
	}
	regionsMappedTotal.Inc()
	return w, nil
}

// RequestIRQ claims the given interrupt line, served by a UIO device.
func (b *devMemBridge) RequestIRQ(line int, handler func()) (IRQ, error) {
	release, err := b.claimIRQ(line)
	if err != nil {
		return nil, err
	}
	irq, err := openUIO(fmt.Sprintf(b.config.UIODevicePattern, line), handler,
		interruptsTotal.WithLabelValues(strconv.Itoa(line)), release)
	if err != nil {
		release()
		return nil, err
	}
	return irq, nil
}

func (b *devMemBridge) Close() error {
	if err := b.statusLed.Set(false); err != nil {
		return errors.Wrap(err, "Close failed")
	}
	return nil
}

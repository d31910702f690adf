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
	"time"

	"github.com/de1soc/socperiph/pkg/service/regmap"
)

// API of the bridge, the hardware used to reach the FPGA peripherals
// of the SoC: memory mapped register windows, interrupt lines and
// a status led.
type API interface {
	// Turn status led on/off
	SetStatusLED(on bool) error
	// Blink status led with given duration between on/off
	BlinkStatusLED(delay time.Duration) error

	// MapRegion claims the given physical register region and maps it.
	// Overlapping claims fail with RegionBusyError.
	// The claim is dropped when the returned window is released.
	MapRegion(region regmap.Region) (regmap.Window, error)
	// RequestIRQ claims the given interrupt line. The handler is invoked
	// once for every interrupt, from the goroutine that runs IRQ.Serve.
	// A second claim on the same line fails with IRQBusyError.
	RequestIRQ(line int, handler func()) (IRQ, error)

	Close() error
}

// IRQ is a claimed interrupt line.
type IRQ interface {
	// Serve delivers interrupts to the handler until the line is released.
	// Serve returns nil after Release.
	Serve() error
	// Release the line. No new interrupt is delivered once Release returns.
	// A handler that is already running completes before Serve returns,
	// so wait for Serve before freeing anything the handler uses.
	Release() error
}

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

package devices

import (
	"time"

	"github.com/de1soc/socperiph/pkg/service/pwm"
	"github.com/de1soc/socperiph/pkg/service/regmap"
)

const (
	// CompatibleLEDPWM matches the PWM driven LED array.
	CompatibleLEDPWM = "altr,de1soc-ledpwm"
	// CompatiblePushbutton matches the interrupt driven pushbutton bank.
	CompatiblePushbutton = "altr,de1soc-pushbutton"

	// NoUserChannel disables the channel reserved for direct user control.
	NoUserChannel = -1
)

// Config describes a single device.
type Config struct {
	// Identifier of the device
	ID string
	// Compatible string used to select the driver
	Compatible string
	// Physical register region of the device
	Region regmap.Region
	// Interrupt line (pushbutton only)
	IRQ int
	// Settings of a LED device
	LED LEDConfig
	// Settings of a pushbutton device
	Button ButtonConfig
}

// LEDConfig holds the construction time settings of a LED device.
type LEDConfig struct {
	// Number of PWM channels, one duty register each
	Channels uint
	// Channel written by users, excluded from the pattern (NoUserChannel for none)
	UserChannel int
	// Duty step of the pattern per tick
	Increment uint32
	// Time between pattern ticks
	Period time.Duration
	// Time between activation and the first pattern tick
	ArmDelay time.Duration
	// Minimum time between two user written values
	Pacing time.Duration
}

// DefaultLEDConfig returns the settings of the reference design.
// The pattern drives all channels; set UserChannel to reserve one.
func DefaultLEDConfig() LEDConfig {
	return LEDConfig{
		Channels:    8,
		UserChannel: NoUserChannel,
		Increment:   100,
		Period:      time.Millisecond * 10,
		ArmDelay:    time.Millisecond * 3000,
		Pacing:      time.Millisecond * 200,
	}
}

// engineConfig returns the pattern settings.
func (c LEDConfig) engineConfig() pwm.EngineConfig {
	return pwm.EngineConfig{
		MaxDuty:   pwm.MaxDuty,
		Increment: c.Increment,
		Period:    c.Period,
		ArmDelay:  c.ArmDelay,
	}
}

// ButtonConfig holds the construction time settings of a pushbutton device.
type ButtonConfig struct {
	// Capacity of the event queue
	QueueCapacity int
	// Bits of the edge-capture register that carry button edges
	EdgeMask uint32
	// Value written to the interrupt mask register on activation
	InterruptMask uint32
}

// DefaultButtonConfig returns the settings of the reference design.
func DefaultButtonConfig() ButtonConfig {
	return ButtonConfig{
		QueueCapacity: 8,
		EdgeMask:      0x0F,
		InterruptMask: 0x0F,
	}
}

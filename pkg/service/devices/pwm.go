// Copyright 2020 Ewout Prangsma
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

// LED contains the API that is supported by PWM driven LED devices.
type LED interface {
	Device
	// ChannelCount returns the number of PWM channels of the device
	ChannelCount() uint
	// UserChannel returns the channel reserved for user writes.
	// Returns false when there is none.
	UserChannel() (uint, bool)
	// LastPercent returns the last percentage written by a user (unclamped).
	LastPercent() byte
	// PatternRunning returns true when the pattern engine is ticking.
	PatternRunning() bool
	// PatternDuty returns the duty value written by the last pattern tick.
	PatternDuty() uint32
}

// Button contains the API that is supported by pushbutton devices.
type Button interface {
	Device
	// QueuedEvents returns the number of events waiting to be read.
	QueuedEvents() int
	// DroppedEvents returns the number of events dropped because the queue was full.
	DroppedEvents() uint64
}

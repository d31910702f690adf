// Copyright 2023 Ewout Prangsma
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
	"github.com/de1soc/socperiph/pkg/metrics"
)

const (
	subSystem = "devices"
)

var (
	// Number of created devices
	devicesCreatedTotal = metrics.MustRegisterGauge(subSystem,
		"devices_created_total",
		"Number of created devices")
	// Number of configured devices
	devicesConfiguredTotal = metrics.MustRegisterGauge(subSystem,
		"devices_configured_total",
		"Number of configured devices")

	// Button events
	eventsAcceptedTotal = metrics.MustRegisterCounterVec(subSystem,
		"events_accepted_total",
		"Number of button events accepted by the event queue",
		"device")
	eventsDroppedTotal = metrics.MustRegisterCounterVec(subSystem,
		"events_dropped_total",
		"Number of button events dropped because the event queue was full",
		"device")

	// LED writes
	userDutyWritesTotal = metrics.MustRegisterCounterVec(subSystem,
		"user_duty_writes_total",
		"Number of duty values written on behalf of a user",
		"device")

	// Sessions
	readBytesTotal = metrics.MustRegisterCounterVec(subSystem,
		"read_bytes_total",
		"Number of bytes delivered by device reads",
		"device")
	writeBytesTotal = metrics.MustRegisterCounterVec(subSystem,
		"write_bytes_total",
		"Number of bytes accepted by device writes",
		"device")
)

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
	"github.com/de1soc/socperiph/pkg/metrics"
)

const (
	subSystem = "pwm"
)

var (
	// Total number of pattern ticks per device
	patternTicksTotal = metrics.MustRegisterCounterVec(subSystem,
		"pattern_ticks_total",
		"Total number of pattern engine ticks",
		"device")
	// Current duty value of the pattern per device
	patternDutyGauge = metrics.MustRegisterGaugeVec(subSystem,
		"pattern_duty",
		"Duty value written by the last pattern tick",
		"device")
)

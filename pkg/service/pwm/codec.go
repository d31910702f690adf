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

// MaxDuty is the largest duty value accepted by the PWM cores (11 bit).
const MaxDuty uint32 = 0x7FF

// ToDuty converts a percentage into a raw duty value.
// Percentages above 100 saturate to MaxDuty.
// Negative percentages are not handled here; callers must not pass them.
func ToDuty(percent int) uint32 {
	if percent > 100 {
		return MaxDuty
	}
	return uint32(percent * int(MaxDuty) / 100)
}

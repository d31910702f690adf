//    Copyright 2023 Ewout Prangsma
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
	"github.com/de1soc/socperiph/pkg/metrics"
)

const (
	subSystem = "bridge"
)

var (
	// Total number of register regions mapped
	regionsMappedTotal = metrics.MustRegisterCounter(subSystem,
		"regions_mapped_total",
		"Total number of register regions mapped")
	// Total number of failed region mappings
	regionMapErrorsTotal = metrics.MustRegisterCounter(subSystem,
		"region_map_errors_total",
		"Total number of failed region mappings")
	// Total number of interrupts delivered per line
	interruptsTotal = metrics.MustRegisterCounterVec(subSystem,
		"interrupts_total",
		"Total number of interrupts delivered to a handler",
		"line")
)

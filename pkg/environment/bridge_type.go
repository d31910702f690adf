//    Copyright 2018 Ewout Prangsma
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

package environment

import (
	"strings"
)

const (
	// BridgeTypeDevMem maps registers through /dev/mem and serves interrupts through UIO.
	BridgeTypeDevMem = "devmem"
	// BridgeTypeVirtual simulates registers and interrupts in memory.
	BridgeTypeVirtual = "virtual"
)

// bridgeTypeForRelease returns the bridge type for a kernel with given release.
// Kernels built for the Cyclone V HPS carry "socfpga" in their release.
func bridgeTypeForRelease(release string) string {
	if strings.Contains(strings.ToLower(release), "socfpga") {
		return BridgeTypeDevMem
	}
	return BridgeTypeVirtual
}

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

import "testing"

func TestBridgeTypeForRelease(t *testing.T) {
	tests := map[string]string{
		"5.15.64-lts-socfpga":   BridgeTypeDevMem,
		"4.14.130-ltsi-SOCFPGA": BridgeTypeDevMem,
		"6.1.0-18-amd64":        BridgeTypeVirtual,
		"":                      BridgeTypeVirtual,
	}
	for release, expected := range tests {
		if got := bridgeTypeForRelease(release); got != expected {
			t.Errorf("%q: expected %s, got %s", release, expected, got)
		}
	}
}

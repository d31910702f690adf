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

// Package regmap provides access to a window of 32-bit device registers.
//
// A Window is valid between its acquisition (see the bridge package) and its
// Release. Register offsets are expressed in words, not bytes. Touching an
// offset outside the window, or touching the window after it has been
// released, is a programming error and panics.
package regmap

import (
	"fmt"
)

// Window is a mapped window of 32-bit device registers.
type Window interface {
	// Read the register at the given word offset.
	Read(offset uint) uint32
	// Write the register at the given word offset.
	// The write is visible to the hardware before Write returns.
	Write(offset uint, value uint32)
	// Len returns the number of registers in the window.
	Len() uint
	// Release unmaps the window. Only the first call has effect.
	Release() error
}

// Region identifies a physical register region.
type Region struct {
	// Physical base address
	Base uintptr
	// Length in bytes
	Length int
}

// Words returns the number of 32-bit registers in the region.
func (r Region) Words() uint {
	return uint(r.Length / 4)
}

// End returns the first address after the region.
func (r Region) End() uintptr {
	return r.Base + uintptr(r.Length)
}

// Overlaps returns true when both regions share at least one byte.
func (r Region) Overlaps(other Region) bool {
	return r.Base < other.End() && other.Base < r.End()
}

// Validate the region.
func (r Region) Validate() error {
	if r.Length <= 0 {
		return fmt.Errorf("region at 0x%08x has invalid length %d", r.Base, r.Length)
	}
	if r.Base%4 != 0 || r.Length%4 != 0 {
		return fmt.Errorf("region 0x%08x+%d is not word aligned", r.Base, r.Length)
	}
	return nil
}

func (r Region) String() string {
	return fmt.Sprintf("0x%08x+%d", r.Base, r.Length)
}

// checkAccess panics when the offset is outside a window of given size.
func checkAccess(offset, words uint, released bool) {
	if released {
		panic("regmap: register access after release")
	}
	if offset >= words {
		panic(fmt.Sprintf("regmap: offset %d out of range [0..%d)", offset, words))
	}
}

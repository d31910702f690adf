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

package regmap

import (
	"sync"
	"time"
)

// WriteRecord is a single register write observed by a Memory window.
type WriteRecord struct {
	Offset uint
	Value  uint32
	At     time.Time
}

// Memory is a Window backed by ordinary memory.
// It simulates a register block: the hardware side uses Peek/Poke,
// the driver side uses Read/Write. Registers marked write-one-to-clear
// clear the bits written to them, like an edge-capture register.
// Writes are only recorded after SetRecordWrites(true).
type Memory struct {
	mutex        sync.Mutex
	words        []uint32
	clearOnWrite map[uint]bool
	record       bool
	writes       []WriteRecord
	released     bool
	releaseErr   error
	onRelease    func()
}

var _ Window = &Memory{}

// NewMemory creates a simulated register window of given number of registers.
func NewMemory(words uint) *Memory {
	return &Memory{
		words:        make([]uint32, words),
		clearOnWrite: make(map[uint]bool),
	}
}

// Read one register
func (m *Memory) Read(offset uint) uint32 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	checkAccess(offset, uint(len(m.words)), m.released)
	return m.words[offset]
}

// Write one register
func (m *Memory) Write(offset uint, value uint32) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	checkAccess(offset, uint(len(m.words)), m.released)
	if m.clearOnWrite[offset] {
		m.words[offset] &^= value
	} else {
		m.words[offset] = value
	}
	if m.record {
		m.writes = append(m.writes, WriteRecord{Offset: offset, Value: value, At: time.Now()})
	}
}

// Len returns the number of registers in the window.
func (m *Memory) Len() uint {
	return uint(len(m.words))
}

// Release the window.
func (m *Memory) Release() error {
	m.mutex.Lock()
	if m.released {
		m.mutex.Unlock()
		return nil
	}
	m.released = true
	cb, err := m.onRelease, m.releaseErr
	m.mutex.Unlock()
	if cb != nil {
		cb()
	}
	return err
}

// SetRecordWrites turns recording of Write calls on or off.
// Turning it off drops the records collected so far.
func (m *Memory) SetRecordWrites(record bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.record = record
	if !record {
		m.writes = nil
	}
}

// SetReleaseError sets the error returned by Release.
// The window is released regardless.
func (m *Memory) SetReleaseError(err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.releaseErr = err
}

// SetReleaseHook sets a callback invoked once the window is released.
func (m *Memory) SetReleaseHook(cb func()) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.onRelease = cb
}

// SetWriteOneToClear marks the register at given offset as write-one-to-clear.
func (m *Memory) SetWriteOneToClear(offset uint) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	checkAccess(offset, uint(len(m.words)), false)
	m.clearOnWrite[offset] = true
}

// Peek reads a register from the hardware side.
// It is allowed after release.
func (m *Memory) Peek(offset uint) uint32 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	checkAccess(offset, uint(len(m.words)), false)
	return m.words[offset]
}

// Poke sets bits of a register from the hardware side.
// Poke does not show up in Writes.
func (m *Memory) Poke(offset uint, bits uint32) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	checkAccess(offset, uint(len(m.words)), false)
	m.words[offset] |= bits
}

// Writes returns a copy of all recorded writes done through the Window API.
func (m *Memory) Writes() []WriteRecord {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return append([]WriteRecord(nil), m.writes...)
}

// WritesTo returns all writes done to the register at given offset.
func (m *Memory) WritesTo(offset uint) []WriteRecord {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	var result []WriteRecord
	for _, w := range m.writes {
		if w.Offset == offset {
			result = append(result, w)
		}
	}
	return result
}

// Released returns true once the window has been released.
func (m *Memory) Released() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.released
}

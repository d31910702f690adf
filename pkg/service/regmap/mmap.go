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

//go:build linux

package regmap

import (
	"os"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

type mmapWindow struct {
	file      *os.File
	mem       []byte
	regs      []byte
	words     uint
	released  atomic.Bool
	onRelease func()
}

// Map opens the given memory device (typically /dev/mem) and maps the given
// region into the address space of this process.
// The onRelease callback (if any) is invoked once the window is released.
func Map(devicePath string, region Region, onRelease func()) (Window, error) {
	if err := region.Validate(); err != nil {
		return nil, err
	}
	pageSize := uintptr(os.Getpagesize())
	pageBase := region.Base &^ (pageSize - 1)
	delta := int(region.Base - pageBase)
	mapLen := delta + region.Length
	if rem := mapLen % int(pageSize); rem != 0 {
		mapLen += int(pageSize) - rem
	}
	f, err := os.OpenFile(devicePath, os.O_RDWR|os.O_SYNC, 0660)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", devicePath)
	}
	mem, err := unix.Mmap(int(f.Fd()), int64(pageBase), mapLen, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "failed to map %s at %s", devicePath, region)
	}
	return &mmapWindow{
		file:      f,
		mem:       mem,
		regs:      mem[delta : delta+region.Length],
		words:     region.Words(),
		onRelease: onRelease,
	}, nil
}

// Read one 32 bit register
func (w *mmapWindow) Read(offset uint) uint32 {
	checkAccess(offset, w.words, w.released.Load())
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&w.regs[offset*4])))
}

// Write one 32 bit register
func (w *mmapWindow) Write(offset uint, value uint32) {
	checkAccess(offset, w.words, w.released.Load())
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&w.regs[offset*4])), value)
}

// Len returns the number of registers in the window.
func (w *mmapWindow) Len() uint {
	return w.words
}

// Release unmaps the window.
func (w *mmapWindow) Release() error {
	if !w.released.CompareAndSwap(false, true) {
		return nil
	}
	defer func() {
		if w.onRelease != nil {
			w.onRelease()
		}
	}()
	w.regs = nil
	if err := unix.Munmap(w.mem); err != nil {
		w.file.Close()
		return errors.Wrap(err, "Munmap failed")
	}
	w.mem = nil
	if err := w.file.Close(); err != nil {
		return errors.Wrap(err, "Close failed")
	}
	return nil
}

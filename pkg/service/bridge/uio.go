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

package bridge

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// uioIRQ is an interrupt line served by a UIO device.
// A blocking read of 4 bytes returns once per interrupt (the value is the
// running interrupt count). Writing 1 re-enables the interrupt.
type uioIRQ struct {
	file      *os.File
	handler   func()
	counter   prometheus.Counter
	once      sync.Once
	onRelease func()
}

// openUIO opens the given UIO device.
func openUIO(path string, handler func(), counter prometheus.Counter, onRelease func()) (*uioIRQ, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0660)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	return &uioIRQ{
		file:      f,
		handler:   handler,
		counter:   counter,
		onRelease: onRelease,
	}, nil
}

// Serve delivers interrupts to the handler until the line is released.
func (u *uioIRQ) Serve() error {
	enable := make([]byte, 4)
	binary.NativeEndian.PutUint32(enable, 1)
	if _, err := u.file.Write(enable); err != nil {
		if errors.Is(err, os.ErrClosed) {
			return nil
		}
		return errors.Wrap(err, "failed to enable interrupt")
	}
	b := make([]byte, 4)
	for {
		n, err := u.file.Read(b)
		if err != nil {
			if errors.Is(err, os.ErrClosed) {
				// Released
				return nil
			}
			return errors.Wrap(err, "failed to wait for interrupt")
		}
		if n == 4 {
			u.counter.Inc()
			u.handler()
			if _, err := u.file.Write(enable); err != nil && !errors.Is(err, os.ErrClosed) {
				return errors.Wrap(err, "failed to re-enable interrupt")
			}
		}
	}
}

// Release closes the UIO device, which unblocks Serve.
func (u *uioIRQ) Release() error {
	var err error
	u.once.Do(func() {
		err = u.file.Close()
		if u.onRelease != nil {
			u.onRelease()
		}
	})
	return err
}

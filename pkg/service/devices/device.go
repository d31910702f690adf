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

package devices

import "context"

// Device contains the API that is supported by all types of devices.
type Device interface {
	// ID returns the identifier of the device.
	ID() string
	// Configure is called once to acquire the resources of the device
	// and put it in the desired state. When Configure fails, everything
	// acquired so far has been released again.
	Configure(ctx context.Context) error
	// Close brings the device back to a safe state and releases
	// all resources acquired by Configure.
	Close(ctx context.Context) error
	// Open starts a new read/write session on the device.
	Open() (File, error)
}

// File is a byte oriented read/write session on a device.
type File interface {
	// Read up to len(p) bytes from the device.
	Read(ctx context.Context, p []byte) (int, error)
	// Write the bytes of p to the device.
	Write(ctx context.Context, p []byte) (int, error)
	// Close ends the session.
	Close() error
}

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

import (
	"github.com/pkg/errors"
)

var (
	// SetupFailureError is returned when a device cannot acquire its resources.
	SetupFailureError = errors.New("setup failed")
	IsSetupFailure    = isErrorFunc(SetupFailureError)
	// InvalidArgumentError is returned when a call is rejected because of its arguments.
	InvalidArgumentError = errors.New("invalid argument")
	IsInvalidArgument    = isErrorFunc(InvalidArgumentError)
	// CopyFaultError is returned when the data of a transfer cannot be copied.
	CopyFaultError = errors.New("copy fault")
	IsCopyFault    = isErrorFunc(CopyFaultError)
	// NotActiveError is returned when a device is used while it is not configured.
	NotActiveError = errors.New("device not active")
	IsNotActive    = isErrorFunc(NotActiveError)
	// NotFoundError is returned when a device does not exist.
	NotFoundError = errors.New("device not found")
	IsNotFound    = isErrorFunc(NotFoundError)

	maskAny = errors.WithStack
)

func isErrorFunc(typeOfError error) func(err error) bool {
	return func(err error) bool {
		return err == typeOfError || errors.Cause(err) == typeOfError
	}
}

// InvalidArgument creates an InvalidArgumentError with given message.
func InvalidArgument(format string, args ...interface{}) error {
	return errors.Wrapf(InvalidArgumentError, format, args...)
}

// SetupFailure wraps the given cause into a SetupFailureError.
func SetupFailure(cause error, format string, args ...interface{}) error {
	return errors.Wrapf(SetupFailureError, format+": %v", append(args, cause)...)
}

//    Copyright 2026 Ewout Prangsma
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
	"sync"

	"github.com/pkg/errors"

	"github.com/de1soc/socperiph/pkg/service/regmap"
)

var (
	// RegionBusyError is returned when a register region is already claimed.
	RegionBusyError = errors.New("region busy")
	// IRQBusyError is returned when an interrupt line is already claimed.
	IRQBusyError = errors.New("interrupt line busy")

	IsRegionBusy = isErrorFunc(RegionBusyError)
	IsIRQBusy    = isErrorFunc(IRQBusyError)
)

func isErrorFunc(typeOfError error) func(err error) bool {
	return func(err error) bool {
		return err == typeOfError || errors.Cause(err) == typeOfError
	}
}

// claims keeps track of claimed regions and interrupt lines.
type claims struct {
	mutex   sync.Mutex
	regions []regmap.Region
	irqs    map[int]struct{}
}

// claimRegion claims the given region.
// Returns a func that drops the claim.
func (c *claims) claimRegion(region regmap.Region) (func(), error) {
	if err := region.Validate(); err != nil {
		return nil, err
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for _, r := range c.regions {
		if r.Overlaps(region) {
			return nil, errors.Wrapf(RegionBusyError, "%s overlaps %s", region, r)
		}
	}
	c.regions = append(c.regions, region)
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mutex.Lock()
			defer c.mutex.Unlock()
			for i, r := range c.regions {
				if r == region {
					c.regions = append(c.regions[:i], c.regions[i+1:]...)
					break
				}
			}
		})
	}, nil
}

// claimIRQ claims the given interrupt line.
// Returns a func that drops the claim.
func (c *claims) claimIRQ(line int) (func(), error) {
	if line < 0 {
		return nil, errors.Errorf("invalid interrupt line %d", line)
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.irqs == nil {
		c.irqs = make(map[int]struct{})
	}
	if _, found := c.irqs[line]; found {
		return nil, errors.Wrapf(IRQBusyError, "line %d", line)
	}
	c.irqs[line] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mutex.Lock()
			defer c.mutex.Unlock()
			delete(c.irqs, line)
		})
	}, nil
}

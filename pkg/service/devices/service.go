// Copyright 2020 Ewout Prangsma
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
	"context"
	"sort"
	"sync/atomic"
	"time"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/de1soc/socperiph/pkg/service/bridge"
)

// Service contains the API that is exposed by the device service.
type Service interface {
	// DeviceByID returns the device with given ID.
	// Return false if not found or not configured.
	DeviceByID(id string) (Device, bool)
	// Configure is called once to activate all devices.
	Configure(ctx context.Context) error
	// Run the service until the given context is canceled.
	Run(ctx context.Context) error
	// Close deactivates all devices.
	Close(context.Context) error
	// Get a list of configured device IDs
	GetConfiguredDeviceIDs() []string
	// Get a list of unconfigured device IDs
	GetUnconfiguredDeviceIDs() []string
}

type service struct {
	log               zerolog.Logger
	devices           map[string]Device
	configuredDevices atomic.Pointer[map[string]Device]
	bAPI              bridge.API
	activeCount       atomic.Uint32
}

// NewService instantiates a new Service and Device's for the given
// device configurations.
func NewService(configs []Config, bAPI bridge.API, log zerolog.Logger) (Service, error) {
	s := &service{
		log:     log.With().Str("component", "device-service").Logger(),
		devices: make(map[string]Device),
		bAPI:    bAPI,
	}
	s.configuredDevices.Store(&map[string]Device{})
	for _, c := range configs {
		if c.ID == "" {
			return nil, InvalidArgument("Device with compatible '%s' has no ID", c.Compatible)
		}
		if _, found := s.devices[c.ID]; found {
			return nil, InvalidArgument("Duplicate device ID '%s'", c.ID)
		}
		if err := c.Region.Validate(); err != nil {
			return nil, InvalidArgument("Device '%s' has invalid region: %v", c.ID, err)
		}
		log := s.log.With().Str("device-id", c.ID).Logger()
		var dev Device
		var err error
		switch c.Compatible {
		case CompatibleLEDPWM:
			dev, err = newLEDPWM(log, c, bAPI, s.onActive)
		case CompatiblePushbutton:
			dev, err = newPushbutton(log, c, bAPI, s.onActive)
		default:
			return nil, InvalidArgument("Unsupported compatible '%s'", c.Compatible)
		}
		if err != nil {
			return nil, err
		}
		s.devices[c.ID] = dev
	}
	devicesCreatedTotal.Set(float64(len(s.devices)))
	return s, nil
}

// DeviceByID returns the device with given ID.
// Return false if not found or not configured.
func (s *service) DeviceByID(id string) (Device, bool) {
	dev, ok := (*s.configuredDevices.Load())[id]
	return dev, ok
}

// Configure is called once to activate all devices.
// A device that fails to activate stays unconfigured, the others are
// activated regardless.
func (s *service) Configure(ctx context.Context) error {
	log := s.log
	var ae aerr.AggregateError
	configuredDevices := make(map[string]Device)
	for id, d := range s.devices {
		log := log.With().Str("device-id", id).Logger()
		log.Debug().Msg("configuring device...")
		if err := d.Configure(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to configure device")
			ae.Add(err)
		} else {
			configuredDevices[id] = d
			log.Debug().Msg("configured device")
		}
	}
	s.configuredDevices.Store(&configuredDevices)
	log.Info().Int("count", len(configuredDevices)).Msg("Configured devices")
	devicesConfiguredTotal.Set(float64(len(configuredDevices)))
	return ae.AsError()
}

// Run the service until the given context is canceled.
func (s *service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.runActiveNotify(ctx) })
	return g.Wait()
}

// Close deactivates all devices.
func (s *service) Close(ctx context.Context) error {
	var ae aerr.AggregateError
	for id, d := range s.devices {
		if err := d.Close(ctx); err != nil {
			s.log.Warn().Err(err).Str("device-id", id).Msg("Failed to close device")
			ae.Add(err)
		}
	}
	s.configuredDevices.Store(&map[string]Device{})
	devicesConfiguredTotal.Set(0)
	return ae.AsError()
}

// onActive is called when a device shows activity.
// Called from interrupt context, so it must not block.
func (s *service) onActive() {
	s.activeCount.Add(1)
}

// runActiveNotify updates the blinking status when a device has become active
func (s *service) runActiveNotify(ctx context.Context) error {
	lastActiveCount := uint32(0)
	count := 0
	for {
		select {
		case <-ctx.Done():
			// Context canceled
			return nil
		case <-time.After(time.Second / 10):
			newActiveCount := s.activeCount.Load()
			if newActiveCount != lastActiveCount {
				lastActiveCount = newActiveCount
				s.bAPI.BlinkStatusLED(time.Second / 10)
				count = 0
			} else if count < 20 {
				count++
			} else {
				count = 0
				s.bAPI.SetStatusLED(false)
			}
		}
	}
}

// Get a list of configured device IDs
func (s *service) GetConfiguredDeviceIDs() []string {
	result := lo.Keys(*s.configuredDevices.Load())
	sort.Strings(result)
	return result
}

// Get a list of unconfigured device IDs
func (s *service) GetUnconfiguredDeviceIDs() []string {
	confDevs := *s.configuredDevices.Load()
	result := lo.Filter(lo.Keys(s.devices), func(id string, _ int) bool {
		_, found := confDevs[id]
		return !found
	})
	sort.Strings(result)
	return result
}

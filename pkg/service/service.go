//    Copyright 2017-2022 Ewout Prangsma
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

package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/de1soc/socperiph/pkg/service/bridge"
	"github.com/de1soc/socperiph/pkg/service/devices"
	"github.com/de1soc/socperiph/pkg/service/mqtt"
)

// Service runs all devices of the worker.
type Service interface {
	// Run the service until the given context is cancelled.
	Run(ctx context.Context) error
	// Devices returns the device service.
	Devices() devices.Service
}

type Config struct {
	// Devices to activate
	Devices []devices.Config
	// MQTT forwarding. Disabled when the broker address is empty.
	MQTT mqtt.Config
}

type Dependencies struct {
	Logger zerolog.Logger
	Bridge bridge.API
}

type service struct {
	Config
	Dependencies

	devService devices.Service
	forwarder  *mqtt.Forwarder
}

// NewService creates a Service instance and returns it.
func NewService(conf Config, deps Dependencies) (Service, error) {
	deps.Logger = deps.Logger.With().Str("component", "service").Logger()
	devService, err := devices.NewService(conf.Devices, deps.Bridge, deps.Logger)
	if err != nil {
		return nil, maskAny(err)
	}
	s := &service{
		Config:       conf,
		Dependencies: deps,
		devService:   devService,
	}
	if conf.MQTT.BrokerAddress != "" {
		s.forwarder, err = mqtt.NewForwarder(conf.MQTT, devService, deps.Logger)
		if err != nil {
			return nil, maskAny(err)
		}
	}
	return s, nil
}

// Devices returns the device service.
func (s *service) Devices() devices.Service {
	return s.devService
}

// Run activates all devices, serves them until the given context is
// cancelled and deactivates them again.
func (s *service) Run(ctx context.Context) error {
	log := s.Logger
	defer s.Bridge.Close()

	s.Bridge.BlinkStatusLED(time.Millisecond * 250)
	if err := s.devService.Configure(ctx); err != nil {
		// Devices that failed stay unavailable, the others are served
		configureFailuresTotal.Inc()
		log.Error().Err(err).Msg("Not all devices could be configured")
	}
	log.Info().
		Strs("configured", s.devService.GetConfiguredDeviceIDs()).
		Strs("unconfigured", s.devService.GetUnconfiguredDeviceIDs()).
		Msg("Devices ready")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.devService.Run(gctx) })
	if s.forwarder != nil {
		g.Go(func() error { return s.forwarder.Run(gctx) })
	}
	runErr := g.Wait()

	// Deactivate with a fresh context, ctx is done by now
	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	if err := s.devService.Close(closeCtx); err != nil {
		log.Error().Err(err).Msg("Failed to close devices")
		if runErr == nil {
			runErr = err
		}
	}
	s.Bridge.SetStatusLED(false)
	log.Info().Msg("Service stopped")
	return maskAny(runErr)
}

// Copyright 2023 Ewout Prangsma
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

package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/de1soc/socperiph/pkg/service/devices"
)

const (
	defaultReadCount = 1
	maxReadCount     = 64
)

// Config for the HTTP server.
type Config struct {
	// Host interface to listen on
	Host string
	// Port to listen on for HTTP requests
	HTTPPort int
}

// Server runs the HTTP server for the service.
type Server struct {
	Config
	log     zerolog.Logger
	devices devices.Service
}

// New configures a new Server.
func New(cfg Config, log zerolog.Logger, devService devices.Service) (*Server, error) {
	return &Server{
		Config:  cfg,
		log:     log.With().Str("component", "server").Logger(),
		devices: devService,
	}, nil
}

// newRouter creates the HTTP routes.
func (s *Server) newRouter() *echo.Echo {
	httpRouter := echo.New()
	httpRouter.HideBanner = true
	httpRouter.HidePort = true
	httpRouter.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	httpRouter.GET("/debug/pprof/*", echo.WrapHandler(http.HandlerFunc(pprof.Index)))
	httpRouter.GET("/devices", s.handleListDevices)
	httpRouter.GET("/devices/:id", s.handleReadDevice)
	httpRouter.PUT("/devices/:id", s.handleWriteDevice,
		middleware.BodyLimit(fmt.Sprintf("%dB", devices.MaxLEDWriteSize)))
	return httpRouter
}

// Run the server until the given context is canceled.
func (s *Server) Run(ctx context.Context) error {
	log := s.log
	httpAddr := net.JoinHostPort(s.Host, strconv.Itoa(s.HTTPPort))
	httpLis, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on address %s", httpAddr)
	}
	httpSrv := http.Server{
		Handler: s.newRouter(),
		BaseContext: func(net.Listener) context.Context {
			// Blocking reads end when the server stops
			return ctx
		},
	}

	log.Debug().Str("address", httpAddr).Msg("Serving HTTP")
	serveErr := make(chan error, 1)
	go func() {
		defer close(serveErr)
		if err := httpSrv.Serve(httpLis); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		log.Debug().Str("address", httpAddr).Msg("Done Serving HTTP")
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return errors.Wrap(err, "failed to serve HTTP server")
	}

	log.Info().Msg("Closing servers")
	httpSrv.Shutdown(context.Background())
	return nil
}

type deviceList struct {
	Configured   []string `json:"configured"`
	Unconfigured []string `json:"unconfigured"`
}

type writeResult struct {
	Written int `json:"written"`
}

type errorResult struct {
	Error string `json:"error"`
}

// GET /devices
func (s *Server) handleListDevices(c echo.Context) error {
	return c.JSON(http.StatusOK, deviceList{
		Configured:   s.devices.GetConfiguredDeviceIDs(),
		Unconfigured: s.devices.GetUnconfiguredDeviceIDs(),
	})
}

// GET /devices/:id?count=N
func (s *Server) handleReadDevice(c echo.Context) error {
	count := defaultReadCount
	if raw := c.QueryParam("count"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > maxReadCount {
			return s.replyError(c, devices.InvalidArgument("count must be in range [1..%d]", maxReadCount))
		}
		count = v
	}
	file, err := s.openDevice(c.Param("id"))
	if err != nil {
		return s.replyError(c, err)
	}
	defer file.Close()

	buf := make([]byte, count)
	n, err := file.Read(c.Request().Context(), buf)
	if err != nil && err != io.EOF {
		return s.replyError(c, err)
	}
	return c.Blob(http.StatusOK, echo.MIMEOctetStream, buf[:n])
}

// PUT /devices/:id
func (s *Server) handleWriteDevice(c echo.Context) error {
	file, err := s.openDevice(c.Param("id"))
	if err != nil {
		return s.replyError(c, err)
	}
	defer file.Close()

	body, err := io.ReadAll(c.Request().Body)
	if httpErr, ok := err.(*echo.HTTPError); ok {
		// Body exceeds the limit
		return httpErr
	} else if err != nil {
		return s.replyError(c, errors.Wrapf(devices.CopyFaultError, "reading request body: %v", err))
	}
	n, err := file.Write(c.Request().Context(), body)
	if err != nil {
		return s.replyError(c, err)
	}
	return c.JSON(http.StatusOK, writeResult{Written: n})
}

// openDevice starts a session on the configured device with given ID.
func (s *Server) openDevice(id string) (devices.File, error) {
	dev, found := s.devices.DeviceByID(id)
	if !found {
		return nil, errors.Wrapf(devices.NotFoundError, "device '%s'", id)
	}
	return dev.Open()
}

// replyError sends the given error with a matching status code.
func (s *Server) replyError(c echo.Context, err error) error {
	code := http.StatusInternalServerError
	switch {
	case devices.IsInvalidArgument(err), devices.IsCopyFault(err):
		code = http.StatusBadRequest
	case devices.IsNotFound(err):
		code = http.StatusNotFound
	case devices.IsNotActive(err):
		code = http.StatusServiceUnavailable
	case errors.Cause(err) == context.Canceled, errors.Cause(err) == context.DeadlineExceeded:
		code = http.StatusRequestTimeout
	}
	if code == http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
	}
	return c.JSON(code, errorResult{Error: err.Error()})
}
